package chunker

import "testing"

func TestChunk_Overlap(t *testing.T) {
	t.Parallel()

	c := NewSentenceChunker(2, 1)
	chunks := c.Chunk(Document{Source: "a.txt", Content: "One. Two. Three. Four."})

	want := []string{"One. Two.", "Two. Three.", "Three. Four."}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %+v", len(want), len(chunks), chunks)
	}
	for i, w := range want {
		if chunks[i].Text != w {
			t.Errorf("chunk %d: expected %q, got %q", i, w, chunks[i].Text)
		}
		if chunks[i].ID != int64(i) || chunks[i].Metadata["chunk_index"] != i || chunks[i].Metadata["source"] != "a.txt" {
			t.Errorf("chunk %d: unexpected id/metadata %d %v", i, chunks[i].ID, chunks[i].Metadata)
		}
	}
}

func TestChunk_NoPunctuation(t *testing.T) {
	t.Parallel()

	chunks := NewSentenceChunker(5, 1).Chunk(Document{Content: "  no punctuation here  "})
	if len(chunks) != 1 || chunks[0].Text != "no punctuation here" {
		t.Errorf("unexpected chunks: %+v", chunks)
	}
}

func TestChunk_Empty(t *testing.T) {
	t.Parallel()

	if chunks := NewSentenceChunker(5, 1).Chunk(Document{Content: "   "}); chunks != nil {
		t.Errorf("expected nil, got %+v", chunks)
	}
}

func TestNewSentenceChunker_ClampsOverlap(t *testing.T) {
	t.Parallel()

	c := NewSentenceChunker(2, 5)
	chunks := c.Chunk(Document{Content: "A. B. C."})
	if len(chunks) != 2 {
		t.Errorf("expected progress with clamped overlap, got %d chunks", len(chunks))
	}
}
