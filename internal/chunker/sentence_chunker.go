package chunker

import (
	"regexp"
	"strings"

	"minirag/internal/domain"
)

// Document is a text source to be split into chunks.
type Document struct {
	Source  string
	Content string
}

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

// NewSentenceChunker creates a chunker. Overlap is clamped below the chunk size.
func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?؟]+[.!?؟])`),
	}
}

// Chunk returns the document's chunks numbered from 0. Each chunk carries
// its source and index as metadata.
func (c *SentenceChunker) Chunk(document Document) []domain.Chunk {
	sentences := c.splitter.FindAllString(document.Content, -1)
	if len(sentences) == 0 {
		trimmed := strings.TrimSpace(document.Content)
		if trimmed == "" {
			return nil
		}
		sentences = []string{trimmed}
	}
	// Trim spaces
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}
	var chunks []domain.Chunk
	i := 0
	idx := 0
	for i < len(sentences) {
		end := min(i+c.sentencesPerChunk, len(sentences))
		chunks = append(chunks, domain.Chunk{
			ID:   int64(idx),
			Text: strings.Join(sentences[i:end], " "),
			Metadata: map[string]any{
				"source":      document.Source,
				"chunk_index": idx,
			},
		})
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
		idx++
	}
	return chunks
}
