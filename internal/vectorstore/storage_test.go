package vectorstore

import (
	"errors"
	"math"
	"testing"

	"minirag/internal/domain"
)

func TestBuildRecords_SynthesizesIDsAndMetadata(t *testing.T) {
	t.Parallel()

	recs, err := BuildRecords([]string{"a", "b", "c"}, [][]float32{{1}, {2}, {3}}, nil, nil)
	if err != nil {
		t.Fatalf("BuildRecords failed: %v", err)
	}
	for i, r := range recs {
		if r.ID != int64(i) {
			t.Errorf("record %d: expected id %d, got %d", i, i, r.ID)
		}
		if r.Metadata != nil {
			t.Errorf("record %d: expected nil metadata", i)
		}
	}
}

func TestBuildRecords_UsesGivenIDs(t *testing.T) {
	t.Parallel()

	recs, err := BuildRecords([]string{"a", "b"}, [][]float32{{1}, {2}}, []map[string]any{{"k": 1}, nil}, []int64{10, 20})
	if err != nil {
		t.Fatalf("BuildRecords failed: %v", err)
	}
	if recs[0].ID != 10 || recs[1].ID != 20 || recs[0].Metadata["k"] != 1 {
		t.Errorf("unexpected records: %+v", recs)
	}
}

func TestBuildRecords_LengthMismatch(t *testing.T) {
	t.Parallel()

	if _, err := BuildRecords([]string{"a"}, nil, nil, nil); err == nil {
		t.Error("expected vectors mismatch error")
	}
	if _, err := BuildRecords([]string{"a"}, [][]float32{{1}}, nil, []int64{1, 2}); err == nil {
		t.Error("expected ids mismatch error")
	}
}

func TestBatches(t *testing.T) {
	t.Parallel()

	recs := make([]domain.Record, 120)
	got := Batches(recs, 0)
	if len(got) != 3 || len(got[0]) != 50 || len(got[2]) != 20 {
		t.Errorf("unexpected batching: %d batches", len(got))
	}
	if len(Batches(nil, 10)) != 0 {
		t.Error("expected no batches for no records")
	}
}

func TestScore(t *testing.T) {
	t.Parallel()

	a := []float32{1, 0}
	b := []float32{2, 0}
	if s := Score(DistanceCosine, a, b); math.Abs(s-1) > 1e-9 {
		t.Errorf("expected cosine 1, got %v", s)
	}
	if s := Score(DistanceDot, a, b); s != 2 {
		t.Errorf("expected dot 2, got %v", s)
	}
	if s := Score(DistanceCosine, a, []float32{0, 0}); s != 0 {
		t.Errorf("expected 0 for zero vector, got %v", s)
	}
}

func TestSortByScore_StableOnTies(t *testing.T) {
	t.Parallel()

	docs := []domain.RetrievedDocument{{Text: "a", Score: 0.5}, {Text: "b", Score: 0.9}, {Text: "c", Score: 0.5}}
	SortByScore(docs)
	if docs[0].Text != "b" || docs[1].Text != "a" || docs[2].Text != "c" {
		t.Errorf("unexpected order: %+v", docs)
	}
}

func TestNormalizeDistance(t *testing.T) {
	t.Parallel()

	if d, _ := NormalizeDistance(""); d != DistanceCosine {
		t.Errorf("expected cosine default, got %q", d)
	}
	if d, _ := NormalizeDistance("DOT"); d != DistanceDot {
		t.Errorf("expected dot, got %q", d)
	}
	if _, err := NormalizeDistance("euclid"); err == nil {
		t.Error("expected error for unknown method")
	}
}

func TestCheckDimension(t *testing.T) {
	t.Parallel()

	if err := CheckDimension([]float32{1, 2}, 3); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if err := CheckDimension([]float32{1, 2, 3}, 3); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
