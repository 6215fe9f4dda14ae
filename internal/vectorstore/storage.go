// Package vectorstore holds what the vector store backends share: record
// assembly, batching and distance scoring.
package vectorstore

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"minirag/internal/domain"
)

// Backend names accepted by the factory.
const (
	BackendQdrant   = "QDRANT"
	BackendPGVector = "PGVECTOR"
	BackendMemory   = "MEMORY"
)

// Distance methods.
const (
	DistanceCosine = "cosine"
	DistanceDot    = "dot"
)

// DefaultBatchSize is used by InsertMany when the caller passes zero.
const DefaultBatchSize = 50

// NormalizeDistance lower-cases a distance method, defaulting to cosine.
func NormalizeDistance(method string) (string, error) {
	switch m := strings.ToLower(strings.TrimSpace(method)); m {
	case "":
		return DistanceCosine, nil
	case DistanceCosine, DistanceDot:
		return m, nil
	default:
		return "", fmt.Errorf("unknown distance method %q", method)
	}
}

// BuildRecords zips the parallel InsertMany inputs. Missing metadata becomes
// nil per record and missing ids become 0..n-1.
func BuildRecords(texts []string, vectors [][]float32, metadata []map[string]any, ids []int64) ([]domain.Record, error) {
	n := len(texts)
	if len(vectors) != n {
		return nil, fmt.Errorf("texts and vectors length mismatch: %d != %d", n, len(vectors))
	}
	if metadata != nil && len(metadata) != n {
		return nil, fmt.Errorf("texts and metadata length mismatch: %d != %d", n, len(metadata))
	}
	if ids != nil && len(ids) != n {
		return nil, fmt.Errorf("texts and ids length mismatch: %d != %d", n, len(ids))
	}
	records := make([]domain.Record, n)
	for i := range texts {
		r := domain.Record{ID: int64(i), Text: texts[i], Vector: vectors[i]}
		if ids != nil {
			r.ID = ids[i]
		}
		if metadata != nil {
			r.Metadata = metadata[i]
		}
		records[i] = r
	}
	return records, nil
}

// Batches splits records into consecutive slices of at most size elements.
func Batches(records []domain.Record, size int) [][]domain.Record {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]domain.Record
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		out = append(out, records[start:end])
	}
	return out
}

// CheckDimension returns domain.ErrDimensionMismatch when len(v) != size.
func CheckDimension(v []float32, size int) error {
	if len(v) != size {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(v), size)
	}
	return nil
}

// Score compares two vectors of equal length. Cosine with a zero vector is 0.
func Score(distance string, a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if distance == DistanceDot {
		return dot
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SortByScore orders documents by descending score, keeping store order on ties.
func SortByScore(docs []domain.RetrievedDocument) {
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })
}
