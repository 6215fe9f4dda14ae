// Package memory is a process-local vector store using brute-force scoring.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"minirag/internal/domain"
	"minirag/internal/logging"
	"minirag/internal/vectorstore"
)

type collection struct {
	size   int
	order  []int64
	points map[int64]domain.Record
}

// Storage keeps collections in memory. Upserting an existing id replaces the
// point in place.
type Storage struct {
	mu          sync.RWMutex
	distance    string
	collections map[string]*collection
	logger      *slog.Logger
}

// NewStorage creates an empty store scoring with the given distance.
func NewStorage(distance string, logger *slog.Logger) (*Storage, error) {
	d, err := vectorstore.NormalizeDistance(distance)
	if err != nil {
		return nil, err
	}
	return &Storage{
		distance:    d,
		collections: map[string]*collection{},
		logger:      logging.OrDefault(logger).With("store", vectorstore.BackendMemory),
	}, nil
}

func (s *Storage) Connect(context.Context) error { return nil }

func (s *Storage) Disconnect() error { return nil }

func (s *Storage) IsCollectionExisted(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *Storage) ListAllCollections(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Storage) GetCollectionInfo(_ context.Context, name string) (*domain.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrCollectionNotFound)
	}
	return &domain.CollectionInfo{
		Name:        name,
		VectorSize:  c.size,
		Distance:    s.distance,
		PointsCount: int64(len(c.points)),
		Status:      "green",
	}, nil
}

func (s *Storage) CreateCollection(_ context.Context, name string, embeddingSize int, doReset bool) (bool, error) {
	if embeddingSize <= 0 {
		return false, fmt.Errorf("invalid embedding size %d", embeddingSize)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if doReset {
		delete(s.collections, name)
	}
	if _, ok := s.collections[name]; ok {
		return false, nil
	}
	s.logger.Info("creating collection", "collection", name, "size", embeddingSize)
	s.collections[name] = &collection{size: embeddingSize, points: map[int64]domain.Record{}}
	return true, nil
}

func (s *Storage) DeleteCollection(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		return false, nil
	}
	delete(s.collections, name)
	return true, nil
}

func (s *Storage) InsertOne(_ context.Context, name string, record domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, domain.ErrCollectionNotFound)
	}
	return c.upsert(record)
}

func (s *Storage) InsertMany(_ context.Context, name string, texts []string, vectors [][]float32, metadata []map[string]any, ids []int64, batchSize int) error {
	records, err := vectorstore.BuildRecords(texts, vectors, metadata, ids)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, domain.ErrCollectionNotFound)
	}
	for i, batch := range vectorstore.Batches(records, batchSize) {
		for _, r := range batch {
			if err := vectorstore.CheckDimension(r.Vector, c.size); err != nil {
				s.logger.Error("error while inserting batch", "collection", name, "batch", i, "error", err)
				return fmt.Errorf("insert batch %d: %w", i, err)
			}
		}
		for _, r := range batch {
			c.put(r)
		}
	}
	return nil
}

func (s *Storage) SearchByVector(_ context.Context, name string, vector []float32, limit int) ([]domain.RetrievedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		s.logger.Warn("search on missing collection", "collection", name)
		return []domain.RetrievedDocument{}, nil
	}
	if err := vectorstore.CheckDimension(vector, c.size); err != nil {
		return nil, err
	}
	docs := make([]domain.RetrievedDocument, 0, len(c.order))
	for _, id := range c.order {
		r := c.points[id]
		docs = append(docs, domain.RetrievedDocument{Text: r.Text, Score: vectorstore.Score(s.distance, r.Vector, vector)})
	}
	vectorstore.SortByScore(docs)
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (c *collection) upsert(r domain.Record) error {
	if err := vectorstore.CheckDimension(r.Vector, c.size); err != nil {
		return err
	}
	c.put(r)
	return nil
}

func (c *collection) put(r domain.Record) {
	if _, exists := c.points[r.ID]; !exists {
		c.order = append(c.order, r.ID)
	}
	c.points[r.ID] = r
}
