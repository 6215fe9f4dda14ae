package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"minirag/internal/domain"
	"minirag/internal/logging"
	"minirag/internal/vectorstore"
)

// Remote is a minimal REST client to a Qdrant service.
type Remote struct {
	url      string
	apiKey   string
	distance string
	client   *http.Client
	logger   *slog.Logger
}

// NewRemote creates a client for cfg.Host. A zero timeout means 15s.
func NewRemote(cfg Config, logger *slog.Logger) *Remote {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	distance := cfg.Distance
	if distance == "" {
		distance = vectorstore.DistanceCosine
	}
	return &Remote{
		url:      strings.TrimRight(cfg.Host, "/"),
		apiKey:   cfg.APIKey,
		distance: distance,
		client:   &http.Client{Timeout: timeout},
		logger:   logging.OrDefault(logger).With("store", vectorstore.BackendQdrant, "mode", "remote"),
	}
}

type statusError struct {
	method, path string
	status       int
	body         string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.method, e.path, e.status, e.body)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusNotFound
}

// Connect checks that the service answers.
func (s *Remote) Connect(ctx context.Context) error {
	if err := s.do(ctx, http.MethodGet, "/collections", nil, nil); err != nil {
		return fmt.Errorf("connect qdrant: %w", err)
	}
	return nil
}

func (s *Remote) Disconnect() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Remote) IsCollectionExisted(ctx context.Context, name string) (bool, error) {
	var out struct {
		Result struct {
			Exists bool `json:"exists"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, collectionPath(name)+"/exists", nil, &out); err != nil {
		return false, err
	}
	return out.Result.Exists, nil
}

func (s *Remote) ListAllCollections(ctx context.Context) ([]string, error) {
	var out struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, "/collections", nil, &out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.Result.Collections))
	for _, c := range out.Result.Collections {
		names = append(names, c.Name)
	}
	return names, nil
}

func (s *Remote) GetCollectionInfo(ctx context.Context, name string) (*domain.CollectionInfo, error) {
	var out struct {
		Result struct {
			Status      string `json:"status"`
			PointsCount int64  `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, collectionPath(name), nil, &out); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", name, domain.ErrCollectionNotFound)
		}
		return nil, err
	}
	return &domain.CollectionInfo{
		Name:        name,
		VectorSize:  out.Result.Config.Params.Vectors.Size,
		Distance:    strings.ToLower(out.Result.Config.Params.Vectors.Distance),
		PointsCount: out.Result.PointsCount,
		Status:      out.Result.Status,
	}, nil
}

func (s *Remote) CreateCollection(ctx context.Context, name string, embeddingSize int, doReset bool) (bool, error) {
	if embeddingSize <= 0 {
		return false, fmt.Errorf("invalid embedding size %d", embeddingSize)
	}
	if doReset {
		if _, err := s.DeleteCollection(ctx, name); err != nil {
			return false, err
		}
	}
	exists, err := s.IsCollectionExisted(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	s.logger.Info("creating new qdrant collection", "collection", name, "size", embeddingSize)
	body := map[string]any{
		"vectors": map[string]any{
			"size":     embeddingSize,
			"distance": qdrantDistance(s.distance),
		},
	}
	if err := s.do(ctx, http.MethodPut, collectionPath(name), body, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Remote) DeleteCollection(ctx context.Context, name string) (bool, error) {
	exists, err := s.IsCollectionExisted(ctx, name)
	if err != nil || !exists {
		return false, err
	}
	s.logger.Info("deleting collection", "collection", name)
	if err := s.do(ctx, http.MethodDelete, collectionPath(name), nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Remote) InsertOne(ctx context.Context, name string, record domain.Record) error {
	exists, err := s.IsCollectionExisted(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		s.logger.Error("can not insert new record to non-existed collection", "collection", name)
		return fmt.Errorf("%s: %w", name, domain.ErrCollectionNotFound)
	}
	return s.upsert(ctx, name, []domain.Record{record})
}

func (s *Remote) InsertMany(ctx context.Context, name string, texts []string, vectors [][]float32, metadata []map[string]any, ids []int64, batchSize int) error {
	records, err := vectorstore.BuildRecords(texts, vectors, metadata, ids)
	if err != nil {
		return err
	}
	for i, batch := range vectorstore.Batches(records, batchSize) {
		if err := s.upsert(ctx, name, batch); err != nil {
			s.logger.Error("error while inserting batch", "collection", name, "batch", i, "error", err)
			return fmt.Errorf("insert batch %d: %w", i, err)
		}
	}
	return nil
}

func (s *Remote) SearchByVector(ctx context.Context, name string, vector []float32, limit int) ([]domain.RetrievedDocument, error) {
	if limit <= 0 {
		limit = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, collectionPath(name)+"/points/search", req, &resp); err != nil {
		if isNotFound(err) {
			s.logger.Warn("search on missing collection", "collection", name)
			return []domain.RetrievedDocument{}, nil
		}
		return nil, err
	}
	docs := make([]domain.RetrievedDocument, 0, len(resp.Result))
	for _, r := range resp.Result {
		text, _ := r.Payload[payloadText].(string)
		docs = append(docs, domain.RetrievedDocument{Text: text, Score: r.Score})
	}
	return docs, nil
}

func (s *Remote) upsert(ctx context.Context, name string, records []domain.Record) error {
	points := make([]map[string]any, len(records))
	for i, r := range records {
		points[i] = map[string]any{
			"id":     r.ID,
			"vector": r.Vector,
			"payload": map[string]any{
				payloadText:     r.Text,
				payloadMetadata: r.Metadata,
			},
		}
	}
	return s.do(ctx, http.MethodPut, collectionPath(name)+"/points?wait=true", map[string]any{"points": points}, nil)
}

func (s *Remote) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{method: method, path: path, status: resp.StatusCode, body: string(payload)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func qdrantDistance(d string) string {
	if d == vectorstore.DistanceDot {
		return "Dot"
	}
	return "Cosine"
}
