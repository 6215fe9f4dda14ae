package qdrant

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	// Register the modernc sqlite driver under the name "sqlite"
	_ "modernc.org/sqlite"

	"minirag/internal/domain"
	"minirag/internal/logging"
	"minirag/internal/vectorstore"
)

const localDBFile = "qdrant.db"

const localSchema = `
CREATE TABLE IF NOT EXISTS collections (
	name TEXT PRIMARY KEY,
	size INTEGER NOT NULL,
	distance TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS points (
	collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
	id INTEGER NOT NULL,
	text TEXT NOT NULL,
	metadata TEXT,
	vector BLOB NOT NULL,
	PRIMARY KEY (collection, id)
);
`

// Local keeps collections in a SQLite file and scores them by brute force.
type Local struct {
	path     string
	distance string
	db       *sql.DB
	logger   *slog.Logger
}

// NewLocal creates an unconnected local store rooted at cfg.Path.
func NewLocal(cfg Config, logger *slog.Logger) *Local {
	distance := cfg.Distance
	if distance == "" {
		distance = vectorstore.DistanceCosine
	}
	return &Local{
		path:     cfg.Path,
		distance: distance,
		logger:   logging.OrDefault(logger).With("store", vectorstore.BackendQdrant, "mode", "local"),
	}
}

// Connect creates the data directory and opens the database file.
func (s *Local) Connect(ctx context.Context) error {
	if s.path == "" {
		return errors.New("qdrant local mode requires a path")
	}
	if err := os.MkdirAll(s.path, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	dsn := filepath.Join(s.path, localDBFile) +
		"?_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.ExecContext(ctx, localSchema); err != nil {
		db.Close()
		return fmt.Errorf("initializing schema: %w", err)
	}
	s.db = db
	return nil
}

func (s *Local) Disconnect() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Local) conn() (*sql.DB, error) {
	if s.db == nil {
		return nil, errors.New("qdrant local store is not connected")
	}
	return s.db, nil
}

func (s *Local) IsCollectionExisted(ctx context.Context, name string) (bool, error) {
	_, err := s.collectionSize(ctx, name)
	if errors.Is(err, domain.ErrCollectionNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Local) ListAllCollections(ctx context.Context) ([]string, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Local) GetCollectionInfo(ctx context.Context, name string) (*domain.CollectionInfo, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	info := domain.CollectionInfo{Name: name, Status: "green"}
	err = db.QueryRowContext(ctx, `
		SELECT c.size, c.distance, (SELECT COUNT(*) FROM points p WHERE p.collection = c.name)
		FROM collections c WHERE c.name = ?`, name).Scan(&info.VectorSize, &info.Distance, &info.PointsCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrCollectionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading collection: %w", err)
	}
	return &info, nil
}

func (s *Local) CreateCollection(ctx context.Context, name string, embeddingSize int, doReset bool) (bool, error) {
	if embeddingSize <= 0 {
		return false, fmt.Errorf("invalid embedding size %d", embeddingSize)
	}
	db, err := s.conn()
	if err != nil {
		return false, err
	}
	if doReset {
		if _, err := s.DeleteCollection(ctx, name); err != nil {
			return false, err
		}
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO collections (name, size, distance) VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING`,
		name, embeddingSize, s.distance)
	if err != nil {
		return false, fmt.Errorf("creating collection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.logger.Info("creating new qdrant collection", "collection", name, "size", embeddingSize)
	}
	return n > 0, nil
}

func (s *Local) DeleteCollection(ctx context.Context, name string) (bool, error) {
	db, err := s.conn()
	if err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("deleting collection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.logger.Info("deleting collection", "collection", name)
	}
	return n > 0, nil
}

func (s *Local) InsertOne(ctx context.Context, name string, record domain.Record) error {
	size, err := s.collectionSize(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrCollectionNotFound) {
			s.logger.Error("can not insert new record to non-existed collection", "collection", name)
		}
		return err
	}
	return s.upsert(ctx, name, size, []domain.Record{record})
}

func (s *Local) InsertMany(ctx context.Context, name string, texts []string, vectors [][]float32, metadata []map[string]any, ids []int64, batchSize int) error {
	records, err := vectorstore.BuildRecords(texts, vectors, metadata, ids)
	if err != nil {
		return err
	}
	size, err := s.collectionSize(ctx, name)
	if err != nil {
		return err
	}
	for i, batch := range vectorstore.Batches(records, batchSize) {
		if err := s.upsert(ctx, name, size, batch); err != nil {
			s.logger.Error("error while inserting batch", "collection", name, "batch", i, "error", err)
			return fmt.Errorf("insert batch %d: %w", i, err)
		}
	}
	return nil
}

func (s *Local) SearchByVector(ctx context.Context, name string, vector []float32, limit int) ([]domain.RetrievedDocument, error) {
	size, err := s.collectionSize(ctx, name)
	if errors.Is(err, domain.ErrCollectionNotFound) {
		s.logger.Warn("search on missing collection", "collection", name)
		return []domain.RetrievedDocument{}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := vectorstore.CheckDimension(vector, size); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT text, vector FROM points WHERE collection = ? ORDER BY rowid`, name)
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}
	defer rows.Close()

	docs := []domain.RetrievedDocument{}
	for rows.Next() {
		var text string
		var blob []byte
		if err := rows.Scan(&text, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		v, err := decodeVector(blob)
		if err != nil || len(v) != size {
			continue // Skip corrupted embeddings
		}
		docs = append(docs, domain.RetrievedDocument{Text: text, Score: vectorstore.Score(s.distance, v, vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	vectorstore.SortByScore(docs)
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *Local) collectionSize(ctx context.Context, name string) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var size int
	err = db.QueryRowContext(ctx, `SELECT size FROM collections WHERE name = ?`, name).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", name, domain.ErrCollectionNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("reading collection: %w", err)
	}
	return size, nil
}

func (s *Local) upsert(ctx context.Context, name string, size int, records []domain.Record) error {
	for _, r := range records {
		if err := vectorstore.CheckDimension(r.Vector, size); err != nil {
			return err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO points (collection, id, text, metadata, vector) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET text = excluded.text, metadata = excluded.metadata, vector = excluded.vector`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, name, r.ID, r.Text, string(meta), encodeVector(r.Vector)); err != nil {
			return fmt.Errorf("inserting point: %w", err)
		}
	}
	return tx.Commit()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
