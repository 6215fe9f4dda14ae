// Package pgvector stores collections in PostgreSQL with the vector
// extension: one table per collection plus a registry of sizes and distances.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"minirag/internal/domain"
	"minirag/internal/logging"
	"minirag/internal/vectorstore"
)

const registryTable = "minirag_collections"

// Config configures the PostgreSQL connection and distance method.
type Config struct {
	DatabaseURL string
	Distance    string
}

// Storage keeps each collection in its own pgvector table.
type Storage struct {
	url      string
	distance string
	db       *pgxpool.Pool
	logger   *slog.Logger
}

// NewStorage validates cfg and creates an unconnected store.
func NewStorage(cfg Config, logger *slog.Logger) (*Storage, error) {
	d, err := vectorstore.NormalizeDistance(cfg.Distance)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("pgvector: database url is required")
	}
	return &Storage{
		url:      cfg.DatabaseURL,
		distance: d,
		logger:   logging.OrDefault(logger).With("store", vectorstore.BackendPGVector),
	}, nil
}

// Connect opens the pool and makes sure the extension and registry exist.
func (s *Storage) Connect(ctx context.Context) error {
	cfg, err := pgxpool.ParseConfig(s.url)
	if err != nil {
		return fmt.Errorf("parse db config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping db: %w", err)
	}
	_, err = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	if err == nil {
		_, err = pool.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS `+registryTable+` (
				name TEXT PRIMARY KEY,
				table_name TEXT NOT NULL,
				size INTEGER NOT NULL,
				distance TEXT NOT NULL
			)`)
	}
	if err != nil {
		pool.Close()
		return fmt.Errorf("initializing schema: %w", err)
	}
	s.db = pool
	return nil
}

func (s *Storage) Disconnect() error {
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	return nil
}

func (s *Storage) conn() (*pgxpool.Pool, error) {
	if s.db == nil {
		return nil, errors.New("pgvector store is not connected")
	}
	return s.db, nil
}

type collection struct {
	table    string
	size     int
	distance string
}

func (s *Storage) lookup(ctx context.Context, name string) (*collection, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var c collection
	err = db.QueryRow(ctx, `SELECT table_name, size, distance FROM `+registryTable+` WHERE name = $1`, name).
		Scan(&c.table, &c.size, &c.distance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrCollectionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading collection: %w", err)
	}
	return &c, nil
}

func (s *Storage) IsCollectionExisted(ctx context.Context, name string) (bool, error) {
	_, err := s.lookup(ctx, name)
	if errors.Is(err, domain.ErrCollectionNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Storage) ListAllCollections(ctx context.Context) ([]string, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `SELECT name FROM `+registryTable+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Storage) GetCollectionInfo(ctx context.Context, name string) (*domain.CollectionInfo, error) {
	c, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	var count int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM `+quote(c.table)).Scan(&count); err != nil {
		return nil, fmt.Errorf("counting points: %w", err)
	}
	return &domain.CollectionInfo{
		Name:        name,
		VectorSize:  c.size,
		Distance:    c.distance,
		PointsCount: count,
		Status:      "green",
	}, nil
}

func (s *Storage) CreateCollection(ctx context.Context, name string, embeddingSize int, doReset bool) (bool, error) {
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
	table := TableName(name)
	created := false
	err = pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO `+registryTable+` (name, table_name, size, distance) VALUES ($1, $2, $3, $4) ON CONFLICT (name) DO NOTHING`,
			name, table, embeddingSize, s.distance)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				seq BIGSERIAL,
				id BIGINT PRIMARY KEY,
				text TEXT NOT NULL,
				metadata JSONB,
				embedding vector(%d) NOT NULL
			)`, quote(table), embeddingSize))
		created = err == nil
		return err
	})
	if err != nil {
		return false, fmt.Errorf("creating collection: %w", err)
	}
	if created {
		s.logger.Info("creating new pgvector collection", "collection", name, "table", table, "size", embeddingSize)
	}
	return created, nil
}

func (s *Storage) DeleteCollection(ctx context.Context, name string) (bool, error) {
	c, err := s.lookup(ctx, name)
	if errors.Is(err, domain.ErrCollectionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS `+quote(c.table)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM `+registryTable+` WHERE name = $1`, name)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("deleting collection: %w", err)
	}
	s.logger.Info("deleting collection", "collection", name)
	return true, nil
}

func (s *Storage) InsertOne(ctx context.Context, name string, record domain.Record) error {
	c, err := s.lookup(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrCollectionNotFound) {
			s.logger.Error("can not insert new record to non-existed collection", "collection", name)
		}
		return err
	}
	return s.upsert(ctx, c, []domain.Record{record})
}

func (s *Storage) InsertMany(ctx context.Context, name string, texts []string, vectors [][]float32, metadata []map[string]any, ids []int64, batchSize int) error {
	records, err := vectorstore.BuildRecords(texts, vectors, metadata, ids)
	if err != nil {
		return err
	}
	c, err := s.lookup(ctx, name)
	if err != nil {
		return err
	}
	for i, batch := range vectorstore.Batches(records, batchSize) {
		if err := s.upsert(ctx, c, batch); err != nil {
			s.logger.Error("error while inserting batch", "collection", name, "batch", i, "error", err)
			return fmt.Errorf("insert batch %d: %w", i, err)
		}
	}
	return nil
}

func (s *Storage) SearchByVector(ctx context.Context, name string, vector []float32, limit int) ([]domain.RetrievedDocument, error) {
	c, err := s.lookup(ctx, name)
	if errors.Is(err, domain.ErrCollectionNotFound) {
		s.logger.Warn("search on missing collection", "collection", name)
		return []domain.RetrievedDocument{}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := vectorstore.CheckDimension(vector, c.size); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT text, embedding %s $1 AS distance FROM %s ORDER BY distance, seq LIMIT $2`,
		operator(c.distance), quote(c.table)),
		pgv.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	defer rows.Close()

	docs := []domain.RetrievedDocument{}
	for rows.Next() {
		var text string
		var distance float64
		if err := rows.Scan(&text, &distance); err != nil {
			return nil, err
		}
		docs = append(docs, domain.RetrievedDocument{Text: text, Score: score(c.distance, distance)})
	}
	return docs, rows.Err()
}

func (s *Storage) upsert(ctx context.Context, c *collection, records []domain.Record) error {
	for _, r := range records {
		if err := vectorstore.CheckDimension(r.Vector, c.size); err != nil {
			return err
		}
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, text, metadata, embedding) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET text = EXCLUDED.text, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`,
		quote(c.table))
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range records {
			batch.Queue(query, r.ID, r.Text, r.Metadata, pgv.NewVector(r.Vector))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// TableName derives a safe table name from a collection name. The hash
// suffix keeps names that sanitize alike apart.
func TableName(collection string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(collection) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	base := b.String()
	if len(base) > 40 {
		base = base[:40]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(collection))
	return fmt.Sprintf("vec_%s_%08x", base, h.Sum32())
}

func quote(table string) string {
	return pgx.Identifier{table}.Sanitize()
}

// operator returns the pgvector distance operator: cosine distance, or the
// negative inner product for dot.
func operator(distance string) string {
	if distance == vectorstore.DistanceDot {
		return "<#>"
	}
	return "<=>"
}

// score turns an operator distance back into a similarity.
func score(distance string, d float64) float64 {
	if distance == vectorstore.DistanceDot {
		return -d
	}
	return 1 - d
}
