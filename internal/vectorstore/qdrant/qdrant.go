// Package qdrant provides the QDRANT vector store backend. With a host and
// API key it talks to a Qdrant service over REST; otherwise it keeps the
// collections in a SQLite file under the configured path.
package qdrant

import (
	"log/slog"
	"time"

	"minirag/internal/domain"
	"minirag/internal/vectorstore"
)

// Config configures both modes. Remote mode needs Host and APIKey.
type Config struct {
	Host     string
	APIKey   string
	Path     string
	Distance string
	Timeout  time.Duration
}

// Remote reports whether cfg selects the REST service mode.
func (c Config) Remote() bool { return c.Host != "" && c.APIKey != "" }

// New returns the store for the mode cfg selects.
func New(cfg Config, logger *slog.Logger) (domain.VectorStore, error) {
	distance, err := vectorstore.NormalizeDistance(cfg.Distance)
	if err != nil {
		return nil, err
	}
	cfg.Distance = distance
	if cfg.Remote() {
		return NewRemote(cfg, logger), nil
	}
	return NewLocal(cfg, logger), nil
}

const (
	payloadText     = "text"
	payloadMetadata = "metadata"
)
