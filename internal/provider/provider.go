// Package provider builds LLM and vector store backends from configuration.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"minirag/internal/config"
	"minirag/internal/domain"
	"minirag/internal/llm"
	"minirag/internal/llm/cohere"
	"minirag/internal/llm/gemini"
	"minirag/internal/llm/local"
	"minirag/internal/llm/openai"
	"minirag/internal/logging"
	"minirag/internal/vectorstore"
	"minirag/internal/vectorstore/memory"
	"minirag/internal/vectorstore/pgvector"
	"minirag/internal/vectorstore/qdrant"
)

// ErrUnknownProvider is returned for a backend name no factory knows.
var ErrUnknownProvider = errors.New("unknown provider")

// LLMFactory creates generation/embedding clients.
type LLMFactory struct {
	cfg    *config.AppConfig
	logger *slog.Logger
}

// NewLLMFactory creates a factory reading backend settings from cfg.
func NewLLMFactory(cfg *config.AppConfig, logger *slog.Logger) *LLMFactory {
	return &LLMFactory{cfg: cfg, logger: logging.OrDefault(logger)}
}

// Create returns the client for the named backend. Models are not set; the
// caller picks generation or embedding models for its role.
func (f *LLMFactory) Create(ctx context.Context, name string) (domain.LLM, error) {
	opts := llm.Options{
		InputMaxCharacters: f.cfg.LLM.InputDefaultMaxCharacters,
		MaxOutputTokens:    f.cfg.LLM.GenerationDefaultMaxTokens,
		Temperature:        f.cfg.LLM.GenerationDefaultTemperature,
	}
	switch strings.ToUpper(name) {
	case llm.ProviderOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:     f.cfg.OpenAI.APIKey,
			BaseURL:    f.cfg.OpenAI.APIURL,
			Timeout:    time.Duration(f.cfg.OpenAI.TimeoutSecs) * time.Second,
			MaxRetries: f.cfg.OpenAI.MaxRetries,
			Options:    opts,
		}, f.logger), nil
	case llm.ProviderCohere:
		return cohere.NewClient(cohere.Config{
			APIKey:     f.cfg.Cohere.APIKey,
			BaseURL:    f.cfg.Cohere.APIURL,
			Timeout:    time.Duration(f.cfg.Cohere.TimeoutSecs) * time.Second,
			MaxRetries: f.cfg.Cohere.MaxRetries,
			Options:    opts,
		}, f.logger), nil
	case llm.ProviderGemini:
		c, err := gemini.NewClient(ctx, gemini.Config{APIKey: f.cfg.Gemini.APIKey, Options: opts}, f.logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case llm.ProviderLocal:
		return local.NewClient(opts, f.logger), nil
	default:
		return nil, fmt.Errorf("%w: llm backend %q", ErrUnknownProvider, name)
	}
}

// Generation creates the generation client and sets its model.
func (f *LLMFactory) Generation(ctx context.Context) (domain.LLM, error) {
	c, err := f.Create(ctx, f.cfg.LLM.GenerationBackend)
	if err != nil {
		return nil, err
	}
	model := f.cfg.LLM.GenerationModelID
	if model == "" && strings.EqualFold(f.cfg.LLM.GenerationBackend, llm.ProviderLocal) {
		model = local.DefaultGenerationModel
	}
	c.SetGenerationModel(model)
	return c, nil
}

// Embedding creates the embedding client and sets its model and size.
func (f *LLMFactory) Embedding(ctx context.Context) (domain.LLM, error) {
	c, err := f.Create(ctx, f.cfg.LLM.EmbeddingBackend)
	if err != nil {
		return nil, err
	}
	model := f.cfg.LLM.EmbeddingModelID
	if model == "" && strings.EqualFold(f.cfg.LLM.EmbeddingBackend, llm.ProviderLocal) {
		model = local.DefaultEmbeddingModel
	}
	c.SetEmbeddingModel(model, f.cfg.LLM.EmbeddingModelSize)
	return c, nil
}

// VectorStoreFactory creates vector store backends.
type VectorStoreFactory struct {
	cfg    *config.AppConfig
	logger *slog.Logger
}

// NewVectorStoreFactory creates a factory reading store settings from cfg.
func NewVectorStoreFactory(cfg *config.AppConfig, logger *slog.Logger) *VectorStoreFactory {
	return &VectorStoreFactory{cfg: cfg, logger: logging.OrDefault(logger)}
}

// Create returns an unconnected store for the named backend.
func (f *VectorStoreFactory) Create(name string) (domain.VectorStore, error) {
	db := f.cfg.VectorDB
	switch strings.ToUpper(name) {
	case vectorstore.BackendQdrant:
		return qdrant.New(qdrant.Config{
			Host:     db.Qdrant.Host,
			APIKey:   db.Qdrant.APIKey,
			Path:     db.Path,
			Distance: db.DistanceMethod,
			Timeout:  time.Duration(db.Qdrant.TimeoutSecs) * time.Second,
		}, f.logger)
	case vectorstore.BackendPGVector:
		s, err := pgvector.NewStorage(pgvector.Config{
			DatabaseURL: db.PGVector.DatabaseURL,
			Distance:    db.DistanceMethod,
		}, f.logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case vectorstore.BackendMemory:
		s, err := memory.NewStorage(db.DistanceMethod, f.logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: vector db backend %q", ErrUnknownProvider, name)
	}
}
