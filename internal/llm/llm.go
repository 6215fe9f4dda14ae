// Package llm holds the plumbing shared by the generation/embedding
// providers: configured defaults, model bookkeeping, input truncation and
// failure reporting.
package llm

import (
	"fmt"
	"log/slog"
	"strings"

	"minirag/internal/domain"
	"minirag/internal/logging"
)

// Provider names accepted by the factory.
const (
	ProviderOpenAI = "OPENAI"
	ProviderCohere = "COHERE"
	ProviderGemini = "GEMINI"
	ProviderLocal  = "LOCAL"
)

// Options are the per-backend defaults taken from configuration.
type Options struct {
	InputMaxCharacters int
	MaxOutputTokens    int
	Temperature        float32
}

// DefaultOptions fill fields that configuration leaves unset.
func DefaultOptions() Options {
	return Options{InputMaxCharacters: 1000, MaxOutputTokens: 1000, Temperature: 0.1}
}

// Base implements the configuration half of domain.LLM. Providers embed it.
type Base struct {
	provider          string
	opts              Options
	generationModelID string
	embeddingModelID  string
	embeddingSize     int
	logger            *slog.Logger
}

// NewBase builds a Base, filling unset options with DefaultOptions.
func NewBase(provider string, opts Options, logger *slog.Logger) Base {
	def := DefaultOptions()
	if opts.InputMaxCharacters <= 0 {
		opts.InputMaxCharacters = def.InputMaxCharacters
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = def.MaxOutputTokens
	}
	if opts.Temperature < 0 {
		opts.Temperature = def.Temperature
	}
	return Base{
		provider: provider,
		opts:     opts,
		logger:   logging.OrDefault(logger).With("provider", provider),
	}
}

// SetGenerationModel selects the model used by GenerateText.
func (b *Base) SetGenerationModel(modelID string) { b.generationModelID = modelID }

// SetEmbeddingModel selects the embedding model and its vector size.
func (b *Base) SetEmbeddingModel(modelID string, embeddingSize int) {
	b.embeddingModelID = modelID
	b.embeddingSize = embeddingSize
}

// GenerationModelID returns the configured generation model.
func (b *Base) GenerationModelID() string { return b.generationModelID }

// EmbeddingModelID returns the configured embedding model.
func (b *Base) EmbeddingModelID() string { return b.embeddingModelID }

// EmbeddingSize returns the configured vector size.
func (b *Base) EmbeddingSize() int { return b.embeddingSize }

// Logger returns the provider-scoped logger.
func (b *Base) Logger() *slog.Logger { return b.logger }

// ModelInfo reports the provider name, models and options.
func (b *Base) ModelInfo() domain.ModelInfo {
	return domain.ModelInfo{
		Provider:           b.provider,
		GenerationModelID:  b.generationModelID,
		EmbeddingModelID:   b.embeddingModelID,
		EmbeddingSize:      b.embeddingSize,
		InputMaxCharacters: b.opts.InputMaxCharacters,
		MaxOutputTokens:    b.opts.MaxOutputTokens,
		Temperature:        b.opts.Temperature,
	}
}

// ProcessText truncates text to the input character limit and trims it.
func (b *Base) ProcessText(text string) string {
	r := []rune(text)
	if len(r) > b.opts.InputMaxCharacters {
		r = r[:b.opts.InputMaxCharacters]
	}
	return strings.TrimSpace(string(r))
}

// Resolve applies the configured defaults to unset generation parameters.
func (b *Base) Resolve(p domain.GenerateParams) (maxTokens int, temperature float32) {
	maxTokens = p.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = b.opts.MaxOutputTokens
	}
	temperature = b.opts.Temperature
	if p.Temperature != nil {
		temperature = *p.Temperature
	}
	return maxTokens, temperature
}

// RequireGeneration fails when no generation model has been set.
func (b *Base) RequireGeneration() error {
	if b.generationModelID == "" {
		b.logger.Error("generation model was not set")
		return fmt.Errorf("%s generation: %w", strings.ToLower(b.provider), domain.ErrNotConfigured)
	}
	return nil
}

// RequireEmbedding fails when no embedding model has been set.
func (b *Base) RequireEmbedding() error {
	if b.embeddingModelID == "" {
		b.logger.Error("embedding model was not set")
		return fmt.Errorf("%s embedding: %w", strings.ToLower(b.provider), domain.ErrNotConfigured)
	}
	return nil
}

// Fail logs a backend failure once and wraps it onto a capability sentinel.
func (b *Base) Fail(op string, sentinel, cause error) error {
	if cause == nil {
		b.logger.Error("backend returned no result", "op", op)
		return fmt.Errorf("%s %s: %w", strings.ToLower(b.provider), op, sentinel)
	}
	b.logger.Error("backend call failed", "op", op, "error", cause)
	return fmt.Errorf("%s %s: %w: %v", strings.ToLower(b.provider), op, sentinel, cause)
}

// Message builds a domain.Message with the processed text.
func (b *Base) Message(text string, role domain.Role, token string) domain.Message {
	return domain.Message{Role: role, Token: token, Content: b.ProcessText(text)}
}
