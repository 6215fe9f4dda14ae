// Package gemini implements domain.LLM on top of the Google GenAI SDK.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"minirag/internal/domain"
	"minirag/internal/llm"
)

// Gemini has no system role in chat history; system turns travel as "model".
var roles = map[domain.Role]string{
	domain.RoleSystem:    "model",
	domain.RoleUser:      "user",
	domain.RoleAssistant: "model",
}

var taskTypes = map[domain.DocumentType]string{
	domain.DocumentTypeDocument: "RETRIEVAL_DOCUMENT",
	domain.DocumentTypeQuery:    "RETRIEVAL_QUERY",
}

// models is the subset of *genai.Models the client uses.
type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Config configures the Gemini client.
type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint, mostly for tests and proxies.
	BaseURL string
	Options llm.Options
}

// Client implements domain.LLM with the genai SDK.
type Client struct {
	llm.Base
	models models
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newWithModels(c.Models, cfg.Options, logger), nil
}

func newWithModels(m models, opts llm.Options, logger *slog.Logger) *Client {
	return &Client{
		Base:   llm.NewBase(llm.ProviderGemini, opts, logger),
		models: m,
	}
}

// GenerateText sends history followed by prompt as one content list.
func (c *Client) GenerateText(ctx context.Context, prompt string, history []domain.Message, params domain.GenerateParams) (string, error) {
	if err := c.RequireGeneration(); err != nil {
		return "", err
	}
	maxTokens, temperature := c.Resolve(params)

	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		contents = append(contents, content(m))
	}
	contents = append(contents, content(c.ConstructPrompt(prompt, domain.RoleUser)))

	resp, err := c.models.GenerateContent(ctx, c.GenerationModelID(), contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: int32(maxTokens),
	})
	if err != nil {
		return "", c.Fail("generate", domain.ErrBackend, err)
	}
	if resp == nil {
		return "", c.Fail("generate", domain.ErrEmptyResponse, nil)
	}
	txt := strings.TrimSpace(resp.Text())
	if txt == "" {
		return "", c.Fail("generate", domain.ErrEmptyResponse, nil)
	}
	return txt, nil
}

// EmbedText embeds text with the retrieval task type matching docType.
func (c *Client) EmbedText(ctx context.Context, text string, docType domain.DocumentType) ([]float32, error) {
	if err := c.RequireEmbedding(); err != nil {
		return nil, err
	}
	taskType, ok := taskTypes[docType]
	if !ok {
		taskType = taskTypes[domain.DocumentTypeDocument]
	}
	cfg := &genai.EmbedContentConfig{TaskType: taskType}
	if size := c.EmbeddingSize(); size > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(size))
	}

	resp, err := c.models.EmbedContent(ctx, c.EmbeddingModelID(), genai.Text(c.ProcessText(text)), cfg)
	if err != nil {
		return nil, c.Fail("embed", domain.ErrBackend, err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, c.Fail("embed", domain.ErrEmptyResponse, nil)
	}
	return resp.Embeddings[0].Values, nil
}

// ConstructPrompt tags system and assistant turns as model.
func (c *Client) ConstructPrompt(text string, role domain.Role) domain.Message {
	return c.Message(text, role, roles[role])
}

func content(m domain.Message) *genai.Content {
	return &genai.Content{
		Role:  m.Token,
		Parts: []*genai.Part{{Text: m.Content}},
	}
}
