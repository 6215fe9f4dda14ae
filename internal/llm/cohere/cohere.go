// Package cohere implements domain.LLM over the Cohere v1 chat and embed API.
package cohere

import (
	"context"
	"log/slog"
	"time"

	"minirag/internal/domain"
	"minirag/internal/llm"
)

const defaultBaseURL = "https://api.cohere.ai"

var roles = map[domain.Role]string{
	domain.RoleSystem:    "SYSTEM",
	domain.RoleUser:      "USER",
	domain.RoleAssistant: "CHATBOT",
}

var inputTypes = map[domain.DocumentType]string{
	domain.DocumentTypeDocument: "search_document",
	domain.DocumentTypeQuery:    "search_query",
}

// Config configures the Cohere client.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Options    llm.Options
}

// Client implements domain.LLM against the Cohere v1 API.
type Client struct {
	llm.Base
	http *llm.JSONClient
}

// NewClient creates a client. An empty BaseURL targets api.cohere.ai.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		Base: llm.NewBase(llm.ProviderCohere, cfg.Options, logger),
		http: llm.NewJSONClient(base, cfg.Timeout, cfg.MaxRetries, map[string]string{
			"Authorization": "Bearer " + cfg.APIKey,
			"Accept":        "application/json",
		}),
	}
}

type historyTurn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Message     string        `json:"message"`
	ChatHistory []historyTurn `json:"chat_history,omitempty"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Text string `json:"text"`
}

type embedRequest struct {
	Model          string   `json:"model"`
	Texts          []string `json:"texts"`
	InputType      string   `json:"input_type"`
	EmbeddingTypes []string `json:"embedding_types"`
}

type embedResponse struct {
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
}

// GenerateText sends history as chat_history and prompt as the message.
func (c *Client) GenerateText(ctx context.Context, prompt string, history []domain.Message, params domain.GenerateParams) (string, error) {
	if err := c.RequireGeneration(); err != nil {
		return "", err
	}
	maxTokens, temperature := c.Resolve(params)

	turns := make([]historyTurn, 0, len(history))
	for _, m := range history {
		turns = append(turns, historyTurn{Role: m.Token, Message: m.Content})
	}

	var out chatResponse
	err := c.http.PostJSON(ctx, "/v1/chat", chatRequest{
		Model:       c.GenerationModelID(),
		Message:     c.ProcessText(prompt),
		ChatHistory: turns,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, &out)
	if err != nil {
		return "", c.Fail("generate", domain.ErrBackend, err)
	}
	if out.Text == "" {
		return "", c.Fail("generate", domain.ErrEmptyResponse, nil)
	}
	return out.Text, nil
}

// EmbedText embeds text with the input type matching docType.
func (c *Client) EmbedText(ctx context.Context, text string, docType domain.DocumentType) ([]float32, error) {
	if err := c.RequireEmbedding(); err != nil {
		return nil, err
	}
	inputType, ok := inputTypes[docType]
	if !ok {
		inputType = inputTypes[domain.DocumentTypeDocument]
	}

	var out embedResponse
	err := c.http.PostJSON(ctx, "/v1/embed", embedRequest{
		Model:          c.EmbeddingModelID(),
		Texts:          []string{c.ProcessText(text)},
		InputType:      inputType,
		EmbeddingTypes: []string{"float"},
	}, &out)
	if err != nil {
		return nil, c.Fail("embed", domain.ErrBackend, err)
	}
	if len(out.Embeddings.Float) == 0 || len(out.Embeddings.Float[0]) == 0 {
		return nil, c.Fail("embed", domain.ErrEmptyResponse, nil)
	}
	return out.Embeddings.Float[0], nil
}

// ConstructPrompt tags text with Cohere's SYSTEM, USER or CHATBOT role.
func (c *Client) ConstructPrompt(text string, role domain.Role) domain.Message {
	return c.Message(text, role, roles[role])
}
