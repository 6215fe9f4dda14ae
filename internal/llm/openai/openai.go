// Package openai talks to OpenAI-compatible chat and embedding endpoints.
package openai

import (
	"context"
	"log/slog"
	"time"

	"minirag/internal/domain"
	"minirag/internal/llm"
)

const defaultBaseURL = "https://api.openai.com/v1"

var roles = map[domain.Role]string{
	domain.RoleSystem:    "system",
	domain.RoleUser:      "user",
	domain.RoleAssistant: "assistant",
}

// Config configures the OpenAI-compatible client.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Options    llm.Options
}

// Client implements domain.LLM against an OpenAI-compatible API.
type Client struct {
	llm.Base
	http *llm.JSONClient
}

// NewClient creates a client. An empty BaseURL targets api.openai.com; a
// custom one (for example a local Ollama) may run without a key.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}
	return &Client{
		Base: llm.NewBase(llm.ProviderOpenAI, cfg.Options, logger),
		http: llm.NewJSONClient(base, cfg.Timeout, cfg.MaxRetries, headers),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// GenerateText sends history followed by prompt as a user message.
func (c *Client) GenerateText(ctx context.Context, prompt string, history []domain.Message, params domain.GenerateParams) (string, error) {
	if err := c.RequireGeneration(); err != nil {
		return "", err
	}
	maxTokens, temperature := c.Resolve(params)

	messages := make([]chatMessage, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, chatMessage{Role: m.Token, Content: m.Content})
	}
	user := c.ConstructPrompt(prompt, domain.RoleUser)
	messages = append(messages, chatMessage{Role: user.Token, Content: user.Content})

	var out chatResponse
	err := c.http.PostJSON(ctx, "/chat/completions", chatRequest{
		Model:       c.GenerationModelID(),
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}, &out)
	if err != nil {
		return "", c.Fail("generate", domain.ErrBackend, err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", c.Fail("generate", domain.ErrEmptyResponse, nil)
	}
	return out.Choices[0].Message.Content, nil
}

// EmbedText ignores docType: OpenAI embeddings are symmetric.
func (c *Client) EmbedText(ctx context.Context, text string, _ domain.DocumentType) ([]float32, error) {
	if err := c.RequireEmbedding(); err != nil {
		return nil, err
	}
	var out embeddingResponse
	err := c.http.PostJSON(ctx, "/embeddings", embeddingRequest{
		Model: c.EmbeddingModelID(),
		Input: c.ProcessText(text),
	}, &out)
	if err != nil {
		return nil, c.Fail("embed", domain.ErrBackend, err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, c.Fail("embed", domain.ErrEmptyResponse, nil)
	}
	return out.Data[0].Embedding, nil
}

// ConstructPrompt tags text with the system, user or assistant role.
func (c *Client) ConstructPrompt(text string, role domain.Role) domain.Message {
	return c.Message(text, role, roles[role])
}
