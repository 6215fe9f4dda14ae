package cohere

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"minirag/internal/domain"
	"minirag/internal/llm"
)

var _ domain.LLM = (*Client)(nil)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(Config{APIKey: "co-key", BaseURL: srv.URL, Timeout: time.Second, Options: llm.Options{InputMaxCharacters: 200, MaxOutputTokens: 100}}, nil)
	c.SetGenerationModel("command-r-plus")
	c.SetEmbeddingModel("embed-multilingual-v3.0", 4)
	return c
}

func TestGenerateText_ChatHistoryTokens(t *testing.T) {
	t.Parallel()

	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"text":"Paris"}`))
	})

	history := []domain.Message{
		c.ConstructPrompt("system prompt", domain.RoleSystem),
		c.ConstructPrompt("earlier question", domain.RoleUser),
		c.ConstructPrompt("earlier answer", domain.RoleAssistant),
	}
	answer, err := c.GenerateText(context.Background(), "capital of France?", history, domain.GenerateParams{})
	if err != nil {
		t.Fatalf("GenerateText failed: %v", err)
	}
	if answer != "Paris" {
		t.Errorf("expected Paris, got %q", answer)
	}
	if got.Message != "capital of France?" {
		t.Errorf("unexpected message %q", got.Message)
	}
	want := []string{"SYSTEM", "USER", "CHATBOT"}
	if len(got.ChatHistory) != len(want) {
		t.Fatalf("expected %d history turns, got %d", len(want), len(got.ChatHistory))
	}
	for i, w := range want {
		if got.ChatHistory[i].Role != w {
			t.Errorf("turn %d: expected %s, got %s", i, w, got.ChatHistory[i].Role)
		}
	}
}

func TestGenerateText_EmptyText(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":""}`))
	})
	if _, err := c.GenerateText(context.Background(), "hi", nil, domain.GenerateParams{}); !errors.Is(err, domain.ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestEmbedText_InputTypes(t *testing.T) {
	t.Parallel()

	var got []embedRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		got = append(got, req)
		_, _ = w.Write([]byte(`{"embeddings":{"float":[[1,0,0,0]]}}`))
	})

	for _, dt := range []domain.DocumentType{domain.DocumentTypeDocument, domain.DocumentTypeQuery} {
		v, err := c.EmbedText(context.Background(), "text", dt)
		if err != nil {
			t.Fatalf("EmbedText failed: %v", err)
		}
		if len(v) != 4 {
			t.Errorf("expected 4 dims, got %d", len(v))
		}
	}
	if got[0].InputType != "search_document" || got[1].InputType != "search_query" {
		t.Errorf("unexpected input types: %q, %q", got[0].InputType, got[1].InputType)
	}
	if len(got[0].EmbeddingTypes) != 1 || got[0].EmbeddingTypes[0] != "float" {
		t.Errorf("expected float embedding type, got %v", got[0].EmbeddingTypes)
	}
}

func TestEmbedText_BackendError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	})
	if _, err := c.EmbedText(context.Background(), "x", domain.DocumentTypeQuery); !errors.Is(err, domain.ErrBackend) {
		t.Errorf("expected ErrBackend, got %v", err)
	}
}
