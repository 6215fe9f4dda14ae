package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"minirag/internal/domain"
	"minirag/internal/llm"
	"minirag/internal/llm/local"
	"minirag/internal/service"
	"minirag/internal/template"
	"minirag/internal/vectorstore/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store, err := memory.NewStorage("cosine", discard)
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	client := local.NewClient(llm.DefaultOptions(), discard)
	client.SetGenerationModel(local.DefaultGenerationModel)
	client.SetEmbeddingModel(local.DefaultEmbeddingModel, 384)
	parser, err := template.NewParser("en", "en")
	if err != nil {
		t.Fatalf("NewParser failed: %v", err)
	}
	svc, err := service.NewNLPService(store, client, client, parser, discard)
	if err != nil {
		t.Fatalf("NewNLPService failed: %v", err)
	}
	return NewRouter(NewHandler(svc, 5*time.Second, discard), discard)
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("json unmarshal error = %v; body %q", err, w.Body.String())
		}
	}
	return w.Code, resp
}

func TestHealth(t *testing.T) {
	t.Parallel()

	code, resp := do(t, newTestRouter(t), http.MethodGet, "/health", "")
	if code != http.StatusOK || resp["signal"] != SignalHealthy {
		t.Errorf("Health = %d %v", code, resp)
	}
}

func TestIndexLifecycle(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t)
	push := `{"do_reset": true, "chunks": [
		{"text": "Paris is the capital of France.", "metadata": {"source": "geo"}},
		{"text": "Bananas grow in warm climates."}
	]}`
	code, resp := do(t, h, http.MethodPost, "/api/v1/nlp/index/push/p1", push)
	if code != http.StatusOK || resp["signal"] != SignalInsertSuccess || resp["inserted_items_count"] != float64(2) {
		t.Fatalf("Push = %d %v", code, resp)
	}

	code, resp = do(t, h, http.MethodGet, "/api/v1/nlp/index/info/p1", "")
	if code != http.StatusOK || resp["signal"] != SignalCollectionInfo {
		t.Fatalf("Info = %d %v", code, resp)
	}
	info := resp["collection_info"].(map[string]any)
	if info["name"] != "collection_p1" || info["points_count"] != float64(2) || info["vector_size"] != float64(384) {
		t.Errorf("unexpected collection info %v", info)
	}

	code, resp = do(t, h, http.MethodPost, "/api/v1/nlp/index/search/p1", `{"text": "capital of France", "limit": 1}`)
	if code != http.StatusOK || resp["signal"] != SignalSearchSuccess {
		t.Fatalf("Search = %d %v", code, resp)
	}
	results := resp["results"].([]any)
	if len(results) != 1 || results[0].(map[string]any)["text"] != "Paris is the capital of France." {
		t.Errorf("unexpected results %v", results)
	}

	code, resp = do(t, h, http.MethodPost, "/api/v1/nlp/index/answer/p1", `{"text": "What is the capital of France?", "limit": 1}`)
	if code != http.StatusOK || resp["signal"] != SignalAnswerSuccess {
		t.Fatalf("Answer = %d %v", code, resp)
	}
	if !strings.Contains(resp["answer"].(string), "Paris") {
		t.Errorf("unexpected answer %v", resp["answer"])
	}
	if !strings.Contains(resp["full_prompt"].(string), "## Document No: 1") {
		t.Errorf("unexpected prompt %v", resp["full_prompt"])
	}
	history := resp["chat_history"].([]any)
	if len(history) != 3 || history[2].(map[string]any)["role"] != "assistant" {
		t.Errorf("unexpected history %v", history)
	}

	code, resp = do(t, h, http.MethodDelete, "/api/v1/nlp/index/reset/p1", "")
	if code != http.StatusOK || resp["signal"] != SignalCollectionReset || resp["deleted"] != true {
		t.Fatalf("Reset = %d %v", code, resp)
	}
	code, resp = do(t, h, http.MethodGet, "/api/v1/nlp/index/info/p1", "")
	if code != http.StatusNotFound || resp["signal"] != SignalCollectionAbsent {
		t.Errorf("Info after reset = %d %v", code, resp)
	}
}

func TestAnswer_NoResults(t *testing.T) {
	t.Parallel()

	code, resp := do(t, newTestRouter(t), http.MethodPost, "/api/v1/nlp/index/answer/missing", `{"text": "anything"}`)
	if code != http.StatusNotFound || resp["signal"] != SignalNoResults {
		t.Errorf("Answer = %d %v", code, resp)
	}
}

func TestBadRequests(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t)
	cases := []struct {
		name, method, path, body string
	}{
		{"invalid json", http.MethodPost, "/api/v1/nlp/index/push/p1", `{"chunks": [`},
		{"empty chunks", http.MethodPost, "/api/v1/nlp/index/push/p1", `{"chunks": []}`},
		{"mixed ids", http.MethodPost, "/api/v1/nlp/index/push/p1", `{"chunks": [{"id": 3, "text": "a"}, {"text": "b"}]}`},
		{"missing text", http.MethodPost, "/api/v1/nlp/index/search/p1", `{"limit": 2}`},
		{"negative limit", http.MethodPost, "/api/v1/nlp/index/answer/p1", `{"text": "q", "limit": -1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, resp := do(t, h, tc.method, tc.path, tc.body)
			if code != http.StatusBadRequest || resp["signal"] != SignalInvalidBody {
				t.Errorf("%s = %d %v", tc.name, code, resp)
			}
		})
	}
}

func TestPush_ExplicitIDs(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t)
	body := `{"chunks": [{"id": 10, "text": "a"}, {"id": 10, "text": "b"}]}`
	if code, resp := do(t, h, http.MethodPost, "/api/v1/nlp/index/push/p2", body); code != http.StatusOK {
		t.Fatalf("Push = %d %v", code, resp)
	}
	_, resp := do(t, h, http.MethodGet, "/api/v1/nlp/index/info/p2", "")
	if got := resp["collection_info"].(map[string]any)["points_count"]; got != float64(1) {
		t.Errorf("same id should upsert, got %v points", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t)
	cases := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/nlp/index/push/p1"},
		{http.MethodPut, "/api/v1/nlp/index/push/p1"},
		{http.MethodPost, "/api/v1/nlp/index/info/p1"},
		{http.MethodGet, "/api/v1/nlp/index/reset/p1"},
		{http.MethodGet, "/api/v1/nlp/index/search/p1"},
		{http.MethodDelete, "/api/v1/nlp/index/answer/p1"},
		{http.MethodPost, "/health"},
	}
	for _, tc := range cases {
		if code, _ := do(t, h, tc.method, tc.path, ""); code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected 405, got %d", tc.method, tc.path, code)
		}
	}
	if code, _ := do(t, h, http.MethodGet, "/api/v1/nlp/index/unknown/p1", ""); code != http.StatusNotFound {
		t.Errorf("unknown route: expected 404, got %d", code)
	}
}

type failingNLP struct{ err error }

func (f failingNLP) ResetVectorDBCollection(context.Context, domain.Project) (bool, error) {
	return false, f.err
}

func (f failingNLP) GetVectorDBCollectionInfo(context.Context, domain.Project) (*domain.CollectionInfo, error) {
	return nil, f.err
}

func (f failingNLP) IndexIntoVectorDB(context.Context, domain.Project, []domain.Chunk, []int64, bool) error {
	return f.err
}

func (f failingNLP) SearchVectorDBCollection(context.Context, domain.Project, string, int) ([]domain.RetrievedDocument, error) {
	return nil, f.err
}

func (f failingNLP) AnswerRAGQuestion(context.Context, domain.Project, string, int) (*service.Answer, error) {
	return nil, f.err
}

func TestErrorStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err    error
		status int
		signal string
	}{
		{errors.New("boom"), http.StatusInternalServerError, SignalAnswerError},
		{domain.ErrBackend, http.StatusInternalServerError, SignalAnswerError},
		{service.ErrNoResults, http.StatusNotFound, SignalNoResults},
		{domain.ErrDimensionMismatch, http.StatusBadRequest, SignalAnswerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, SignalAnswerError},
	}
	for _, tc := range cases {
		h := NewRouter(NewHandler(failingNLP{err: tc.err}, 0, discard), discard)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/nlp/index/answer/p", bytes.NewBufferString(`{"text": "q"}`))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		var resp map[string]any
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if w.Code != tc.status || resp["signal"] != tc.signal {
			t.Errorf("%v: got %d %v, want %d %s", tc.err, w.Code, resp, tc.status, tc.signal)
		}
	}
}
