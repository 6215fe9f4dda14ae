package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"minirag/internal/domain"
	"minirag/internal/logging"
	"minirag/internal/service"
)

const maxBodyBytes = 8 << 20

// Response signals.
const (
	SignalHealthy          = "healthy"
	SignalInvalidBody      = "invalid_request_body"
	SignalInsertSuccess    = "insert_into_vectordb_success"
	SignalInsertError      = "insert_into_vectordb_error"
	SignalCollectionInfo   = "vectordb_collection_retrieved"
	SignalCollectionReset  = "vectordb_collection_reset"
	SignalCollectionError  = "vectordb_collection_error"
	SignalSearchSuccess    = "vectordb_search_success"
	SignalSearchError      = "vectordb_search_error"
	SignalAnswerSuccess    = "rag_answer_success"
	SignalAnswerError      = "rag_answer_error"
	SignalCollectionAbsent = "vectordb_collection_not_found"
	SignalNoResults        = "vectordb_search_no_results"
)

// NLP is the part of service.NLPService the handlers call.
type NLP interface {
	ResetVectorDBCollection(ctx context.Context, project domain.Project) (bool, error)
	GetVectorDBCollectionInfo(ctx context.Context, project domain.Project) (*domain.CollectionInfo, error)
	IndexIntoVectorDB(ctx context.Context, project domain.Project, chunks []domain.Chunk, ids []int64, doReset bool) error
	SearchVectorDBCollection(ctx context.Context, project domain.Project, text string, limit int) ([]domain.RetrievedDocument, error)
	AnswerRAGQuestion(ctx context.Context, project domain.Project, query string, limit int) (*service.Answer, error)
}

// Handler serves the NLP routes.
type Handler struct {
	nlp     NLP
	timeout time.Duration
	logger  *slog.Logger
}

// NewHandler builds the handlers. A zero timeout leaves request contexts
// as they arrive.
func NewHandler(nlp NLP, timeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{nlp: nlp, timeout: timeout, logger: logging.OrDefault(logger)}
}

// PushChunk is one chunk of a push request. ID is optional.
type PushChunk struct {
	ID       *int64         `json:"id,omitempty"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PushRequest is the body of POST /index/push.
type PushRequest struct {
	DoReset bool        `json:"do_reset"`
	Chunks  []PushChunk `json:"chunks"`
}

// SearchRequest is the body of the search and answer routes.
type SearchRequest struct {
	Text  string `json:"text"`
	Limit int    `json:"limit"`
}

// Health reports that the server is up.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"signal": SignalHealthy})
}

// Push embeds and stores the posted chunks.
func (h *Handler) Push(w http.ResponseWriter, r *http.Request) {
	var req PushRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Chunks) == 0 {
		h.fail(w, http.StatusBadRequest, SignalInvalidBody, errors.New("chunks must not be empty"))
		return
	}

	chunks := make([]domain.Chunk, len(req.Chunks))
	var ids []int64
	withID := 0
	for i, c := range req.Chunks {
		chunks[i] = domain.Chunk{Text: c.Text, Metadata: c.Metadata}
		if c.ID != nil {
			chunks[i].ID = *c.ID
			ids = append(ids, *c.ID)
			withID++
		}
	}
	if withID != 0 && withID != len(chunks) {
		h.fail(w, http.StatusBadRequest, SignalInvalidBody, errors.New("give an id for every chunk or for none"))
		return
	}

	ctx, cancel := h.context(r)
	defer cancel()

	if err := h.nlp.IndexIntoVectorDB(ctx, project(r), chunks, ids, req.DoReset); err != nil {
		h.fail(w, statusFor(err), SignalInsertError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"signal":               SignalInsertSuccess,
		"inserted_items_count": len(chunks),
	})
}

// Info returns the collection description.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()

	info, err := h.nlp.GetVectorDBCollectionInfo(ctx, project(r))
	if err != nil {
		h.fail(w, statusFor(err), signalFor(err, SignalCollectionError), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"signal":          SignalCollectionInfo,
		"collection_info": info,
	})
}

// Reset deletes the collection.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()

	deleted, err := h.nlp.ResetVectorDBCollection(ctx, project(r))
	if err != nil {
		h.fail(w, statusFor(err), SignalCollectionError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"signal":  SignalCollectionReset,
		"deleted": deleted,
	})
}

// Search returns the documents closest to the posted text.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !h.decodeQuery(w, r, &req) {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	docs, err := h.nlp.SearchVectorDBCollection(ctx, project(r), req.Text, req.Limit)
	if err != nil {
		h.fail(w, statusFor(err), signalFor(err, SignalSearchError), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"signal":  SignalSearchSuccess,
		"results": docs,
	})
}

// Answer runs a retrieval-augmented answer for the posted question.
func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !h.decodeQuery(w, r, &req) {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	res, err := h.nlp.AnswerRAGQuestion(ctx, project(r), req.Text, req.Limit)
	if err != nil {
		h.fail(w, statusFor(err), signalFor(err, SignalAnswerError), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"signal":       SignalAnswerSuccess,
		"answer":       res.Answer,
		"full_prompt":  res.FullPrompt,
		"chat_history": res.History,
	})
}

func (h *Handler) context(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.fail(w, http.StatusBadRequest, SignalInvalidBody, errors.New("invalid json body"))
		return false
	}
	return true
}

func (h *Handler) decodeQuery(w http.ResponseWriter, r *http.Request, req *SearchRequest) bool {
	if !h.decode(w, r, req) {
		return false
	}
	if req.Text == "" {
		h.fail(w, http.StatusBadRequest, SignalInvalidBody, errors.New("text is required"))
		return false
	}
	if req.Limit < 0 {
		h.fail(w, http.StatusBadRequest, SignalInvalidBody, errors.New("limit must not be negative"))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, status int, signal string, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "signal", signal, "error", err)
	}
	writeJSON(w, status, map[string]any{"signal": signal, "error": err.Error()})
}

func project(r *http.Request) domain.Project {
	return domain.Project{ProjectID: mux.Vars(r)["project_id"]}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrCollectionNotFound), errors.Is(err, service.ErrNoResults):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDimensionMismatch):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func signalFor(err error, fallback string) string {
	switch {
	case errors.Is(err, domain.ErrCollectionNotFound):
		return SignalCollectionAbsent
	case errors.Is(err, service.ErrNoResults):
		return SignalNoResults
	default:
		return fallback
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
