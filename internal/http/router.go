package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"minirag/internal/logging"
)

const apiPrefix = "/api/v1/nlp"

// NewRouter wires the handlers under /api/v1/nlp plus /health.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(accessLog(logging.OrDefault(logger)))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	// Flat routes: a mux subrouter reports a method mismatch as 404.
	r.HandleFunc(apiPrefix+"/index/push/{project_id}", h.Push).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/index/info/{project_id}", h.Info).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/index/reset/{project_id}", h.Reset).Methods(http.MethodDelete)
	r.HandleFunc(apiPrefix+"/index/search/{project_id}", h.Search).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/index/answer/{project_id}", h.Answer).Methods(http.MethodPost)

	return r
}

func accessLog(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
