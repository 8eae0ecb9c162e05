package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	ingest "github.com/markdave123-py/docindex/internal/core/ingestion_engine"
	"github.com/markdave123-py/docindex/internal/logger"
	"github.com/markdave123-py/docindex/internal/models"
)

type searcher interface {
	Search(ctx context.Context, queryText string, limit int) []models.SearchResult
}

type enqueuer interface {
	Enqueue(ctx context.Context, docID string) error
}

type batchRunner interface {
	Run(ctx context.Context, opts ingest.RunOptions) (*models.RunSummary, error)
}

// ServerDeps are the collaborators behind the ops endpoints.
type ServerDeps struct {
	Search   searcher
	Queue    enqueuer
	Runner   batchRunner
	Gatherer prometheus.Gatherer
}

// Server is the machine-facing ops server: health, metrics, search and reindexing.
type Server struct {
	httpServer *http.Server
	runner     batchRunner
	interval   time.Duration
	log        zerolog.Logger
}

// NewServer builds and wires all routes. A positive interval also runs a batch on that period.
func NewServer(port string, interval time.Duration, deps ServerDeps, log zerolog.Logger) *Server {
	log = logger.Component(log, "http")
	h := &handlers{search: deps.Search, queue: deps.Queue, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", h.health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/search", h.searchChunks)
		api.Post("/documents/{id}/reindex", h.reindex)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + port,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		runner:   deps.Runner,
		interval: interval,
		log:      log,
	}
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves until Shutdown is called. The periodic batch loop stops with ctx.
func (s *Server) Start(ctx context.Context) error {
	if s.interval > 0 && s.runner != nil {
		go s.runPeriodically(ctx)
	}
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) runPeriodically(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.runner.Run(ctx, ingest.RunOptions{}); err != nil {
				s.log.Error().Err(err).Msg("periodic batch run failed")
			}
		}
	}
}

type handlers struct {
	search searcher
	queue  enqueuer
	log    zerolog.Logger
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) searchChunks(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing query parameter q"})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	results := h.search.Search(r.Context(), q, limit)
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "results": results})
}

func (h *handlers) reindex(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.queue.Enqueue(r.Context(), id); err != nil {
		h.log.Warn().Err(err).Str("doc_id", id).Msg("enqueue failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"doc_id": id, "status": "queued"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger replaces chi's text logger with one structured line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
