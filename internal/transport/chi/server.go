// Package chi is the HTTP surface of the search service: the search API
// consumed by the web layer plus the cache and indexing admin endpoints.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/seamark-nav/seamark/internal/cache"
	"github.com/seamark-nav/seamark/internal/domain"
	logpkg "github.com/seamark-nav/seamark/internal/logger"
	"github.com/seamark-nav/seamark/internal/usecase/indexjob"
	searchuc "github.com/seamark-nav/seamark/internal/usecase/search"
	"github.com/seamark-nav/seamark/internal/version"
)

// Searcher runs the search pipeline.
type Searcher interface {
	Search(ctx context.Context, query string, useAI bool, viewer domain.Viewer) (searchuc.Response, error)
	SearchStream(ctx context.Context, query string, viewer domain.Viewer, emit searchuc.EmitFunc) error
}

// CacheAdmin exposes the result cache to the admin endpoints.
type CacheAdmin interface {
	Snapshot() cache.Stats
	Clear()
}

// BatchAdmin controls the background re-index job.
type BatchAdmin interface {
	StartBatch(ctx context.Context, skipExisting bool) error
	StopBatch()
	BatchStatus() indexjob.Status
}

// Server holds the HTTP handlers.
type Server struct {
	search Searcher
	cache  CacheAdmin
	batch  BatchAdmin
	logger *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(search Searcher, cacheAdmin CacheAdmin, batch BatchAdmin, logger *zap.Logger) *Server {
	return &Server{
		search: search,
		cache:  cacheAdmin,
		batch:  batch,
		logger: logger,
	}
}

// Register mounts all routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.health)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Get("/cache/stats", s.handleCacheStats)
		r.Post("/cache/clear", s.handleCacheClear)

		r.Route("/admin/vectors", func(r chi.Router) {
			r.Post("/batch", s.handleBatchStart)
			r.Get("/batch/status", s.handleBatchStatus)
			r.Post("/batch/stop", s.handleBatchStop)
		})
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// handleSearch serves GET /api/search?q=...&ai=...&progressive=...
// Progressive requests stream SSE events; everything else is one JSON body.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "query parameter q is required")
		return
	}

	viewer := viewerFrom(r)

	if boolParam(r, "progressive") {
		s.streamSearch(w, r, query, viewer)
		return
	}

	resp, err := s.search.Search(r.Context(), query, boolParam(r, "ai"), viewer)
	if err != nil {
		s.requestLogger(r).Error("Search failed", zap.String("query", query), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) streamSearch(w http.ResponseWriter, r *http.Request, query string, viewer domain.Viewer) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err := s.search.SearchStream(r.Context(), query, viewer, func(e searchuc.Event) error {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Headers are long gone; the terminal error event (if any) was the
		// last thing the client saw.
		s.requestLogger(r).Warn("Search stream ended with error",
			zap.String("query", query),
			zap.Error(err),
		)
	}
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Snapshot())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	s.cache.Clear()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleBatchStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SkipExisting bool `json:"skip_existing"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
			return
		}
	}

	if err := s.batch.StartBatch(r.Context(), req.SkipExisting); err != nil {
		if errors.Is(err, domain.ErrJobRunning) {
			writeError(w, http.StatusConflict, "job_running", "a batch indexing job is already running")
			return
		}
		if errors.Is(err, domain.ErrConfigIncomplete) {
			writeError(w, http.StatusServiceUnavailable, "vector_disabled", "vector indexing is not configured")
			return
		}
		s.requestLogger(r).Error("Failed to start batch indexing", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to start batch indexing")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": true})
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.batch.BatchStatus())
}

func (s *Server) handleBatchStop(w http.ResponseWriter, _ *http.Request) {
	s.batch.StopBatch()
	writeJSON(w, http.StatusAccepted, map[string]bool{"stopping": true})
}

// requestLogger prefers the logger the access-log middleware attached to the
// request context, so handler errors carry the request id.
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return logpkg.FromContextOr(r.Context(), s.logger)
}

// viewerFrom reads the viewer identity set by the fronting web layer.
// Missing or malformed headers mean an anonymous viewer.
func viewerFrom(r *http.Request) domain.Viewer {
	var v domain.Viewer
	if raw := r.Header.Get("X-Viewer-ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			v.ID = id
		}
	}
	v.IsAdmin = r.Header.Get("X-Viewer-Admin") == "true" && v.ID != 0
	return v
}

func boolParam(r *http.Request, name string) bool {
	switch r.URL.Query().Get(name) {
	case "true", "1":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
