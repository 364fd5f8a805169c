// Package api exposes the HTTP status interface for the crawler: health
// probes, Prometheus metrics and per-target crawl progress.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vielabs/tiki-review-crawler/internal/checkpoint"
	"github.com/vielabs/tiki-review-crawler/internal/telemetry"
)

// ProgressSource serves the persisted progress of every known target.
type ProgressSource interface {
	Snapshot() ([]checkpoint.TargetProgress, error)
}

// Server wires the HTTP routes to the checkpoint store.
type Server struct {
	router   chi.Router
	progress ProgressSource
	log      *zap.Logger
}

// NewServer constructs a Server with its routes.
func NewServer(progress ProgressSource, log *zap.Logger) *Server {
	s := &Server{progress: progress, log: log}

	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/progress", s.getProgress)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getProgress(w http.ResponseWriter, _ *http.Request) {
	targets, err := s.progress.Snapshot()
	if err != nil {
		s.log.Error("progress snapshot failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "progress unavailable")
		return
	}

	completed := 0
	for _, t := range targets {
		if t.Completed {
			completed++
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"targets":   targets,
		"completed": completed,
		"known":     len(targets),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
