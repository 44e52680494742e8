// Package server exposes the generation service over HTTP: synchronous
// and asynchronous job submission, record inspection, cancellation, a
// websocket progress stream and operational stats.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nemoooooooooo/ring-generator-service-tools/internal/config"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/jobs"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/metrics"
)

// shutdownGrace is how long in-flight requests get on shutdown.
const shutdownGrace = 10 * time.Second

// Server wires the job manager and metrics collector into an HTTP API.
type Server struct {
	cfg       config.Config
	manager   *jobs.Manager
	collector *metrics.Collector
	blenderOK bool
	logger    *slog.Logger
}

// New creates a server over the given manager. blenderOK reports whether
// the configured Blender executable was found at startup; it only
// affects the health payload.
func New(cfg config.Config, manager *jobs.Manager, collector *metrics.Collector, blenderOK bool, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		manager:   manager,
		collector: collector,
		blenderOK: blenderOK,
		logger:    logger,
	}
}

// Router builds the chi route tree with logging and optional API-key
// middleware applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(s.logger))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/tool/schema", s.handleToolSchema)
	r.Get("/sessions/{id}", s.handleSession)
	r.Get("/sessions/{id}/model.glb", s.handleSessionModel)

	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(APIKeyAuth(s.cfg.APIKey))
		}
		r.Post("/run", s.handleRun)
		r.Post("/jobs", s.handleSubmit)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/jobs/{id}/result", s.handleJobResult)
		r.Delete("/jobs/{id}", s.handleCancelJob)
		r.Get("/jobs/{id}/ws", s.handleJobWS)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then
// shuts it down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
