// Package server implements the pagecast status server: render job
// submission, job status, SSE progress events and health.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jmylchreest/pagecast/internal/config"
	"github.com/jmylchreest/pagecast/internal/jobs"
	"github.com/jmylchreest/pagecast/internal/observability"
	"github.com/jmylchreest/pagecast/internal/render"
	"github.com/jmylchreest/pagecast/internal/server/middleware"
	"github.com/jmylchreest/pagecast/internal/storage"
)

// Server is the HTTP status server.
type Server struct {
	cfg        config.ServerConfig
	router     *chi.Mux
	httpServer *http.Server
	logger     *slog.Logger

	tracker  *jobs.Tracker
	renderer *render.Renderer
	paths    *storage.Paths
	version  string
}

// New creates the server and mounts its routes.
func New(cfg config.ServerConfig, tracker *jobs.Tracker, renderer *render.Renderer, paths *storage.Paths, version string, logger *slog.Logger) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{
		cfg:      cfg,
		logger:   observability.WithComponent(logger, "server"),
		tracker:  tracker,
		renderer: renderer,
		paths:    paths,
		version:  version,
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(s.logger))
	router.Use(middleware.Recovery(s.logger))
	router.Use(middleware.CORS())
	router.Use(middleware.SkipCompressionForSSE(chimiddleware.Compress(5)))

	router.Get("/health", s.handleHealth)
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/render", s.handleRender)
		r.Post("/frame", s.handleFrame)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Delete("/jobs/{id}", s.handleCancelJob)
		r.Post("/jobs/{id}/pause", s.handlePauseJob)
		r.Post("/jobs/{id}/resume", s.handleResumeJob)
		r.Get("/events", s.handleEvents)
	})

	s.router = router
	return s
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ListenAndServe runs the server until the context is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting status server", slog.String("address", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("starting server: %w", err)
			return
		}
		errChan <- nil
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown stops the server, waiting for in-flight requests up to the
// configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	s.logger.Info("status server stopped")
	return nil
}
