// Package server provides the HTTP API for Kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/orchestrator"
	"go.uber.org/zap"
)

// Server is the HTTP server for the Kotae API. Queries are answered by the
// pipeline most recently produced by an initialization run; until the first
// run completes, query requests are rejected with 503.
type Server struct {
	orch   *orchestrator.Orchestrator
	cfg    *config.ServerConfig
	logger *zap.Logger
	server *http.Server

	mu    sync.RWMutex
	ready *orchestrator.Ready
}

// NewServer creates a server around an orchestrator.
func NewServer(orch *orchestrator.Orchestrator, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		orch:   orch,
		cfg:    cfg,
		logger: logger,
	}
}

// Initialize runs the orchestrator and swaps the live pipeline. The previous
// pipeline, if any, is released after the swap. Safe to call again (watcher
// triggered re-initialization); attempts are serialized by the caller.
func (s *Server) Initialize(ctx context.Context) error {
	ready, err := s.orch.Run(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	old := s.ready
	s.ready = ready
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// current returns the live pipeline, or nil before initialization.
func (s *Server) current() *orchestrator.Ready {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Router builds the chi handler. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/query", s.handleQuery)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server and releases the live pipeline.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}
	s.mu.Lock()
	ready := s.ready
	s.ready = nil
	s.mu.Unlock()
	if ready != nil {
		ready.Close()
	}
	return nil
}
