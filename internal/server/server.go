// Package server exposes an engine over a JSON HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sanonone/rfield/pkg/engine"
	"github.com/sanonone/rfield/pkg/pipeline"
)

// Options configures the HTTP server.
type Options struct {
	Addr string
	// AuthToken, when set, is required as a Bearer token on every endpoint
	// except /healthz and /metrics.
	AuthToken    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Pipeline is run by POST /pipeline/run when the request carries no spec.
	Pipeline *pipeline.Spec
}

// Server holds the HTTP interface and the underlying Engine.
type Server struct {
	Engine *engine.Engine

	opts        Options
	httpServer  *http.Server
	handler     http.Handler
	taskManager *TaskManager

	// ctx is cancelled on Shutdown and bounds the background pipeline runs.
	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup
}

// NewServer initializes the HTTP server using an existing Engine.
// Note: The Engine must be initialized (Open) before passing it here.
func NewServer(eng *engine.Engine, opts Options) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("server: engine is nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Engine:      eng,
		opts:        opts,
		taskManager: NewTaskManager(),
		ctx:         ctx,
		cancel:      cancel,
	}

	mux := http.NewServeMux()
	s.registerHTTPHandlers(mux)

	// Chain middlewares: Recovery -> Logging -> Auth -> Mux
	var handler http.Handler = mux
	handler = s.authMiddleware(handler)
	handler = s.LoggingMiddleware(handler)
	handler = s.RecoveryMiddleware(handler)

	rootMux := http.NewServeMux()
	rootMux.HandleFunc("GET /healthz", s.handleHealthz)
	rootMux.Handle("GET /metrics", promhttp.Handler())
	rootMux.Handle("/", handler)
	s.handler = rootMux

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      rootMux,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s, nil
}

// Handler returns the root handler, for embedding or tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	slog.Info("[SERVER] HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server startup failed: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server and cancels running pipeline tasks.
// It does NOT close the Engine (main.go handles that for proper lifecycle management).
func (s *Server) Shutdown() {
	slog.Info("[SERVER] Starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("[SERVER] HTTP server shutdown error", "error", err)
	}
	s.cancel()
	s.tasks.Wait()
}
