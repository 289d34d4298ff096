package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/igorvidecnik/databox-integration/internal/observability"
)

// Server exposes health, run state and metrics over HTTP.
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
}

// NewServer creates a new API server with all routes registered.
func NewServer(states StateLister, runs RunReporter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		States:    states,
		Runs:      runs,
		Logger:    logger,
		StartTime: time.Now(),
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/health", h.Health)
	api.HandleFunc("GET /api/v1/providers/{provider}", h.GetProviderState)
	api.HandleFunc("GET /api/v1/runs/last", h.GetLastRun)

	// Apply middleware (outermost runs first).
	var handler http.Handler = api
	handler = ContentType(handler)
	handler = SecurityHeaders(handler)

	mux := http.NewServeMux()
	mux.Handle("/api/", handler)
	mux.Handle("GET /metrics", observability.Handler())

	var root http.Handler = mux
	root = Logger(root)
	root = RequestID(root)
	root = Recovery(root)

	srv := &http.Server{
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, handlers: h}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server. Blocks until context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer.Addr = addr
	s.handlers.Logger.Info("api server starting", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// SetVersion sets the version string for the health endpoint.
func (s *Server) SetVersion(v string) { s.handlers.Version = v }

// SetStorageInfo sets storage driver and path for the health endpoint.
func (s *Server) SetStorageInfo(driver, path string) {
	s.handlers.StorageDriver = driver
	s.handlers.StoragePath = path
}
