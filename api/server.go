// Package api exposes the knowledge base pipeline over HTTP.
//
// Endpoints (all JSON):
//
//	GET    /health                      liveness probe
//	GET    /ready                       readiness probe
//	GET    /kb                          list knowledge bases
//	POST   /kb/{name}                   create or get a knowledge base
//	DELETE /kb/{name}                   delete a knowledge base
//	POST   /kb/{name}/text              ingest raw text
//	POST   /kb/{name}/file              ingest a file by path
//	POST   /kb/{name}/directory         ingest a directory
//	POST   /kb/{name}/search            query
//	POST   /kb/{name}/context           assembled context for a query
//	GET    /kb/{name}/documents         list with content previews
//	DELETE /kb/{name}/documents/{id}    delete one document
//	DELETE /kb/{name}/documents         delete by metadata filter
//	GET    /kb/{name}/stats             statistics
//	POST   /kb/{name}/export            snapshot download
//	POST   /kb/{name}/import            snapshot upload
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - health.go: Health check endpoints (/health, /ready)
//   - kb.go: knowledge base endpoints
//   - response.go: JSON response helpers and error mapping
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/quixotic-maker/jarvis-sub000/internal/kb"
	"github.com/quixotic-maker/jarvis-sub000/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds request header reads (Slowloris).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Directory ingestion can take a while.
	WriteTimeout = 120 * time.Second

	// IdleTimeout applies to keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server over a knowledge base registry.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health *HealthHandler
	kb     *KBHandler
}

// NewServer creates a server with all routes registered. ready may be nil
// when the vector backend needs no connectivity check.
func NewServer(registry *kb.Registry, ready func(context.Context) error, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:    mux,
		logger: logger,
		health: NewHealthHandler(ready, logger),
		kb:     NewKBHandler(registry, logger),
	}

	s.health.RegisterRoutes(mux)
	s.kb.RegisterRoutes(mux)
	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
	)
}

// Run starts the server and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
