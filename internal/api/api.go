// Package api provides HTTP handlers and the main API server logic for Pipkin.
//
// It exposes RESTful endpoints for the task lifecycle (listing, starting,
// completing, refreshing), the pet and stats singletons, and the energy
// history. The API is a thin shell: every mutation goes through the engine,
// which owns all task, stats, and pet state.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pipkin-app/pipkin/internal/engine"
)

// Opts holds configuration for the API server.
type Opts struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server wires the HTTP surface to the engine.
type Server struct {
	eng  *engine.Engine
	opts Opts
	srv  *http.Server
}

// NewServer creates an API server around the engine.
func NewServer(eng *engine.Engine, options ...Option) *Server {
	opts := Opts{Addr: ":8080"}
	for _, opt := range options {
		opt(&opts)
	}
	return &Server{eng: eng, opts: opts}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tasks", s.tasksHandler)
	mux.HandleFunc("/tasks/start", s.taskStartHandler)
	mux.HandleFunc("/tasks/complete", s.taskCompleteHandler)
	mux.HandleFunc("/slot", s.slotHandler)
	mux.HandleFunc("/slot/refresh", s.refreshHandler)
	mux.HandleFunc("/pet", s.petHandler)
	mux.HandleFunc("/pet/petting", s.pettingHandler)
	mux.HandleFunc("/pet/decorations", s.purchaseHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.HandleFunc("/region", s.regionHandler)
	mux.HandleFunc("/history", s.historyHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API server listening", "addr", s.opts.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Server.Run: shutdown failed", "error", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
