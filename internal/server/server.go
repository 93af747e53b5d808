// Package server runs the Hireloop HTTP API next to its background workers
// and stops both in order on SIGINT or SIGTERM.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Options holds the listener settings.
type Options struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// hook is a named shutdown step.
type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// Server owns the HTTP listener and the workers started with Background.
// Workers share one context that is cancelled when shutdown begins.
type Server struct {
	http            *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger

	mu    sync.Mutex
	hooks []hook

	workers      context.Context
	stopWorkers  context.CancelFunc
	workerFailed chan error
}

func New(handler http.Handler, opts Options, logger *slog.Logger) *Server {
	workers, stop := context.WithCancel(context.Background())
	return &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           handler,
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: opts.ReadTimeout,
			WriteTimeout:      opts.WriteTimeout,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		shutdownTimeout: opts.ShutdownTimeout,
		logger:          logger,
		workers:         workers,
		stopWorkers:     stop,
		workerFailed:    make(chan error, 1),
	}
}

// Background runs a worker until shutdown. A worker that returns an error
// while the server is still up brings the whole process down.
func (s *Server) Background(name string, run func(ctx context.Context) error) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.logger.Info("worker started", "worker", name)
		err := run(s.workers)
		if err == nil || s.workers.Err() != nil {
			return
		}
		select {
		case s.workerFailed <- fmt.Errorf("%s: %w", name, err):
		default:
		}
	}()

	s.OnShutdown(name, func(ctx context.Context) error {
		s.stopWorkers()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("%s did not stop: %w", name, ctx.Err())
		}
	})
}

// OnShutdown registers fn to run after the listener closes. Hooks run in
// reverse registration order.
func (s *Server) OnShutdown(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	s.hooks = append(s.hooks, hook{name: name, fn: fn})
	s.mu.Unlock()
}

// Run serves until a signal arrives, the listener fails or a worker fails.
func (s *Server) Run() error {
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listenErr := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	select {
	case err := <-listenErr:
		s.stopWorkers()
		return fmt.Errorf("listen: %w", err)
	case err := <-s.workerFailed:
		s.logger.Error("worker failed, shutting down", "error", err)
		if shutdownErr := s.gracefulShutdown(); shutdownErr != nil {
			s.logger.Error("shutdown after worker failure", "error", shutdownErr)
		}
		return err
	case <-sigCtx.Done():
		s.logger.Info("shutdown signal received")
		return s.gracefulShutdown()
	}
}

// gracefulShutdown drains HTTP first so in-flight requests can still
// enqueue work, then stops the hooks.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.http.SetKeepAlivesEnabled(false)
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown", "error", err)
	}

	s.mu.Lock()
	hooks := append([]hook(nil), s.hooks...)
	s.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.fn(ctx); err != nil {
			s.logger.Error("shutdown step failed", "step", h.name, "error", err)
			errs = append(errs, err)
			continue
		}
		s.logger.Info("stopped", "step", h.name)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("shutdown complete")
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}
