// Package server provides process lifecycle management for the connector:
// graceful startup/shutdown of its background workers (the settlement
// monitor and the channel manager's settlement loop), with the signal handling the
// XRPL service used to apply to its gRPC listener.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// Worker is a long-running background loop owned by the connector process.
// Run must return promptly once ctx is cancelled.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc adapts a plain function to the Worker interface.
type WorkerFunc func(ctx context.Context) error

func (f WorkerFunc) Run(ctx context.Context) error { return f(ctx) }

// Server supervises the connector's background workers as a single process,
// shutting all of them down together on cancellation or signal.
type Server struct {
	logger  *slog.Logger
	workers []Worker
}

// NewServer creates a new Server that will run the given workers concurrently.
func NewServer(logger *slog.Logger, workers ...Worker) *Server {
	return &Server{logger: logger, workers: workers}
}

// Run starts every worker and blocks until all of them have returned. The
// first worker to return an error cancels the others' context, and that
// error is returned.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range s.workers {
		w := w
		g.Go(func() error { return w.Run(gctx) })
	}
	return g.Wait()
}

// RunWithGracefulShutdown starts every worker and blocks until the process
// receives SIGINT/SIGTERM or ctx is cancelled, then cancels the workers'
// context and waits for them to exit.
//
// Graceful shutdown ensures that:
// - In-flight channel operations observe cancellation rather than being killed
// - Every worker sees the same cancelled context; the server flushes nothing itself
// - The process exits only after every worker has returned
func (s *Server) RunWithGracefulShutdown(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	for _, w := range s.workers {
		w := w
		g.Go(func() error { return w.Run(gctx) })
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Info("received signal, shutting down gracefully", "signal", sig.String())
	case <-gctx.Done():
		s.logger.Info("context cancelled, shutting down gracefully")
	}
	cancel()

	if err := g.Wait(); err != nil {
		return fmt.Errorf("worker shutdown: %w", err)
	}
	return nil
}
