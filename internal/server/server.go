// Package server provides the main server orchestration for Uplight.
//
// The server follows a structured lifecycle:
//  1. Storage initialization
//  2. Metrics, executors, notifier, annotator and round lock
//  3. Core engine startup
//  4. HTTP API server launch
//  5. Graceful shutdown on context cancellation
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"uplight/internal/alert"
	"uplight/internal/annotator"
	"uplight/internal/api"
	"uplight/internal/checks"
	"uplight/internal/config"
	"uplight/internal/core"
	"uplight/internal/executor"
	"uplight/internal/metrics"
	"uplight/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

// Server represents the main Uplight server orchestrator.
//
// It owns the storage, engine and HTTP server and makes sure they start in
// dependency order and stop in reverse.
type Server struct {
	cfg *config.Config
}

// New creates a new server instance with the provided configuration.
// The server is not started until Start() is called.
func New(cfg *config.Config) *Server {
	return &Server{
		cfg: cfg,
	}
}

// Start initializes and starts all server components in order and blocks
// until ctx is cancelled or the HTTP server fails.
func (s *Server) Start(ctx context.Context) error {
	// Phase 1: storage, everything else depends on it
	store, err := storage.New(s.cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close storage")
		}
	}()

	// Phase 2: supporting components
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(registry); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	local := executor.NewLocal(checks.NewManager(s.cfg.Checks))
	executors := executor.NewRegistry(local, s.cfg.Dispatch)

	notifier, err := alert.NewManager(s.cfg.Alert)
	if err != nil {
		return fmt.Errorf("failed to create alert manager: %w", err)
	}

	lock, closeLock, err := s.roundLock(ctx)
	if err != nil {
		notifier.Close()
		return err
	}
	defer closeLock()

	// Phase 3: engine
	engine := core.NewEngine(s.cfg, store, executors, notifier, annotator.New(s.cfg.Annotator), lock)
	if err := engine.Start(ctx); err != nil {
		notifier.Close()
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer engine.Stop()

	// Phase 4: HTTP API
	httpServer := api.NewServer(s.cfg.Server, api.Deps{
		Engine:   engine,
		Store:    store,
		Local:    local,
		Gatherer: registry,
		Breakers: executors,
	})

	// Buffered so the goroutine never leaks if we return first
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Phase 5: wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return errors.New("http server stopped unexpectedly")
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received, starting graceful shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting requests before the engine stops
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped gracefully")
	return nil
}

// roundLock returns the Redis lock when enabled, otherwise a no-op lock.
func (s *Server) roundLock(ctx context.Context) (core.RoundLock, func(), error) {
	if !s.cfg.Lock.Redis.Enabled {
		return core.NoopLock{}, func() {}, nil
	}

	lock, err := core.NewRedisLock(ctx, s.cfg.Lock.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create round lock: %w", err)
	}

	return lock, func() {
		if err := lock.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis lock")
		}
	}, nil
}
