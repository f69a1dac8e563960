// Package api provides the HTTP surface of the engine using Gin.
//
// Example usage:
//
//	server := api.NewServer(cfg.Server, api.Deps{Engine: engine, Store: store})
//	err := server.Start()
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"uplight/internal/config"
	"uplight/internal/core"
	"uplight/internal/executor"

	v1 "uplight/internal/api/v1"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Engine is the engine surface the API serves. *core.Engine implements it.
type Engine interface {
	v1.Engine
	IsRunning() bool
	Status() core.Status
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerReporter exposes per-region circuit breaker states.
type BreakerReporter interface {
	BreakerStates() map[string]string
}

// Deps are the components behind the routes. Nil fields disable the
// routes or health sections that need them.
type Deps struct {
	Engine   Engine
	Store    Pinger
	Local    executor.Executor
	Gatherer prometheus.Gatherer
	Breakers BreakerReporter
}

// Server represents the HTTP API server.
type Server struct {
	config config.ServerConfig
	deps   Deps
	router *gin.Engine
	server *http.Server
}

// NewServer creates a new HTTP API server instance.
//
// Parameters:
//   - cfg: Server configuration containing address and timeout settings
//   - deps: Engine, storage and probe components to serve
//
// Returns:
//   - *Server: Initialized server instance
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config: cfg,
		deps:   deps,
		router: gin.New(),
	}

	server.setupMiddleware()
	server.setupRoutes()

	server.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return server
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
//
// Returns:
//   - error: Any error other than a graceful shutdown
func (s *Server) Start() error {
	log.Info().Str("addr", s.config.Addr).Msg("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// setupMiddleware configures middleware for the Gin router.
func (s *Server) setupMiddleware() {
	// Request ID first so every later log line carries it
	s.router.Use(RequestID())
	s.router.Use(PanicRecovery())
	s.router.Use(LoggerMiddleware())
}
