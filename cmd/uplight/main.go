// Package main provides the entry point for Uplight, a multi-region uptime
// check engine with incident tracking and heartbeat monitoring.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"uplight/internal/api"
	"uplight/internal/config"
	"uplight/internal/logging"
	"uplight/internal/server"

	"github.com/rs/zerolog/log"
)

// Version information set during build time
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// main is the entry point of Uplight.
//
// The startup sequence is as follows:
//  1. Load configuration
//  2. Initialize logger
//  3. Setup graceful shutdown handling
//  4. Start the main server
func main() {
	cfg := loadConfig()

	logging.Setup(cfg.Log)
	api.Version = Version

	log.Info().
		Str("version", Version).
		Str("commit", GitCommit).
		Str("built", BuildTime).
		Msg("Starting Uplight")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.New(cfg).Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// loadConfig loads application configuration and terminates the program
// immediately if configuration cannot be loaded.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().
			Err(err).
			Msg("Failed to load configuration")
	}
	return cfg
}
