// Package logging configures the process-wide zerolog logger.
package logging

import (
	"os"
	"time"

	"uplight/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup applies the log configuration to the global logger.
//
// An unknown level falls back to info; config validation rejects it earlier,
// so this only matters for callers that build a LogConfig by hand.
func Setup(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.Pretty {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
		return
	}

	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "uplight").Logger()
}
