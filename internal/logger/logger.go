// Package logger sets up the gateway's structured logging. Adapted from
// the teacher's internal/logger (global zerolog.Logger, component
// sub-loggers via .With().Str("component", ...)); the component set is
// rewritten for this domain.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the process-wide base logger, configured by Initialize.
var Log zerolog.Logger

// Initialize sets up the global logger. pretty selects a human-readable
// console writer for local development; otherwise logs are JSON.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().Str("service", "lila-ws").Logger()

	Log.Info().Str("level", logLevel.String()).Bool("pretty", pretty).Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger {
	return &Log
}

// Hub returns a logger for routing-table events.
func Hub() *zerolog.Logger {
	l := Log.With().Str("component", "hub").Logger()
	return &l
}

// Socket returns a logger for per-connection events.
func Socket() *zerolog.Logger {
	l := Log.With().Str("component", "socket").Logger()
	return &l
}

// Bus returns a logger for pub/sub ingress/egress events.
func Bus() *zerolog.Logger {
	l := Log.With().Str("component", "bus").Logger()
	return &l
}

// Session returns a logger for session-lookup events.
func Session() *zerolog.Logger {
	l := Log.With().Str("component", "session").Logger()
	return &l
}

// Analysis returns a logger for the analysis responder.
func Analysis() *zerolog.Logger {
	l := Log.With().Str("component", "analysis").Logger()
	return &l
}

// RateLimit returns a logger for rate-limiter events.
func RateLimit() *zerolog.Logger {
	l := Log.With().Str("component", "ratelimit").Logger()
	return &l
}

// HTTP returns a logger for the HTTP entrypoint.
func HTTP() *zerolog.Logger {
	l := Log.With().Str("component", "http").Logger()
	return &l
}
