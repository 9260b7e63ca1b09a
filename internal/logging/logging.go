// Package logging provides the shared structured logger used across every
// actor in the store: KeyManagers, ValueNodes, Aggregators, and
// ClientSessions all log through here rather than the standard "log"
// package, so every event carries a component and, where relevant, db/key
// fields for correlation.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide base logger. Configure replaces it; Component
// derives a child logger tagged with a component name.
var Logger zerolog.Logger

func init() {
	Logger = New(os.Stderr, zerolog.InfoLevel, false)
}

// New builds a zerolog.Logger writing to w at the given level. When pretty
// is true, output goes through zerolog's console writer (human-readable,
// for local development); otherwise it is newline-delimited JSON, suited to
// log aggregation.
func New(w io.Writer, level zerolog.Level, pretty bool) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Configure replaces the package logger. Called once at startup from the
// loaded configuration.
func Configure(level zerolog.Level, pretty bool) {
	Logger = New(os.Stderr, level, pretty)
}

// Component returns a child logger tagged with component=name, e.g.
// logging.Component("keymanager").
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}
