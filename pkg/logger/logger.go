package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Discards everything until Init runs
var log = zerolog.Nop()

// Init configures console logging. Call before any other package logs.
func Init(level string) {
	// ParseLevel maps "" to NoLevel without an error, which would filter
	// every message; an unset level means info.
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	log = zerolog.New(output).Level(lvl).With().Timestamp().Logger()
}

// Get returns the process logger
func Get() *zerolog.Logger {
	return &log
}

// With returns a logger tagged with a component name
func With(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
