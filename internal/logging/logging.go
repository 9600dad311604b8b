// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Structured field keys shared across packages
const (
	KeySession   = "session"
	KeyState     = "state"
	KeyPath      = "path"
	KeyComponent = "component"
	KeyDuration  = "duration"
)

// Init sets the global logger.
// format: "json" or "console" (default "console")
// level: "debug", "info", "warn", "error" (default "info")
// output: writer to log to (nil = os.Stderr)
func Init(format, level string, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}

	zerolog.SetGlobalLevel(ParseLevel(level))
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if !strings.EqualFold(format, "json") {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05.000"}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// InitFile points the global logger at path, returning the open file so the
// caller can close it on exit.
func InitFile(format, level, path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	// Console colouring makes no sense in a file
	if !strings.EqualFold(format, "json") {
		zerolog.SetGlobalLevel(ParseLevel(level))
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
		return f, nil
	}
	Init(format, level, f)
	return f, nil
}

// ParseLevel maps a config string to a zerolog level
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with a component name
func Component(name string) *zerolog.Logger {
	l := log.With().Str(KeyComponent, name).Logger()
	return &l
}
