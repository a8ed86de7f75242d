// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a LogLevel to a zerolog.Level. Unknown values map to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// LevelFor picks the level for a CLI debug switch.
func LevelFor(debug bool) LogLevel {
	if debug {
		return LevelDebug
	}
	return LevelInfo
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-request detail
//   - Dispatches (url, method) and retry backoffs
//   - Cache hits and stores
//   - Full list of failed URLs after a batch
//
// Info: batch-level progress
//   - Batch start/complete, progress every 50 results
//   - Failure counts (failed of total)
//   - Request succeeded after retry
//
// Warn: a URL was given up on
//   - Retry attempts exhausted
//   - Failed URLs in continue-on-error mode (first 10, then "+N more")
//   - Cache errors, circuit breaker transitions
//
// Error: the run cannot continue
//   - Fail-fast batch aborted
//   - Configuration errors
//
// Context Fields:
//   - url: requested URL
//   - method: HTTP method
//   - status: HTTP status code
//   - attempt / max_attempts: retry position
//   - backoff: delay before the next attempt
//   - error_class: network, status, breaker, other
//   - failed / total: batch failure counts
