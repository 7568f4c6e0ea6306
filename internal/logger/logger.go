// Package logger provides structured logging for folioseek.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // console output for terminals
	Output io.Writer
}

// Logger wraps zerolog with component sub-loggers.
type Logger struct {
	zlog zerolog.Logger
}

// New creates a logger from cfg. Output defaults to stderr so that command
// output on stdout stays clean.
func New(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.Kitchen,
		}
	}

	zlog := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()

	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Zerolog returns the underlying zerolog logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// SearchLogger returns a logger for a book's search engine.
func (l *Logger) SearchLogger(bookID string) zerolog.Logger {
	return l.zlog.With().
		Str("component", "search").
		Str("book", bookID).
		Logger()
}

// AnchorLogger returns a logger for highlight anchoring and migration.
func (l *Logger) AnchorLogger(bookID string) zerolog.Logger {
	return l.zlog.With().
		Str("component", "anchor").
		Str("book", bookID).
		Logger()
}

// DbLogger returns a logger for database operations.
func (l *Logger) DbLogger(operation string) zerolog.Logger {
	return l.zlog.With().
		Str("component", "database").
		Str("operation", operation).
		Logger()
}

// LogDbOperation logs a database operation with its duration.
func (l *Logger) LogDbOperation(operation string, duration time.Duration, recordCount int, err error) {
	event := l.zlog.Debug()
	if err != nil {
		event = l.zlog.Error().Err(err)
	}
	event.
		Str("component", "database").
		Str("operation", operation).
		Dur("duration_ms", duration).
		Int("record_count", recordCount).
		Msg("database operation completed")
}
