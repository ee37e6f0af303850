package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const (
	LogLevelError = iota
	LogLevelInfo
	LogLevelDebug
)

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config controls the logger verbosity and output encoding.
type Config struct {
	Level  int
	Format string
}

// Logger wraps zerolog with the printf-style surface the workers and the
// database layer consume.
type Logger struct {
	zl zerolog.Logger
}

// NewLogger constructs a logger writing to stderr. The text format uses
// zerolog's console writer; anything else emits structured JSON.
func NewLogger(c Config) *Logger {
	return NewLoggerWithWriter(c, os.Stderr)
}

func NewLoggerWithWriter(c Config, w io.Writer) *Logger {
	if c.Format == LogFormatText || c.Format == "" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	zl := zerolog.New(w).With().Timestamp().Logger()

	switch c.Level {
	case LogLevelDebug:
		zl = zl.Level(zerolog.DebugLevel)
	case LogLevelInfo:
		zl = zl.Level(zerolog.InfoLevel)
	default:
		zl = zl.Level(zerolog.ErrorLevel)
	}

	return &Logger{zl: zl}
}

// ZeroLog exposes the underlying logger for adapters (e.g. the SQL driver
// logger).
func (l *Logger) ZeroLog() zerolog.Logger {
	return l.zl
}

// WithName returns a logger annotated with a component name field.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", name).Logger()}
}

func (l *Logger) Debugf(format string, args ...any) {
	l.zl.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.zl.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.zl.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.zl.Error().Msgf(format, args...)
}
