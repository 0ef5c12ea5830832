// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	FilePath   string // empty disables the file writer
	MaxSize    int    // megabytes
	MaxBackups int
	MaxAge     int // days
}

// NewLoggerWithConfig creates a logger writing to stderr and, when a path
// is set, to a rotating file. Stdout is left to command output.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg LogConfig, console io.Writer) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        console,
			TimeFormat: time.Kitchen,
			FormatLevel: func(i interface{}) string {
				ll, ok := i.(string)
				if !ok {
					return "???"
				}
				switch ll {
				case "debug":
					return "\033[36mDBG\033[0m"
				case "info":
					return "\033[32mINF\033[0m"
				case "warn":
					return "\033[33mWRN\033[0m"
				case "error":
					return "\033[31mERR\033[0m"
				default:
					return strings.ToUpper(ll)
				}
			},
		})
	}

	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	return zerolog.New(writer).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

type contextKey string

const loggerKey contextKey = "logger"

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithUnderlying adds an underlying symbol to the logger context.
func WithUnderlying(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("underlying", symbol).Logger()
}

// WithOperation adds an operation name to the logger context.
func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// LogAnalysis logs a payoff computation.
func LogAnalysis(logger zerolog.Logger, underlying string, legs, points int, breakevens []float64, duration time.Duration) {
	logger.Debug().
		Str("event", "analysis").
		Str("underlying", underlying).
		Int("legs", legs).
		Int("points", points).
		Floats64("breakevens", breakevens).
		Dur("duration", duration).
		Msg("Payoff computed")
}

// LogChainFetch logs an option chain fetch.
func LogChainFetch(logger zerolog.Logger, symbol, source string, strikes int, duration time.Duration, err error) {
	if err != nil {
		logger.Warn().
			Str("event", "chain_fetch").
			Str("symbol", symbol).
			Str("source", source).
			Dur("duration", duration).
			Err(err).
			Msg("Chain fetch failed")
		return
	}
	logger.Info().
		Str("event", "chain_fetch").
		Str("symbol", symbol).
		Str("source", source).
		Int("strikes", strikes).
		Dur("duration", duration).
		Msg("Chain fetched")
}

// LogAPICall logs an API call.
func LogAPICall(logger zerolog.Logger, method, endpoint string, status int, duration time.Duration) {
	event := logger.Info()
	if status >= 500 {
		event = logger.Error()
	} else if status >= 400 {
		event = logger.Warn()
	}
	event.
		Str("event", "api_call").
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", status).
		Dur("duration", duration).
		Msg("API call")
}
