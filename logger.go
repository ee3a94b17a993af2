package lsmkit

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger with lsmkit-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Library components default to this; logging is opt-in.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithSegment adds a segment ID field to the logger.
func (l *Logger) WithSegment(id uuid.UUID) *Logger {
	return &Logger{
		Logger: l.Logger.With("segment", id.String()),
	}
}

// WithComparator adds a comparator name field to the logger.
func (l *Logger) WithComparator(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("comparator", name),
	}
}

// LogFlush logs a segment flush.
func (l *Logger) LogFlush(ctx context.Context, entries uint64, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"entries", entries,
			"bytes", bytes,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "flush completed",
			"entries", entries,
			"bytes", bytes,
		)
	}
}

// LogOpen logs a segment open.
func (l *Logger) LogOpen(ctx context.Context, entries uint64, size int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"size", size,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "segment opened",
			"entries", entries,
			"size", size,
		)
	}
}
