package docstash

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/docstash/document"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Logger wraps slog.Logger with docstash-specific context.
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

// NewConsoleLogger creates a Logger with colored, human-readable output on
// stderr. Colors are disabled when stderr is not a terminal.
func NewConsoleLogger(level slog.Leveler) *Logger {
	return newConsoleLogger(colorable.NewColorable(os.Stderr), level, !isatty.IsTerminal(os.Stderr.Fd()))
}

func newConsoleLogger(w io.Writer, level slog.Leveler, noColor bool) *Logger {
	handler := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    noColor,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithID adds a document id field to the logger.
func (l *Logger) WithID(id document.ID) *Logger {
	return &Logger{
		Logger: l.Logger.With("id", string(id)),
	}
}

// LogSave logs a save operation.
func (l *Logger) LogSave(ctx context.Context, id document.ID, blobs int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"blobs", blobs,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "save completed",
			"id", string(id),
			"blobs", blobs,
			"elapsed", elapsed,
		)
	}
}

// LogLoad logs a finished load iteration.
func (l *Logger) LogLoad(ctx context.Context, query *document.FilterSet, docs int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"query", query.String(),
			"documents", docs,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "load completed",
			"query", query.String(),
			"documents", docs,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, id document.ID, blobs int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"id", string(id),
			"blobs", blobs,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"id", string(id),
			"blobs", blobs,
		)
	}
}

// LogSweep logs an orphan sweep.
func (l *Logger) LogSweep(ctx context.Context, scanned, deleted int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "sweep failed",
			"scanned", scanned,
			"deleted", deleted,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "sweep completed",
			"scanned", scanned,
			"deleted", deleted,
		)
	}
}
