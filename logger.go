package classdb

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/classdb/model"
)

// Logger wraps slog.Logger with classdb-specific context.
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
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithSnapshot adds a snapshot field to the logger.
func (l *Logger) WithSnapshot(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("snapshot", name),
	}
}

// WithLocation adds a location id field to the logger.
func (l *Logger) WithLocation(id model.LocationID) *Logger {
	return &Logger{
		Logger: l.Logger.With("location", uint64(id)),
	}
}

// LogClasspath logs the construction of a classpath.
func (l *Logger) LogClasspath(ctx context.Context, snapshot string, locations, indexed int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "classpath failed",
			"locations", locations,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "classpath ready",
			"snapshot", snapshot,
			"locations", locations,
			"indexed", indexed,
			"elapsed", elapsed,
		)
	}
}

// LogRefresh logs a refresh cycle.
func (l *Logger) LogRefresh(ctx context.Context, res RefreshResult, err error) {
	if err != nil {
		l.ErrorContext(ctx, "refresh failed",
			"error", err,
		)
		return
	}
	if len(res.New) == 0 && len(res.Superseded) == 0 && len(res.Vanished) == 0 && len(res.Removed) == 0 {
		l.DebugContext(ctx, "refresh found no changes")
		return
	}
	l.InfoContext(ctx, "refresh completed",
		"new", len(res.New),
		"superseded", len(res.Superseded),
		"vanished", len(res.Vanished),
		"removed", len(res.Removed),
		"classes", res.Classes,
	)
}

// LogCleanup logs a cleanup run.
func (l *Logger) LogCleanup(ctx context.Context, removed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "cleanup failed",
			"removed", removed,
			"error", err,
		)
	} else if removed > 0 {
		l.InfoContext(ctx, "cleanup completed",
			"removed", removed,
		)
	}
}
