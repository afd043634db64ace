package knowbase

import (
	"context"
	"log/slog"
	"os"

	"github.com/vantageinsurance/knowbase/codec"
	"github.com/vantageinsurance/knowbase/metadata"
)

// Logger wraps slog.Logger with knowbase-specific helpers.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithRequestID tags all subsequent log lines with a request id.
func (l *Logger) WithRequestID(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("request_id", id),
	}
}

// auditQueryRunes is how much of the query the audit line records.
const auditQueryRunes = 80

func truncateQuery(q string) string {
	runes := []rune(q)
	if len(runes) <= auditQueryRunes {
		return q
	}
	return string(runes[:auditQueryRunes])
}

func filterText(f metadata.Filter) string {
	if f == nil {
		return "{}"
	}
	return string(codec.MustMarshal(codec.Default, f))
}

// LogRetrieve writes the audit line for a retrieval. It runs before the
// index is queried so even failing requests leave a trace.
func (l *Logger) LogRetrieve(ctx context.Context, user string, adminOverride bool, query string, filter metadata.Filter) {
	l.InfoContext(ctx, "retrieve requested",
		"user", user,
		"admin_override", adminOverride,
		"query", truncateQuery(query),
		"filters", filterText(filter),
	)
}

// LogStrip records a chunk removed by the post-retrieval ownership
// check. Seeing this line means the index filter let a cross-tenant row
// through and the second check caught it.
func (l *Logger) LogStrip(ctx context.Context, chunkID, chunkOwner, requester string) {
	l.WarnContext(ctx, "cross-tenant chunk stripped",
		"chunk_id", chunkID,
		"owner", chunkOwner,
		"requester", requester,
	)
}

// LogUpsert logs an upsert batch.
func (l *Logger) LogUpsert(ctx context.Context, count, total int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "upsert failed",
			"count", count,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "upsert completed",
			"count", count,
			"total", total,
		)
	}
}

// LogSnapshot logs a snapshot save or archive push.
func (l *Logger) LogSnapshot(ctx context.Context, dir string, rows int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"dir", dir,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "snapshot saved",
			"dir", dir,
			"rows", rows,
		)
	}
}

// LogProbe logs the embedding provider selected at initialization.
func (l *Logger) LogProbe(ctx context.Context, provider string, dimension int) {
	l.InfoContext(ctx, "embedding provider selected",
		"provider", provider,
		"dimension", dimension,
	)
}
