package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	queueKey     contextKey = "queue"
	messageIDKey contextKey = "message_id"
)

var defaultLogger *slog.Logger

func Init(level string) {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Default() *slog.Logger {
	if defaultLogger == nil {
		Init("info")
	}
	return defaultLogger
}

func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return Default()
}

func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

func WithQueue(ctx context.Context, queue string) context.Context {
	l := FromContext(ctx).With("queue", queue)
	ctx = context.WithValue(ctx, queueKey, queue)
	return WithLogger(ctx, l)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	l := FromContext(ctx).With("message_id", messageID)
	ctx = context.WithValue(ctx, messageIDKey, messageID)
	return WithLogger(ctx, l)
}

func Queue(ctx context.Context) string {
	if q, ok := ctx.Value(queueKey).(string); ok {
		return q
	}
	return ""
}

func MessageID(ctx context.Context) string {
	if id, ok := ctx.Value(messageIDKey).(string); ok {
		return id
	}
	return ""
}

func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
