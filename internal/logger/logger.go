package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ContextKey is a type for context keys used by the logger
type ContextKey string

const (
	// RequestIDKey is the context key for request IDs
	RequestIDKey ContextKey = "request_id"
)

var defaultLogger *slog.Logger

// Init initializes the global logger with the specified log level.
// Production (ENV=production) logs JSON, everything else logs text.
func Init(levelStr string) {
	InitWithWriter(levelStr, os.Stdout)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(levelStr string, w io.Writer) {
	opts := &slog.HandlerOptions{Level: parseLevel(levelStr)}

	var handler slog.Handler
	if IsDevelopment() {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// IsDevelopment reports whether the process runs outside production.
// Storage mirror failures in the cache are only logged in development.
func IsDevelopment() bool {
	return !strings.EqualFold(strings.TrimSpace(os.Getenv("ENV")), "production")
}

// parseLevel converts a string log level to slog.Level
func parseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
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

// Get returns the default logger
func Get() *slog.Logger {
	if defaultLogger == nil {
		Init("info")
	}
	return defaultLogger
}

// Discard returns a logger that drops everything. Used by tests and by
// components constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// WithRequestID returns a logger with the request ID from context
func WithRequestID(ctx context.Context) *slog.Logger {
	logger := Get()
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok && reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	return logger
}

// WithComponent returns a logger with a component label
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

// InfoContext logs an info message with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	WithRequestID(ctx).Info(msg, args...)
}

// WarnContext logs a warning message with context
func WarnContext(ctx context.Context, msg string, args ...any) {
	WithRequestID(ctx).Warn(msg, args...)
}

// ErrorContext logs an error message with context
func ErrorContext(ctx context.Context, msg string, args ...any) {
	WithRequestID(ctx).Error(msg, args...)
}
