package log

import (
	"context"
	"log/slog"
	"net/http"
)

type loggerKey struct{}

// NewContext returns a copy of ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the request logger, or a default one tagged "unknown"
// when the request never went through Middleware.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return logger
	}
	return ForComponent("unknown")
}

// Middleware scopes logger to the request: every line written through
// FromContext carries the request id and route.
func Middleware(logger *Logger, requestID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scoped := logger.With(FieldMethod, r.Method, FieldPath, r.URL.Path)
			if requestID != nil {
				if id := requestID(r); id != "" {
					scoped = scoped.With(FieldRequestID, id)
				}
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), scoped)))
		})
	}
}

// StructuredLogger writes the fixed-shape events shared by the HTTP layer
// and the services.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithClientIP(clientIP)
	sl.logger.DebugContext(ctx, "Request received", fields.ToSlice()...)
}

// LogHTTPEnd picks the level from the status: 4xx warn, 5xx error.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "").
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP)
	sl.logger.Log(ctx, level, "Request served", fields.ToSlice()...)
}

func (sl *StructuredLogger) LogTransactionWritten(ctx context.Context, op, projectID, id string, amountCents int64) {
	fields := NewFields().
		WithProject(projectID).
		WithTransaction(id, amountCents).
		WithOperation(op)
	sl.logger.WithComponent(ComponentTransaction).InfoContext(ctx, "Transaction written", fields.ToSlice()...)
}
