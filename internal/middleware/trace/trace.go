// Package trace assigns request ids and records request timings.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"sync/atomic"
	"time"

	applog "budgetbook/internal/log"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

type contextKey struct{}

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9_.-]{8,64}$`)

type Middleware struct {
	extractIP func(*http.Request) string
	metrics   *Metrics
	logger    *applog.Logger
}

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests int64
	// AverageResponseTime is in microseconds.
	AverageResponseTime int64
	totalMicros         int64
}

func NewMiddleware(extractIP func(*http.Request) string) *Middleware {
	return &Middleware{
		extractIP: extractIP,
		metrics:   &Metrics{},
		logger:    applog.ForComponent(applog.ComponentTrace),
	}
}

// Middleware tags each request with an id, taken from a well-formed
// X-Request-ID header or generated, and logs its start and completion.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := r.Header.Get(HeaderRequestID)
		if !validRequestID.MatchString(requestID) {
			requestID = GenerateRequestID()
		}
		ctx := WithRequestID(r.Context(), requestID)
		r = r.WithContext(ctx)
		w.Header().Set(HeaderRequestID, requestID)

		sl := applog.NewStructuredLogger(m.logger.With(applog.FieldRequestID, requestID))
		sl.LogHTTPStart(ctx, r, clientIP)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		n := atomic.AddInt64(&m.metrics.TotalRequests, 1)
		total := atomic.AddInt64(&m.metrics.totalMicros, duration.Microseconds())
		atomic.StoreInt64(&m.metrics.AverageResponseTime, total/n)

		sl.LogHTTPEnd(ctx, r, rw.statusCode, duration.Milliseconds(), clientIP)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests:       atomic.LoadInt64(&m.metrics.TotalRequests),
		AverageResponseTime: atomic.LoadInt64(&m.metrics.AverageResponseTime),
	}
}
