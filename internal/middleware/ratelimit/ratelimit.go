// Package ratelimit throttles clients by a fixed window per minute.
package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	applog "budgetbook/internal/log"
)

const staleAfter = 10 * time.Minute

// Limiter counts requests per client over one-minute windows.
type Limiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
	now          func() time.Time

	requestsPerMinute int
	cleanupInterval   time.Duration

	metrics *MetricsCollector
	logger  *applog.Logger
}

type clientInfo struct {
	windowStart time.Time
	lastRequest time.Time
	requests    int
}

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   5 * time.Minute,
	}
}

// NewLimiter creates a limiter and starts its cleanup goroutine. Call Stop to
// release it.
func NewLimiter(config Config) *Limiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig().CleanupInterval
	}

	rl := &Limiter{
		clients:           make(map[string]*clientInfo),
		stopCleanup:       make(chan struct{}),
		now:               time.Now,
		requestsPerMinute: config.RequestsPerMinute,
		cleanupInterval:   config.CleanupInterval,
		metrics:           NewMetricsCollector(),
		logger:            applog.ForComponent(applog.ComponentRateLimit),
	}
	go rl.startCleanup()
	return rl
}

// Allow reports whether a request from clientIP fits in its current window.
func (rl *Limiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	client, exists := rl.clients[clientIP]
	if !exists || now.Sub(client.windowStart) >= time.Minute {
		rl.clients[clientIP] = &clientInfo{windowStart: now, lastRequest: now, requests: 1}
		rl.metrics.UpdateClientCount(int64(len(rl.clients)))
		return true
	}

	client.requests++
	client.lastRequest = now
	if client.requests > rl.requestsPerMinute {
		rl.metrics.RecordHit()
		return false
	}
	return true
}

// retryAfter is the number of seconds until the client's window resets.
func (rl *Limiter) retryAfter(clientIP string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	client, ok := rl.clients[clientIP]
	if !ok {
		return 0
	}
	left := time.Minute - rl.now().Sub(client.windowStart)
	secs := int((left + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (rl *Limiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes clients idle for longer than staleAfter.
func (rl *Limiter) cleanupStaleEntries() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-staleAfter)
	removed := 0
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
			removed++
		}
	}
	rl.metrics.UpdateClientCount(int64(len(rl.clients)))
	if removed > 0 {
		rl.logger.Debug("Removed stale rate limit entries", applog.FieldCount, removed)
	}
	return removed
}

// ActiveClients returns the number of currently tracked clients
func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Stop gracefully shuts down the rate limiter cleanup goroutine
func (rl *Limiter) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

func (rl *Limiter) GetMetrics() Metrics {
	return rl.metrics.GetMetrics()
}

// Metrics for monitoring rate limit performance
type Metrics struct {
	TotalHits   int64
	ClientCount int64
}

// MetricsCollector tracks rate limiting metrics
type MetricsCollector struct {
	totalHits   int64
	clientCount int64
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordHit records a rejected request.
func (m *MetricsCollector) RecordHit() {
	atomic.AddInt64(&m.totalHits, 1)
}

func (m *MetricsCollector) UpdateClientCount(count int64) {
	atomic.StoreInt64(&m.clientCount, count)
}

func (m *MetricsCollector) GetMetrics() Metrics {
	return Metrics{
		TotalHits:   atomic.LoadInt64(&m.totalHits),
		ClientCount: atomic.LoadInt64(&m.clientCount),
	}
}

// Middleware limits requests for which applies returns true; a nil applies
// limits every request. Rejected requests get a JSON 429 with Retry-After.
func (rl *Limiter) Middleware(extractIP func(*http.Request) string, applies func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if applies != nil && !applies(r) {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := extractIP(r)
			if !rl.Allow(clientIP) {
				applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
					applog.FieldComponent, applog.ComponentRateLimit,
					applog.FieldClientIP, clientIP,
					applog.FieldPath, r.URL.Path)

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter(clientIP)))
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
