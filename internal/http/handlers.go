package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"budgetbook/internal/core"
)

const readinessTimeout = 5 * time.Second

// readinessProbeID never names a real project; a not-found answer proves
// the backend is reachable.
const readinessProbeID = "readiness-probe"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	}).Write(w)
}

// handleReady verifies the backend and reports cache and limiter state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if err := s.probeBackend(ctx); err != nil {
		checks["backend"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["backend"] = "ok"
	}

	checks["cache"] = map[string]any{
		"workspace_entries": s.workspaceCache.Size(),
		"status":            "ok",
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().Status(httpStatus).Data(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

func (s *Server) probeBackend(ctx context.Context) error {
	if s.store == nil {
		return errors.New("not configured")
	}
	_, err := s.store.GetProject(ctx, readinessProbeID)
	if err == nil || errors.Is(err, core.ErrNotFound) {
		return nil
	}
	return err
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	lookups := atomic.LoadInt64(&s.workspaceLookups)
	loads := atomic.LoadInt64(&s.workspaceLoads)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_response_time_avg_microseconds", "gauge", "Average response time", traceMetrics.AverageResponseTime)
	metric("transactions_created_total", "counter", "Transactions created through the API", atomic.LoadInt64(&s.transactionsWritten))
	metric("workspace_lookups_total", "counter", "Schema workspace lookups", lookups)
	metric("workspace_loads_total", "counter", "Schema workspace loads from the backend", loads)
	metric("workspace_cache_entries", "gauge", "Cached schema workspaces", s.workspaceCache.Size())
	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", s.rateLimiter.ActiveClients())
	metric("suspicious_requests_total", "counter", "Suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("invalid_forwarded_ip_total", "counter", "Forwarded headers with an invalid address", securityMetrics.InvalidIPAttempts)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", time.Since(s.startedAt).Seconds()))
}
