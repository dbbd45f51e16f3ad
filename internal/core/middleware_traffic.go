package core

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"agriweather/internal/notifications"
	"agriweather/internal/types"
)

// ContextTimeoutMiddleware sets a deadline on the request context. Handlers
// see a cancelled context once it passes; the report pipeline turns that into
// upstream_timeout.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MetricsMiddleware records latency and count per route. Routes are labelled
// by their chi pattern (/v1/farms/{farmID}) to keep dimension cardinality
// bounded. It passes through when s.Metrics is nil.
func (s *Server) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rc := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rc, r)

		s.Metrics.RecordRequest(r.Method, routePattern(r), strconv.Itoa(rc.statusCode), time.Since(start))
	})
}

// routePattern returns the matched chi pattern, or "unmatched" for 404s.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// MetricsRecorder adapts notifications.Metrics to RequestMetrics.
type MetricsRecorder struct {
	Metrics notifications.Metrics
}

// RecordRequest implements RequestMetrics.
func (m MetricsRecorder) RecordRequest(method, route, status string, duration time.Duration) {
	dims := map[string]string{
		types.DimMethod: method,
		types.DimRoute:  route,
		types.DimStatus: status,
	}
	m.Metrics.Count(types.MetricAPIRequestCount, 1, dims)
	m.Metrics.Duration(types.MetricAPILatency, duration, map[string]string{
		types.DimMethod: method,
		types.DimRoute:  route,
	})
}
