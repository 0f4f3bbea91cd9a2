// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/killwatch/internal/config"
	"github.com/tomtom215/killwatch/internal/logging"
	"github.com/tomtom215/killwatch/internal/metrics"
)

// MiddlewareConfig configures CORS and rate limiting.
type MiddlewareConfig struct {
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
}

// MiddlewareConfigFrom maps the server config section.
func MiddlewareConfigFrom(cfg *config.ServerConfig) MiddlewareConfig {
	return MiddlewareConfig{
		CORSAllowedOrigins: cfg.CORSOrigins,
		RateLimitRequests:  cfg.RateLimitReqs,
		RateLimitWindow:    cfg.RateLimitWindow,
	}
}

// corsHandler builds go-chi/cors. No configured origins means no
// cross-origin access at all.
func corsHandler(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	})
}

// rateLimit limits requests per client IP.
func rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(requests, window, httprate.WithKeyFuncs(httprate.KeyByIP))
}

// requestIDWithLogging gives every request an X-Request-ID, echoed in the
// response, and puts it plus a fresh correlation id on the logging context.
func requestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		withLogging := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chimiddleware.GetReqID(r.Context())
			w.Header().Set("X-Request-ID", id)
			ctx := logging.ContextWithRequestID(r.Context(), id)
			ctx = logging.ContextWithNewCorrelationID(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
		return chimiddleware.RequestID(withLogging)
	}
}

// requestLogger logs each request at Debug, or Warn for 5xx.
func requestLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log := logging.Ctx(r.Context())
			ev := log.Debug()
			if ww.Status() >= 500 {
				ev = log.Warn()
			}
			ev.Str("method", r.Method).
				Str("path", sanitizeLogValue(r.URL.Path)).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}

// securityHeaders sets the headers every JSON API response carries.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// prometheusMetrics records request counts and latency. Routes are labelled
// by their chi pattern so path ids do not explode cardinality.
func prometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.APIActiveRequests.Inc()
		defer metrics.APIActiveRequests.Dec()

		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordAPIRequest(r.Method, route, strconv.Itoa(status), time.Since(start))
	})
}
