// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthRateLimit is generous so probes and scrapers never trip it.
const healthRateLimit = 1000

// NewRouter builds the chi router.
//
//	GET    /health/live
//	GET    /health/ready
//	GET    /metrics
//	GET    /api/v1/status
//	POST   /api/v1/bulk-load
//	POST   /api/v1/killmails/{id}/process?hash=&force=
//	GET    /api/v1/tracking/{kind}
//	POST   /api/v1/tracking/{kind}          body {"ids": ...}
//	DELETE /api/v1/tracking/{kind}          body {"ids": ...}
//	POST   /api/v1/tracking/{kind}/{id}
//	DELETE /api/v1/tracking/{kind}/{id}
func NewRouter(h *Handler, cfg MiddlewareConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger())
	r.Use(prometheusMetrics)
	r.Use(corsHandler(cfg))
	r.Use(chimiddleware.Compress(5, "application/json"))

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(healthRateLimit, time.Minute))
		r.Get("/health/live", h.HealthLive)
		r.Get("/health/ready", h.HealthReady)
		r.Handle("/metrics", promhttp.Handler())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Use(securityHeaders)

		r.Get("/status", h.Status)
		r.Post("/bulk-load", h.BulkLoad)
		r.Post("/killmails/{id}/process", h.ProcessKillmail)

		r.Route("/tracking/{kind}", func(r chi.Router) {
			r.Get("/", h.ListTracked)
			r.Post("/", h.AddTracked)
			r.Delete("/", h.RemoveTracked)
			r.Post("/{id}", h.AddTracked)
			r.Delete("/{id}", h.RemoveTracked)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed", nil)
	})
	return r
}
