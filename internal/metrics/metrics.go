// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Package metrics defines the Prometheus collectors exported by Killwatch.
//
// Collectors are registered with the default registry through promauto and
// exposed by the admin server at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion

	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killwatch_events_received_total",
			Help: "Killmail payloads received, by ingestion source",
		},
		[]string{"source"}, // websocket, poll, bulk, manual
	)

	GatewayConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "killwatch_gateway_connected",
			Help: "1 while the realtime feed connection is up",
		},
	)

	GatewayReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "killwatch_gateway_reconnects_total",
			Help: "Realtime feed reconnection attempts",
		},
	)

	GatewayMalformedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "killwatch_gateway_malformed_messages_total",
			Help: "Realtime messages that could not be decoded",
		},
	)

	// Pipeline

	PipelineOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killwatch_pipeline_outcomes_total",
			Help: "Pipeline results by status and reason",
		},
		[]string{"status", "reason"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "killwatch_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"stage"},
	)

	DedupResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killwatch_dedup_results_total",
			Help: "Deduplicator decisions",
		},
		[]string{"result"}, // new, duplicate, fail_open
	)

	// Cache and directory

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killwatch_cache_lookups_total",
			Help: "Directory cache lookups by entity kind and result",
		},
		[]string{"kind", "result"}, // result: hit, miss, error
	)

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killwatch_upstream_requests_total",
			Help: "Outbound HTTP requests by client and outcome",
		},
		[]string{"client", "outcome"}, // outcome: ok, not_found, rate_limited, error
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "killwatch_upstream_request_duration_seconds",
			Help:    "Outbound HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"client"},
	)

	// Fallback

	FallbackMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "killwatch_fallback_degraded",
			Help: "1 while polling fallback is active",
		},
	)

	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killwatch_poll_cycles_total",
			Help: "Completed fallback poll cycles",
		},
		[]string{"result"}, // ok, partial
	)

	BulkChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killwatch_bulk_chunks_total",
			Help: "Bulk load chunks by result",
		},
		[]string{"result"}, // ok, error
	)

	// Tracking

	TrackedEntities = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "killwatch_tracked_entities",
			Help: "Size of the current tracking set",
		},
		[]string{"kind"}, // system, character
	)

	// Persistence and notification

	PersistenceOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killwatch_persistence_outcomes_total",
			Help: "Persistence coordinator outcomes",
		},
		[]string{"outcome"}, // persisted, already_persisted, error
	)

	NotificationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killwatch_notification_outcomes_total",
			Help: "Notification dispatch outcomes by sink",
		},
		[]string{"sink", "outcome"}, // outcome: sent, disabled, error
	)

	// Circuit breakers

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "killwatch_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killwatch_circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killwatch_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Admin API

	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killwatch_api_requests_total",
			Help: "Admin API requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "killwatch_api_request_duration_seconds",
			Help:    "Admin API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "killwatch_api_active_requests",
			Help: "Admin API requests in flight",
		},
	)
)

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, start time.Time) {
	PipelineDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RecordUpstream records one outbound request.
func RecordUpstream(client, outcome string, duration time.Duration) {
	UpstreamRequests.WithLabelValues(client, outcome).Inc()
	UpstreamDuration.WithLabelValues(client).Observe(duration.Seconds())
}

// RecordAPIRequest records one finished admin API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequests.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetDegraded flips the fallback mode gauge.
func SetDegraded(degraded bool) {
	if degraded {
		FallbackMode.Set(1)
		return
	}
	FallbackMode.Set(0)
}
