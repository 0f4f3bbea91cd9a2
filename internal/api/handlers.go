// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Package api serves the operator HTTP surface: health probes, Prometheus
// metrics, pipeline status, bulk backfill, manual processing and watch-list
// editing.
package api

import (
	"context"
	"time"

	"github.com/tomtom215/killwatch/internal/fallback"
	"github.com/tomtom215/killwatch/internal/ingest"
	"github.com/tomtom215/killwatch/internal/pipeline"
	"github.com/tomtom215/killwatch/internal/tracking"
)

// Processor runs one killmail through the pipeline. *pipeline.Pipeline implements it.
type Processor interface {
	Process(ctx context.Context, input interface{}, force bool) pipeline.Result
}

// KillmailFetcher loads a single killmail. *feed.Client implements it.
type KillmailFetcher interface {
	GetKillmail(ctx context.Context, id int64, hash string) (map[string]interface{}, error)
}

// HealthChecker probes a dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Pinger probes the persistence store. persistence.Store implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Fallback is the coordinator surface. *fallback.Coordinator implements it.
type Fallback interface {
	State() fallback.State
	BulkLoad(ctx context.Context, window time.Duration, systems []int64) fallback.BulkResult
}

// Gateway reports realtime connection state. *ingest.Gateway implements it.
type Gateway interface {
	Connected() bool
	Status() (ingest.Status, bool)
}

// Tracked supplies the current watch-list. *tracking.Holder implements it.
type Tracked interface {
	Load() *tracking.Set
}

// Refresher republishes the watch-list after an edit. *tracking.Refresher implements it.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Deps are the handler collaborators. Store, Gateway and Source may be nil.
type Deps struct {
	Pipeline   Processor
	Killmails  KillmailFetcher
	Feed       HealthChecker
	Store      Pinger
	Fallback   Fallback
	Gateway    Gateway
	Tracked    Tracked
	Source     tracking.Source
	Refresher  Refresher
	BulkWindow time.Duration
}

// Handler implements the HTTP handlers.
type Handler struct {
	deps      Deps
	startTime time.Time
}

// NewHandler creates a Handler.
func NewHandler(deps Deps) *Handler {
	if deps.BulkWindow <= 0 {
		deps.BulkWindow = 24 * time.Hour
	}
	return &Handler{deps: deps, startTime: time.Now()}
}
