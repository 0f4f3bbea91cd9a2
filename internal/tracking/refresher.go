// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package tracking

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/killwatch/internal/logging"
	"github.com/tomtom215/killwatch/internal/metrics"
)

// Refresher periodically reloads the watch-list from a Source into a Holder.
type Refresher struct {
	source   Source
	holder   *Holder
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewRefresher creates a Refresher.
func NewRefresher(source Source, holder *Holder, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Refresher{
		source:   source,
		holder:   holder,
		interval: interval,
		now:      time.Now,
		logger:   logging.WithComponent("tracking"),
	}
}

// Refresh loads the source once and publishes the result. On error the
// previous snapshot stays in place.
func (r *Refresher) Refresh(ctx context.Context) error {
	systems, characters, err := r.source.Load(ctx)
	if err != nil {
		return err
	}
	set := NewSet(systems, characters, r.now())
	r.holder.Store(set)

	ns, nc := set.Len()
	metrics.TrackedEntities.WithLabelValues(string(KindSystem)).Set(float64(ns))
	metrics.TrackedEntities.WithLabelValues(string(KindCharacter)).Set(float64(nc))
	return nil
}

// Serve refreshes on every tick until ctx is cancelled. It implements
// suture.Service.
func (r *Refresher) Serve(ctx context.Context) error {
	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Initial watch-list load failed")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn().Err(err).Msg("Watch-list refresh failed, keeping previous snapshot")
			}
		}
	}
}

func (r *Refresher) String() string { return "tracking-refresher" }
