// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/killwatch/internal/cache"
	"github.com/tomtom215/killwatch/internal/config"
	"github.com/tomtom215/killwatch/internal/dedup"
	"github.com/tomtom215/killwatch/internal/enrich"
	"github.com/tomtom215/killwatch/internal/esi"
	"github.com/tomtom215/killwatch/internal/fallback"
	"github.com/tomtom215/killwatch/internal/feed"
	"github.com/tomtom215/killwatch/internal/logging"
	"github.com/tomtom215/killwatch/internal/notify"
	"github.com/tomtom215/killwatch/internal/persistence"
	"github.com/tomtom215/killwatch/internal/pipeline"
	"github.com/tomtom215/killwatch/internal/tracking"
)

// app holds the components shared by every command.
type app struct {
	cfg       *config.Config
	cache     cache.Store
	store     persistence.Store
	feed      *feed.Client
	notifier  *notify.Notifier
	source    tracking.Source
	holder    *tracking.Holder
	refresher *tracking.Refresher
	pipeline  *pipeline.Pipeline
	fallback  *fallback.Coordinator

	closers []func() error
}

// newApp wires the pipeline. On error everything opened so far is closed.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.cache, err = cache.Open(ctx, &cfg.Cache); err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	a.closers = append(a.closers, a.cache.Close)

	if a.store, err = persistence.Open(ctx, &cfg.Persistence); err != nil {
		return nil, fmt.Errorf("open persistence: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	directory, err := esi.New(&cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("directory client: %w", err)
	}
	if a.feed, err = feed.New(&cfg.Feed); err != nil {
		return nil, fmt.Errorf("feed client: %w", err)
	}

	sink, err := notify.NewSink(&cfg.Notify)
	if err != nil {
		return nil, fmt.Errorf("notification sink: %w", err)
	}
	a.notifier = notify.New(sink, cfg.Notify.Workers, cfg.Notify.Timeout)
	a.closers = append(a.closers, a.notifier.Close)

	switch cfg.Tracking.Source {
	case "store":
		if a.source, err = tracking.NewStoreSource(ctx, a.store, cfg.Tracking.Systems, cfg.Tracking.Characters); err != nil {
			return nil, fmt.Errorf("seed watch-list: %w", err)
		}
	default:
		a.source = tracking.NewStaticSource(cfg.Tracking.Systems, cfg.Tracking.Characters)
	}
	a.holder = tracking.NewHolder(nil)
	a.refresher = tracking.NewRefresher(a.source, a.holder, cfg.Tracking.RefreshInterval)
	if err = a.refresher.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("load watch-list: %w", err)
	}

	a.pipeline = pipeline.New(pipeline.Deps{
		Dedup:     dedup.New(a.cache, cfg.Dedup.Retention),
		Enricher:  enrich.New(directory, a.cache, enrich.OptionsFromConfig(&cfg.Cache, &cfg.Directory)),
		Tracked:   a.holder,
		Persister: persistence.NewCoordinator(a.store, 0),
		Notifier:  a.notifier,
		Toggles:   cfg.Notifications,
	})

	a.fallback = fallback.New(a.feed, a.holder,
		func(ctx context.Context, _ string, kill map[string]interface{}) {
			a.pipeline.ProcessKill(ctx, kill)
		},
		fallback.OptionsFromConfig(&cfg.Fallback))

	systems, characters := a.holder.Load().Len()
	logging.Info().
		Str("cache", cfg.Cache.Backend).
		Str("persistence", cfg.Persistence.Driver).
		Str("sink", a.notifier.SinkName()).
		Int("tracked_systems", systems).
		Int("tracked_characters", characters).
		Msg("Pipeline initialized")
	return a, nil
}

// Close releases resources in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logging.Warn().Err(err).Msg("Error during shutdown")
		}
	}
	a.closers = nil
}
