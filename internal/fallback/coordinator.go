// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Package fallback keeps killmails flowing while the realtime feed is down.
//
// The Coordinator is a two-state machine. In ModeConnected it is idle. When
// the gateway reports a lost connection it moves to ModeDegraded, snapshots
// the tracking set and polls the feed's REST API for every tracked system and
// character on a fixed interval, handing each kill to the pipeline. The
// pipeline deduplicates, so overlapping polls are harmless. A reconnect stops
// the loop; requests already in flight finish and their kills are delivered.
//
// BulkLoad is independent of the mode and backfills a historical window in
// chunks, recording each failed chunk without aborting the rest.
package fallback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/killwatch/internal/config"
	"github.com/tomtom215/killwatch/internal/feed"
	"github.com/tomtom215/killwatch/internal/logging"
	"github.com/tomtom215/killwatch/internal/metrics"
	"github.com/tomtom215/killwatch/internal/tracking"
)

// Mode is the ingestion mode.
type Mode int

const (
	ModeConnected Mode = iota
	ModeDegraded
)

func (m Mode) String() string {
	if m == ModeDegraded {
		return "degraded"
	}
	return "connected"
}

// KillSource is the subset of the feed client the coordinator uses.
// *feed.Client implements it.
type KillSource interface {
	SystemKills(ctx context.Context, systemID int64, since time.Time) ([]feed.Kill, error)
	CharacterKills(ctx context.Context, characterID int64, since time.Time) ([]feed.Kill, error)
	BulkSystemKills(ctx context.Context, systemIDs []int64, since time.Time, limit int) (map[int64][]feed.Kill, error)
}

// TrackedSet supplies the current tracking snapshot. *tracking.Holder implements it.
type TrackedSet interface {
	Load() *tracking.Set
}

// Sink receives every fetched kill. source is "poll" or "bulk".
type Sink func(ctx context.Context, source string, kill map[string]interface{})

// Options tunes polling and bulk loading.
type Options struct {
	PollInterval    time.Duration
	PollConcurrency int
	PollWindow      time.Duration
	BulkChunkSize   int
	BulkKillLimit   int
}

// OptionsFromConfig maps the fallback config section onto Options.
func OptionsFromConfig(cfg *config.FallbackConfig) Options {
	return Options{
		PollInterval:    cfg.PollInterval,
		PollConcurrency: cfg.PollConcurrency,
		PollWindow:      cfg.PollWindow,
		BulkChunkSize:   cfg.BulkChunkSize,
		BulkKillLimit:   cfg.BulkKillLimit,
	}
}

func (o *Options) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 30 * time.Second
	}
	if o.PollConcurrency <= 0 {
		o.PollConcurrency = 4
	}
	if o.PollWindow <= 0 {
		o.PollWindow = time.Hour
	}
	if o.BulkChunkSize <= 0 {
		o.BulkChunkSize = 50
	}
	if o.BulkKillLimit <= 0 {
		o.BulkKillLimit = 200
	}
}

// State is a point-in-time view of the coordinator.
type State struct {
	Mode              string    `json:"mode"`
	LastPollAt        time.Time `json:"last_poll_at,omitempty"`
	TrackedSystems    int       `json:"tracked_systems"`
	TrackedCharacters int       `json:"tracked_characters"`
}

// Coordinator switches between realtime and polling ingestion.
type Coordinator struct {
	source  KillSource
	tracked TrackedSet
	sink    Sink
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time

	// Written by the gateway hooks, consumed by Serve.
	wantDegraded atomic.Bool
	signal       chan struct{}

	mu         sync.RWMutex
	mode       Mode
	snapshot   *tracking.Set
	lastPollAt time.Time
}

// New creates a Coordinator in ModeConnected.
func New(source KillSource, tracked TrackedSet, sink Sink, opts Options) *Coordinator {
	opts.applyDefaults()
	return &Coordinator{
		source:   source,
		tracked:  tracked,
		sink:     sink,
		opts:     opts,
		logger:   logging.WithComponent("fallback"),
		now:      time.Now,
		signal:   make(chan struct{}, 1),
		snapshot: tracking.EmptySet(),
	}
}

// OnDisconnected records that the realtime feed is down. It never blocks.
func (c *Coordinator) OnDisconnected(err error) {
	c.logger.Debug().Err(err).Msg("Realtime feed disconnect reported")
	c.wantDegraded.Store(true)
	c.notify()
}

// OnConnected records that the realtime feed is back. It never blocks.
func (c *Coordinator) OnConnected() {
	c.wantDegraded.Store(false)
	c.notify()
}

func (c *Coordinator) notify() {
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// Mode returns the current mode.
func (c *Coordinator) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// State returns the current mode, last poll time and snapshot sizes.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	systems, characters := c.snapshot.Len()
	return State{
		Mode:              c.mode.String(),
		LastPollAt:        c.lastPollAt,
		TrackedSystems:    systems,
		TrackedCharacters: characters,
	}
}

// Serve runs the state machine until ctx is cancelled. It implements
// suture.Service. On return every in-flight poll has finished.
func (c *Coordinator) Serve(ctx context.Context) error {
	var (
		ticker  *time.Ticker
		tick    <-chan time.Time
		stop    chan struct{}
		running atomic.Bool
		polls   sync.WaitGroup
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		if stop != nil {
			close(stop)
		}
		polls.Wait()
	}()

	c.resume()

	startCycle := func() {
		if !running.CompareAndSwap(false, true) {
			c.logger.Debug().Msg("Previous poll cycle still running, skipping tick")
			return
		}
		polls.Add(1)
		go func(stop <-chan struct{}) {
			defer polls.Done()
			defer running.Store(false)
			c.pollCycle(ctx, stop)
		}(stop)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-c.signal:
			degraded := c.wantDegraded.Load()
			switch {
			case degraded && c.Mode() == ModeConnected:
				c.enterDegraded()
				stop = make(chan struct{})
				ticker = time.NewTicker(c.opts.PollInterval)
				tick = ticker.C
				startCycle()
			case !degraded && c.Mode() == ModeDegraded:
				ticker.Stop()
				ticker, tick = nil, nil
				close(stop)
				stop = nil
				c.enterConnected()
			}

		case <-tick:
			startCycle()
		}
	}
}

// resume drops a Degraded mode left behind by a previous Serve, which took
// its ticker with it, and re-queues the signal so the mode is re-entered
// from the latest gateway report.
func (c *Coordinator) resume() {
	c.mu.Lock()
	stale := c.mode == ModeDegraded
	c.mode = ModeConnected
	c.mu.Unlock()
	if !stale {
		return
	}
	metrics.SetDegraded(false)
	c.logger.Info().Msg("Restarted while degraded, re-evaluating fallback mode")
	c.notify()
}

func (c *Coordinator) enterDegraded() {
	snap := c.tracked.Load()
	c.mu.Lock()
	c.mode = ModeDegraded
	c.snapshot = snap
	c.mu.Unlock()
	metrics.SetDegraded(true)

	systems, characters := snap.Len()
	c.logger.Warn().
		Int("systems", systems).
		Int("characters", characters).
		Dur("interval", c.opts.PollInterval).
		Msg("Realtime feed down, polling fallback started")
}

func (c *Coordinator) enterConnected() {
	c.mu.Lock()
	c.mode = ModeConnected
	c.mu.Unlock()
	metrics.SetDegraded(false)
	c.logger.Info().Msg("Realtime feed restored, polling fallback stopped")
}

// pollCycle fetches recent kills for every entity in the snapshot. Closing
// stop prevents new requests; requests already started run to completion.
func (c *Coordinator) pollCycle(ctx context.Context, stop <-chan struct{}) {
	c.mu.RLock()
	snap := c.snapshot
	c.mu.RUnlock()

	since := c.now().Add(-c.opts.PollWindow)
	var failures, fetched atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.PollConcurrency)

	poll := func(kind string, id int64, fetch func(context.Context, int64, time.Time) ([]feed.Kill, error)) {
		g.Go(func() error {
			select {
			case <-stop:
				return nil
			default:
			}
			kills, err := fetch(gctx, id, since)
			if err != nil {
				failures.Add(1)
				c.logger.Warn().Err(err).Str("kind", kind).Int64("id", id).Msg("Fallback poll failed")
				return nil
			}
			fetched.Add(int64(len(kills)))
			for _, k := range kills {
				metrics.EventsReceived.WithLabelValues("poll").Inc()
				c.sink(gctx, "poll", k)
			}
			return nil
		})
	}

	for _, id := range snap.Systems() {
		poll("system", id, c.source.SystemKills)
	}
	for _, id := range snap.Characters() {
		poll("character", id, c.source.CharacterKills)
	}
	_ = g.Wait()

	c.mu.Lock()
	c.lastPollAt = c.now()
	c.mu.Unlock()

	result := "ok"
	if failures.Load() > 0 {
		result = "partial"
	}
	metrics.PollCycles.WithLabelValues(result).Inc()
	c.logger.Debug().
		Int64("kills", fetched.Load()).
		Int64("failures", failures.Load()).
		Msg("Fallback poll cycle complete")
}
