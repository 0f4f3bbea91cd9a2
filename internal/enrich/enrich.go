// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Package enrich resolves the identifiers referenced by a killmail into
// display names, reading through the shared cache store before calling the
// directory.
//
// Each distinct (kind, id) pair is resolved once per event by a bounded
// worker pool. Concurrent events asking for the same pair share one
// directory call. Optional names that cannot be resolved are left empty; the
// solar system is mandatory and its failure aborts enrichment with
// ErrSystemUnresolved.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/killwatch/internal/cache"
	"github.com/tomtom215/killwatch/internal/config"
	"github.com/tomtom215/killwatch/internal/esi"
	"github.com/tomtom215/killwatch/internal/logging"
	"github.com/tomtom215/killwatch/internal/metrics"
	"github.com/tomtom215/killwatch/internal/models"
	"github.com/tomtom215/killwatch/internal/upstream"
)

var (
	// ErrMissingKillmailID is returned for events without a killmail id.
	ErrMissingKillmailID = errors.New("enrich: missing killmail id")

	// ErrSystemUnresolved is returned when the solar system is absent or
	// cannot be resolved.
	ErrSystemUnresolved = errors.New("enrich: solar system unresolved")

	errCachedNotFound = fmt.Errorf("cached negative lookup: %w", upstream.ErrNotFound)
)

// Directory resolves ids to entities. *esi.Client implements it.
type Directory interface {
	Lookup(ctx context.Context, kind esi.Kind, id int64) (esi.Entity, error)
}

// Options tunes the Engine.
type Options struct {
	EntityTTL   time.Duration
	SystemTTL   time.Duration
	NotFoundTTL time.Duration
	Workers     int
}

// OptionsFromConfig derives Options from the cache and directory sections.
func OptionsFromConfig(c *config.CacheConfig, d *config.DirectoryConfig) Options {
	return Options{
		EntityTTL:   c.EntityTTL,
		SystemTTL:   c.SystemTTL,
		NotFoundTTL: c.NotFoundTTL,
		Workers:     d.Workers,
	}
}

// Engine is the enrichment engine.
type Engine struct {
	dir   Directory
	store cache.Store
	opts  Options
	group singleflight.Group
}

// New creates an Engine.
func New(dir Directory, store cache.Store, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.EntityTTL <= 0 {
		opts.EntityTTL = 6 * time.Hour
	}
	if opts.SystemTTL <= 0 {
		opts.SystemTTL = opts.EntityTTL
	}
	if opts.NotFoundTTL <= 0 {
		opts.NotFoundTTL = 10 * time.Minute
	}
	return &Engine{dir: dir, store: store, opts: opts}
}

type ref struct {
	kind esi.Kind
	id   int64
}

// CacheKey is the cache key for a directory entity.
func CacheKey(kind esi.Kind, id int64) string {
	return fmt.Sprintf("esi:%s:%d", kind, id)
}

// Enrich resolves every identifier in raw. On ErrSystemUnresolved the
// returned event still carries whatever optional names were resolved.
func (e *Engine) Enrich(ctx context.Context, raw models.RawEvent) (models.EnrichedEvent, error) {
	defer metrics.ObserveStage("enrich", time.Now())

	out := models.EnrichedEvent{RawEvent: raw}
	if raw.KillmailID <= 0 {
		return out, ErrMissingKillmailID
	}
	if raw.SystemID <= 0 {
		return out, ErrSystemUnresolved
	}

	refs := collectRefs(&raw)
	resolved := make(map[ref]esi.Entity, len(refs))
	var (
		mu        sync.Mutex
		systemErr error
	)

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for _, r := range refs {
		r := r
		g.Go(func() error {
			ent, err := e.resolve(ctx, r)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if r.kind == esi.KindSystem {
					systemErr = err
				} else if !errors.Is(err, upstream.ErrNotFound) {
					logging.Ctx(ctx).Debug().Err(err).
						Str("kind", string(r.kind)).Int64("id", r.id).
						Msg("Optional directory lookup failed")
				}
				return nil
			}
			resolved[r] = ent
			return nil
		})
	}
	_ = g.Wait()

	name := func(kind esi.Kind, id int64) string {
		if id <= 0 {
			return ""
		}
		return resolved[ref{kind, id}].Name
	}

	out.VictimName = name(esi.KindCharacter, raw.Victim.CharacterID)
	out.VictimCorporation = name(esi.KindCorporation, raw.Victim.CorporationID)
	out.VictimAlliance = name(esi.KindAlliance, raw.Victim.AllianceID)
	out.ShipName = name(esi.KindType, raw.Victim.ShipTypeID)
	out.AttackerSummaries = make([]models.AttackerSummary, 0, len(raw.Attackers))
	for _, a := range raw.Attackers {
		out.AttackerSummaries = append(out.AttackerSummaries, models.AttackerSummary{
			CharacterID:     a.CharacterID,
			CharacterName:   name(esi.KindCharacter, a.CharacterID),
			CorporationName: name(esi.KindCorporation, a.CorporationID),
			AllianceName:    name(esi.KindAlliance, a.AllianceID),
			ShipName:        name(esi.KindType, a.ShipTypeID),
			DamageDone:      a.DamageDone,
			FinalBlow:       a.FinalBlow,
		})
	}

	if systemErr != nil {
		return out, fmt.Errorf("%w: system %d: %v", ErrSystemUnresolved, raw.SystemID, systemErr)
	}
	sys := resolved[ref{esi.KindSystem, raw.SystemID}]
	out.SystemName = sys.Name
	out.SecurityStatus = sys.SecurityStatus
	return out, nil
}

// collectRefs returns the distinct non-zero identifiers in ev, system first.
func collectRefs(ev *models.RawEvent) []ref {
	seen := make(map[ref]struct{})
	refs := make([]ref, 0, 4+4*len(ev.Attackers))
	add := func(kind esi.Kind, id int64) {
		if id <= 0 {
			return
		}
		r := ref{kind, id}
		if _, ok := seen[r]; ok {
			return
		}
		seen[r] = struct{}{}
		refs = append(refs, r)
	}
	addParty := func(p models.PartyRef) {
		add(esi.KindCharacter, p.CharacterID)
		add(esi.KindCorporation, p.CorporationID)
		add(esi.KindAlliance, p.AllianceID)
		add(esi.KindType, p.ShipTypeID)
	}

	add(esi.KindSystem, ev.SystemID)
	addParty(ev.Victim)
	for _, a := range ev.Attackers {
		addParty(a.PartyRef)
	}
	return refs
}

// cachedEntity is the cache representation; NotFound records a negative lookup.
type cachedEntity struct {
	esi.Entity
	NotFound bool `json:"not_found,omitempty"`
}

func (e *Engine) resolve(ctx context.Context, r ref) (esi.Entity, error) {
	key := CacheKey(r.kind, r.id)

	var cached cachedEntity
	hit, err := cache.GetJSON(ctx, e.store, key, &cached)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("key", key).Msg("Cache read failed, falling back to directory")
	}
	if hit {
		metrics.CacheLookups.WithLabelValues(string(r.kind), "hit").Inc()
		if cached.NotFound {
			return esi.Entity{}, errCachedNotFound
		}
		return cached.Entity, nil
	}
	metrics.CacheLookups.WithLabelValues(string(r.kind), "miss").Inc()

	v, err, _ := e.group.Do(key, func() (interface{}, error) {
		ent, err := e.dir.Lookup(ctx, r.kind, r.id)
		switch {
		case err == nil:
			e.remember(ctx, key, cachedEntity{Entity: ent}, e.ttlFor(r.kind))
		case errors.Is(err, upstream.ErrNotFound):
			e.remember(ctx, key, cachedEntity{Entity: esi.Entity{ID: r.id, Kind: r.kind}, NotFound: true}, e.opts.NotFoundTTL)
		}
		return ent, err
	})
	if err != nil {
		return esi.Entity{}, err
	}
	return v.(esi.Entity), nil
}

func (e *Engine) remember(ctx context.Context, key string, v cachedEntity, ttl time.Duration) {
	if err := cache.SetJSON(ctx, e.store, key, v, ttl); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

func (e *Engine) ttlFor(kind esi.Kind) time.Duration {
	if kind == esi.KindSystem {
		return e.opts.SystemTTL
	}
	return e.opts.EntityTTL
}
