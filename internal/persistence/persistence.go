// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Package persistence records matched killmails idempotently and stores the
// durable watch-list.
//
// The Coordinator checks existence before inserting, and the stores insert
// with ON CONFLICT DO NOTHING, so a writer that loses a race for the same
// killmail id observes AlreadyPersisted rather than an error.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/killwatch/internal/config"
	"github.com/tomtom215/killwatch/internal/logging"
	"github.com/tomtom215/killwatch/internal/metrics"
	"github.com/tomtom215/killwatch/internal/models"
)

// Outcome is the result of Persist.
type Outcome int

const (
	Persisted Outcome = iota
	AlreadyPersisted
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Persisted:
		return "persisted"
	case AlreadyPersisted:
		return "already_persisted"
	default:
		return "failed"
	}
}

// Record is the durable form of a killmail.
type Record struct {
	KillmailID        int64
	Hash              string
	SystemID          int64
	VictimCharacterID int64
	TotalValue        float64
	OccurredAt        time.Time
	Payload           []byte
}

// RecordFromEvent builds the durable record for ev. The original payload is
// kept when ingestion captured one.
func RecordFromEvent(ev *models.EnrichedEvent) (Record, error) {
	payload := []byte(ev.Payload)
	if len(payload) == 0 {
		var err error
		if payload, err = json.Marshal(ev.RawEvent); err != nil {
			return Record{}, fmt.Errorf("encode payload: %w", err)
		}
	}
	return Record{
		KillmailID:        ev.KillmailID,
		Hash:              ev.Hash,
		SystemID:          ev.SystemID,
		VictimCharacterID: ev.Victim.CharacterID,
		TotalValue:        ev.TotalValue,
		OccurredAt:        ev.OccurredAt,
		Payload:           payload,
	}, nil
}

// Store is the read/write contract of a durable killmail store.
type Store interface {
	Exists(ctx context.Context, killmailID int64) (bool, error)
	// Insert reports false when a row with the same id already exists.
	Insert(ctx context.Context, rec Record) (bool, error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error

	ListTracked(ctx context.Context, kind string) ([]int64, error)
	AddTracked(ctx context.Context, kind string, id int64) error
	RemoveTracked(ctx context.Context, kind string, id int64) error
}

var (
	_ Store = (*DuckDB)(nil)
	_ Store = (*Postgres)(nil)
)

// Open opens the store selected by cfg.
func Open(ctx context.Context, cfg *config.PersistenceConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN)
	case "duckdb", "":
		return OpenDuckDB(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("persistence: unknown driver %q", cfg.Driver)
	}
}

// Coordinator persists enriched events.
type Coordinator struct {
	store   Store
	timeout time.Duration
}

// NewCoordinator creates a Coordinator. Each Persist call is bounded by
// timeout; zero means 10 seconds.
func NewCoordinator(store Store, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Coordinator{store: store, timeout: timeout}
}

// Persist records ev unless it is already stored. A non-nil error always
// comes with Failed.
func (c *Coordinator) Persist(ctx context.Context, ev *models.EnrichedEvent) (Outcome, error) {
	defer metrics.ObserveStage("persist", time.Now())

	outcome, err := c.persist(ctx, ev)
	metrics.PersistenceOutcomes.WithLabelValues(outcome.String()).Inc()
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to persist killmail")
	}
	return outcome, err
}

func (c *Coordinator) persist(ctx context.Context, ev *models.EnrichedEvent) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	exists, err := c.store.Exists(ctx, ev.KillmailID)
	if err != nil {
		return Failed, fmt.Errorf("check killmail %d: %w", ev.KillmailID, err)
	}
	if exists {
		return AlreadyPersisted, nil
	}

	rec, err := RecordFromEvent(ev)
	if err != nil {
		return Failed, err
	}
	inserted, err := c.store.Insert(ctx, rec)
	if err != nil {
		return Failed, fmt.Errorf("insert killmail %d: %w", ev.KillmailID, err)
	}
	if !inserted {
		return AlreadyPersisted, nil
	}
	return Persisted, nil
}
