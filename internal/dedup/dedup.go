// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Package dedup decides whether a killmail has already produced a side effect
// within the retention window.
//
// The check and the insert are a single SetNX on the cache store, so two
// ingestion paths racing on the same killmail see exactly one ResultNew. When the
// store is unavailable the deduplicator fails open: the event is treated as
// ResultNew and the degradation is logged and counted. A rare duplicate
// notification is preferred to a lost one.
package dedup

import (
	"context"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/killwatch/internal/cache"
	"github.com/tomtom215/killwatch/internal/logging"
	"github.com/tomtom215/killwatch/internal/metrics"
)

// Result is the outcome of a dedup check.
type Result int

const (
	// ResultNew means no live record existed and one has now been stored.
	ResultNew Result = iota
	// ResultDuplicate means a live record already existed. Nothing was written.
	ResultDuplicate
)

func (r Result) String() string {
	if r == ResultDuplicate {
		return "duplicate"
	}
	return "new"
}

// KeyPrefix namespaces dedup records inside a shared cache store.
const KeyPrefix = "dedup:killmail:"

// Record is the value stored for each seen killmail.
type Record struct {
	KillmailID  int64     `json:"killmail_id"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}

// Deduplicator tracks seen killmail IDs in a cache.Store.
type Deduplicator struct {
	store     cache.Store
	retention time.Duration
	now       func() time.Time
}

// New returns a Deduplicator that keeps records for retention.
func New(store cache.Store, retention time.Duration) *Deduplicator {
	return &Deduplicator{store: store, retention: retention, now: time.Now}
}

// Key returns the store key for a killmail ID.
func Key(killmailID int64) string {
	return KeyPrefix + strconv.FormatInt(killmailID, 10)
}

// Check atomically tests and records killmailID. It never returns an error:
// store failures resolve to ResultNew.
func (d *Deduplicator) Check(ctx context.Context, killmailID int64) Result {
	rec, err := json.Marshal(Record{KillmailID: killmailID, FirstSeenAt: d.now().UTC()})
	if err != nil {
		return d.failOpen(ctx, killmailID, err)
	}

	stored, err := d.store.SetNX(ctx, Key(killmailID), rec, d.retention)
	if err != nil {
		return d.failOpen(ctx, killmailID, err)
	}
	if !stored {
		metrics.DedupResults.WithLabelValues("duplicate").Inc()
		return ResultDuplicate
	}
	metrics.DedupResults.WithLabelValues("new").Inc()
	return ResultNew
}

// Forget removes the record for killmailID so a later delivery is processed
// again. Used when an event fails before any side effect happened.
func (d *Deduplicator) Forget(ctx context.Context, killmailID int64) error {
	return d.store.Delete(ctx, Key(killmailID))
}

func (d *Deduplicator) failOpen(ctx context.Context, killmailID int64, err error) Result {
	metrics.DedupResults.WithLabelValues("fail_open").Inc()
	logging.Ctx(ctx).Warn().
		Err(err).
		Int64("killmail_id", killmailID).
		Msg("Dedup store unavailable, treating killmail as new")
	return ResultNew
}
