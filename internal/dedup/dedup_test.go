// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package dedup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/killwatch/internal/cache"
)

// failingStore simulates an unavailable backend.
type failingStore struct{}

var errDown = errors.New("connection refused")

func (failingStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errDown }
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errDown
}
func (failingStore) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errDown
}
func (failingStore) Delete(context.Context, string) error { return errDown }
func (failingStore) Close() error                         { return nil }

func seen(ctx context.Context, store cache.Store, killmailID int64) (Record, bool, error) {
	var rec Record
	ok, err := cache.GetJSON(ctx, store, Key(killmailID), &rec)
	return rec, ok, err
}

func TestCheckNewThenDuplicate(t *testing.T) {
	t.Parallel()
	store := cache.NewMemory(0)
	defer store.Close()
	d := New(store, time.Hour)
	ctx := context.Background()

	if got := d.Check(ctx, 100); got != ResultNew {
		t.Fatalf("first Check = %v, want new", got)
	}
	if got := d.Check(ctx, 100); got != ResultDuplicate {
		t.Fatalf("second Check = %v, want duplicate", got)
	}
	if got := d.Check(ctx, 101); got != ResultNew {
		t.Errorf("different id = %v, want new", got)
	}

	rec, ok, err := seen(ctx, store, 100)
	if err != nil || !ok {
		t.Fatalf("stored record = %v %v", ok, err)
	}
	if rec.KillmailID != 100 || rec.FirstSeenAt.IsZero() {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestCheckAfterRetentionIsNew(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := cache.NewMemory(0, cache.WithClock(func() time.Time { return now }))
	defer store.Close()
	d := New(store, time.Hour)
	d.now = clock
	ctx := context.Background()

	if d.Check(ctx, 7) != ResultNew {
		t.Fatal("expected new")
	}
	now = now.Add(61 * time.Minute)
	if got := d.Check(ctx, 7); got != ResultNew {
		t.Errorf("Check after retention = %v, want new", got)
	}
}

func TestCheckFailsOpen(t *testing.T) {
	t.Parallel()
	d := New(failingStore{}, time.Hour)
	for i := 0; i < 3; i++ {
		if got := d.Check(context.Background(), 100); got != ResultNew {
			t.Fatalf("Check with unavailable store = %v, want new", got)
		}
	}
}

func TestForget(t *testing.T) {
	t.Parallel()
	store := cache.NewMemory(0)
	defer store.Close()
	d := New(store, time.Hour)
	ctx := context.Background()

	d.Check(ctx, 5)
	if err := d.Forget(ctx, 5); err != nil {
		t.Fatal(err)
	}
	if got := d.Check(ctx, 5); got != ResultNew {
		t.Errorf("Check after Forget = %v, want new", got)
	}
}

func TestConcurrentCheckSingleNew(t *testing.T) {
	t.Parallel()
	store, err := cache.OpenBadger("")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	d := New(store, time.Hour)

	var news atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.Check(context.Background(), 42) == ResultNew {
				news.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := news.Load(); got != 1 {
		t.Errorf("expected exactly one new result across racing checks, got %d", got)
	}
}

func TestResultString(t *testing.T) {
	t.Parallel()
	if ResultNew.String() != "new" || ResultDuplicate.String() != "duplicate" {
		t.Errorf("unexpected strings %q %q", ResultNew, ResultDuplicate)
	}
}
