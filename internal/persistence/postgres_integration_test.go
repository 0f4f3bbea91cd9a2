// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

//go:build integration

package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/killwatch/internal/testinfra"
)

func TestPostgresIntegration(t *testing.T) {
	testinfra.SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg, err := testinfra.NewPostgresContainer(ctx)
	if err != nil {
		t.Fatalf("NewPostgresContainer() error = %v", err)
	}
	defer testinfra.CleanupContainer(t, ctx, pg)

	store, err := OpenPostgres(ctx, pg.DSN)
	if err != nil {
		t.Fatalf("OpenPostgres() error = %v", err)
	}
	defer store.Close()

	c := NewCoordinator(store, 5*time.Second)

	// Concurrent writers for the same killmail resolve to one Persisted.
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		persisted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := c.Persist(ctx, enriched(100))
			if err != nil {
				t.Errorf("Persist() error = %v", err)
				return
			}
			if out == Persisted {
				mu.Lock()
				persisted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if persisted != 1 {
		t.Errorf("Persisted outcomes = %d, want 1", persisted)
	}

	if n, err := store.Count(ctx); err != nil || n != 1 {
		t.Errorf("Count() = %d, %v", n, err)
	}

	if err := store.AddTracked(ctx, "system", 30000142); err != nil {
		t.Fatal(err)
	}
	if err := store.AddTracked(ctx, "system", 30000142); err != nil {
		t.Fatalf("duplicate AddTracked() error = %v", err)
	}
	ids, err := store.ListTracked(ctx, "system")
	if err != nil || len(ids) != 1 {
		t.Errorf("ListTracked() = %v, %v", ids, err)
	}
}
