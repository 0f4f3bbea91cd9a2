// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package fallback

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/killwatch/internal/feed"
	"github.com/tomtom215/killwatch/internal/tracking"
)

type fakeSource struct {
	mu             sync.Mutex
	systemCalls    []int64
	characterCalls []int64
	bulkCalls      [][]int64
	failBulkFor    int64
	failSystem     int64

	// When set, SystemKills signals started and blocks on release.
	started chan int64
	release chan struct{}

	inFlight atomic.Int32
	peak     atomic.Int32
}

func kill(id, system int64) feed.Kill {
	return feed.Kill{"killmail_id": id, "solar_system_id": system}
}

func (f *fakeSource) track() func() {
	n := f.inFlight.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeSource) SystemKills(_ context.Context, id int64, _ time.Time) ([]feed.Kill, error) {
	defer f.track()()
	f.mu.Lock()
	f.systemCalls = append(f.systemCalls, id)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- id
		<-f.release
	} else {
		time.Sleep(5 * time.Millisecond)
	}
	if id == f.failSystem {
		return nil, errors.New("upstream 503")
	}
	return []feed.Kill{kill(id*100, id)}, nil
}

func (f *fakeSource) CharacterKills(_ context.Context, id int64, _ time.Time) ([]feed.Kill, error) {
	f.mu.Lock()
	f.characterCalls = append(f.characterCalls, id)
	f.mu.Unlock()
	return []feed.Kill{kill(id*1000, 1)}, nil
}

func (f *fakeSource) BulkSystemKills(_ context.Context, ids []int64, _ time.Time, _ int) (map[int64][]feed.Kill, error) {
	f.mu.Lock()
	f.bulkCalls = append(f.bulkCalls, append([]int64(nil), ids...))
	f.mu.Unlock()

	out := make(map[int64][]feed.Kill)
	for _, id := range ids {
		if id == f.failBulkFor {
			return nil, fmt.Errorf("chunk containing %d failed", id)
		}
		out[id] = []feed.Kill{kill(id*10, id), kill(id*10+1, id)}
	}
	return out, nil
}

func (f *fakeSource) calls() (systems, characters int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.systemCalls), len(f.characterCalls)
}

type recorder struct {
	mu    sync.Mutex
	kills []feed.Kill
	srcs  map[string]int
}

func (r *recorder) sink(_ context.Context, source string, k map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.srcs == nil {
		r.srcs = make(map[string]int)
	}
	r.kills = append(r.kills, k)
	r.srcs[source]++
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.kills)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startCoordinator(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func slowPolling() Options {
	return Options{PollInterval: time.Hour, PollConcurrency: 2, PollWindow: time.Hour, BulkChunkSize: 2, BulkKillLimit: 10}
}

func TestCoordinatorPollsWhileDegraded(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	rec := &recorder{}
	holder := tracking.NewHolder(tracking.NewSet([]int64{1, 2, 3}, []int64{90000001}, time.Now()))
	c := New(src, holder, rec.sink, slowPolling())
	startCoordinator(t, c)

	if c.Mode() != ModeConnected {
		t.Fatalf("initial mode = %v, want connected", c.Mode())
	}

	c.OnDisconnected(errors.New("read: connection reset"))
	waitFor(t, "four polled kills", func() bool { return rec.count() == 4 })

	if c.Mode() != ModeDegraded {
		t.Errorf("mode = %v, want degraded", c.Mode())
	}
	st := c.State()
	if st.Mode != "degraded" || st.TrackedSystems != 3 || st.TrackedCharacters != 1 {
		t.Errorf("State() = %+v", st)
	}
	waitFor(t, "last poll time", func() bool { return !c.State().LastPollAt.IsZero() })

	if peak := src.peak.Load(); peak > 2 {
		t.Errorf("peak concurrent polls = %d, want <= 2", peak)
	}
	rec.mu.Lock()
	if rec.srcs["poll"] != 4 {
		t.Errorf("poll source count = %d, want 4", rec.srcs["poll"])
	}
	rec.mu.Unlock()

	c.OnConnected()
	waitFor(t, "connected mode", func() bool { return c.Mode() == ModeConnected })

	systems, _ := src.calls()
	time.Sleep(50 * time.Millisecond)
	if again, _ := src.calls(); again != systems {
		t.Errorf("system polls grew from %d to %d after reconnect", systems, again)
	}
}

func TestCoordinatorIgnoresRepeatedSignals(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	rec := &recorder{}
	holder := tracking.NewHolder(tracking.NewSet([]int64{1}, nil, time.Now()))
	c := New(src, holder, rec.sink, slowPolling())
	startCoordinator(t, c)

	c.OnConnected()
	time.Sleep(20 * time.Millisecond)
	if n, _ := src.calls(); n != 0 {
		t.Fatalf("connected signal while connected triggered %d polls", n)
	}

	c.OnDisconnected(nil)
	waitFor(t, "first cycle", func() bool { return rec.count() == 1 })
	c.OnDisconnected(nil)
	time.Sleep(20 * time.Millisecond)
	if n, _ := src.calls(); n != 1 {
		t.Errorf("repeated disconnect restarted polling: %d system calls", n)
	}
}

func TestCoordinatorLetsInFlightPollFinish(t *testing.T) {
	t.Parallel()

	src := &fakeSource{started: make(chan int64, 4), release: make(chan struct{})}
	rec := &recorder{}
	holder := tracking.NewHolder(tracking.NewSet([]int64{7}, nil, time.Now()))
	c := New(src, holder, rec.sink, slowPolling())
	startCoordinator(t, c)

	c.OnDisconnected(nil)
	select {
	case <-src.started:
	case <-time.After(3 * time.Second):
		t.Fatal("poll never started")
	}

	c.OnConnected()
	waitFor(t, "connected mode", func() bool { return c.Mode() == ModeConnected })
	close(src.release)

	waitFor(t, "in-flight kill delivered", func() bool { return rec.count() == 1 })
}

func TestCoordinatorResumesPollingAfterRestart(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	rec := &recorder{}
	holder := tracking.NewHolder(tracking.NewSet([]int64{1}, nil, time.Now()))
	c := New(src, holder, rec.sink, slowPolling())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Serve(ctx)
		close(done)
	}()
	c.OnDisconnected(nil)
	waitFor(t, "first cycle", func() bool { return rec.count() == 1 })
	waitFor(t, "first cycle finished", func() bool { return !c.State().LastPollAt.IsZero() })
	cancel()
	<-done

	// A supervisor restart: Serve runs again with no new gateway signal.
	startCoordinator(t, c)
	waitFor(t, "polling after restart", func() bool { return rec.count() == 2 })
	if c.Mode() != ModeDegraded {
		t.Errorf("Mode() = %v, want degraded", c.Mode())
	}
}

func TestCoordinatorPollFailureIsPartial(t *testing.T) {
	t.Parallel()

	src := &fakeSource{failSystem: 2}
	rec := &recorder{}
	holder := tracking.NewHolder(tracking.NewSet([]int64{1, 2, 3}, nil, time.Now()))
	c := New(src, holder, rec.sink, slowPolling())
	startCoordinator(t, c)

	c.OnDisconnected(nil)
	waitFor(t, "healthy systems delivered", func() bool { return rec.count() == 2 })
	waitFor(t, "cycle finished", func() bool { return !c.State().LastPollAt.IsZero() })
}

func TestBulkLoadRecordsChunkFailures(t *testing.T) {
	t.Parallel()

	src := &fakeSource{failBulkFor: 3}
	rec := &recorder{}
	c := New(src, tracking.NewHolder(nil), rec.sink, slowPolling())

	res := c.BulkLoad(context.Background(), 24*time.Hour, []int64{1, 2, 3, 4, 5})

	if res.Loaded != 6 {
		t.Errorf("Loaded = %d, want 6", res.Loaded)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("Errors = %+v, want one failed chunk", res.Errors)
	}
	if res.Errors[0].Chunk != 1 || !reflect.DeepEqual(res.Errors[0].Systems, []int64{3, 4}) {
		t.Errorf("failed chunk = %+v", res.Errors[0])
	}
	if len(src.bulkCalls) != 3 {
		t.Errorf("bulk calls = %d, want 3", len(src.bulkCalls))
	}
	if rec.srcs["bulk"] != 6 {
		t.Errorf("bulk sink count = %d, want 6", rec.srcs["bulk"])
	}
}

func TestBulkLoadDefaultsToTrackedSystems(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	rec := &recorder{}
	holder := tracking.NewHolder(tracking.NewSet([]int64{30000142}, []int64{5}, time.Now()))
	c := New(src, holder, rec.sink, slowPolling())

	res := c.BulkLoad(context.Background(), time.Hour, nil)
	if res.Loaded != 2 || len(res.Errors) != 0 {
		t.Errorf("BulkLoad = %+v", res)
	}
	if !reflect.DeepEqual(src.bulkCalls, [][]int64{{30000142}}) {
		t.Errorf("bulk calls = %v", src.bulkCalls)
	}
}

func TestBulkLoadCancelled(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	c := New(src, tracking.NewHolder(nil), (&recorder{}).sink, slowPolling())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.BulkLoad(ctx, time.Hour, []int64{1, 2, 3})
	if res.Loaded != 0 || len(res.Errors) != 2 {
		t.Errorf("BulkLoad on cancelled ctx = %+v", res)
	}
	if len(src.bulkCalls) != 0 {
		t.Errorf("bulk calls = %d, want 0", len(src.bulkCalls))
	}
}

func TestChunkIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ids  []int64
		size int
		want [][]int64
	}{
		{"empty", nil, 3, nil},
		{"exact", []int64{1, 2, 3, 4}, 2, [][]int64{{1, 2}, {3, 4}}},
		{"remainder", []int64{1, 2, 3}, 2, [][]int64{{1, 2}, {3}}},
		{"larger than input", []int64{1}, 50, [][]int64{{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := chunkIDs(tt.ids, tt.size); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("chunkIDs() = %v, want %v", got, tt.want)
			}
		})
	}
}
