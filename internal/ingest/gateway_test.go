// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/killwatch/internal/config"
	"github.com/tomtom215/killwatch/internal/models"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testFeedConfig(url string) *config.FeedConfig {
	return &config.FeedConfig{
		WebsocketURL:     url,
		SubscriberID:     "test-sub",
		ReconnectInitial: 10 * time.Millisecond,
		ReconnectMax:     50 * time.Millisecond,
	}
}

type collector struct {
	ch chan map[string]interface{}
}

func newCollector() *collector {
	return &collector{ch: make(chan map[string]interface{}, 16)}
}

func (c *collector) process(_ context.Context, kill map[string]interface{}) {
	c.ch <- kill
}

func (c *collector) next(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case k := <-c.ch:
		return k
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for killmail")
		return nil
	}
}

func runGateway(t *testing.T, g *Gateway) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Serve() returned %v, want context.Canceled", err)
			}
		case <-time.After(3 * time.Second):
			t.Error("Serve did not return after cancel")
		}
	})
}

func TestGatewayDeliversKillmails(t *testing.T) {
	t.Parallel()

	frames := make(chan subscribeFrame, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var frame subscribeFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		frames <- frame

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"tqStatus","tqStatus":{"tranquility_players":31234,"tranquility_vip":false}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"littlekill"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"killmail_id":123456789,"solar_system_id":30000142,"zkb":{"hash":"abc","totalValue":1500000}}`))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := newCollector()
	g := New(testFeedConfig(wsURL(srv)), c.process,
		WithSubscription(func() []int64 { return []int64{30000142, 30002187} }))
	runGateway(t, g)

	select {
	case frame := <-frames:
		if frame.Action != "subscribe" || frame.SubscriberID != "test-sub" {
			t.Errorf("frame = %+v", frame)
		}
		if len(frame.SystemIDs) != 2 || frame.SystemIDs[0] != 30000142 {
			t.Errorf("frame systems = %v", frame.SystemIDs)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no subscribe frame received")
	}

	kill := c.next(t)
	if id, _ := models.FirstID(kill, "killmail_id"); id != 123456789 {
		t.Errorf("killmail_id = %d, want 123456789", id)
	}

	if !g.Connected() {
		t.Error("Connected() = false during a live session")
	}
	status, ok := g.Status()
	if !ok {
		t.Fatal("Status() not recorded from heartbeat")
	}
	if status.Players != 31234 {
		t.Errorf("Players = %d, want 31234", status.Players)
	}

	select {
	case extra := <-c.ch:
		t.Errorf("unexpected extra dispatch %v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeResolver struct {
	calls atomic.Int32
}

func (f *fakeResolver) GetKillmail(_ context.Context, id int64, hash string) (map[string]interface{}, error) {
	f.calls.Add(1)
	return map[string]interface{}{
		"killmail_id":     id,
		"solar_system_id": int64(30002187),
		"hash":            hash,
	}, nil
}

func TestGatewayInFlightKillSurvivesDisconnect(t *testing.T) {
	t.Parallel()

	var sessions atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if sessions.Add(1) == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"killmail_id":777,"solar_system_id":30000142}`))
			time.Sleep(20 * time.Millisecond)
		}
	}))
	defer srv.Close()

	disconnected := make(chan struct{})
	var once sync.Once
	ctxErr := make(chan error, 1)

	g := New(testFeedConfig(wsURL(srv)), func(ctx context.Context, _ map[string]interface{}) {
		select {
		case <-disconnected:
		case <-time.After(3 * time.Second):
		}
		ctxErr <- ctx.Err()
	})
	g.OnDisconnect(func(error) { once.Do(func() { close(disconnected) }) })
	runGateway(t, g)

	select {
	case err := <-ctxErr:
		if err != nil {
			t.Errorf("pipeline context after disconnect = %v, want live", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("processor never ran")
	}
}

func TestGatewayHydratesReferences(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"killID":555,"zkb":{"hash":"deadbeef","totalValue":10}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	res := &fakeResolver{}
	c := newCollector()
	g := New(testFeedConfig(wsURL(srv)), c.process, WithResolver(res))
	runGateway(t, g)

	kill := c.next(t)
	if res.calls.Load() != 1 {
		t.Errorf("resolver calls = %d, want 1", res.calls.Load())
	}
	if sys, _ := models.FirstID(kill, "solar_system_id"); sys != 30002187 {
		t.Errorf("solar_system_id = %d, want 30002187", sys)
	}
	if _, ok := kill["zkb"]; !ok {
		t.Error("zkb block not carried over from the reference push")
	}
}

func TestGatewayReconnects(t *testing.T) {
	t.Parallel()

	var sessions atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if sessions.Add(1) == 1 {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"killmail_id":1,"solar_system_id":2}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	var mu sync.Mutex
	var connects, disconnects int

	c := newCollector()
	g := New(testFeedConfig(wsURL(srv)), c.process)
	g.OnConnect(func() {
		mu.Lock()
		connects++
		mu.Unlock()
	})
	g.OnDisconnect(func(error) {
		mu.Lock()
		disconnects++
		mu.Unlock()
	})
	runGateway(t, g)

	c.next(t)

	mu.Lock()
	defer mu.Unlock()
	if connects < 2 {
		t.Errorf("connects = %d, want at least 2", connects)
	}
	if disconnects < 1 {
		t.Errorf("disconnects = %d, want at least 1", disconnects)
	}
}

func TestGatewayAnnouncesFailedFirstDial(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	disconnected := make(chan error, 4)
	g := New(testFeedConfig(url), func(context.Context, map[string]interface{}) {})
	g.OnDisconnect(func(err error) { disconnected <- err })
	runGateway(t, g)

	select {
	case err := <-disconnected:
		if !errors.Is(err, errDialFailed) {
			t.Errorf("disconnect error = %v, want errDialFailed", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("OnDisconnect not fired for failed first dial")
	}

	time.Sleep(100 * time.Millisecond)
	if n := len(disconnected); n != 0 {
		t.Errorf("OnDisconnect fired %d more times while still unreachable", n)
	}
	if g.Connected() {
		t.Error("Connected() = true with no server")
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	s := parseStatus(map[string]interface{}{"players": float64(42), "vip": true})
	if s.Players != 42 || !s.VIP {
		t.Errorf("parseStatus = %+v", s)
	}
	if s.ReceivedAt.IsZero() {
		t.Error("ReceivedAt not set")
	}
}
