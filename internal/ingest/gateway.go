// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/killwatch/internal/config"
	"github.com/tomtom215/killwatch/internal/logging"
	"github.com/tomtom215/killwatch/internal/metrics"
)

const (
	// readTimeout must exceed pingInterval so a healthy peer's pong always
	// arrives before the deadline.
	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second

	defaultDispatchWorkers = 8
)

// Processor receives each killmail payload decoded from the feed.
type Processor func(ctx context.Context, kill map[string]interface{})

// Resolver fetches a full killmail when a push only carries a reference.
// *feed.Client implements it.
type Resolver interface {
	GetKillmail(ctx context.Context, id int64, hash string) (map[string]interface{}, error)
}

// Gateway maintains the realtime websocket connection to the feed.
//
//   - Reconnects with exponential backoff (ReconnectInitial doubling up to ReconnectMax)
//   - Pings every 30 seconds and drops the connection after 60 seconds of silence
//   - Sends a subscribe frame after every connect and whenever Resubscribe is called
//   - Dispatches killmails to the Processor through a bounded worker group;
//     a full group applies backpressure to the read loop
//
// Connect and disconnect hooks let the fallback coordinator switch modes.
type Gateway struct {
	url          string
	userAgent    string
	subscriberID string
	initial      time.Duration
	max          time.Duration
	workers      int

	dialer   websocket.Dialer
	process  Processor
	resolver Resolver
	systems  func() []int64
	logger   zerolog.Logger

	hooksMu      sync.RWMutex
	onConnect    []func()
	onDisconnect []func(error)

	connected   atomic.Bool
	status      atomic.Pointer[Status]
	resubscribe chan struct{}
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithResolver hydrates reference-only pushes through r.
func WithResolver(r Resolver) Option {
	return func(g *Gateway) { g.resolver = r }
}

// WithSubscription makes the gateway subscribe to the systems returned by fn.
func WithSubscription(fn func() []int64) Option {
	return func(g *Gateway) { g.systems = fn }
}

// WithDispatchWorkers bounds concurrent Processor calls.
func WithDispatchWorkers(n int) Option {
	return func(g *Gateway) { g.workers = n }
}

// New creates a Gateway for cfg.WebsocketURL.
func New(cfg *config.FeedConfig, process Processor, opts ...Option) *Gateway {
	g := &Gateway{
		url:          cfg.WebsocketURL,
		userAgent:    "killwatch",
		subscriberID: cfg.SubscriberID,
		initial:      cfg.ReconnectInitial,
		max:          cfg.ReconnectMax,
		workers:      defaultDispatchWorkers,
		dialer: websocket.Dialer{
			HandshakeTimeout:  10 * time.Second,
			EnableCompression: true,
		},
		process:     process,
		logger:      logging.WithComponent("gateway"),
		resubscribe: make(chan struct{}, 1),
	}
	if g.initial <= 0 {
		g.initial = time.Second
	}
	if g.max < g.initial {
		g.max = g.initial
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.workers <= 0 {
		g.workers = 1
	}
	return g
}

// OnConnect registers fn to run after each successful connect.
func (g *Gateway) OnConnect(fn func()) {
	g.hooksMu.Lock()
	defer g.hooksMu.Unlock()
	g.onConnect = append(g.onConnect, fn)
}

// OnDisconnect registers fn to run after each lost connection, and after a
// failed first dial.
func (g *Gateway) OnDisconnect(fn func(error)) {
	g.hooksMu.Lock()
	defer g.hooksMu.Unlock()
	g.onDisconnect = append(g.onDisconnect, fn)
}

// Connected reports whether a session is live.
func (g *Gateway) Connected() bool { return g.connected.Load() }

// Status returns the last heartbeat status, if any was received.
func (g *Gateway) Status() (Status, bool) {
	s := g.status.Load()
	if s == nil {
		return Status{}, false
	}
	return *s, true
}

// Resubscribe asks the live session to send a fresh subscribe frame.
func (g *Gateway) Resubscribe() {
	select {
	case g.resubscribe <- struct{}{}:
	default:
	}
}

// Serve runs sessions until ctx is cancelled. It implements suture.Service.
func (g *Gateway) Serve(ctx context.Context) error {
	var dispatch errgroup.Group
	dispatch.SetLimit(g.workers)
	defer func() { _ = dispatch.Wait() }()

	delay := g.initial
	announced := false
	for {
		err := g.session(ctx, &dispatch)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errors.Is(err, errDialFailed) {
			if !announced {
				// Lets the fallback coordinator start polling without ever
				// having seen a connect.
				g.fireDisconnect(err)
			}
		} else {
			delay = g.initial
		}
		announced = true

		metrics.GatewayReconnects.Inc()
		g.logger.Warn().Err(err).Dur("retry_in", delay).Msg("Feed websocket session ended, reconnecting")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > g.max {
			delay = g.max
		}
	}
}

var errDialFailed = errors.New("websocket dial failed")

// session dials, runs one connection to completion and returns why it ended.
func (g *Gateway) session(ctx context.Context, dispatch *errgroup.Group) error {
	header := http.Header{}
	header.Set("User-Agent", g.userAgent)

	conn, resp, err := g.dialer.DialContext(ctx, g.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w (HTTP %d): %v", errDialFailed, resp.StatusCode, err)
		}
		return fmt.Errorf("%w: %v", errDialFailed, err)
	}

	g.connected.Store(true)
	metrics.GatewayConnected.Set(1)
	g.logger.Info().Str("url", g.url).Msg("Feed websocket connected")
	g.fireConnect()

	// Dispatched kills run on ctx, not sessionCtx, so a dropped socket does
	// not abort work already handed to the pipeline.
	sessionCtx, cancel := context.WithCancel(ctx)
	readErr := make(chan error, 1)
	go func() { readErr <- g.readLoop(ctx, conn, dispatch) }()

	err = g.writeLoop(sessionCtx, conn, readErr)
	cancel()
	closeConnection(conn)

	g.connected.Store(false)
	metrics.GatewayConnected.Set(0)
	if ctx.Err() == nil {
		g.fireDisconnect(err)
	}
	return err
}

// writeLoop owns every write on conn except control frames.
func (g *Gateway) writeLoop(ctx context.Context, conn *websocket.Conn, readErr <-chan error) error {
	if err := g.subscribe(conn); err != nil {
		return fmt.Errorf("send subscribe frame: %w", err)
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-readErr:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-g.resubscribe:
			if err := g.subscribe(conn); err != nil {
				return fmt.Errorf("send subscribe frame: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

type subscribeFrame struct {
	Action       string  `json:"action"`
	SubscriberID string  `json:"subscriber_id,omitempty"`
	SystemIDs    []int64 `json:"system_ids"`
}

func (g *Gateway) subscribe(conn *websocket.Conn) error {
	if g.systems == nil {
		return nil
	}
	systems := g.systems()
	if systems == nil {
		systems = []int64{}
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(subscribeFrame{Action: "subscribe", SubscriberID: g.subscriberID, SystemIDs: systems}); err != nil {
		return err
	}
	g.logger.Debug().Int("systems", len(systems)).Msg("Sent subscribe frame")
	return nil
}

// readLoop reads until the connection fails. Closing conn is the only way to
// stop it; dispatchCtx is handed to every kill it dispatches.
func (g *Gateway) readLoop(dispatchCtx context.Context, conn *websocket.Conn, dispatch *errgroup.Group) error {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		g.handleMessage(dispatchCtx, data, dispatch)
	}
}

func (g *Gateway) fireConnect() {
	g.hooksMu.RLock()
	hooks := append([]func(){}, g.onConnect...)
	g.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

func (g *Gateway) fireDisconnect(err error) {
	g.hooksMu.RLock()
	hooks := append([]func(error){}, g.onDisconnect...)
	g.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(err)
	}
}

func (g *Gateway) String() string { return "feed-gateway" }

func closeConnection(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = conn.Close()
}
