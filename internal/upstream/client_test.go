// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

func newTestClient(t *testing.T, srv *httptest.Server, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		Name:           "test-" + t.Name(),
		BaseURL:        srv.URL + "/api",
		UserAgent:      "killwatch-test",
		Timeout:        2 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  10 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestGetJSONDecodesAndSendsHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/characters/42/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("datasource"); got != "tranquility" {
			t.Errorf("datasource = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "killwatch-test" {
			t.Errorf("User-Agent = %q", got)
		}
		_, _ = io.WriteString(w, `{"name":"Alice"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	var out struct {
		Name string `json:"name"`
	}
	err := c.GetJSON(context.Background(), "/characters/42/", url.Values{"datasource": {"tranquility"}}, &out)
	if err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if out.Name != "Alice" {
		t.Errorf("Name = %q, want Alice", out.Name)
	}
}

func TestRetriesRateLimitedThenSucceeds(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	var out map[string]bool
	if err := c.GetJSON(context.Background(), "x", nil, &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if !out["ok"] {
		t.Errorf("out = %v", out)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("hits = %d, want 3", got)
	}
}

func TestServerErrorExhaustsRetries(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, func(cfg *Config) { cfg.MaxRetries = 2 })
	err := c.GetJSON(context.Background(), "x", nil, nil)
	if err == nil {
		t.Fatal("GetJSON() error = nil, want error")
	}
	var ue *Error
	if !errors.As(err, &ue) || ue.StatusCode != http.StatusBadGateway {
		t.Fatalf("error = %v, want *Error with 502", err)
	}
	if !IsTransient(err) {
		t.Error("IsTransient() = false, want true")
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("hits = %d, want 3", got)
	}
}

func TestNotFoundIsPermanent(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, func(cfg *Config) {
		cfg.BreakerMinRequests = 2
		cfg.BreakerFailureRatio = 0.5
	})
	for i := 0; i < 5; i++ {
		err := c.GetJSON(context.Background(), "x", nil, nil)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
		if IsTransient(err) {
			t.Fatal("IsTransient(404) = true")
		}
	}
	if got := hits.Load(); got != 5 {
		t.Errorf("hits = %d, want 5 (no retries on 404)", got)
	}
	if got := c.BreakerState(); got != "closed" {
		t.Errorf("BreakerState() = %q, want closed", got)
	}
}

func TestBreakerOpensOnRepeatedFailures(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, func(cfg *Config) {
		cfg.MaxRetries = 0
		cfg.BreakerMinRequests = 2
		cfg.BreakerFailureRatio = 0.5
	})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_ = c.GetJSON(ctx, "x", nil, nil)
	}
	err := c.GetJSON(ctx, "x", nil, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("error = %v, want ErrOpenState", err)
	}
	if !IsTransient(err) {
		t.Error("open breaker should be transient")
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("hits = %d, want 2", got)
	}
	if got := c.BreakerState(); got != "open" {
		t.Errorf("BreakerState() = %q, want open", got)
	}
}

func TestContextCancelStopsRetryWait(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, func(cfg *Config) { cfg.RetryMaxDelay = time.Minute })
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.GetJSON(ctx, "x", nil, nil)
	if err == nil {
		t.Fatal("GetJSON() error = nil")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("retry wait ignored context cancellation")
	}
}

func TestPostJSONSendsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"id":7}` {
			t.Errorf("body = %s", body)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	if err := c.PostJSON(context.Background(), "subscribe", map[string]int{"id": 7}, nil); err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-1", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewRejectsRelativeBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Name: "bad", BaseURL: "not-a-url"}, nil); err == nil {
		t.Error("New() error = nil, want error")
	}
}
