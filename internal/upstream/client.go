// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Package upstream is the HTTP plumbing shared by the directory and feed
// clients: a shared token bucket, bounded retries with exponential backoff
// that honor Retry-After, a per-client circuit breaker and JSON decoding.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/killwatch/internal/logging"
	"github.com/tomtom215/killwatch/internal/metrics"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 64 * 1024

// Config configures a Client.
type Config struct {
	// Name labels metrics, logs and the circuit breaker.
	Name      string
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// BreakerMinRequests and BreakerFailureRatio decide when the breaker opens.
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerTimeout      time.Duration
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 30 * time.Second
	}
	if c.BreakerMinRequests == 0 {
		c.BreakerMinRequests = 10
	}
	if c.BreakerFailureRatio <= 0 {
		c.BreakerFailureRatio = 0.6
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 2 * time.Minute
	}
}

// Client performs rate-limited, retried, breaker-protected HTTP calls.
type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// New creates a Client. limiter is shared by every caller of the upstream so
// pacing is process-wide; a nil limiter disables pacing.
func New(cfg Config, limiter *rate.Limiter) (*Client, error) {
	cfg.applyDefaults()
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse %s base url: %w", cfg.Name, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%s base url %q must be absolute", cfg.Name, cfg.BaseURL)
	}

	c := &Client{
		cfg:     cfg,
		base:    base,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
	c.breaker = newBreaker(&cfg)
	return c, nil
}

// GetJSON issues a GET for path with query and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// PostJSON posts body as JSON to path and decodes the response into out.
// A nil out discards the response body.
func (c *Client) PostJSON(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// BreakerState returns the circuit breaker state name.
func (c *Client) BreakerState() string {
	return stateToString(c.breaker.State())
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("%s: encode request body: %w", c.cfg.Name, err)
		}
	}

	data, err := c.execute(func() ([]byte, error) {
		return c.doWithRetry(ctx, method, path, query, payload)
	})
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Client: c.cfg.Name, Method: method, Path: path, StatusCode: http.StatusOK,
			Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// doWithRetry retries transient failures with exponential backoff
// (base, 2x base, 4x base ...), preferring the server's Retry-After.
func (c *Client) doWithRetry(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		data, retryAfter, err := c.once(ctx, method, path, query, payload)
		if err == nil {
			return data, nil
		}
		lastErr = err

		var ue *Error
		if ctx.Err() != nil || !errors.As(err, &ue) || !ue.Transient() || attempt == c.cfg.MaxRetries {
			break
		}

		delay := c.cfg.RetryBaseDelay * time.Duration(1<<uint(attempt))
		if retryAfter > 0 {
			delay = retryAfter
		}
		if delay > c.cfg.RetryMaxDelay {
			delay = c.cfg.RetryMaxDelay
		}
		logging.Ctx(ctx).Debug().
			Str("client", c.cfg.Name).
			Str("path", path).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("Retrying upstream request")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, time.Duration, error) {
	u := *c.base
	if p := strings.TrimLeft(path, "/"); p != "" {
		u.Path = c.base.Path + "/" + p
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader = http.NoBody
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: build request: %w", c.cfg.Name, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordUpstream(c.cfg.Name, "error", time.Since(start))
		return nil, 0, &Error{Client: c.cfg.Name, Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			metrics.RecordUpstream(c.cfg.Name, "error", time.Since(start))
			return nil, 0, &Error{Client: c.cfg.Name, Method: method, Path: path, Err: fmt.Errorf("read body: %w", err)}
		}
		metrics.RecordUpstream(c.cfg.Name, "ok", time.Since(start))
		return data, 0, nil
	}

	errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	ue := &Error{
		Client:     c.cfg.Name,
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(errBody)),
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		metrics.RecordUpstream(c.cfg.Name, "not_found", time.Since(start))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 420:
		metrics.RecordUpstream(c.cfg.Name, "rate_limited", time.Since(start))
	default:
		metrics.RecordUpstream(c.cfg.Name, "error", time.Since(start))
	}
	return nil, parseRetryAfter(resp.Header.Get("Retry-After")), ue
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
