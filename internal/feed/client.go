// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Package feed is the REST client for the killmail feed. Kills are returned
// as decoded JSON maps; normalization is left to the pipeline.
package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/killwatch/internal/config"
	"github.com/tomtom215/killwatch/internal/upstream"
)

// Kill is one killmail as delivered by the feed.
type Kill = map[string]interface{}

// ErrUnexpectedShape is returned when a response is neither a list of kills
// nor an object wrapping one.
var ErrUnexpectedShape = errors.New("feed: unexpected response shape")

// Client is the feed REST client.
type Client struct {
	http *upstream.Client
}

// New builds a Client from cfg.
func New(cfg *config.FeedConfig) (*Client, error) {
	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	hc, err := upstream.New(upstream.Config{
		Name:       "feed",
		BaseURL:    cfg.BaseURL,
		UserAgent:  "killwatch",
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
	}, limiter)
	if err != nil {
		return nil, err
	}
	return &Client{http: hc}, nil
}

// GetKillmail fetches a single killmail by id and hash.
func (c *Client) GetKillmail(ctx context.Context, id int64, hash string) (Kill, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("killmails/%d/%s", id, url.PathEscape(hash))
	if err := c.http.GetJSON(ctx, path, nil, &raw); err != nil {
		return nil, err
	}
	var kill Kill
	if err := decodeNumbers(raw, &kill); err != nil {
		return nil, err
	}
	if kill == nil {
		return nil, ErrUnexpectedShape
	}
	return kill, nil
}

// SystemKills returns kills in systemID since the given time.
func (c *Client) SystemKills(ctx context.Context, systemID int64, since time.Time) ([]Kill, error) {
	return c.list(ctx, fmt.Sprintf("systems/%d/kills", systemID), since, 0)
}

// CharacterKills returns kills involving characterID since the given time.
func (c *Client) CharacterKills(ctx context.Context, characterID int64, since time.Time) ([]Kill, error) {
	return c.list(ctx, fmt.Sprintf("characters/%d/kills", characterID), since, 0)
}

// RecentKills returns the most recent kills across all systems.
func (c *Client) RecentKills(ctx context.Context, since time.Time) ([]Kill, error) {
	return c.list(ctx, "kills/recent", since, 0)
}

type bulkRequest struct {
	SystemIDs []int64 `json:"system_ids"`
	Since     string  `json:"since"`
	Limit     int     `json:"limit,omitempty"`
}

// BulkSystemKills fetches kills for many systems in one request, keyed by
// system id. Systems without kills may be absent from the result.
func (c *Client) BulkSystemKills(ctx context.Context, systemIDs []int64, since time.Time, limit int) (map[int64][]Kill, error) {
	var raw json.RawMessage
	req := bulkRequest{SystemIDs: systemIDs, Since: since.UTC().Format(time.RFC3339), Limit: limit}
	if err := c.http.PostJSON(ctx, "kills/systems", req, &raw); err != nil {
		return nil, err
	}

	var body map[string]interface{}
	if err := decodeNumbers(raw, &body); err != nil {
		return nil, err
	}
	if inner, ok := body["systems"].(map[string]interface{}); ok {
		body = inner
	}

	out := make(map[int64][]Kill, len(body))
	for key, v := range body {
		systemID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		kills, err := killList(v)
		if err != nil {
			return nil, fmt.Errorf("system %d: %w", systemID, err)
		}
		out[systemID] = kills
	}
	return out, nil
}

type subscribeRequest struct {
	SubscriberID string  `json:"subscriber_id"`
	SystemIDs    []int64 `json:"system_ids"`
	CallbackURL  string  `json:"callback_url,omitempty"`
}

// Subscribe registers subscriberID for pushes about systemIDs.
func (c *Client) Subscribe(ctx context.Context, subscriberID string, systemIDs []int64, callbackURL string) error {
	return c.http.PostJSON(ctx, "subscriptions", subscribeRequest{
		SubscriberID: subscriberID,
		SystemIDs:    systemIDs,
		CallbackURL:  callbackURL,
	}, nil)
}

// Health checks that the feed is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.http.GetJSON(ctx, "health", nil, nil)
}

// BreakerState reports the feed circuit breaker state.
func (c *Client) BreakerState() string {
	return c.http.BreakerState()
}

func (c *Client) list(ctx context.Context, path string, since time.Time, limit int) ([]Kill, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var raw json.RawMessage
	if err := c.http.GetJSON(ctx, path, q, &raw); err != nil {
		return nil, err
	}
	var v interface{}
	if err := decodeNumbers(raw, &v); err != nil {
		return nil, err
	}
	return killList(v)
}

// killList accepts a bare array or an object wrapping one under
// "kills", "killmails" or "data". Non-object elements are dropped.
func killList(v interface{}) ([]Kill, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		kills := make([]Kill, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]interface{}); ok {
				kills = append(kills, m)
			}
		}
		return kills, nil
	case map[string]interface{}:
		for _, key := range []string{"kills", "killmails", "data"} {
			if inner, ok := t[key]; ok {
				return killList(inner)
			}
		}
	}
	return nil, ErrUnexpectedShape
}

func decodeNumbers(raw []byte, out interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("feed: decode response: %w", err)
	}
	return nil
}
