// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Package cache provides the TTL key/value store shared by the deduplicator
// and the directory lookup cache.
//
// Three backends implement Store:
//   - Memory: in-process map with optional LRU capacity bound
//   - Badger: embedded on-disk store, survives restarts
//   - Redis: shared store for several Killwatch replicas
//
// Values are opaque byte slices; GetJSON and SetJSON layer a JSON codec on top.
// A Get after an entry's TTL behaves as a miss and Set always overwrites.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("cache: store closed")

// Store is a key/value store with per-key TTL.
type Store interface {
	// Get returns the value and true, or false on miss or expiry.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, replacing any existing entry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value only if key is absent or expired. The check and the
	// write are one atomic step; it reports whether the value was stored.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the store.
	Close() error
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Badger)(nil)
	_ Store = (*Redis)(nil)
)

// GetJSON reads key and decodes it into out. It reports false on a miss.
func GetJSON(ctx context.Context, s Store, key string, out interface{}) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes value and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data, ttl)
}
