// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Badger is a Store backed by an embedded BadgerDB instance. Badger expires
// entries natively, so no janitor is needed.
type Badger struct {
	db     *badger.DB
	prefix []byte
	owned  bool

	mu     sync.RWMutex
	closed bool
}

// OpenBadger opens (or creates) a BadgerDB at path. An empty path opens an
// in-memory instance, which is what tests use.
func OpenBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	b := NewBadger(db, "")
	b.owned = true
	return b, nil
}

// NewBadger wraps an existing DB. Keys are namespaced with prefix so the DB
// can be shared; the caller keeps ownership of db.
func NewBadger(db *badger.DB, prefix string) *Badger {
	return &Badger{db: db, prefix: []byte(prefix)}
}

func (b *Badger) key(k string) []byte {
	out := make([]byte, 0, len(b.prefix)+len(k))
	out = append(out, b.prefix...)
	return append(out, k...)
}

func (b *Badger) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Get implements Store.
func (b *Badger) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := b.checkOpen(); err != nil {
		return nil, false, err
	}

	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("badger get %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements Store.
func (b *Badger) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(b.key(key), value).WithTTL(ttl))
	})
	if err != nil {
		return fmt.Errorf("badger set %s: %w", key, err)
	}
	return nil
}

// SetNX implements Store. Two transactions racing on the same key conflict
// at commit; the loser observes badger.ErrConflict and reports not stored.
func (b *Badger) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := b.checkOpen(); err != nil {
		return false, err
	}

	k := b.key(key)
	stored := false
	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.SetEntry(badger.NewEntry(k, value).WithTTL(ttl)); err != nil {
			return err
		}
		stored = true
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("badger setnx %s: %w", key, err)
	}
	return stored, nil
}

// Delete implements Store.
func (b *Badger) Delete(_ context.Context, key string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.key(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete %s: %w", key, err)
	}
	return nil
}

// Close marks the store closed and closes the DB if OpenBadger created it.
func (b *Badger) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.owned {
		return b.db.Close()
	}
	return nil
}
