// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	prev      *memoryEntry
	next      *memoryEntry
}

// MemoryStats is a point-in-time snapshot of Memory counters.
type MemoryStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Keys      int
}

// Memory is a thread-safe in-process Store.
//
// Entries expire lazily on read and in bulk from a janitor goroutine. When
// capacity is positive the least recently used entry is evicted once the
// store is full, which makes Memory usable as a count-bounded dedup window.
type Memory struct {
	mu       sync.Mutex
	items    map[string]*memoryEntry
	head     *memoryEntry // head.next is most recently used
	tail     *memoryEntry // tail.prev is least recently used
	capacity int
	now      func() time.Time
	stats    MemoryStats
	closed   bool

	stop chan struct{}
	done chan struct{}
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithCapacity bounds the number of entries; 0 means unbounded.
func WithCapacity(n int) MemoryOption {
	return func(m *Memory) { m.capacity = n }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates a Memory store. janitorEvery controls how often expired
// entries are swept; zero disables the janitor.
func NewMemory(janitorEvery time.Duration, opts ...MemoryOption) *Memory {
	m := &Memory{
		items: make(map[string]*memoryEntry),
		head:  &memoryEntry{},
		tail:  &memoryEntry{},
		now:   time.Now,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	m.head.next = m.tail
	m.tail.prev = m.head
	for _, opt := range opts {
		opt(m)
	}

	if janitorEvery > 0 {
		go m.janitor(janitorEvery)
	} else {
		close(m.done)
	}
	return m
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}

	e, ok := m.items[key]
	if !ok {
		m.stats.Misses++
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		m.remove(e)
		m.stats.Misses++
		m.stats.Evictions++
		return nil, false, nil
	}
	m.moveToFront(e)
	m.stats.Hits++
	return e.value, true, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.put(key, value, ttl)
	return nil
}

// SetNX implements Store.
func (m *Memory) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	if e, ok := m.items[key]; ok && m.now().Before(e.expiresAt) {
		return false, nil
	}
	m.put(key, value, ttl)
	return true, nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.items[key]; ok {
		m.remove(e)
	}
	return nil
}

// Close stops the janitor. Further operations return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.items = make(map[string]*memoryEntry)
	m.head.next = m.tail
	m.tail.prev = m.head
	m.mu.Unlock()

	close(m.stop)
	<-m.done
	return nil
}

// Stats returns a snapshot of hit, miss and eviction counters.
func (m *Memory) Stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Keys = len(m.items)
	return s
}

// put must be called with mu held.
func (m *Memory) put(key string, value []byte, ttl time.Duration) {
	stored := append([]byte(nil), value...)
	expiresAt := m.now().Add(ttl)

	if e, ok := m.items[key]; ok {
		e.value = stored
		e.expiresAt = expiresAt
		m.moveToFront(e)
		return
	}

	e := &memoryEntry{key: key, value: stored, expiresAt: expiresAt}
	m.items[key] = e
	m.pushFront(e)

	if m.capacity > 0 && len(m.items) > m.capacity {
		m.remove(m.tail.prev)
		m.stats.Evictions++
	}
}

func (m *Memory) pushFront(e *memoryEntry) {
	e.prev = m.head
	e.next = m.head.next
	m.head.next.prev = e
	m.head.next = e
}

func (m *Memory) moveToFront(e *memoryEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	m.pushFront(e)
}

func (m *Memory) remove(e *memoryEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(m.items, e.key)
}

func (m *Memory) janitor(every time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, e := range m.items {
		if !now.Before(e.expiresAt) {
			m.remove(e)
			m.stats.Evictions++
		}
	}
}
