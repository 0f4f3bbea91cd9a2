// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package tracking

import (
	"sync"
	"sync/atomic"
)

// Holder publishes the current Set. Load never blocks and may return a
// snapshot that is one refresh behind.
type Holder struct {
	current atomic.Pointer[Set]

	mu        sync.Mutex
	listeners []func(*Set)
}

// NewHolder creates a Holder seeded with initial, or an empty set if nil.
func NewHolder(initial *Set) *Holder {
	if initial == nil {
		initial = EmptySet()
	}
	h := &Holder{}
	h.current.Store(initial)
	return h
}

// Load returns the current snapshot.
func (h *Holder) Load() *Set {
	return h.current.Load()
}

// Store publishes s. Listeners run synchronously, and only when the tracked
// ids changed.
func (h *Holder) Store(s *Set) {
	prev := h.current.Swap(s)
	if prev.Equal(s) {
		return
	}
	h.mu.Lock()
	listeners := make([]func(*Set), len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}

// OnChange registers fn to be called with each changed snapshot.
func (h *Holder) OnChange(fn func(*Set)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}
