// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Package tracking owns the watch-list: the immutable Set snapshot, the
// matcher deciding whether an event concerns it, and the refresher that
// keeps the current snapshot up to date.
package tracking

import (
	"sort"
	"time"
)

// Kind distinguishes the two tracked entity namespaces.
type Kind string

const (
	KindSystem    Kind = "system"
	KindCharacter Kind = "character"
)

// ParseKind accepts singular or plural names ("system", "systems").
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "system", "systems":
		return KindSystem, true
	case "character", "characters":
		return KindCharacter, true
	}
	return "", false
}

// Set is a point-in-time snapshot of tracked systems and characters.
// A Set is never modified after NewSet returns.
type Set struct {
	systems     map[int64]struct{}
	characters  map[int64]struct{}
	RefreshedAt time.Time
}

// NewSet builds a snapshot. Non-positive ids are ignored.
func NewSet(systems, characters []int64, refreshedAt time.Time) *Set {
	return &Set{
		systems:     toSet(systems),
		characters:  toSet(characters),
		RefreshedAt: refreshedAt,
	}
}

// EmptySet returns a snapshot tracking nothing.
func EmptySet() *Set {
	return NewSet(nil, nil, time.Time{})
}

func toSet(ids []int64) map[int64]struct{} {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id > 0 {
			m[id] = struct{}{}
		}
	}
	return m
}

func (s *Set) HasSystem(id int64) bool {
	_, ok := s.systems[id]
	return ok
}

func (s *Set) HasCharacter(id int64) bool {
	_, ok := s.characters[id]
	return ok
}

// Systems returns the tracked system ids in ascending order.
func (s *Set) Systems() []int64 { return sorted(s.systems) }

// Characters returns the tracked character ids in ascending order.
func (s *Set) Characters() []int64 { return sorted(s.characters) }

// Len returns the number of tracked systems and characters.
func (s *Set) Len() (systems, characters int) {
	return len(s.systems), len(s.characters)
}

// Equal reports whether both snapshots track the same ids.
func (s *Set) Equal(o *Set) bool {
	if s == nil || o == nil {
		return s == o
	}
	return sameKeys(s.systems, o.systems) && sameKeys(s.characters, o.characters)
}

func sameKeys(a, b map[int64]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func sorted(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
