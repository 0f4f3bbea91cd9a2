// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package tracking

import (
	"context"
	"fmt"
	"sync"
)

// Source is where the watch-list lives.
type Source interface {
	Load(ctx context.Context) (systems, characters []int64, err error)
	Add(ctx context.Context, kind Kind, id int64) error
	Remove(ctx context.Context, kind Kind, id int64) error
}

// StaticSource holds the watch-list from configuration. Edits are kept in
// memory and lost on restart.
type StaticSource struct {
	mu         sync.Mutex
	systems    map[int64]struct{}
	characters map[int64]struct{}
}

// NewStaticSource creates a StaticSource.
func NewStaticSource(systems, characters []int64) *StaticSource {
	return &StaticSource{systems: toSet(systems), characters: toSet(characters)}
}

func (s *StaticSource) Load(context.Context) ([]int64, []int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sorted(s.systems), sorted(s.characters), nil
}

func (s *StaticSource) Add(_ context.Context, kind Kind, id int64) error {
	m, err := s.bucket(kind, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	m[id] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *StaticSource) Remove(_ context.Context, kind Kind, id int64) error {
	m, err := s.bucket(kind, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(m, id)
	s.mu.Unlock()
	return nil
}

func (s *StaticSource) bucket(kind Kind, id int64) (map[int64]struct{}, error) {
	if id <= 0 {
		return nil, fmt.Errorf("tracking: invalid id %d", id)
	}
	switch kind {
	case KindSystem:
		return s.systems, nil
	case KindCharacter:
		return s.characters, nil
	}
	return nil, fmt.Errorf("tracking: unknown kind %q", kind)
}

// WatchList is a durable watch-list table. The persistence stores
// implement it.
type WatchList interface {
	ListTracked(ctx context.Context, kind string) ([]int64, error)
	AddTracked(ctx context.Context, kind string, id int64) error
	RemoveTracked(ctx context.Context, kind string, id int64) error
}

// StoreSource reads the watch-list from a WatchList.
type StoreSource struct {
	list WatchList
}

// NewStoreSource wraps list. Seeds from configuration are inserted once so
// a fresh database starts with the configured watch-list.
func NewStoreSource(ctx context.Context, list WatchList, seedSystems, seedCharacters []int64) (*StoreSource, error) {
	s := &StoreSource{list: list}
	for _, id := range seedSystems {
		if err := s.Add(ctx, KindSystem, id); err != nil {
			return nil, err
		}
	}
	for _, id := range seedCharacters {
		if err := s.Add(ctx, KindCharacter, id); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *StoreSource) Load(ctx context.Context) ([]int64, []int64, error) {
	systems, err := s.list.ListTracked(ctx, string(KindSystem))
	if err != nil {
		return nil, nil, fmt.Errorf("load tracked systems: %w", err)
	}
	characters, err := s.list.ListTracked(ctx, string(KindCharacter))
	if err != nil {
		return nil, nil, fmt.Errorf("load tracked characters: %w", err)
	}
	return systems, characters, nil
}

func (s *StoreSource) Add(ctx context.Context, kind Kind, id int64) error {
	if id <= 0 {
		return fmt.Errorf("tracking: invalid id %d", id)
	}
	return s.list.AddTracked(ctx, string(kind), id)
}

func (s *StoreSource) Remove(ctx context.Context, kind Kind, id int64) error {
	return s.list.RemoveTracked(ctx, string(kind), id)
}
