// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package cache

import (
	"context"
	"fmt"

	"github.com/tomtom215/killwatch/internal/config"
)

// Open creates the Store selected by cfg.Backend.
func Open(ctx context.Context, cfg *config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemory(cfg.JanitorEvery), nil
	case "badger":
		return OpenBadger(cfg.BadgerPath)
	case "redis":
		return DialRedis(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
