// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package tracking

import (
	"github.com/tomtom215/killwatch/internal/config"
	"github.com/tomtom215/killwatch/internal/models"
)

// Match reasons.
const (
	ReasonDisabled         = "disabled"
	ReasonSystemTracked    = "system tracked"
	ReasonCharacterTracked = "character tracked"
	ReasonNotTracked       = "not tracked"
	ReasonForced           = "forced"
)

// ShouldNotify decides whether ev concerns the watch-list. It performs no
// I/O. Checks run cheapest first:
//
//  1. global toggle off: false, "disabled"
//  2. system and character toggles both off: false, "disabled"
//  3. system tracked (system toggle on): true, "system tracked"
//  4. victim or any attacker character tracked (character toggle on): true, "character tracked"
//  5. otherwise: false, "not tracked"
func ShouldNotify(ev *models.EnrichedEvent, set *Set, toggles config.NotificationsConfig) (bool, string) {
	if !toggles.Enabled {
		return false, ReasonDisabled
	}
	if !toggles.SystemEnabled && !toggles.CharacterEnabled {
		return false, ReasonDisabled
	}
	if set == nil {
		return false, ReasonNotTracked
	}
	if toggles.SystemEnabled && ev.SystemID > 0 && set.HasSystem(ev.SystemID) {
		return true, ReasonSystemTracked
	}
	if toggles.CharacterEnabled {
		for _, id := range ev.CharacterIDs() {
			if set.HasCharacter(id) {
				return true, ReasonCharacterTracked
			}
		}
	}
	return false, ReasonNotTracked
}
