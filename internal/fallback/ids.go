// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package fallback

import (
	"sort"
	"strings"

	"github.com/tomtom215/killwatch/internal/models"
)

var idKeys = []string{
	"id", "system_id", "solar_system_id", "solarSystemID", "systemID",
	"character_id", "characterID", "eve_id", "entity_id",
}

// ExtractIDs collects entity ids from loosely shaped input: numbers, numeric
// strings, comma separated strings, objects carrying an id under a known key,
// and slices of any of these. Values that do not parse are skipped. The
// result is sorted and free of duplicates.
func ExtractIDs(v interface{}) []int64 {
	seen := make(map[int64]struct{})
	collectIDs(v, seen)

	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func collectIDs(v interface{}, seen map[int64]struct{}) {
	switch t := v.(type) {
	case nil:
	case []interface{}:
		for _, item := range t {
			collectIDs(item, seen)
		}
	case []int64:
		for _, id := range t {
			if id > 0 {
				seen[id] = struct{}{}
			}
		}
	case []string:
		for _, s := range t {
			collectIDs(s, seen)
		}
	case map[string]interface{}:
		if id, ok := models.FirstID(t, idKeys...); ok {
			seen[id] = struct{}{}
		}
	case string:
		for _, part := range strings.Split(t, ",") {
			if id, ok := models.ParseID(part); ok {
				seen[id] = struct{}{}
			}
		}
	default:
		if id, ok := models.ParseID(t); ok {
			seen[id] = struct{}{}
		}
	}
}
