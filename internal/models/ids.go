// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package models

import (
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// ParseID normalizes an identifier of any shape found in feed payloads
// (numbers, json.Number, numeric strings) to a positive int64.
// Anything else, including non-numeric strings, reports false.
func ParseID(v interface{}) (int64, bool) {
	var id int64
	switch n := v.(type) {
	case int:
		id = int64(n)
	case int32:
		id = int64(n)
	case int64:
		id = n
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		id = int64(n)
	case float64:
		if n != math.Trunc(n) || n >= math.MaxInt64 {
			return 0, false
		}
		id = int64(n)
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			return 0, false
		}
		id = parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		id = parsed
	default:
		return 0, false
	}
	if id <= 0 {
		return 0, false
	}
	return id, true
}

// ParseFloat normalizes a numeric value of any payload shape; unparseable input yields 0.
func ParseFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

// FirstID returns the first key of m holding a valid identifier.
func FirstID(m map[string]interface{}, keys ...string) (int64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if id, ok := ParseID(v); ok {
				return id, true
			}
		}
	}
	return 0, false
}
