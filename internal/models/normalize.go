// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package models

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

var (
	// ErrMissingField is matched by every *MissingFieldError.
	ErrMissingField = errors.New("missing mandatory field")

	// ErrMalformedPayload reports input that is not a JSON object.
	ErrMalformedPayload = errors.New("malformed killmail payload")
)

// MissingFieldError names the mandatory field a payload lacked.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingField.Error(), e.Field)
}

// Is lets errors.Is(err, ErrMissingField) match.
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// Field names accepted for each attribute, in priority order. Feed sources
// disagree on naming, so all known spellings are tried.
var (
	killmailIDKeys = []string{"killmail_id", "killID", "kill_id", "killmailID"}
	systemIDKeys   = []string{"solar_system_id", "system_id", "solarSystemID", "systemID"}
	timeKeys       = []string{"killmail_time", "kill_time", "killTime", "killmailTime"}
	characterKeys  = []string{"character_id", "characterID", "char_id"}
	corporationKey = []string{"corporation_id", "corporationID", "corp_id"}
	allianceKeys   = []string{"alliance_id", "allianceID"}
	shipKeys       = []string{"ship_type_id", "shipTypeID", "ship_id"}
)

// DecodePayload parses a JSON object, keeping numbers as json.Number so
// large identifiers are not rounded through float64.
func DecodePayload(data []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if m == nil {
		return nil, ErrMalformedPayload
	}
	return m, nil
}

// NormalizeJSON decodes data and normalizes it, keeping data as the raw payload.
func NormalizeJSON(data []byte, observedAt time.Time) (RawEvent, error) {
	m, err := DecodePayload(data)
	if err != nil {
		return RawEvent{}, err
	}
	ev, err := normalize(m, observedAt)
	if err != nil {
		return RawEvent{}, err
	}
	ev.Payload = append(json.RawMessage(nil), data...)
	return ev, nil
}

// Normalize converts a decoded killmail object of any supported shape into a
// RawEvent. The killmail ID and solar system ID are mandatory.
func Normalize(m map[string]interface{}, observedAt time.Time) (RawEvent, error) {
	ev, err := normalize(m, observedAt)
	if err != nil {
		return RawEvent{}, err
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return RawEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	ev.Payload = payload
	return ev, nil
}

func normalize(m map[string]interface{}, observedAt time.Time) (RawEvent, error) {
	body := m
	// {"killmail": {...}, "zkb": {...}} wraps the ESI body.
	if inner, ok := m["killmail"].(map[string]interface{}); ok {
		body = inner
	}
	zkb, _ := m["zkb"].(map[string]interface{})
	if zkb == nil {
		zkb, _ = body["zkb"].(map[string]interface{})
	}

	ev := RawEvent{ObservedAt: observedAt}

	id, ok := FirstID(body, killmailIDKeys...)
	if !ok {
		if id, ok = FirstID(m, killmailIDKeys...); !ok {
			return RawEvent{}, &MissingFieldError{Field: "killmail_id"}
		}
	}
	ev.KillmailID = id

	sys, ok := FirstID(body, systemIDKeys...)
	if !ok {
		return RawEvent{}, &MissingFieldError{Field: "solar_system_id"}
	}
	ev.SystemID = sys

	ev.Hash = firstString(m, "hash")
	if ev.Hash == "" && zkb != nil {
		ev.Hash = firstString(zkb, "hash")
	}

	if zkb != nil {
		ev.TotalValue = ParseFloat(zkb["totalValue"])
	}
	if ev.TotalValue == 0 {
		ev.TotalValue = ParseFloat(firstValue(body, "total_value", "totalValue", "value"))
	}

	ev.OccurredAt = parseTime(firstString(body, timeKeys...))

	if victim, ok := body["victim"].(map[string]interface{}); ok {
		ev.Victim = partyFrom(victim)
	}

	if attackers, ok := body["attackers"].([]interface{}); ok {
		ev.Attackers = make([]Attacker, 0, len(attackers))
		for _, raw := range attackers {
			a, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			dmg, _ := ParseID(a["damage_done"])
			final, _ := a["final_blow"].(bool)
			ev.Attackers = append(ev.Attackers, Attacker{
				PartyRef:   partyFrom(a),
				DamageDone: dmg,
				FinalBlow:  final,
			})
		}
	}

	return ev, nil
}

func partyFrom(m map[string]interface{}) PartyRef {
	var p PartyRef
	p.CharacterID, _ = FirstID(m, characterKeys...)
	p.CorporationID, _ = FirstID(m, corporationKey...)
	p.AllianceID, _ = FirstID(m, allianceKeys...)
	p.ShipTypeID, _ = FirstID(m, shipKeys...)
	return p
}

func firstValue(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
