// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Package models holds the killmail data types shared by every pipeline stage.
//
// Identifier fields use 0 to mean "absent". Feed and directory identifiers
// are always positive, so the zero value never collides with a real entity.
package models

import (
	"time"

	"github.com/goccy/go-json"
)

// PartyRef holds the raw, unresolved identifiers of one participant.
type PartyRef struct {
	CharacterID   int64 `json:"character_id,omitempty"`
	CorporationID int64 `json:"corporation_id,omitempty"`
	AllianceID    int64 `json:"alliance_id,omitempty"`
	ShipTypeID    int64 `json:"ship_type_id,omitempty"`
}

// Attacker is a PartyRef plus the per-attacker combat details.
type Attacker struct {
	PartyRef
	DamageDone int64 `json:"damage_done,omitempty"`
	FinalBlow  bool  `json:"final_blow,omitempty"`
}

// RawEvent is one killmail as produced by ingestion. It is not modified
// after Normalize returns it.
type RawEvent struct {
	KillmailID int64           `json:"killmail_id"`
	Hash       string          `json:"hash"`
	SystemID   int64           `json:"solar_system_id"`
	Victim     PartyRef        `json:"victim"`
	Attackers  []Attacker      `json:"attackers"`
	TotalValue float64         `json:"total_value"`
	OccurredAt time.Time       `json:"killmail_time"`
	ObservedAt time.Time       `json:"observed_at"`
	Payload    json.RawMessage `json:"-"`
}

// CharacterIDs returns the victim and attacker character IDs, skipping absent ones.
func (e *RawEvent) CharacterIDs() []int64 {
	ids := make([]int64, 0, len(e.Attackers)+1)
	if e.Victim.CharacterID > 0 {
		ids = append(ids, e.Victim.CharacterID)
	}
	for i := range e.Attackers {
		if id := e.Attackers[i].CharacterID; id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// FinalBlow returns the attacker credited with the final blow, if any.
func (e *RawEvent) FinalBlow() (Attacker, bool) {
	for _, a := range e.Attackers {
		if a.FinalBlow {
			return a, true
		}
	}
	return Attacker{}, false
}

// AttackerSummary is an attacker with display names resolved.
type AttackerSummary struct {
	CharacterID     int64  `json:"character_id,omitempty"`
	CharacterName   string `json:"character_name,omitempty"`
	CorporationName string `json:"corporation_name,omitempty"`
	AllianceName    string `json:"alliance_name,omitempty"`
	ShipName        string `json:"ship_name,omitempty"`
	DamageDone      int64  `json:"damage_done,omitempty"`
	FinalBlow       bool   `json:"final_blow,omitempty"`
}

// EnrichedEvent is a RawEvent plus resolved display fields. Optional names
// that could not be resolved are left empty.
type EnrichedEvent struct {
	RawEvent

	VictimName        string            `json:"victim_name,omitempty"`
	VictimCorporation string            `json:"victim_corporation,omitempty"`
	VictimAlliance    string            `json:"victim_alliance,omitempty"`
	ShipName          string            `json:"ship_name,omitempty"`
	SystemName        string            `json:"system_name"`
	SecurityStatus    float64           `json:"security_status"`
	AttackerSummaries []AttackerSummary `json:"attackers_summary"`
	Persisted         bool              `json:"persisted"`
}
