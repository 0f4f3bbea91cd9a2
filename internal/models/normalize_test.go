// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package models

import (
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

var observed = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNormalizeJSONShapes(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantID     int64
		wantSystem int64
		wantHash   string
		wantVictim int64
		wantValue  float64
	}{
		{
			name: "esi body with zkb block",
			payload: `{"killmail_id":100,"solar_system_id":30000142,"killmail_time":"2026-03-01T11:59:00Z",
				"victim":{"character_id":55,"corporation_id":98000001,"ship_type_id":587},
				"attackers":[{"character_id":77,"final_blow":true,"damage_done":1200}],
				"zkb":{"hash":"abc","totalValue":12500000.5}}`,
			wantID: 100, wantSystem: 30000142, wantHash: "abc", wantVictim: 55, wantValue: 12500000.5,
		},
		{
			name:    "legacy camel case with string ids",
			payload: `{"killID":"101","hash":"def","solarSystemID":"30002187","victim":{"characterID":"56"}}`,
			wantID:  101, wantSystem: 30002187, wantHash: "def", wantVictim: 56,
		},
		{
			name:    "wrapped killmail",
			payload: `{"killmail":{"killmail_id":102,"system_id":30000144,"victim":{"character_id":57}},"zkb":{"hash":"ghi","totalValue":"99"}}`,
			wantID:  102, wantSystem: 30000144, wantHash: "ghi", wantVictim: 57, wantValue: 99,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev, err := NormalizeJSON([]byte(tt.payload), observed)
			if err != nil {
				t.Fatalf("NormalizeJSON: %v", err)
			}
			if ev.KillmailID != tt.wantID {
				t.Errorf("KillmailID = %d, want %d", ev.KillmailID, tt.wantID)
			}
			if ev.SystemID != tt.wantSystem {
				t.Errorf("SystemID = %d, want %d", ev.SystemID, tt.wantSystem)
			}
			if ev.Hash != tt.wantHash {
				t.Errorf("Hash = %q, want %q", ev.Hash, tt.wantHash)
			}
			if ev.Victim.CharacterID != tt.wantVictim {
				t.Errorf("Victim.CharacterID = %d, want %d", ev.Victim.CharacterID, tt.wantVictim)
			}
			if ev.TotalValue != tt.wantValue {
				t.Errorf("TotalValue = %v, want %v", ev.TotalValue, tt.wantValue)
			}
			if !ev.ObservedAt.Equal(observed) {
				t.Errorf("ObservedAt = %v", ev.ObservedAt)
			}
			if len(ev.Payload) == 0 {
				t.Error("raw payload should be retained")
			}
		})
	}
}

func TestNormalizeMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		field   string
	}{
		{"no killmail id", `{"solar_system_id":30000142}`, "killmail_id"},
		{"no system id", `{"killmail_id":100,"hash":"abc"}`, "solar_system_id"},
		{"unparseable system id", `{"killmail_id":100,"solar_system_id":"jita"}`, "solar_system_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NormalizeJSON([]byte(tt.payload), observed)
			if !errors.Is(err, ErrMissingField) {
				t.Fatalf("expected ErrMissingField, got %v", err)
			}
			var mfe *MissingFieldError
			if !errors.As(err, &mfe) || mfe.Field != tt.field {
				t.Errorf("expected missing field %q, got %v", tt.field, err)
			}
		})
	}
}

func TestNormalizeMalformed(t *testing.T) {
	t.Parallel()
	for _, payload := range []string{`not json`, `[1,2,3]`, `null`} {
		if _, err := NormalizeJSON([]byte(payload), observed); !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("NormalizeJSON(%q) = %v, want ErrMalformedPayload", payload, err)
		}
	}
}

func TestNormalizeMapMarshalsPayload(t *testing.T) {
	t.Parallel()
	m := map[string]interface{}{
		"killmail_id":     json.Number("100"),
		"solar_system_id": float64(30000142),
	}
	ev, err := Normalize(m, observed)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.KillmailID != 100 || ev.SystemID != 30000142 {
		t.Errorf("unexpected ids: %+v", ev)
	}
	if len(ev.Payload) == 0 {
		t.Error("payload should be marshaled from the map")
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in     interface{}
		want   int64
		wantOK bool
	}{
		{int64(5), 5, true},
		{float64(30000142), 30000142, true},
		{float64(1.5), 0, false},
		{json.Number("95465499"), 95465499, true},
		{" 42 ", 42, true},
		{"jita", 0, false},
		{"", 0, false},
		{int(0), 0, false},
		{int64(-3), 0, false},
		{nil, 0, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseID(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseID(%#v) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCharacterIDs(t *testing.T) {
	t.Parallel()
	ev := RawEvent{
		Victim: PartyRef{CharacterID: 55},
		Attackers: []Attacker{
			{PartyRef: PartyRef{CharacterID: 77}, FinalBlow: true},
			{PartyRef: PartyRef{CorporationID: 1000125}},
		},
	}
	ids := ev.CharacterIDs()
	if len(ids) != 2 || ids[0] != 55 || ids[1] != 77 {
		t.Errorf("CharacterIDs = %v", ids)
	}
	fb, ok := ev.FinalBlow()
	if !ok || fb.CharacterID != 77 {
		t.Errorf("FinalBlow = %+v, %v", fb, ok)
	}
}
