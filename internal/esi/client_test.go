// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package esi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/killwatch/internal/config"
	"github.com/tomtom215/killwatch/internal/upstream"
)

func newDirectoryServer(t *testing.T) *httptest.Server {
	t.Helper()
	routes := map[string]string{
		"/latest/characters/55/":             `{"name":"Victim Pilot","corporation_id":1000,"alliance_id":99}`,
		"/latest/corporations/1000/":         `{"name":"Test Corp","ticker":"TST","alliance_id":99}`,
		"/latest/alliances/99/":              `{"name":"Test Alliance","ticker":"ALLY"}`,
		"/latest/universe/types/587/":        `{"name":"Rifter","group_id":25}`,
		"/latest/universe/systems/30000142/": `{"name":"Jita","security_status":0.9459,"constellation_id":20000020}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("datasource") != "tranquility" {
			t.Errorf("missing datasource on %s", r.URL)
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"not found"}`)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(&config.DirectoryConfig{
		BaseURL:       srv.URL + "/latest",
		UserAgent:     "killwatch-test",
		Timeout:       2 * time.Second,
		RatePerSecond: 1000,
		Burst:         100,
		MaxRetries:    1,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestLookupKinds(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, newDirectoryServer(t))
	tests := []struct {
		kind Kind
		id   int64
		want Entity
	}{
		{KindCharacter, 55, Entity{ID: 55, Kind: KindCharacter, Name: "Victim Pilot", CorporationID: 1000, AllianceID: 99}},
		{KindCorporation, 1000, Entity{ID: 1000, Kind: KindCorporation, Name: "Test Corp", Ticker: "TST", AllianceID: 99}},
		{KindAlliance, 99, Entity{ID: 99, Kind: KindAlliance, Name: "Test Alliance", Ticker: "ALLY"}},
		{KindType, 587, Entity{ID: 587, Kind: KindType, Name: "Rifter"}},
		{KindSystem, 30000142, Entity{ID: 30000142, Kind: KindSystem, Name: "Jita", SecurityStatus: 0.9459}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, err := c.Lookup(context.Background(), tt.kind, tt.id)
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Lookup() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLookupNotFound(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, newDirectoryServer(t))
	_, err := c.GetCharacter(context.Background(), 12345)
	if !errors.Is(err, upstream.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if upstream.IsTransient(err) {
		t.Error("404 must not be transient")
	}
}

func TestLookupUnknownKind(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, newDirectoryServer(t))
	if _, err := c.Lookup(context.Background(), Kind("planet"), 1); err == nil {
		t.Error("Lookup(planet) error = nil")
	}
}
