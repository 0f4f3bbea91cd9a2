// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tomtom215/killwatch/internal/config"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := `
tracking:
  source: store
  systems: [30000142]
  characters: [90000001]
persistence:
  driver: duckdb
  dsn: ` + filepath.Join(dir, "killwatch.duckdb") + `
notify:
  sink: none
server:
  enabled: false
logging:
  level: error
`
	path := filepath.Join(dir, "killwatch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewApp(t *testing.T) {
	cfg, err := config.LoadFile(writeConfig(t))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	set := a.holder.Load()
	if !set.HasSystem(30000142) {
		t.Error("seeded system not tracked")
	}
	if !set.HasCharacter(90000001) {
		t.Error("seeded character not tracked")
	}
	if got := a.notifier.SinkName(); got != "none" {
		t.Errorf("sink = %q, want none", got)
	}
	if mode := a.fallback.Mode().String(); mode != "connected" {
		t.Errorf("mode = %q, want connected", mode)
	}
}

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"process needs two args", []string{"process", "1"}, "accepts 2 arg(s)"},
		{"process rejects bad id", []string{"process", "abc", "hash"}, "invalid killmail id"},
		{"process rejects zero id", []string{"process", "0", "hash"}, "invalid killmail id"},
		{"backfill rejects zero hours", []string{"backfill", "--hours", "0"}, "--hours must be at least 1"},
		{"serve takes no args", []string{"serve", "extra"}, "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCmd()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetErr(&out)
			root.SetArgs(tt.args)

			err := root.Execute()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}
