// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidLevel(t *testing.T) {
	if !ValidLevel("info") {
		t.Error("info should be valid")
	}
	if ValidLevel("loud") {
		t.Error("loud should be invalid")
	}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log output, got none")
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(line), &out); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, line)
	}
	return out
}

//nolint:paralleltest // mutates the global logger
func TestCtxAddsIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	SetLogger(NewTestLogger(&buf))
	defer SetLogger(prev)

	ctx := ContextWithCorrelationID(context.Background(), "abc12345")
	ctx = ContextWithKillmailID(ctx, 100)
	Ctx(ctx).Info().Msg("processed")

	out := decodeLine(t, &buf)
	if out["correlation_id"] != "abc12345" {
		t.Errorf("correlation_id = %v", out["correlation_id"])
	}
	if out["killmail_id"] != float64(100) {
		t.Errorf("killmail_id = %v", out["killmail_id"])
	}
	if out["message"] != "processed" {
		t.Errorf("message = %v", out["message"])
	}
}

func TestContextWithNewCorrelationIDKeepsExisting(t *testing.T) {
	t.Parallel()

	ctx := ContextWithCorrelationID(context.Background(), "keepme")
	if got := CorrelationIDFromContext(ContextWithNewCorrelationID(ctx)); got != "keepme" {
		t.Errorf("got %q, want existing id preserved", got)
	}

	fresh := CorrelationIDFromContext(ContextWithNewCorrelationID(context.Background()))
	if len(fresh) != 8 {
		t.Errorf("generated id %q should be 8 characters", fresh)
	}
}

//nolint:paralleltest // mutates the global level
func TestSlogHandlerWritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	logger := slog.New(NewSlogHandler(NewTestLogger(&buf))).WithGroup("supervisor")

	logger.Warn("service restarted", "service", "gateway", "attempt", 3)

	out := decodeLine(t, &buf)
	if out["level"] != "warn" {
		t.Errorf("level = %v", out["level"])
	}
	if out["supervisor.service"] != "gateway" {
		t.Errorf("grouped key missing: %v", out)
	}
	if out["supervisor.attempt"] != float64(3) {
		t.Errorf("attempt = %v", out["supervisor.attempt"])
	}
}
