// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/killwatch/internal/fallback"
	"github.com/tomtom215/killwatch/internal/ingest"
)

const readyTimeout = 5 * time.Second

// HealthLive reports that the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

type readiness struct {
	Ready       bool              `json:"ready"`
	Checks      map[string]string `json:"checks"`
	Mode        string            `json:"mode"`
	Realtime    bool              `json:"realtime_connected"`
	UptimeSecs  float64           `json:"uptime_seconds"`
	CheckedAtMs int64             `json:"checked_at_ms"`
}

// HealthReady checks the feed API and the persistence store. A dropped
// realtime connection does not make the service unready, since the fallback
// poller covers it.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	out := readiness{
		Ready:       true,
		Checks:      map[string]string{},
		Mode:        fallback.ModeConnected.String(),
		UptimeSecs:  time.Since(h.startTime).Seconds(),
		CheckedAtMs: time.Now().UnixMilli(),
	}
	check := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			out.Ready = false
			out.Checks[name] = sanitizeLogValue(err.Error())
			return
		}
		out.Checks[name] = "ok"
	}
	if h.deps.Feed != nil {
		check("feed", h.deps.Feed.Health)
	}
	if h.deps.Store != nil {
		check("persistence", h.deps.Store.Ping)
	}
	if h.deps.Fallback != nil {
		out.Mode = h.deps.Fallback.State().Mode
	}
	if h.deps.Gateway != nil {
		out.Realtime = h.deps.Gateway.Connected()
	}

	if !out.Ready {
		respondJSON(w, r, http.StatusServiceUnavailable, &APIResponse{
			Data:  out,
			Error: &APIError{Code: CodeNotReady, Message: "dependency check failed"},
		})
		return
	}
	respondOK(w, r, out)
}

type statusResponse struct {
	Fallback   fallback.State `json:"fallback"`
	Realtime   bool           `json:"realtime_connected"`
	Server     *ingest.Status `json:"server_status,omitempty"`
	Systems    []int64        `json:"tracked_systems"`
	Characters []int64        `json:"tracked_characters"`
	UptimeSecs float64        `json:"uptime_seconds"`
}

// Status reports ingestion mode, last poll, watch-list and the last
// heartbeat from the feed.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{UptimeSecs: time.Since(h.startTime).Seconds()}
	if h.deps.Fallback != nil {
		resp.Fallback = h.deps.Fallback.State()
	}
	if h.deps.Gateway != nil {
		resp.Realtime = h.deps.Gateway.Connected()
		if st, ok := h.deps.Gateway.Status(); ok {
			resp.Server = &st
		}
	}
	set := h.deps.Tracked.Load()
	resp.Systems = set.Systems()
	resp.Characters = set.Characters()
	respondOK(w, r, resp)
}
