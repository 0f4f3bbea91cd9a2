// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/killwatch/internal/fallback"
	"github.com/tomtom215/killwatch/internal/metrics"
	"github.com/tomtom215/killwatch/internal/pipeline"
	"github.com/tomtom215/killwatch/internal/upstream"
)

const (
	maxBodyBytes   = 1 << 20
	maxWindowHours = 24 * 90
)

// bulkLoadRequest is the body of POST /api/v1/bulk-load. Systems accepts
// any id shape fallback.ExtractIDs understands; empty means every tracked
// system.
type bulkLoadRequest struct {
	WindowHours float64     `json:"window_hours"`
	Systems     interface{} `json:"systems"`
}

// BulkLoad backfills the requested window and reports per-chunk failures.
// Partial success is still 200.
func (h *Handler) BulkLoad(w http.ResponseWriter, r *http.Request) {
	var req bulkLoadRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid JSON body", err)
		return
	}
	if req.WindowHours < 0 || req.WindowHours > maxWindowHours {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "window_hours out of range", nil)
		return
	}
	window := h.deps.BulkWindow
	if req.WindowHours > 0 {
		window = time.Duration(req.WindowHours * float64(time.Hour))
	}

	result := h.deps.Fallback.BulkLoad(r.Context(), window, fallback.ExtractIDs(req.Systems))
	respondOK(w, r, result)
}

// ProcessKillmail fetches a killmail by id and hash and runs it through the
// pipeline. force=true bypasses the watch-list.
func (h *Handler) ProcessKillmail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "killmail id must be a positive integer", nil)
		return
	}
	hash := r.URL.Query().Get("hash")
	if hash == "" {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "hash query parameter is required", nil)
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	kill, err := h.deps.Killmails.GetKillmail(r.Context(), id, hash)
	switch {
	case errors.Is(err, upstream.ErrNotFound):
		respondError(w, r, http.StatusNotFound, CodeNotFound, "killmail not found", err)
		return
	case err != nil:
		respondError(w, r, http.StatusBadGateway, CodeUpstream, "failed to fetch killmail", err)
		return
	}

	metrics.EventsReceived.WithLabelValues("manual").Inc()
	res := h.deps.Pipeline.Process(r.Context(), kill, force)
	if res.Status == pipeline.StatusError {
		respondJSON(w, r, http.StatusUnprocessableEntity, &APIResponse{
			Data:  res,
			Error: &APIError{Code: CodePipeline, Message: res.Reason},
		})
		return
	}
	respondOK(w, r, res)
}

func decodeBody(r *http.Request, out interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
