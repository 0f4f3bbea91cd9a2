// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/killwatch/internal/fallback"
	"github.com/tomtom215/killwatch/internal/logging"
	"github.com/tomtom215/killwatch/internal/tracking"
)

type trackingList struct {
	Kind string  `json:"kind"`
	IDs  []int64 `json:"ids"`
}

type trackingEdit struct {
	Kind    string  `json:"kind"`
	Applied []int64 `json:"applied"`
	IDs     []int64 `json:"ids"`
}

// trackingEditRequest is the optional body of POST and DELETE on
// /api/v1/tracking/{kind}. IDs accepts any shape fallback.ExtractIDs does.
type trackingEditRequest struct {
	IDs interface{} `json:"ids"`
}

// ListTracked returns the tracked ids of one kind.
func (h *Handler) ListTracked(w http.ResponseWriter, r *http.Request) {
	kind, ok := tracking.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "unknown tracking kind", nil)
		return
	}
	respondOK(w, r, trackingList{Kind: string(kind), IDs: idsOf(h.deps.Tracked.Load(), kind)})
}

// AddTracked adds the id in the path, or the ids in the body.
func (h *Handler) AddTracked(w http.ResponseWriter, r *http.Request) {
	if h.deps.Source == nil {
		respondError(w, r, http.StatusNotImplemented, CodeNotConfigured, "watch-list editing is not configured", nil)
		return
	}
	h.editTracked(w, r, h.deps.Source.Add)
}

// RemoveTracked removes the id in the path, or the ids in the body.
func (h *Handler) RemoveTracked(w http.ResponseWriter, r *http.Request) {
	if h.deps.Source == nil {
		respondError(w, r, http.StatusNotImplemented, CodeNotConfigured, "watch-list editing is not configured", nil)
		return
	}
	h.editTracked(w, r, h.deps.Source.Remove)
}

func (h *Handler) editTracked(w http.ResponseWriter, r *http.Request, apply func(context.Context, tracking.Kind, int64) error) {
	kind, ok := tracking.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "unknown tracking kind", nil)
		return
	}

	var ids []int64
	if raw := chi.URLParam(r, "id"); raw != "" {
		ids = fallback.ExtractIDs(raw)
	} else {
		var req trackingEditRequest
		if err := decodeBody(r, &req); err != nil {
			respondError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid JSON body", err)
			return
		}
		ids = fallback.ExtractIDs(req.IDs)
	}
	if len(ids) == 0 {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "no valid ids", nil)
		return
	}

	for _, id := range ids {
		if err := apply(r.Context(), kind, id); err != nil {
			respondError(w, r, http.StatusInternalServerError, CodeInternal, "failed to update watch-list", err)
			return
		}
	}

	if h.deps.Refresher != nil {
		if err := h.deps.Refresher.Refresh(r.Context()); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Watch-list refresh after edit failed")
		}
	}
	logging.Ctx(r.Context()).Info().
		Str("kind", string(kind)).
		Str("method", r.Method).
		Ints64("ids", ids).
		Msg("Watch-list updated")

	respondOK(w, r, trackingEdit{Kind: string(kind), Applied: ids, IDs: idsOf(h.deps.Tracked.Load(), kind)})
}

func idsOf(set *tracking.Set, kind tracking.Kind) []int64 {
	if kind == tracking.KindCharacter {
		return set.Characters()
	}
	return set.Systems()
}
