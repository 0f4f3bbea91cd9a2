// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/tomtom215/killwatch/internal/logging"
)

// APIResponse is the envelope for every JSON response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

// APIError is a machine-readable error.
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// APIMeta carries tracing metadata.
type APIMeta struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Error codes.
const (
	CodeBadRequest    = "BAD_REQUEST"
	CodeNotFound      = "NOT_FOUND"
	CodeUpstream      = "UPSTREAM_ERROR"
	CodePipeline      = "PIPELINE_ERROR"
	CodeNotReady      = "NOT_READY"
	CodeInternal      = "INTERNAL_ERROR"
	CodeNotConfigured = "NOT_CONFIGURED"
)

// sanitizeLogValue escapes control characters so request data cannot forge
// log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, resp *APIResponse) {
	resp.Meta = &APIMeta{RequestID: middleware.GetReqID(r.Context()), Timestamp: time.Now().UTC()}

	data, err := json.Marshal(resp)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondOK(w http.ResponseWriter, r *http.Request, data interface{}) {
	respondJSON(w, r, http.StatusOK, &APIResponse{Success: true, Data: data})
}

// respondError writes an error envelope. err, if set, is logged but never
// returned to the client.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		logging.Ctx(r.Context()).Warn().
			Str("code", code).
			Str("error", sanitizeLogValue(err.Error())).
			Str("path", sanitizeLogValue(r.URL.Path)).
			Msg("API error")
	}
	respondJSON(w, r, status, &APIResponse{Error: &APIError{Code: code, Message: message}})
}
