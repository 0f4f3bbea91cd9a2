// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package testinfra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// WebhookCapture is one captured request.
type WebhookCapture struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

// WebhookServer captures webhook deliveries.
type WebhookServer struct {
	server *httptest.Server

	mu         sync.Mutex
	captures   []WebhookCapture
	failFirst  int
	failStatus int
}

// NewWebhookServer starts a capture server that answers 204 by default.
// It is closed when the test ends.
func NewWebhookServer(t *testing.T) *WebhookServer {
	t.Helper()

	ws := &WebhookServer{}
	ws.server = httptest.NewServer(http.HandlerFunc(ws.handle))
	t.Cleanup(ws.server.Close)
	return ws
}

func (ws *WebhookServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	ws.mu.Lock()
	ws.captures = append(ws.captures, WebhookCapture{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: r.Header.Clone(),
		Body:    body,
	})
	status := http.StatusNoContent
	if ws.failFirst > 0 {
		ws.failFirst--
		status = ws.failStatus
	}
	ws.mu.Unlock()

	w.WriteHeader(status)
}

// URL returns the server URL.
func (ws *WebhookServer) URL() string {
	return ws.server.URL
}

// FailFirst makes the next n deliveries answer status.
func (ws *WebhookServer) FailFirst(n, status int) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.failFirst = n
	ws.failStatus = status
}

// Captures returns a copy of all captured requests.
func (ws *WebhookServer) Captures() []WebhookCapture {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := make([]WebhookCapture, len(ws.captures))
	copy(out, ws.captures)
	return out
}

// WaitForCaptures waits until at least n requests arrived or timeout passes.
func (ws *WebhookServer) WaitForCaptures(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ws.mu.Lock()
		count := len(ws.captures)
		ws.mu.Unlock()
		if count >= n {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
