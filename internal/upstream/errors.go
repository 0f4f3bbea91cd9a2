// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrNotFound is matched by an *Error carrying HTTP 404.
var ErrNotFound = errors.New("upstream: not found")

// Error describes a failed upstream call.
type Error struct {
	Client     string
	Method     string
	Path       string
	StatusCode int // 0 when no response was received
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s %s: %v", e.Client, e.Method, e.Path, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s %s %s: HTTP %d: %s", e.Client, e.Method, e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s %s: HTTP %d", e.Client, e.Method, e.Path, e.StatusCode)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches ErrNotFound for 404 responses.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Transient reports whether retrying later may succeed: transport failures,
// timeouts, rate limiting and server errors.
func (e *Error) Transient() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode == 420: // ESI error-limited
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err is worth retrying at the caller level.
// Open circuit breakers and deadline expiries count as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Transient()
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
