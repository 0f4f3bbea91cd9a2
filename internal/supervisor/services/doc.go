// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Package services adapts components that do not speak suture's
// Serve(ctx) error contract: the admin HTTP server and the feed's push
// subscription.
package services
