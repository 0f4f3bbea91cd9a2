// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Package testinfra provides shared test infrastructure.
//
// # Webhook capture
//
// WebhookServer records every request it receives and can be told to fail
// the first N deliveries, which is how the webhook sink's retry behaviour
// is tested:
//
//	srv := testinfra.NewWebhookServer(t)
//	srv.FailFirst(2, http.StatusServiceUnavailable)
//	// ... point the sink at srv.URL() ...
//	srv.WaitForCaptures(3, 5*time.Second)
//
// # Postgres container
//
// Behind the integration build tag, NewPostgresContainer starts a real
// Postgres with testcontainers-go for the persistence store:
//
//	pg, err := testinfra.NewPostgresContainer(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer testinfra.CleanupContainer(t, ctx, pg)
//	store, err := persistence.OpenPostgres(ctx, pg.DSN)
//
// These tests require Docker and are skipped when it is unavailable.
package testinfra
