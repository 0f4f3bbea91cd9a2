// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

/*
Package supervisor runs Killwatch's long-lived services under a suture v4
tree.

Services restart with suture's backoff after a crash, and each layer counts
failures on its own. Supervisor events are logged through sutureslog, which
writes into the shared zerolog logger via logging.NewSlogLogger.

Usage:

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddIngestService(gateway)
	tree.AddIngestService(coordinator)
	tree.AddTrackingService(refresher)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	err := tree.Serve(ctx)

Anything with Serve(context.Context) error is a service. Gateway,
Coordinator and Refresher implement it directly; the services subpackage
adapts net/http and the feed subscription.
*/
package supervisor
