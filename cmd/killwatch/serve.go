// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/killwatch/internal/api"
	"github.com/tomtom215/killwatch/internal/ingest"
	"github.com/tomtom215/killwatch/internal/logging"
	"github.com/tomtom215/killwatch/internal/supervisor"
	"github.com/tomtom215/killwatch/internal/supervisor/services"
	"github.com/tomtom215/killwatch/internal/tracking"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the realtime pipeline, fallback poller and admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	defer a.Close()
	cfg := a.cfg

	gateway := ingest.New(&cfg.Feed, a.pipeline.ProcessKill,
		ingest.WithResolver(a.feed),
		ingest.WithSubscription(func() []int64 { return a.holder.Load().Systems() }),
		ingest.WithDispatchWorkers(cfg.Directory.Workers),
	)
	gateway.OnConnect(a.fallback.OnConnected)
	gateway.OnDisconnect(a.fallback.OnDisconnected)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddIngestService(gateway)
	tree.AddIngestService(a.fallback)
	tree.AddTrackingService(a.refresher)

	var subscription *services.SubscriptionService
	if cfg.Feed.CallbackURL != "" {
		subscription = services.NewSubscriptionService(a.feed, cfg.Feed.SubscriberID, cfg.Feed.CallbackURL,
			func() []int64 { return a.holder.Load().Systems() }, time.Hour)
		tree.AddIngestService(subscription)
	}

	a.holder.OnChange(func(*tracking.Set) {
		gateway.Resubscribe()
		if subscription != nil {
			subscription.Refresh()
		}
	})

	if cfg.Server.Enabled {
		handler := api.NewHandler(api.Deps{
			Pipeline:   a.pipeline,
			Killmails:  a.feed,
			Feed:       a.feed,
			Store:      a.store,
			Fallback:   a.fallback,
			Gateway:    gateway,
			Tracked:    a.holder,
			Source:     a.source,
			Refresher:  a.refresher,
			BulkWindow: cfg.Fallback.BulkWindow,
		})
		server := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           api.NewRouter(handler, api.MiddlewareConfigFrom(&cfg.Server)),
			ReadHeaderTimeout: 10 * time.Second,
			// Bulk loads can run for minutes.
			WriteTimeout: 15 * time.Minute,
			IdleTimeout:  60 * time.Second,
		}
		tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
		logging.Info().Str("addr", cfg.Server.Addr).Msg("Admin API enabled")
	}

	logging.Info().Str("websocket_url", cfg.Feed.WebsocketURL).Msg("Starting Killwatch")
	err := tree.Serve(ctx)

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}
	if errors.Is(err, context.Canceled) {
		logging.Info().Msg("Killwatch stopped")
		return nil
	}
	return err
}
