// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/killwatch/internal/logging"
	"github.com/tomtom215/killwatch/internal/metrics"
	"github.com/tomtom215/killwatch/internal/pipeline"
)

func newBackfillCmd() *cobra.Command {
	var (
		hours   int
		systems []int64
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Bulk load recent kills for tracked systems and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if hours < 1 {
				return fmt.Errorf("--hours must be at least 1")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := logging.ContextWithNewCorrelationID(cmd.Context())
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.fallback.BulkLoad(ctx, time.Duration(hours)*time.Hour, systems)
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d chunk(s) failed", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "look-back window in hours")
	cmd.Flags().Int64SliceVar(&systems, "systems", nil, "system ids to load (default: tracked systems)")
	return cmd
}

func newProcessCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "process <killmail-id> <hash>",
		Short: "Fetch one killmail and run it through the pipeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid killmail id %q", args[0])
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := logging.ContextWithNewCorrelationID(cmd.Context())
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			kill, err := a.feed.GetKillmail(ctx, id, args[1])
			if err != nil {
				return fmt.Errorf("fetch killmail %d: %w", id, err)
			}
			metrics.EventsReceived.WithLabelValues("manual").Inc()
			result := a.pipeline.Process(ctx, kill, force)
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if result.Status == pipeline.StatusError {
				return fmt.Errorf("pipeline: %s", result.Reason)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "notify even if the killmail matches nothing tracked")
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
