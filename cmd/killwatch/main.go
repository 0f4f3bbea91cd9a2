// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Command killwatch watches the killmail feed for tracked solar systems and
// characters and sends a notification for every matching kill.
//
//	killwatch serve                      run the pipeline and the admin API
//	killwatch backfill --hours 24        one-shot bulk load of tracked systems
//	killwatch process <id> <hash> --force run one killmail through the pipeline
//
// Configuration comes from struct defaults, an optional YAML file
// (--config, CONFIG_PATH, or ./killwatch.yaml) and environment variables,
// in that order of precedence.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomtom215/killwatch/internal/config"
	"github.com/tomtom215/killwatch/internal/logging"
)

var version = "dev"

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "killwatch:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "killwatch",
		Short:         "Killmail tracking and notification pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newServeCmd(), newBackfillCmd(), newProcessCmd())
	return root
}

// loadConfig loads configuration and initializes logging from it.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	return cfg, nil
}
