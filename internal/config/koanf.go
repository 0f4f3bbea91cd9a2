// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in priority order.
var DefaultConfigPaths = []string{
	"killwatch.yaml",
	"killwatch.yml",
	"/etc/killwatch/config.yaml",
	"/etc/killwatch/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults, applied before file and env layers.
func defaultConfig() *Config {
	return &Config{
		Notifications: NotificationsConfig{
			Enabled:          true,
			SystemEnabled:    true,
			CharacterEnabled: true,
		},
		Tracking: TrackingConfig{
			Source:          "static",
			RefreshInterval: time.Minute,
		},
		Cache: CacheConfig{
			Backend:      "memory",
			BadgerPath:   "/data/killwatch/cache",
			RedisAddr:    "127.0.0.1:6379",
			RedisPrefix:  "killwatch:",
			EntityTTL:    24 * time.Hour,
			SystemTTL:    24 * time.Hour,
			NotFoundTTL:  10 * time.Minute,
			JanitorEvery: 5 * time.Minute,
		},
		Dedup: DedupConfig{
			Retention: 24 * time.Hour,
		},
		Directory: DirectoryConfig{
			BaseURL:       "https://esi.evetech.net/latest",
			UserAgent:     "killwatch/1.0 (+https://github.com/tomtom215/killwatch)",
			Timeout:       10 * time.Second,
			RatePerSecond: 20,
			Burst:         5,
			MaxRetries:    3,
			Workers:       4,
		},
		Feed: FeedConfig{
			BaseURL:          "http://127.0.0.1:4004",
			WebsocketURL:     "ws://127.0.0.1:4004/socket/websocket",
			Timeout:          15 * time.Second,
			RatePerSecond:    2,
			Burst:            2,
			MaxRetries:       3,
			SubscriberID:     "killwatch",
			ReconnectInitial: time.Second,
			ReconnectMax:     32 * time.Second,
		},
		Fallback: FallbackConfig{
			PollInterval:    30 * time.Second,
			PollConcurrency: 4,
			PollWindow:      time.Hour,
			BulkChunkSize:   20,
			BulkWindow:      24 * time.Hour,
			BulkKillLimit:   200,
		},
		Persistence: PersistenceConfig{
			Driver: "duckdb",
			DSN:    "/data/killwatch/killwatch.duckdb",
		},
		Notify: NotifyConfig{
			Sink:    "log",
			Topic:   "killwatch.notifications",
			Timeout: 10 * time.Second,
			Workers: 2,
		},
		Server: ServerConfig{
			Enabled:         true,
			Addr:            ":8085",
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   60,
			RateLimitWindow: time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration using koanf with three layers:
//  1. built-in defaults
//  2. optional YAML config file
//  3. environment variables (highest priority)
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file path; an empty path skips the file layer.
func LoadFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// FEED_BASE_URL -> feed.base_url
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when they arrive as strings.
var sliceConfigPaths = []string{
	"tracking.systems",
	"tracking.characters",
	"notify.kafka_brokers",
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"notifications_enabled":           "notifications.enabled",
	"system_notifications_enabled":    "notifications.system_enabled",
	"character_notifications_enabled": "notifications.character_enabled",

	"tracking_source":           "tracking.source",
	"tracking_systems":          "tracking.systems",
	"tracking_characters":       "tracking.characters",
	"tracking_refresh_interval": "tracking.refresh_interval",

	"cache_backend":       "cache.backend",
	"cache_badger_path":   "cache.badger_path",
	"redis_addr":          "cache.redis_addr",
	"redis_db":            "cache.redis_db",
	"redis_prefix":        "cache.redis_prefix",
	"cache_entity_ttl":    "cache.entity_ttl",
	"cache_system_ttl":    "cache.system_ttl",
	"cache_not_found_ttl": "cache.not_found_ttl",

	"dedup_retention": "dedup.retention",

	"esi_base_url":        "directory.base_url",
	"esi_user_agent":      "directory.user_agent",
	"esi_timeout":         "directory.timeout",
	"esi_rate_per_second": "directory.rate_per_second",
	"esi_burst":           "directory.burst",
	"esi_max_retries":     "directory.max_retries",
	"enrichment_workers":  "directory.workers",

	"feed_base_url":          "feed.base_url",
	"feed_websocket_url":     "feed.websocket_url",
	"feed_timeout":           "feed.timeout",
	"feed_rate_per_second":   "feed.rate_per_second",
	"feed_max_retries":       "feed.max_retries",
	"feed_subscriber_id":     "feed.subscriber_id",
	"feed_callback_url":      "feed.callback_url",
	"feed_reconnect_initial": "feed.reconnect_initial",
	"feed_reconnect_max":     "feed.reconnect_max",

	"fallback_poll_interval":    "fallback.poll_interval",
	"fallback_poll_concurrency": "fallback.poll_concurrency",
	"fallback_poll_window":      "fallback.poll_window",
	"bulk_chunk_size":           "fallback.bulk_chunk_size",
	"bulk_window":               "fallback.bulk_window",
	"bulk_kill_limit":           "fallback.bulk_kill_limit",

	"persistence_driver": "persistence.driver",
	"database_url":       "persistence.dsn",

	"notify_sink":          "notify.sink",
	"notify_webhook_url":   "notify.webhook_url",
	"notify_nats_url":      "notify.nats_url",
	"notify_topic":         "notify.topic",
	"notify_kafka_brokers": "notify.kafka_brokers",
	"notify_timeout":       "notify.timeout",
	"notify_workers":       "notify.workers",

	"http_enabled":          "server.enabled",
	"http_addr":             "server.addr",
	"cors_origins":          "server.cors_origins",
	"rate_limit_requests":   "server.rate_limit_reqs",
	"rate_limit_window":     "server.rate_limit_window",
	"http_shutdown_timeout": "server.shutdown_timeout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
