// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Package config loads Killwatch configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import "time"

// Config is the root configuration object. It is loaded once at startup and
// passed explicitly to each component constructor.
type Config struct {
	Notifications NotificationsConfig `koanf:"notifications"`
	Tracking      TrackingConfig      `koanf:"tracking"`
	Cache         CacheConfig         `koanf:"cache"`
	Dedup         DedupConfig         `koanf:"dedup"`
	Directory     DirectoryConfig     `koanf:"directory"`
	Feed          FeedConfig          `koanf:"feed"`
	Fallback      FallbackConfig      `koanf:"fallback"`
	Persistence   PersistenceConfig   `koanf:"persistence"`
	Notify        NotifyConfig        `koanf:"notify"`
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// NotificationsConfig holds the notification toggles consulted by the
// tracking matcher.
type NotificationsConfig struct {
	Enabled          bool `koanf:"enabled"`
	SystemEnabled    bool `koanf:"system_enabled"`
	CharacterEnabled bool `koanf:"character_enabled"`
}

// TrackingConfig describes where the watch-list comes from.
type TrackingConfig struct {
	// Source is "static" (Systems/Characters below) or "store" (persisted watch-list tables).
	Source          string        `koanf:"source" validate:"oneof=static store"`
	Systems         []int64       `koanf:"systems"`
	Characters      []int64       `koanf:"characters"`
	RefreshInterval time.Duration `koanf:"refresh_interval" validate:"min=1s"`
}

// CacheConfig selects the cache store backend and the directory entity TTLs.
type CacheConfig struct {
	Backend      string        `koanf:"backend" validate:"oneof=memory badger redis"`
	BadgerPath   string        `koanf:"badger_path"`
	RedisAddr    string        `koanf:"redis_addr"`
	RedisDB      int           `koanf:"redis_db" validate:"min=0"`
	RedisPrefix  string        `koanf:"redis_prefix"`
	EntityTTL    time.Duration `koanf:"entity_ttl" validate:"min=1m"`
	SystemTTL    time.Duration `koanf:"system_ttl" validate:"min=1m"`
	NotFoundTTL  time.Duration `koanf:"not_found_ttl" validate:"min=1s"`
	JanitorEvery time.Duration `koanf:"janitor_every" validate:"min=1s"`
}

// DedupConfig controls the deduplication window.
type DedupConfig struct {
	Retention time.Duration `koanf:"retention" validate:"min=1m"`
}

// DirectoryConfig configures the entity directory (ESI) client.
type DirectoryConfig struct {
	BaseURL       string        `koanf:"base_url" validate:"required,url"`
	UserAgent     string        `koanf:"user_agent" validate:"required"`
	Timeout       time.Duration `koanf:"timeout" validate:"min=100ms"`
	RatePerSecond float64       `koanf:"rate_per_second" validate:"gt=0"`
	Burst         int           `koanf:"burst" validate:"min=1"`
	MaxRetries    int           `koanf:"max_retries" validate:"min=0,max=10"`
	Workers       int           `koanf:"workers" validate:"min=1,max=64"`
}

// FeedConfig configures the killmail feed REST client and the realtime socket.
type FeedConfig struct {
	BaseURL          string        `koanf:"base_url" validate:"required,url"`
	WebsocketURL     string        `koanf:"websocket_url" validate:"required"`
	Timeout          time.Duration `koanf:"timeout" validate:"min=100ms"`
	RatePerSecond    float64       `koanf:"rate_per_second" validate:"gt=0"`
	Burst            int           `koanf:"burst" validate:"min=1"`
	MaxRetries       int           `koanf:"max_retries" validate:"min=0,max=10"`
	SubscriberID     string        `koanf:"subscriber_id"`
	CallbackURL      string        `koanf:"callback_url"`
	ReconnectInitial time.Duration `koanf:"reconnect_initial" validate:"min=100ms"`
	ReconnectMax     time.Duration `koanf:"reconnect_max"`
}

// FallbackConfig tunes polling while the realtime feed is down, and bulk loads.
type FallbackConfig struct {
	PollInterval    time.Duration `koanf:"poll_interval" validate:"min=1s"`
	PollConcurrency int           `koanf:"poll_concurrency" validate:"min=1,max=64"`
	PollWindow      time.Duration `koanf:"poll_window" validate:"min=1m"`
	BulkChunkSize   int           `koanf:"bulk_chunk_size" validate:"min=1,max=1000"`
	BulkWindow      time.Duration `koanf:"bulk_window" validate:"min=1h"`
	BulkKillLimit   int           `koanf:"bulk_kill_limit" validate:"min=1"`
}

// PersistenceConfig selects the durable killmail store.
type PersistenceConfig struct {
	Driver string `koanf:"driver" validate:"oneof=duckdb postgres"`
	DSN    string `koanf:"dsn"`
}

// NotifyConfig selects and configures the notification sink. Sink "none"
// turns delivery off; dispatches then report "disabled".
type NotifyConfig struct {
	Sink         string        `koanf:"sink" validate:"oneof=none log webhook nats kafka"`
	WebhookURL   string        `koanf:"webhook_url"`
	NATSURL      string        `koanf:"nats_url"`
	Topic        string        `koanf:"topic"`
	KafkaBrokers []string      `koanf:"kafka_brokers"`
	Timeout      time.Duration `koanf:"timeout" validate:"min=100ms"`
	Workers      int           `koanf:"workers" validate:"min=1,max=64"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Addr            string        `koanf:"addr"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig mirrors logging.Config for the file and env layers.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}
