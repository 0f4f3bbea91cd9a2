// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/killwatch/internal/logging"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks tag constraints first, then cross-field rules.
func (c *Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.ActualTag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	checks := []func() error{
		c.validateTracking,
		c.validateCache,
		c.validateFeed,
		c.validatePersistence,
		c.validateNotify,
		c.validateLogging,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateTracking() error {
	for _, id := range c.Tracking.Systems {
		if id <= 0 {
			return fmt.Errorf("TRACKING_SYSTEMS contains non-positive id %d", id)
		}
	}
	for _, id := range c.Tracking.Characters {
		if id <= 0 {
			return fmt.Errorf("TRACKING_CHARACTERS contains non-positive id %d", id)
		}
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case "badger":
		if c.Cache.BadgerPath == "" {
			return errors.New("CACHE_BADGER_PATH is required when CACHE_BACKEND=badger")
		}
	case "redis":
		if c.Cache.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required when CACHE_BACKEND=redis")
		}
	}
	return nil
}

func (c *Config) validateFeed() error {
	ws := c.Feed.WebsocketURL
	if !strings.HasPrefix(ws, "ws://") && !strings.HasPrefix(ws, "wss://") {
		return fmt.Errorf("FEED_WEBSOCKET_URL must use ws:// or wss://, got %q", ws)
	}
	if c.Feed.ReconnectMax < c.Feed.ReconnectInitial {
		return fmt.Errorf("FEED_RECONNECT_MAX (%s) must be >= FEED_RECONNECT_INITIAL (%s)",
			c.Feed.ReconnectMax, c.Feed.ReconnectInitial)
	}
	return nil
}

func (c *Config) validatePersistence() error {
	if c.Persistence.DSN == "" {
		return fmt.Errorf("DATABASE_URL is required for persistence driver %s", c.Persistence.Driver)
	}
	return nil
}

func (c *Config) validateNotify() error {
	switch c.Notify.Sink {
	case "webhook":
		if c.Notify.WebhookURL == "" {
			return errors.New("NOTIFY_WEBHOOK_URL is required when NOTIFY_SINK=webhook")
		}
	case "nats":
		if c.Notify.NATSURL == "" || c.Notify.Topic == "" {
			return errors.New("NOTIFY_NATS_URL and NOTIFY_TOPIC are required when NOTIFY_SINK=nats")
		}
	case "kafka":
		if len(c.Notify.KafkaBrokers) == 0 || c.Notify.Topic == "" {
			return errors.New("NOTIFY_KAFKA_BROKERS and NOTIFY_TOPIC are required when NOTIFY_SINK=kafka")
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is not a known level", c.Logging.Level)
	}
	return nil
}

// LogConfig converts the logging section into a logging.Config.
func (c *Config) LogConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.Format = c.Logging.Format
	cfg.Caller = c.Logging.Caller
	return cfg
}
