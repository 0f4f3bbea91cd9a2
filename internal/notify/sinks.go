// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/killwatch/internal/config"
	"github.com/tomtom215/killwatch/internal/logging"
	"github.com/tomtom215/killwatch/internal/upstream"
)

// NewSink builds the sink selected by cfg.
func NewSink(cfg *config.NotifyConfig) (Sink, error) {
	switch cfg.Sink {
	case "none":
		return DisabledSink{}, nil
	case "log", "":
		return NewLogSink(logging.WithComponent("notify")), nil
	case "webhook":
		return NewWebhookSink(cfg.WebhookURL, cfg.Timeout)
	case "nats":
		return NewNATSSink(cfg.NATSURL, cfg.Topic)
	case "kafka":
		return NewKafkaSink(cfg.KafkaBrokers, cfg.Topic, cfg.Timeout)
	default:
		return nil, fmt.Errorf("notify: unknown sink %q", cfg.Sink)
	}
}

// DisabledSink delivers nothing.
type DisabledSink struct{}

func (DisabledSink) Name() string                              { return "none" }
func (DisabledSink) Send(context.Context, *Notification) error { return ErrDisabled }
func (DisabledSink) Close() error                              { return nil }

// LogSink writes notifications to the structured log.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, n *Notification) error {
	s.logger.Info().
		Str("notification_id", n.ID).
		Int64("killmail_id", n.KillmailID).
		Int64("system_id", n.SystemID).
		Str("reason", n.Reason).
		Str("title", n.Title).
		Str("url", n.URL).
		Msg(n.Body)
	return nil
}

func (s *LogSink) Close() error { return nil }

// webhookPayload carries a chat-friendly content line next to the full
// notification.
type webhookPayload struct {
	Content      string        `json:"content"`
	Notification *Notification `json:"notification"`
}

// WebhookSink POSTs notifications as JSON. Transient failures are retried
// with backoff inside Send.
type WebhookSink struct {
	client *upstream.Client
}

func NewWebhookSink(url string, timeout time.Duration) (*WebhookSink, error) {
	client, err := upstream.New(upstream.Config{
		Name:       "webhook",
		BaseURL:    url,
		UserAgent:  "killwatch",
		Timeout:    timeout,
		MaxRetries: 3,
	}, nil)
	if err != nil {
		return nil, err
	}
	return &WebhookSink{client: client}, nil
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Send(ctx context.Context, n *Notification) error {
	return s.client.PostJSON(ctx, "", webhookPayload{
		Content:      n.Title + "\n" + n.Body + "\n" + n.URL,
		Notification: n,
	}, nil)
}

func (s *WebhookSink) Close() error { return nil }
