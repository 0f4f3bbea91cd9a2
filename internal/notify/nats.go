// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/killwatch/internal/logging"
)

// NATSSink publishes notifications to a NATS subject through Watermill.
type NATSSink struct {
	publisher message.Publisher
	topic     string

	mu     sync.RWMutex
	closed bool
}

// NewNATSSink connects to url and publishes to topic with core NATS.
func NewNATSSink(url, topic string) (*NATSSink, error) {
	logger := watermill.NewSlogLogger(logging.NewSlogLogger())

	natsOpts := []natsgo.Option{
		natsgo.Name("killwatch-notify"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return &NATSSink{publisher: pub, topic: topic}, nil
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Send(_ context.Context, n *Notification) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("nats sink is closed")
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	msg := message.NewMessage(n.ID, data)
	msg.Metadata.Set(natsgo.MsgIdHdr, n.ID)
	msg.Metadata.Set("killmail_id", strconv.FormatInt(n.KillmailID, 10))
	msg.Metadata.Set("reason", n.Reason)

	return s.publisher.Publish(s.topic, msg)
}

func (s *NATSSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.publisher.Close()
}
