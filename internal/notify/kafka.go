// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes notifications to a Kafka topic, keyed by killmail id so
// all notifications for one killmail land on one partition.
type KafkaSink struct {
	writer kafkaWriter
}

// NewKafkaSink creates a synchronous writer for topic.
func NewKafkaSink(brokers []string, topic string, timeout time.Duration) (*KafkaSink, error) {
	addrs := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	if len(addrs) == 0 {
		return nil, errors.New("notify: kafka brokers cannot be empty")
	}
	if topic == "" {
		return nil, errors.New("notify: kafka topic cannot be empty")
	}

	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: timeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}}, nil
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Send(ctx context.Context, n *Notification) error {
	msg, err := kafkaMessage(n)
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error { return s.writer.Close() }

func kafkaMessage(n *Notification) (kafka.Message, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode notification: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(n.KillmailID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "notification_id", Value: []byte(n.ID)},
			{Key: "reason", Value: []byte(n.Reason)},
		},
		Time: n.CreatedAt,
	}, nil
}
