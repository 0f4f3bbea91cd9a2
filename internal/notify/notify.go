// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Package notify turns matched killmails into notifications and hands them
// to a delivery sink (log, webhook, NATS or Kafka).
//
// Dispatch reports sent, disabled or error and never retries on behalf of
// the caller. Retries, when a sink has them, happen inside the sink.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/killwatch/internal/logging"
	"github.com/tomtom215/killwatch/internal/metrics"
	"github.com/tomtom215/killwatch/internal/models"
)

// ErrDisabled is returned by sinks that deliver nothing.
var ErrDisabled = errors.New("notify: delivery disabled")

// Outcome is the result of a dispatch.
type Outcome int

const (
	Sent Outcome = iota
	Disabled
	Error
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case Disabled:
		return "disabled"
	default:
		return "error"
	}
}

// Notification is the rendered, sink-independent message for one killmail.
type Notification struct {
	ID         string                `json:"id"`
	KillmailID int64                 `json:"killmail_id"`
	SystemID   int64                 `json:"solar_system_id"`
	Reason     string                `json:"reason"`
	Title      string                `json:"title"`
	Body       string                `json:"body"`
	URL        string                `json:"url"`
	Event      *models.EnrichedEvent `json:"event"`
	CreatedAt  time.Time             `json:"created_at"`
}

// Sink delivers notifications.
type Sink interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
	Close() error
}

// Notifier creates and dispatches notifications through one Sink.
type Notifier struct {
	sink    Sink
	sem     *semaphore.Weighted
	timeout time.Duration
	now     func() time.Time
}

// New creates a Notifier. At most workers dispatches run at once and each
// is bounded by timeout.
func New(sink Sink, workers int, timeout time.Duration) *Notifier {
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		sink:    sink,
		sem:     semaphore.NewWeighted(int64(workers)),
		timeout: timeout,
		now:     time.Now,
	}
}

// CreateNotification renders ev. reason is the matcher's reason.
func (n *Notifier) CreateNotification(ev *models.EnrichedEvent, reason string) *Notification {
	return &Notification{
		ID:         uuid.NewString(),
		KillmailID: ev.KillmailID,
		SystemID:   ev.SystemID,
		Reason:     reason,
		Title:      renderTitle(ev),
		Body:       renderBody(ev),
		URL:        killURL(ev.KillmailID),
		Event:      ev,
		CreatedAt:  n.now().UTC(),
	}
}

// Dispatch sends note through the sink.
func (n *Notifier) Dispatch(ctx context.Context, note *Notification) (Outcome, error) {
	defer metrics.ObserveStage("notify", time.Now())

	outcome, err := n.dispatch(ctx, note)
	metrics.NotificationOutcomes.WithLabelValues(n.sink.Name(), outcome.String()).Inc()

	log := logging.Ctx(ctx)
	switch outcome {
	case Sent:
		log.Info().Str("sink", n.sink.Name()).Str("notification_id", note.ID).Str("reason", note.Reason).
			Msg("Notification sent")
	case Disabled:
		log.Debug().Str("sink", n.sink.Name()).Msg("Notification delivery disabled")
	default:
		log.Error().Err(err).Str("sink", n.sink.Name()).Str("notification_id", note.ID).
			Msg("Notification delivery failed")
	}
	return outcome, err
}

func (n *Notifier) dispatch(ctx context.Context, note *Notification) (Outcome, error) {
	if err := n.sem.Acquire(ctx, 1); err != nil {
		return Error, fmt.Errorf("wait for dispatch slot: %w", err)
	}
	defer n.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err := n.sink.Send(ctx, note)
	switch {
	case err == nil:
		return Sent, nil
	case errors.Is(err, ErrDisabled):
		return Disabled, nil
	default:
		return Error, err
	}
}

// SinkName returns the configured sink's name.
func (n *Notifier) SinkName() string { return n.sink.Name() }

// Close closes the sink.
func (n *Notifier) Close() error { return n.sink.Close() }
