// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/killwatch/internal/logging"
)

// Subscriber registers a push subscription. *feed.Client implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, subscriberID string, systemIDs []int64, callbackURL string) error
}

// SubscriptionService keeps the feed's HTTP push subscription current. It
// subscribes on start, again whenever Refresh is called, and on every renew
// tick. A failed registration ends Serve so the supervisor backs off and
// retries.
type SubscriptionService struct {
	sub          Subscriber
	subscriberID string
	callbackURL  string
	systems      func() []int64
	renew        time.Duration
	refresh      chan struct{}
}

// NewSubscriptionService creates the service. systems is read at each
// registration. renew <= 0 means hourly.
func NewSubscriptionService(sub Subscriber, subscriberID, callbackURL string, systems func() []int64, renew time.Duration) *SubscriptionService {
	if renew <= 0 {
		renew = time.Hour
	}
	return &SubscriptionService{
		sub:          sub,
		subscriberID: subscriberID,
		callbackURL:  callbackURL,
		systems:      systems,
		renew:        renew,
		refresh:      make(chan struct{}, 1),
	}
}

// Refresh requests a re-registration. It never blocks.
func (s *SubscriptionService) Refresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// Serve implements suture.Service.
func (s *SubscriptionService) Serve(ctx context.Context) error {
	if err := s.register(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.renew)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.refresh:
		}
		if err := s.register(ctx); err != nil {
			return err
		}
	}
}

func (s *SubscriptionService) register(ctx context.Context) error {
	systems := s.systems()
	if err := s.sub.Subscribe(ctx, s.subscriberID, systems, s.callbackURL); err != nil {
		return fmt.Errorf("register feed subscription: %w", err)
	}
	logging.Info().
		Str("subscriber_id", s.subscriberID).
		Int("systems", len(systems)).
		Msg("Feed subscription registered")
	return nil
}

func (s *SubscriptionService) String() string { return "feed-subscription" }
