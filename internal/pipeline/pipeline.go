// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Package pipeline runs every killmail, whichever path delivered it, through
// the same fixed sequence:
//
//	normalize -> dedup -> enrich -> match -> persist -> notify
//
// Normalization failures stop the run before any side effect. A duplicate or
// an untracked event is skipped. An enrichment failure releases the dedup
// record so a later delivery of the same killmail runs again. Persistence is best effort and never stops
// delivery. Sink outcomes are reported, never retried here.
//
// Process is safe for concurrent use on distinct events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/killwatch/internal/config"
	"github.com/tomtom215/killwatch/internal/dedup"
	"github.com/tomtom215/killwatch/internal/logging"
	"github.com/tomtom215/killwatch/internal/metrics"
	"github.com/tomtom215/killwatch/internal/models"
	"github.com/tomtom215/killwatch/internal/notify"
	"github.com/tomtom215/killwatch/internal/persistence"
	"github.com/tomtom215/killwatch/internal/tracking"
)

// Status is the coarse outcome of one run.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Reasons attached to skipped and failed runs. Notified runs carry the
// matcher's reason instead.
const (
	ReasonMissingField     = "missing_field"
	ReasonMalformed        = "malformed_payload"
	ReasonDuplicate        = "duplicate"
	ReasonEnrichmentFailed = "enrichment_failed"
)

// Result describes what happened to one event.
type Result struct {
	Status       Status `json:"status"`
	EventID      int64  `json:"event_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Persistence  string `json:"persistence,omitempty"`
	Notification string `json:"notification,omitempty"`
	Err          error  `json:"-"`
}

// Deduper records seen killmails. *dedup.Deduplicator implements it.
type Deduper interface {
	Check(ctx context.Context, killmailID int64) dedup.Result
	Forget(ctx context.Context, killmailID int64) error
}

// Enricher resolves names. *enrich.Engine implements it.
type Enricher interface {
	Enrich(ctx context.Context, raw models.RawEvent) (models.EnrichedEvent, error)
}

// Persister stores matched events. *persistence.Coordinator implements it.
type Persister interface {
	Persist(ctx context.Context, ev *models.EnrichedEvent) (persistence.Outcome, error)
}

// Notifier renders and delivers notifications. *notify.Notifier implements it.
type Notifier interface {
	CreateNotification(ev *models.EnrichedEvent, reason string) *notify.Notification
	Dispatch(ctx context.Context, note *notify.Notification) (notify.Outcome, error)
}

// TrackedSet supplies the current watch-list. *tracking.Holder implements it.
type TrackedSet interface {
	Load() *tracking.Set
}

// Deps are the collaborators of a Pipeline. Persister may be nil, in which
// case matched events are only notified.
type Deps struct {
	Dedup     Deduper
	Enricher  Enricher
	Tracked   TrackedSet
	Persister Persister
	Notifier  Notifier
	Toggles   config.NotificationsConfig
}

// Pipeline is the event orchestrator.
type Pipeline struct {
	deps Deps
	now  func() time.Time
}

// New creates a Pipeline.
func New(deps Deps) *Pipeline {
	return &Pipeline{deps: deps, now: time.Now}
}

// Process runs input through the pipeline. input may be a models.RawEvent,
// a *models.RawEvent, a decoded JSON object, or raw JSON bytes. force
// bypasses the tracking decision only.
func (p *Pipeline) Process(ctx context.Context, input interface{}, force bool) Result {
	start := time.Now()
	if logging.CorrelationIDFromContext(ctx) == "" {
		ctx = logging.ContextWithNewCorrelationID(ctx)
	}

	res := p.process(ctx, input, force)

	metrics.PipelineOutcomes.WithLabelValues(string(res.Status), res.Reason).Inc()
	metrics.ObserveStage("total", start)
	return res
}

// ProcessKill adapts Process to the gateway and fallback callbacks.
func (p *Pipeline) ProcessKill(ctx context.Context, kill map[string]interface{}) {
	p.Process(ctx, kill, false)
}

func (p *Pipeline) process(ctx context.Context, input interface{}, force bool) Result {
	raw, err := p.normalize(input)
	if err != nil {
		reason := ReasonMalformed
		if errors.Is(err, models.ErrMissingField) {
			reason = ReasonMissingField
		}
		logging.Ctx(ctx).Warn().Err(err).Msg("Rejecting killmail payload")
		return Result{Status: StatusError, Reason: reason, Err: err}
	}

	ctx = logging.ContextWithKillmailID(ctx, raw.KillmailID)
	log := logging.Ctx(ctx)

	if p.deps.Dedup.Check(ctx, raw.KillmailID) == dedup.ResultDuplicate {
		log.Debug().Msg("Skipping duplicate killmail")
		return Result{Status: StatusSkipped, EventID: raw.KillmailID, Reason: ReasonDuplicate}
	}

	stageStart := time.Now()
	ev, err := p.deps.Enricher.Enrich(ctx, raw)
	metrics.ObserveStage("enrich", stageStart)
	if err != nil {
		log.Warn().Err(err).Msg("Enrichment failed")
		// Nothing was persisted or sent; let a redelivery try again.
		if ferr := p.deps.Dedup.Forget(context.WithoutCancel(ctx), raw.KillmailID); ferr != nil {
			log.Warn().Err(ferr).Msg("Failed to release dedup record")
		}
		return Result{
			Status:  StatusError,
			EventID: raw.KillmailID,
			Reason:  ReasonEnrichmentFailed,
			Err:     fmt.Errorf("enrich killmail %d: %w", raw.KillmailID, err),
		}
	}

	notifyIt, reason := tracking.ShouldNotify(&ev, p.deps.Tracked.Load(), p.deps.Toggles)
	if force {
		notifyIt, reason = true, tracking.ReasonForced
	}
	if !notifyIt {
		log.Debug().Str("reason", reason).Msg("Skipping killmail")
		return Result{Status: StatusSkipped, EventID: raw.KillmailID, Reason: reason}
	}

	res := Result{Status: StatusOK, EventID: raw.KillmailID, Reason: reason}

	if p.deps.Persister != nil {
		outcome, _ := p.deps.Persister.Persist(ctx, &ev)
		ev.Persisted = outcome != persistence.Failed
		res.Persistence = outcome.String()
	}

	note := p.deps.Notifier.CreateNotification(&ev, reason)
	outcome, err := p.deps.Notifier.Dispatch(ctx, note)
	res.Notification = outcome.String()
	if err != nil {
		res.Err = err
	}
	return res
}

func (p *Pipeline) normalize(input interface{}) (models.RawEvent, error) {
	observed := p.now().UTC()
	switch v := input.(type) {
	case models.RawEvent:
		return validateRaw(v)
	case *models.RawEvent:
		if v == nil {
			return models.RawEvent{}, models.ErrMalformedPayload
		}
		return validateRaw(*v)
	case map[string]interface{}:
		return models.Normalize(v, observed)
	case []byte:
		return models.NormalizeJSON(v, observed)
	case json.RawMessage:
		return models.NormalizeJSON(v, observed)
	default:
		return models.RawEvent{}, fmt.Errorf("%w: unsupported input %T", models.ErrMalformedPayload, input)
	}
}

func validateRaw(ev models.RawEvent) (models.RawEvent, error) {
	if ev.KillmailID <= 0 {
		return models.RawEvent{}, &models.MissingFieldError{Field: "killmail_id"}
	}
	if ev.SystemID <= 0 {
		return models.RawEvent{}, &models.MissingFieldError{Field: "solar_system_id"}
	}
	return ev, nil
}
