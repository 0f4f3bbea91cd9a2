// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Package ingest is the realtime side of ingestion: a websocket gateway to
// the killmail feed that decodes pushes, records heartbeat status and hands
// killmails to the pipeline.
package ingest

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/killwatch/internal/logging"
	"github.com/tomtom215/killwatch/internal/metrics"
	"github.com/tomtom215/killwatch/internal/models"
)

// Status is the server status carried by tqStatus heartbeats.
type Status struct {
	Players    int64                  `json:"players"`
	VIP        bool                   `json:"vip"`
	Raw        map[string]interface{} `json:"raw,omitempty"`
	ReceivedAt time.Time              `json:"received_at"`
}

func parseStatus(m map[string]interface{}) Status {
	s := Status{Raw: m, ReceivedAt: time.Now().UTC()}
	if players, ok := models.FirstID(m, "tranquility_players", "players"); ok {
		s.Players = players
	}
	for _, key := range []string{"tranquility_vip", "vip"} {
		if v, ok := m[key].(bool); ok {
			s.VIP = v
			break
		}
	}
	return s
}

func (g *Gateway) handleMessage(ctx context.Context, data []byte, dispatch *errgroup.Group) {
	m, err := models.DecodePayload(data)
	if err != nil {
		metrics.GatewayMalformedMessages.Inc()
		g.logger.Warn().Err(err).Int("bytes", len(data)).Msg("Dropping malformed feed message")
		return
	}

	if action, ok := m["action"].(string); ok && action != "" {
		if action == "tqStatus" {
			inner, _ := m["tqStatus"].(map[string]interface{})
			st := parseStatus(inner)
			g.status.Store(&st)
			g.logger.Debug().Int64("players", st.Players).Msg("Heartbeat")
			return
		}
		g.logger.Debug().Str("action", action).Msg("Ignoring control message")
		return
	}

	metrics.EventsReceived.WithLabelValues("websocket").Inc()
	dispatch.Go(func() error {
		msgCtx := logging.ContextWithNewCorrelationID(ctx)
		kill := g.hydrate(msgCtx, m)
		g.process(msgCtx, kill)
		return nil
	})
}

// hydrate replaces a reference-only push (id and hash, no system) with the
// full killmail. On failure the original payload is returned and the
// pipeline rejects it as missing a field.
func (g *Gateway) hydrate(ctx context.Context, m map[string]interface{}) map[string]interface{} {
	if g.resolver == nil {
		return m
	}
	body := m
	if inner, ok := m["killmail"].(map[string]interface{}); ok {
		body = inner
	}
	if _, ok := models.FirstID(body, "solar_system_id", "system_id", "solarSystemID", "systemID"); ok {
		return m
	}

	id, ok := models.FirstID(body, "killmail_id", "killID", "killmailID", "kill_id")
	if !ok {
		return m
	}
	hash := hashOf(m)
	if hash == "" {
		return m
	}

	full, err := g.resolver.GetKillmail(ctx, id, hash)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("killmail_id", id).Msg("Failed to hydrate killmail reference")
		return m
	}
	if _, ok := full["zkb"]; !ok {
		if zkb, ok := m["zkb"]; ok {
			full["zkb"] = zkb
		}
	}
	return full
}

func hashOf(m map[string]interface{}) string {
	if h, ok := m["hash"].(string); ok {
		return h
	}
	if zkb, ok := m["zkb"].(map[string]interface{}); ok {
		if h, ok := zkb["hash"].(string); ok {
			return h
		}
	}
	return ""
}
