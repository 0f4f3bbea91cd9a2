// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

// Package esi resolves character, corporation, alliance, type and solar
// system identifiers to display metadata from the public EVE Swagger
// Interface. All calls share one token bucket.
package esi

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/tomtom215/killwatch/internal/config"
	"github.com/tomtom215/killwatch/internal/upstream"
)

// Kind identifies the directory namespace an id belongs to.
type Kind string

const (
	KindCharacter   Kind = "character"
	KindCorporation Kind = "corporation"
	KindAlliance    Kind = "alliance"
	KindType        Kind = "type"
	KindSystem      Kind = "system"
)

// Entity is the resolved display metadata for one id.
type Entity struct {
	ID     int64  `json:"id"`
	Kind   Kind   `json:"kind"`
	Name   string `json:"name"`
	Ticker string `json:"ticker,omitempty"`

	// Set for KindCharacter and KindCorporation.
	CorporationID int64 `json:"corporation_id,omitempty"`
	AllianceID    int64 `json:"alliance_id,omitempty"`

	// Set for KindSystem.
	SecurityStatus float64 `json:"security_status,omitempty"`
}

// Client is the directory client.
type Client struct {
	http  *upstream.Client
	query url.Values
}

// New builds a Client from cfg. The token bucket is created here and is
// shared by every goroutine using the returned Client.
func New(cfg *config.DirectoryConfig) (*Client, error) {
	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	hc, err := upstream.New(upstream.Config{
		Name:       "esi",
		BaseURL:    cfg.BaseURL,
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
	}, limiter)
	if err != nil {
		return nil, err
	}
	return &Client{http: hc, query: url.Values{"datasource": {"tranquility"}}}, nil
}

// Lookup resolves id within kind. Unknown ids return an error matching
// upstream.ErrNotFound.
func (c *Client) Lookup(ctx context.Context, kind Kind, id int64) (Entity, error) {
	switch kind {
	case KindCharacter:
		return c.GetCharacter(ctx, id)
	case KindCorporation:
		return c.GetCorporation(ctx, id)
	case KindAlliance:
		return c.GetAlliance(ctx, id)
	case KindType:
		return c.GetType(ctx, id)
	case KindSystem:
		return c.GetSystem(ctx, id)
	default:
		return Entity{}, fmt.Errorf("esi: unknown kind %q", kind)
	}
}

type characterResponse struct {
	Name          string `json:"name"`
	CorporationID int64  `json:"corporation_id"`
	AllianceID    int64  `json:"alliance_id"`
}

// GetCharacter resolves a character id.
func (c *Client) GetCharacter(ctx context.Context, id int64) (Entity, error) {
	var r characterResponse
	if err := c.http.GetJSON(ctx, fmt.Sprintf("characters/%d/", id), c.query, &r); err != nil {
		return Entity{}, err
	}
	return Entity{ID: id, Kind: KindCharacter, Name: r.Name, CorporationID: r.CorporationID, AllianceID: r.AllianceID}, nil
}

type corporationResponse struct {
	Name       string `json:"name"`
	Ticker     string `json:"ticker"`
	AllianceID int64  `json:"alliance_id"`
}

// GetCorporation resolves a corporation id.
func (c *Client) GetCorporation(ctx context.Context, id int64) (Entity, error) {
	var r corporationResponse
	if err := c.http.GetJSON(ctx, fmt.Sprintf("corporations/%d/", id), c.query, &r); err != nil {
		return Entity{}, err
	}
	return Entity{ID: id, Kind: KindCorporation, Name: r.Name, Ticker: r.Ticker, AllianceID: r.AllianceID}, nil
}

type allianceResponse struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

// GetAlliance resolves an alliance id.
func (c *Client) GetAlliance(ctx context.Context, id int64) (Entity, error) {
	var r allianceResponse
	if err := c.http.GetJSON(ctx, fmt.Sprintf("alliances/%d/", id), c.query, &r); err != nil {
		return Entity{}, err
	}
	return Entity{ID: id, Kind: KindAlliance, Name: r.Name, Ticker: r.Ticker}, nil
}

type typeResponse struct {
	Name string `json:"name"`
}

// GetType resolves an inventory type id, which for killmails is a ship.
func (c *Client) GetType(ctx context.Context, id int64) (Entity, error) {
	var r typeResponse
	if err := c.http.GetJSON(ctx, fmt.Sprintf("universe/types/%d/", id), c.query, &r); err != nil {
		return Entity{}, err
	}
	return Entity{ID: id, Kind: KindType, Name: r.Name}, nil
}

type systemResponse struct {
	Name           string  `json:"name"`
	SecurityStatus float64 `json:"security_status"`
}

// GetSystem resolves a solar system id.
func (c *Client) GetSystem(ctx context.Context, id int64) (Entity, error) {
	var r systemResponse
	if err := c.http.GetJSON(ctx, fmt.Sprintf("universe/systems/%d/", id), c.query, &r); err != nil {
		return Entity{}, err
	}
	return Entity{ID: id, Kind: KindSystem, Name: r.Name, SecurityStatus: r.SecurityStatus}, nil
}

// BreakerState reports the directory circuit breaker state.
func (c *Client) BreakerState() string {
	return c.http.BreakerState()
}
