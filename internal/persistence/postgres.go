// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS killmails (
		killmail_id         BIGINT PRIMARY KEY,
		hash                TEXT NOT NULL DEFAULT '',
		solar_system_id     BIGINT NOT NULL,
		victim_character_id BIGINT,
		total_value         DOUBLE PRECISION NOT NULL DEFAULT 0,
		occurred_at         TIMESTAMPTZ,
		raw_payload         JSONB NOT NULL,
		persisted_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_killmails_system ON killmails (solar_system_id)`,
	`CREATE TABLE IF NOT EXISTS tracked_entities (
		kind      TEXT NOT NULL,
		entity_id BIGINT NOT NULL,
		added_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (kind, entity_id)
	)`,
}

// Postgres is the server-backed Store.
type Postgres struct {
	conn *sql.DB
	sb   sq.StatementBuilderType
}

// OpenPostgres connects to dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("persistence: postgres dsn is empty")
	}
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	p := NewPostgres(conn)
	if err := p.Migrate(ctx); err != nil {
		closeQuietly(conn)
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an open connection without touching the schema.
func NewPostgres(conn *sql.DB) *Postgres {
	return &Postgres{conn: conn, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := p.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply postgres schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Exists(ctx context.Context, killmailID int64) (bool, error) {
	query, args, err := p.sb.Select("1").From("killmails").
		Where(sq.Eq{"killmail_id": killmailID}).Limit(1).ToSql()
	if err != nil {
		return false, err
	}
	var one int
	err = p.conn.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Postgres) Insert(ctx context.Context, rec Record) (bool, error) {
	query, args, err := p.sb.Insert("killmails").
		Columns("killmail_id", "hash", "solar_system_id", "victim_character_id", "total_value", "occurred_at", "raw_payload").
		Values(rec.KillmailID, rec.Hash, rec.SystemID, nullID(rec.VictimCharacterID), rec.TotalValue,
			nullTime(rec.OccurredAt), string(rec.Payload)).
		Suffix("ON CONFLICT (killmail_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, err
	}

	res, err := p.conn.ExecContext(ctx, query, args...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return false, nil
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *Postgres) Count(ctx context.Context) (int64, error) {
	query, args, err := p.sb.Select("count(*)").From("killmails").ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	err = p.conn.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (p *Postgres) Ping(ctx context.Context) error { return p.conn.PingContext(ctx) }

func (p *Postgres) Close() error { return p.conn.Close() }

func (p *Postgres) ListTracked(ctx context.Context, kind string) ([]int64, error) {
	query, args, err := p.sb.Select("entity_id").From("tracked_entities").
		Where(sq.Eq{"kind": kind}).OrderBy("entity_id").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := p.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

func (p *Postgres) AddTracked(ctx context.Context, kind string, id int64) error {
	query, args, err := p.sb.Insert("tracked_entities").
		Columns("kind", "entity_id").Values(kind, id).
		Suffix("ON CONFLICT (kind, entity_id) DO NOTHING").ToSql()
	if err != nil {
		return err
	}
	_, err = p.conn.ExecContext(ctx, query, args...)
	return err
}

func (p *Postgres) RemoveTracked(ctx context.Context, kind string, id int64) error {
	query, args, err := p.sb.Delete("tracked_entities").
		Where(sq.Eq{"kind": kind, "entity_id": id}).ToSql()
	if err != nil {
		return err
	}
	_, err = p.conn.ExecContext(ctx, query, args...)
	return err
}
