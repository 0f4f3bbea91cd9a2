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
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/killwatch/internal/logging"
)

var duckdbSchema = []string{
	`CREATE TABLE IF NOT EXISTS killmails (
		killmail_id         BIGINT PRIMARY KEY,
		hash                VARCHAR NOT NULL DEFAULT '',
		solar_system_id     BIGINT NOT NULL,
		victim_character_id BIGINT,
		total_value         DOUBLE NOT NULL DEFAULT 0,
		occurred_at         TIMESTAMP,
		raw_payload         VARCHAR NOT NULL,
		persisted_at        TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_killmails_system ON killmails (solar_system_id)`,
	`CREATE TABLE IF NOT EXISTS tracked_entities (
		kind      VARCHAR NOT NULL,
		entity_id BIGINT NOT NULL,
		added_at  TIMESTAMP NOT NULL,
		PRIMARY KEY (kind, entity_id)
	)`,
}

// DuckDB is the embedded Store.
type DuckDB struct {
	conn *sql.DB
}

// OpenDuckDB opens (creating if needed) the database at path. An empty path
// or ":memory:" opens an in-memory database.
func OpenDuckDB(ctx context.Context, path string) (*DuckDB, error) {
	if path == ":memory:" {
		path = ""
	}
	if path != "" {
		// 0750: owner rwx, group rx
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	db := &DuckDB{conn: conn}
	if err := db.migrate(ctx); err != nil {
		closeQuietly(conn)
		return nil, err
	}
	logging.Info().Str("path", displayPath(path)).Msg("DuckDB store ready")
	return db, nil
}

func (d *DuckDB) migrate(ctx context.Context) error {
	for _, stmt := range duckdbSchema {
		if _, err := d.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply duckdb schema: %w", err)
		}
	}
	return nil
}

func (d *DuckDB) Exists(ctx context.Context, killmailID int64) (bool, error) {
	var one int
	err := d.conn.QueryRowContext(ctx, `SELECT 1 FROM killmails WHERE killmail_id = ? LIMIT 1`, killmailID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *DuckDB) Insert(ctx context.Context, rec Record) (bool, error) {
	res, err := d.conn.ExecContext(ctx, `
		INSERT INTO killmails (killmail_id, hash, solar_system_id, victim_character_id, total_value, occurred_at, raw_payload, persisted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (killmail_id) DO NOTHING`,
		rec.KillmailID, rec.Hash, rec.SystemID, nullID(rec.VictimCharacterID), rec.TotalValue,
		nullTime(rec.OccurredAt), string(rec.Payload), time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *DuckDB) Count(ctx context.Context) (int64, error) {
	var n int64
	err := d.conn.QueryRowContext(ctx, `SELECT count(*) FROM killmails`).Scan(&n)
	return n, err
}

func (d *DuckDB) Ping(ctx context.Context) error { return d.conn.PingContext(ctx) }

func (d *DuckDB) Close() error { return d.conn.Close() }

func (d *DuckDB) ListTracked(ctx context.Context, kind string) ([]int64, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT entity_id FROM tracked_entities WHERE kind = ? ORDER BY entity_id`, kind)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

func (d *DuckDB) AddTracked(ctx context.Context, kind string, id int64) error {
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO tracked_entities (kind, entity_id, added_at) VALUES (?, ?, ?)
		ON CONFLICT (kind, entity_id) DO NOTHING`, kind, id, time.Now().UTC())
	return err
}

func (d *DuckDB) RemoveTracked(ctx context.Context, kind string, id int64) error {
	_, err := d.conn.ExecContext(ctx, `DELETE FROM tracked_entities WHERE kind = ? AND entity_id = ?`, kind, id)
	return err
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}

func displayPath(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}

func closeQuietly(conn *sql.DB) {
	if err := conn.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close database connection")
	}
}
