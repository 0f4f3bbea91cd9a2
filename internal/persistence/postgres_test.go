// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package persistence

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unfulfilled expectations: %v", err)
		}
		conn.Close()
	})
	return NewPostgres(conn), mock
}

func TestPostgresExists(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(sqlmock.Sqlmock)
		want    bool
		wantErr bool
	}{
		{
			name: "found",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(`SELECT 1 FROM killmails WHERE killmail_id = \$1 LIMIT 1`).
					WithArgs(int64(100)).
					WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
			},
			want: true,
		},
		{
			name: "missing",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(`SELECT 1 FROM killmails`).WithArgs(int64(100)).WillReturnError(sql.ErrNoRows)
			},
			want: false,
		},
		{
			name: "query error",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(`SELECT 1 FROM killmails`).WithArgs(int64(100)).WillReturnError(errors.New("connection reset"))
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, mock := newMockPostgres(t)
			tt.setup(mock)
			got, err := p.Exists(context.Background(), 100)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Exists() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Exists() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPostgresInsert(t *testing.T) {
	rec, _ := RecordFromEvent(enriched(100))
	insertSQL := `INSERT INTO killmails \(killmail_id,hash,solar_system_id,victim_character_id,total_value,occurred_at,raw_payload\) VALUES \(\$1,\$2,\$3,\$4,\$5,\$6,\$7\) ON CONFLICT \(killmail_id\) DO NOTHING`

	tests := []struct {
		name    string
		setup   func(sqlmock.Sqlmock)
		want    bool
		wantErr bool
	}{
		{
			name: "inserted",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec(insertSQL).WillReturnResult(sqlmock.NewResult(0, 1))
			},
			want: true,
		},
		{
			name: "conflict do nothing",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec(insertSQL).WillReturnResult(sqlmock.NewResult(0, 0))
			},
			want: false,
		},
		{
			name: "unique violation",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec(insertSQL).WillReturnError(&pq.Error{Code: uniqueViolation})
			},
			want: false,
		},
		{
			name: "other error",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec(insertSQL).WillReturnError(&pq.Error{Code: "53100"})
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, mock := newMockPostgres(t)
			tt.setup(mock)
			got, err := p.Insert(context.Background(), rec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Insert() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Insert() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPostgresWatchList(t *testing.T) {
	p, mock := newMockPostgres(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO tracked_entities \(kind,entity_id\) VALUES \(\$1,\$2\) ON CONFLICT \(kind, entity_id\) DO NOTHING`).
		WithArgs("system", int64(30000142)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT entity_id FROM tracked_entities WHERE kind = \$1 ORDER BY entity_id`).
		WithArgs("system").
		WillReturnRows(sqlmock.NewRows([]string{"entity_id"}).AddRow(int64(30000142)).AddRow(int64(30002187)))
	mock.ExpectExec(`DELETE FROM tracked_entities WHERE entity_id = \$1 AND kind = \$2`).
		WithArgs(int64(30000142), "system").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := p.AddTracked(ctx, "system", 30000142); err != nil {
		t.Fatalf("AddTracked() error = %v", err)
	}
	got, err := p.ListTracked(ctx, "system")
	if err != nil {
		t.Fatalf("ListTracked() error = %v", err)
	}
	if !reflect.DeepEqual(got, []int64{30000142, 30002187}) {
		t.Errorf("ListTracked() = %v", got)
	}
	if err := p.RemoveTracked(ctx, "system", 30000142); err != nil {
		t.Fatalf("RemoveTracked() error = %v", err)
	}
}

func TestOpenPostgresRejectsEmptyDSN(t *testing.T) {
	if _, err := OpenPostgres(context.Background(), ""); err == nil {
		t.Error("OpenPostgres(\"\") error = nil")
	}
}
