// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package journal provides a Postgres-backed record of per-bundle
// outcomes, keyed on (run_id, message_id). It is an audit trail for the
// reporting boundary; archive idempotence lives in the store, not here.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/archiver/internal/models"
)

// Record is one persisted bundle outcome.
type Record struct {
	ID        int64
	RunID     string
	MessageID string
	Subject   string
	Status    string
	Detail    string
	Location  string
	CreatedAt time.Time
}

// Store provides outcome persistence in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an outcome journal backed by the given Postgres pool.
// It ensures the outcomes table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure journal schema: %w", err)
	}
	slog.Info("outcome journal initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS beo_outcomes (
			id         BIGSERIAL PRIMARY KEY,
			run_id     TEXT NOT NULL,
			message_id TEXT NOT NULL,
			subject    TEXT DEFAULT '',
			status     TEXT NOT NULL,
			detail     TEXT DEFAULT '',
			location   TEXT DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(run_id, message_id)
		);
		CREATE INDEX IF NOT EXISTS idx_outcomes_run ON beo_outcomes(run_id);
		CREATE INDEX IF NOT EXISTS idx_outcomes_status ON beo_outcomes(status);
	`)
	return err
}

// Record upserts one bundle outcome keyed on (run_id, message_id), so a
// retried run overwrites rather than duplicates its rows.
func (s *Store) Record(ctx context.Context, runID string, o models.Outcome) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO beo_outcomes (run_id, message_id, subject, status, detail, location)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, message_id) DO UPDATE SET
			status   = EXCLUDED.status,
			detail   = EXCLUDED.detail,
			location = EXCLUDED.location
	`, runID, o.MessageID, o.Subject, string(o.Status), o.Detail, o.Location)
	return err
}

// ListByRun returns all outcomes recorded for a run.
func (s *Store) ListByRun(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, message_id, subject, status, detail, location, created_at
		FROM beo_outcomes
		WHERE run_id = $1
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// collectRecords scans multiple rows into a slice of Records.
func collectRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.MessageID, &r.Subject,
			&r.Status, &r.Detail, &r.Location, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
