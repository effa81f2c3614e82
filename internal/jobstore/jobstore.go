/* SPDX-License-Identifier: AGPL-3.0-or-later
 *
 * Zymatik Genomerge - Merge submitter genomic data against a reference panel.
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published
 * by the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package jobstore is the tenant-isolated status store (C5 §4.5): the
// genetics_jobs and genetics_download_attempts tables, every write wrapped
// in a transaction that first sets the row-level-security session
// variable to the submitter id.
package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zymatik-com/genomerge/internal/model"
)

// ErrNotFound is returned when a job or token lookup matches no row.
var ErrNotFound = errors.New("jobstore: not found")

// Store wraps a pgx connection pool scoped to the worker (≤5 connections)
// or the API surface (≤10 connections) per spec §5 "Shared resources".
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Schema is the DDL for the two tables this store owns. It is exposed so
// the operator tooling (or a migration runner) can apply it; the store
// itself never creates schema implicitly.
const Schema = `
CREATE TABLE IF NOT EXISTS genetics_jobs (
	id                     UUID PRIMARY KEY,
	submitter_email        TEXT NOT NULL,
	status                 TEXT NOT NULL,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at             TIMESTAMPTZ,
	completed_at           TIMESTAMPTZ,
	emailed_at             TIMESTAMPTZ,
	error_message          TEXT NOT NULL DEFAULT '',
	result_path            TEXT NOT NULL DEFAULT '',
	output_formats         TEXT[] NOT NULL,
	quality_threshold      TEXT NOT NULL,
	vcf_layout             TEXT NOT NULL,
	download_token         TEXT NOT NULL DEFAULT '',
	download_password_hash TEXT NOT NULL DEFAULT '',
	download_attempts      INT NOT NULL DEFAULT 0,
	last_download_attempt  TIMESTAMPTZ,
	expires_at             TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS genetics_download_attempts (
	id         BIGSERIAL PRIMARY KEY,
	job_id     UUID NOT NULL,
	reason     TEXT NOT NULL,
	ip         TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

ALTER TABLE genetics_jobs ENABLE ROW LEVEL SECURITY;
CREATE POLICY IF NOT EXISTS genetics_jobs_tenant_isolation ON genetics_jobs
	USING (submitter_email = current_setting('app.tenant_id', true));
`

// withTenant runs fn inside a transaction that has set_config'd the
// row-level-security session variable to tenantID. Every write goes
// through this helper (spec §4.5 "Every write is wrapped in a
// transaction that first sets a row-level-security session variable").
func (s *Store) withTenant(ctx context.Context, tenantID string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return fmt.Errorf("could not set tenant session variable: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Insert creates the initial pending row for a newly enqueued job.
func (s *Store) Insert(ctx context.Context, job model.Job) error {
	return s.withTenant(ctx, job.SubmitterEmail, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO genetics_jobs (
				id, submitter_email, status, created_at, output_formats,
				quality_threshold, vcf_layout
			) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			job.ID, job.SubmitterEmail, job.Status, job.CreatedAt,
			formatsToStrings(job.OutputFormats), string(job.QualityThreshold), string(job.VCFLayout),
		)
		if err != nil {
			return fmt.Errorf("could not insert job %s: %w", job.ID, err)
		}
		return nil
	})
}

// MarkProcessing transitions a job to "processing" and stamps started_at.
func (s *Store) MarkProcessing(ctx context.Context, tenantID, jobID string) error {
	return s.withTenant(ctx, tenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE genetics_jobs SET status = $1, started_at = now() WHERE id = $2`,
			model.JobProcessing, jobID)
		if err != nil {
			return fmt.Errorf("could not mark job %s processing: %w", jobID, err)
		}
		return nil
	})
}

// MarkCompleted transitions a job to "completed" with its result path and
// download credentials.
func (s *Store) MarkCompleted(ctx context.Context, tenantID, jobID, resultPath, token, passwordHash string, expiresAt time.Time) error {
	return s.withTenant(ctx, tenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE genetics_jobs
			SET status = $1, completed_at = now(), result_path = $2,
			    download_token = $3, download_password_hash = $4, expires_at = $5
			WHERE id = $6`,
			model.JobCompleted, resultPath, token, passwordHash, expiresAt, jobID)
		if err != nil {
			return fmt.Errorf("could not mark job %s completed: %w", jobID, err)
		}
		return nil
	})
}

// MarkFailed transitions a job to "failed" with an error message.
func (s *Store) MarkFailed(ctx context.Context, tenantID, jobID, message string) error {
	return s.withTenant(ctx, tenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE genetics_jobs SET status = $1, completed_at = now(), error_message = $2 WHERE id = $3`,
			model.JobFailed, message, jobID)
		if err != nil {
			return fmt.Errorf("could not mark job %s failed: %w", jobID, err)
		}
		return nil
	})
}

// MarkEmailed stamps emailed_at after the notification has been sent.
func (s *Store) MarkEmailed(ctx context.Context, tenantID, jobID string) error {
	return s.withTenant(ctx, tenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE genetics_jobs SET emailed_at = now() WHERE id = $1`, jobID)
		if err != nil {
			return fmt.Errorf("could not mark job %s emailed: %w", jobID, err)
		}
		return nil
	})
}

func formatsToStrings(formats []model.OutputFormat) []string {
	out := make([]string, len(formats))
	for i, f := range formats {
		out[i] = string(f)
	}
	return out
}
