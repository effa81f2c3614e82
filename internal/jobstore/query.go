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

package jobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/zymatik-com/genomerge/internal/model"
)

// Get fetches a job by id. Possession of the job id is itself the access
// control (spec §1 "Non-goals: Authentication of submitters"), so lookups
// by id deliberately run outside the tenant-scoped transaction: the
// submitter email used for row-level security is not known to the
// caller in advance.
func (s *Store) Get(ctx context.Context, jobID string) (model.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, submitter_email, status, created_at, started_at, completed_at,
		       emailed_at, error_message, result_path, output_formats,
		       quality_threshold, vcf_layout, download_token, download_password_hash,
		       download_attempts, last_download_attempt, expires_at
		FROM genetics_jobs WHERE id = $1`, jobID)

	return scanJob(row)
}

// GetByToken fetches a job by its download token, used by the download
// endpoint (spec §4.5 "Locate job by token").
func (s *Store) GetByToken(ctx context.Context, token string) (model.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, submitter_email, status, created_at, started_at, completed_at,
		       emailed_at, error_message, result_path, output_formats,
		       quality_threshold, vcf_layout, download_token, download_password_hash,
		       download_attempts, last_download_attempt, expires_at
		FROM genetics_jobs WHERE download_token = $1`, token)

	return scanJob(row)
}

func scanJob(row pgx.Row) (model.Job, error) {
	var (
		job           model.Job
		outputFormats []string
		quality       string
		layout        string
	)

	err := row.Scan(
		&job.ID, &job.SubmitterEmail, &job.Status, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
		&job.EmailedAt, &job.ErrorMessage, &job.ResultPath, &outputFormats,
		&quality, &layout, &job.DownloadToken, &job.DownloadPasswordHash,
		&job.DownloadAttempts, &job.LastDownloadAttempt, &job.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Job{}, ErrNotFound
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("could not scan job row: %w", err)
	}

	job.QualityThreshold = model.QualityThreshold(quality)
	job.VCFLayout = model.VCFLayout(layout)
	job.OutputFormats = make([]model.OutputFormat, len(outputFormats))
	for i, f := range outputFormats {
		job.OutputFormats[i] = model.OutputFormat(f)
	}

	return job, nil
}

// Delete removes a job row under its own tenancy scope (spec §6
// "Deletion").
func (s *Store) Delete(ctx context.Context, tenantID, jobID string) error {
	return s.withTenant(ctx, tenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM genetics_jobs WHERE id = $1`, jobID)
		if err != nil {
			return fmt.Errorf("could not delete job %s: %w", jobID, err)
		}
		return nil
	})
}
