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
	"fmt"
)

// stuckJobMessage is the standard notice written to a job's error field
// by RecoverStuckJobs (spec §4.5 "Stuck-job recovery").
const stuckJobMessage = "interrupted by worker restart; please resubmit."

// RecoverStuckJobs marks every job whose processing state is older than
// 10 minutes as failed. It runs once at worker start and operates across
// all tenants: recovery is an administrative sweep, not a per-submitter
// operation, so it does not go through the RLS session-variable path
// (a superuser/service role connection is assumed).
func (s *Store) RecoverStuckJobs(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE genetics_jobs
		SET status = 'failed', completed_at = now(), error_message = $1
		WHERE status = 'processing' AND started_at < now() - interval '10 minutes'`,
		stuckJobMessage)
	if err != nil {
		return 0, fmt.Errorf("could not recover stuck jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// TerminalJob is the minimal shape the retention sweep needs to remove a
// job's on-disk artifacts before deleting its row.
type TerminalJob struct {
	ID        string
	UploadDir string
	OutputDir string
}

// ListExpiredTerminal returns every job in a terminal state whose
// completed_at is older than 24 hours, for the retention sweep to delete
// (spec §4.5 "Retention"). pathsFor derives a job's upload/output
// directories from its id (both are deterministic functions of
// ENCRYPTED_VOLUME_PATH and the job id, so the row itself need not carry
// them).
func (s *Store) ListExpiredTerminal(ctx context.Context, pathsFor func(jobID string) (uploadDir, outputDir string)) ([]TerminalJob, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM genetics_jobs
		WHERE status IN ('completed', 'failed') AND completed_at < now() - interval '24 hours'`)
	if err != nil {
		return nil, fmt.Errorf("could not list expired jobs: %w", err)
	}
	defer rows.Close()

	var jobs []TerminalJob
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("could not scan expired job row: %w", err)
		}
		uploadDir, outputDir := pathsFor(id)
		jobs = append(jobs, TerminalJob{ID: id, UploadDir: uploadDir, OutputDir: outputDir})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate expired jobs: %w", err)
	}

	return jobs, nil
}

// DeleteRow removes a single job row, used by the retention sweep after
// its files have been removed from disk. Like RecoverStuckJobs, this is
// an administrative operation spanning tenants.
func (s *Store) DeleteRow(ctx context.Context, jobID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM genetics_jobs WHERE id = $1`, jobID); err != nil {
		return fmt.Errorf("could not delete job row %s: %w", jobID, err)
	}
	return nil
}
