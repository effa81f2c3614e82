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
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zymatik-com/genomerge/internal/model"
)

const (
	maxDownloadAttempts   = 10
	downloadAttemptMinGap = 20 * time.Second
)

// BumpDownloadAttempt increments download_attempts and stamps
// last_download_attempt. Per spec §4.5 step 3 this runs *before*
// password verification, but only once the gating checks of step 2 have
// passed (a gating failure is audited but does not itself consume an
// attempt or reset the rate-limit clock).
func (s *Store) BumpDownloadAttempt(ctx context.Context, job model.Job) error {
	return s.withTenant(ctx, job.SubmitterEmail, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE genetics_jobs
			SET download_attempts = download_attempts + 1, last_download_attempt = now()
			WHERE id = $1`, job.ID)
		if err != nil {
			return fmt.Errorf("could not bump download attempts for job %s: %w", job.ID, err)
		}
		return nil
	})
}

// WriteDownloadAttemptRow appends one audit row, written for every
// attempted download regardless of outcome (spec §4.5 step 6).
func (s *Store) WriteDownloadAttemptRow(ctx context.Context, job model.Job, reason model.DownloadAttemptReason, ip, userAgent string) error {
	return s.withTenant(ctx, job.SubmitterEmail, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO genetics_download_attempts (job_id, reason, ip, user_agent, at)
			VALUES ($1, $2, $3, $4, now())`, job.ID, string(reason), ip, userAgent)
		if err != nil {
			return fmt.Errorf("could not record download attempt for job %s: %w", job.ID, err)
		}
		return nil
	})
}

// CanAttemptDownload applies the gating checks of spec §4.5 step 2,
// independent of recording the attempt itself.
func CanAttemptDownload(job model.Job, now time.Time) model.DownloadAttemptReason {
	if job.Status != model.JobCompleted {
		return model.ReasonNotCompleted
	}
	if job.ExpiresAt == nil || !now.Before(*job.ExpiresAt) {
		return model.ReasonExpired
	}
	if job.DownloadAttempts >= maxDownloadAttempts {
		return model.ReasonTooManyAttempts
	}
	if job.LastDownloadAttempt != nil && now.Sub(*job.LastDownloadAttempt) < downloadAttemptMinGap {
		return model.ReasonRateLimited
	}
	return model.ReasonOK
}
