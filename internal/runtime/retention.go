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

package runtime

import (
	"context"
	"path/filepath"
	"time"

	"github.com/zymatik-com/genomerge/internal/secure"
)

// retentionInterval is how often the sweep runs (spec §4.5 "Retention":
// "Every hour").
const retentionInterval = time.Hour

// RunRetentionSweep loops forever, removing terminal jobs' files and rows
// once they are more than 24 hours past completion. volumeRoot is
// ENCRYPTED_VOLUME_PATH; a job's upload/output directories are
// deterministic functions of its id under that root.
func (rt *Runtime) RunRetentionSweep(ctx context.Context, volumeRoot string) {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.sweepOnce(ctx, volumeRoot)
		}
	}
}

func (rt *Runtime) sweepOnce(ctx context.Context, volumeRoot string) {
	jobs, err := rt.Store.ListExpiredTerminal(ctx, func(jobID string) (string, string) {
		return filepath.Join(volumeRoot, "uploads", jobID), filepath.Join(volumeRoot, "results", jobID)
	})
	if err != nil {
		rt.Logger.Error("could not list expired jobs", "error", err)
		return
	}

	for _, job := range jobs {
		if err := secure.RemoveAll(job.UploadDir); err != nil {
			rt.Logger.Error("could not securely remove upload directory", "job_id", job.ID, "error", err)
			continue
		}
		if err := secure.RemoveAll(job.OutputDir); err != nil {
			rt.Logger.Error("could not securely remove output directory", "job_id", job.ID, "error", err)
			continue
		}
		if err := rt.Store.DeleteRow(ctx, job.ID); err != nil {
			rt.Logger.Error("could not delete job row", "job_id", job.ID, "error", err)
			continue
		}
		rt.Logger.Info("retention swept job", "job_id", job.ID)
	}
}

