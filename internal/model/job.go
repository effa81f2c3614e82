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

package model

import "time"

// JobStatus is the lifecycle state of a Job (C5).
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// OutputFormat is one of the three analytic formats C4 can emit.
type OutputFormat string

const (
	FormatParquet OutputFormat = "parquet"
	FormatSQLite  OutputFormat = "sqlite"
	FormatVCF     OutputFormat = "vcf"
)

// VCFLayout selects how the bioinformatics-wire format is laid out on disk.
type VCFLayout string

const (
	VCFMerged       VCFLayout = "merged"
	VCFPerChromosome VCFLayout = "per_chromosome"
)

// Job is the row-level record of one merge pipeline run (C5).
type Job struct {
	ID               string
	SubmitterEmail   string
	Status           JobStatus
	CreatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	EmailedAt        *time.Time
	ErrorMessage     string
	ResultPath       string
	OutputFormats    []OutputFormat
	QualityThreshold QualityThreshold
	VCFLayout        VCFLayout

	DownloadToken         string
	DownloadPasswordHash  string
	DownloadAttempts      int
	LastDownloadAttempt   *time.Time
	ExpiresAt             *time.Time
}

// JobPayload is the serialized form enqueued onto the job queue (C5 §4.5).
type JobPayload struct {
	JobID            string         `json:"job_id"`
	UserID           string         `json:"user_id"`
	UserEmail        string         `json:"user_email,omitempty"`
	UploadDir        string         `json:"upload_dir"`
	OutputDir        string         `json:"output_dir"`
	OutputFormats    []OutputFormat `json:"output_formats"`
	QualityThreshold QualityThreshold `json:"quality_threshold"`
	ChunkedUpload    bool           `json:"chunked_upload"`
	UploadSessionID  string         `json:"upload_session_id,omitempty"`
	VCFLayout        VCFLayout      `json:"vcf_format"`
}

// ProgressMessage is published on genetics:progress:{job_id}.
type ProgressMessage struct {
	JobID      string    `json:"job_id"`
	ProgressPct int      `json:"progress_pct"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// DownloadAttemptReason is the audit reason code recorded for every
// download attempt, success or failure.
type DownloadAttemptReason string

const (
	ReasonOK              DownloadAttemptReason = "ok"
	ReasonNotFound        DownloadAttemptReason = "not_found"
	ReasonNotCompleted    DownloadAttemptReason = "not_completed"
	ReasonExpired         DownloadAttemptReason = "expired"
	ReasonTooManyAttempts DownloadAttemptReason = "too_many_attempts"
	ReasonRateLimited     DownloadAttemptReason = "rate_limited"
	ReasonBadPassword     DownloadAttemptReason = "bad_password"
)

// DownloadAttempt is one row of genetics_download_attempts.
type DownloadAttempt struct {
	JobID     string
	Reason    DownloadAttemptReason
	IP        string
	UserAgent string
	At        time.Time
}
