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

package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zymatik-com/genomerge/internal/model"
)

// handleFinalize closes out a chunked upload session (spec §6 "Chunked
// upload — finalize"): it confirms the chunks directory exists and is
// non-empty, creates the job row and enqueues it. Reassembly and the
// content half of file validation (magic number, format sniff, SHA-256 —
// spec §6 "File validation") run on the worker once the complete files
// exist (internal/runtime.validateInputs, right after discovery), since
// there is nothing to sniff yet at finalize time: the chunks on disk here
// are fragments, not the files spec §6 validates. This handler never
// blocks on the potentially large stream-concatenation that reassembly
// does.
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	uploadID := r.FormValue("upload_id")
	if uploadID == "" {
		http.Error(w, "bad request: upload_id is required", http.StatusBadRequest)
		return
	}

	userEmail := r.FormValue("user_email")
	if !strings.Contains(userEmail, "@") {
		http.Error(w, "bad request: user_email is required", http.StatusBadRequest)
		return
	}

	chunksDir := filepath.Join(s.UploadsDir, uploadID, "chunks")
	if info, err := os.Stat(chunksDir); err != nil || !info.IsDir() {
		http.Error(w, "bad request: no chunks found for upload_id", http.StatusBadRequest)
		return
	}
	if entries, err := os.ReadDir(chunksDir); err != nil || len(entries) == 0 {
		http.Error(w, "bad request: no chunks found for upload_id", http.StatusBadRequest)
		return
	}

	outputFormats := parseOutputFormats(r.FormValue("output_formats"))
	qualityThreshold := parseQualityThreshold(r.FormValue("quality_threshold"))
	vcfLayout := parseVCFLayout(r.FormValue("vcf_format"))

	jobID := uuid.NewString()
	uploadDir := filepath.Join(s.UploadsDir, uploadID)
	outputDir := filepath.Join(s.ResultsDir, jobID)

	job := model.Job{
		ID:               jobID,
		SubmitterEmail:   userEmail,
		Status:           model.JobPending,
		CreatedAt:        time.Now(),
		OutputFormats:    outputFormats,
		QualityThreshold: qualityThreshold,
		VCFLayout:        vcfLayout,
	}
	if err := s.Store.Insert(r.Context(), job); err != nil {
		s.Logger.Error("could not insert job", "job_id", jobID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	payload := model.JobPayload{
		JobID:            jobID,
		UserEmail:        userEmail,
		UploadDir:        uploadDir,
		OutputDir:        outputDir,
		OutputFormats:    outputFormats,
		QualityThreshold: qualityThreshold,
		ChunkedUpload:    true,
		UploadSessionID:  uploadID,
		VCFLayout:        vcfLayout,
	}
	if err := s.Queue.Push(r.Context(), payload); err != nil {
		s.Logger.Error("could not enqueue job", "job_id", jobID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"job_id": jobID})
}
