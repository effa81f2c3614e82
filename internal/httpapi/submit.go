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
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zymatik-com/genomerge/internal/model"
	"github.com/zymatik-com/genomerge/internal/runtime"
	"github.com/zymatik-com/genomerge/internal/upload"
)

// maxSubmitBody is the overall multipart body cap (spec §6 "Max body
// 500 MiB").
const maxSubmitBody = 500 << 20

// handleSubmit accepts the direct (non-chunked) multipart upload
// (spec §6 "Multipart upload — submit"), validates each part, persists
// it under the job's upload directory using the fixed names the worker
// expects (internal/runtime's discovery convention), and enqueues the
// job.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSubmitBody)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	userEmail := r.FormValue("user_email")
	if !strings.Contains(userEmail, "@") {
		http.Error(w, "bad request: user_email is required", http.StatusBadRequest)
		return
	}

	outputFormats := parseOutputFormats(r.FormValue("output_formats"))
	qualityThreshold := parseQualityThreshold(r.FormValue("quality_threshold"))
	vcfLayout := parseVCFLayout(r.FormValue("vcf_format"))

	jobID := uuid.NewString()
	uploadDir := filepath.Join(s.UploadsDir, jobID)
	outputDir := filepath.Join(s.ResultsDir, jobID)

	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		s.Logger.Error("could not create upload directory", "job_id", jobID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := s.saveUploadedFile(r, "genome_file", uploadDir, runtime.GenomeFileName, upload.FileTypeGenome); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}

	dosageFiles := r.MultipartForm.File["vcf_file"]
	for _, fh := range dosageFiles {
		chromosome, err := dosageChromosomeFromFilename(fh.Filename)
		if err != nil {
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.saveFileHeader(fh, filepath.Join(uploadDir, runtime.DosageFileName(chromosome)), upload.FileTypeDosage); err != nil {
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	if _, ok := r.MultipartForm.File["pgs_file"]; ok {
		if err := s.saveUploadedFile(r, "pgs_file", uploadDir, runtime.PGSFileName, upload.FileTypePGS); err != nil {
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

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

func (s *Server) saveUploadedFile(r *http.Request, field, uploadDir, destName string, fileType upload.FileType) error {
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return fmt.Errorf("missing required field %q", field)
	}
	return s.saveFileHeader(headers[0], filepath.Join(uploadDir, destName), fileType)
}

func (s *Server) saveFileHeader(fh *multipart.FileHeader, destPath string, fileType upload.FileType) error {
	sanitized, err := upload.SanitizeFilename(fh.Filename)
	if err != nil {
		return fmt.Errorf("%s: %w", fh.Filename, err)
	}
	if err := upload.ValidateExtension(sanitized); err != nil {
		return err
	}

	if fh.Size > fileType.MaxSize() {
		return fmt.Errorf("%s exceeds maximum size", fh.Filename)
	}

	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("could not open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", destPath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("could not write %s: %w", destPath, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("could not flush %s: %w", destPath, err)
	}

	digest, err := upload.ValidateFile(destPath, fileType)
	if err != nil {
		os.Remove(destPath)
		return fmt.Errorf("%s: %w", fh.Filename, err)
	}
	s.Logger.Info("upload validated", "file", sanitized, "sha256", digest)

	return nil
}

func dosageChromosomeFromFilename(name string) (int, error) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, "chr") {
		return 0, fmt.Errorf("dosage filename %q must start with chr", name)
	}
	rest := strings.TrimPrefix(base, "chr")
	idx := strings.IndexByte(rest, '.')
	if idx < 0 {
		return 0, fmt.Errorf("dosage filename %q missing chromosome suffix", name)
	}
	chromosome, err := strconv.Atoi(rest[:idx])
	if err != nil || chromosome < 1 || chromosome > 22 {
		return 0, fmt.Errorf("dosage filename %q does not name an autosome", name)
	}
	return chromosome, nil
}

func parseOutputFormats(raw string) []model.OutputFormat {
	if raw == "" {
		return []model.OutputFormat{model.FormatParquet, model.FormatVCF}
	}
	var formats []model.OutputFormat
	for _, f := range strings.Split(raw, ",") {
		formats = append(formats, model.OutputFormat(strings.TrimSpace(f)))
	}
	return formats
}

func parseQualityThreshold(raw string) model.QualityThreshold {
	switch raw {
	case "none":
		return model.QualityNone
	case "r080", "0.8":
		return model.Quality080
	case "r090", "0.9", "":
		return model.Quality090
	default:
		return model.Quality090
	}
}

func parseVCFLayout(raw string) model.VCFLayout {
	if raw == "per_chromosome" {
		return model.VCFPerChromosome
	}
	return model.VCFMerged
}
