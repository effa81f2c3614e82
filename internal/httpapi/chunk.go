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
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/zymatik-com/genomerge/internal/upload"
)

// maxChunkBody is the per-request cap for a single chunk (spec §6 "50 MiB
// per chunk").
const maxChunkBody = 50 << 20

// maxChunksPerUpload bounds how many chunks a single upload session may
// contain (spec §6 "at most 100 chunks").
const maxChunksPerUpload = 100

// chunkMetadataTTL matches the key-value store entry's lifetime (spec §6
// "1 hour TTL") — an abandoned upload session's bookkeeping expires on
// its own rather than accumulating forever.
const chunkMetadataTTL = time.Hour

type chunkMetadata struct {
	TotalChunks int       `json:"total_chunks"`
	ReceivedAt  time.Time `json:"received_at"`
}

// handleChunk accepts one chunk of a large, chunked upload (spec §6
// "Chunked upload") and persists it to disk under the upload session's
// chunks directory, recording its arrival in the key-value store so
// handleFinalize can be sure every chunk showed up.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChunkBody)

	if err := r.ParseMultipartForm(16 << 20); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	uploadID := r.FormValue("upload_id")
	filename := r.FormValue("filename")
	fileType := upload.FileType(r.FormValue("file_type"))

	if uploadID == "" || filename == "" || fileType == "" {
		http.Error(w, "bad request: upload_id, filename and file_type are required", http.StatusBadRequest)
		return
	}

	sanitized, err := upload.SanitizeFilename(filename)
	if err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := upload.ValidateExtension(sanitized); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}

	chunkIndex, err := strconv.Atoi(r.FormValue("chunk_index"))
	if err != nil || chunkIndex < 0 {
		http.Error(w, "bad request: invalid chunk_index", http.StatusBadRequest)
		return
	}

	totalChunks, err := strconv.Atoi(r.FormValue("total_chunks"))
	if err != nil || totalChunks <= 0 || totalChunks > maxChunksPerUpload {
		http.Error(w, "bad request: invalid total_chunks", http.StatusBadRequest)
		return
	}
	if chunkIndex >= totalChunks {
		http.Error(w, "bad request: chunk_index out of range", http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["chunk"]
	if len(headers) == 0 {
		http.Error(w, "bad request: missing chunk field", http.StatusBadRequest)
		return
	}
	fh := headers[0]
	if fh.Size > upload.FileTypeChunk.MaxSize() {
		http.Error(w, "bad request: chunk exceeds maximum size", http.StatusBadRequest)
		return
	}

	chunksDir := filepath.Join(s.UploadsDir, uploadID, "chunks")
	if err := os.MkdirAll(chunksDir, 0o755); err != nil {
		s.Logger.Error("could not create chunks directory", "upload_id", uploadID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	destPath := filepath.Join(chunksDir, fmt.Sprintf("%s_%04d", sanitized, chunkIndex))
	if err := s.saveFileHeader(fh, destPath, upload.FileTypeChunk); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}

	meta := chunkMetadata{TotalChunks: totalChunks, ReceivedAt: time.Now()}
	encoded, err := json.Marshal(meta)
	if err != nil {
		s.Logger.Error("could not encode chunk metadata", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	key := upload.ChunkKey(uploadID, sanitized, chunkIndex)
	if err := s.Redis.Set(r.Context(), key, encoded, chunkMetadataTTL).Err(); err != nil {
		s.Logger.Error("could not record chunk metadata", "upload_id", uploadID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
