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
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/zymatik-com/genomerge/internal/credential"
	"github.com/zymatik-com/genomerge/internal/jobstore"
	"github.com/zymatik-com/genomerge/internal/model"
)

// handleDownload implements spec §4.5's download contract and §6's exit
// codes: 200 stream, 400 for any check failure (the body never reveals
// which check failed), 404 for a token that matches no job.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	password := r.URL.Query().Get("password")

	if token == "" || password == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	job, err := s.Store.GetByToken(r.Context(), token)
	if errors.Is(err, jobstore.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.Logger.Error("could not look up job by token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ip := requestIP(r)
	userAgent := r.Header.Get("User-Agent")
	if userAgent == "" {
		userAgent = "unknown"
	}

	now := time.Now()
	if reason := jobstore.CanAttemptDownload(job, now); reason != model.ReasonOK {
		s.writeAttemptRow(r, job, reason, ip, userAgent)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// Attempt counter is bumped before password verification, per spec
	// §4.5 step 3 — a failed guess still consumes the rate limit.
	if err := s.Store.BumpDownloadAttempt(r.Context(), job); err != nil {
		s.Logger.Error("could not bump download attempts", "job_id", job.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ok, err := credential.Verify(password, job.DownloadPasswordHash)
	if err != nil || !ok {
		s.writeAttemptRow(r, job, model.ReasonBadPassword, ip, userAgent)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.writeAttemptRow(r, job, model.ReasonOK, ip, userAgent)

	w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(job.ResultPath)+"\"")
	http.ServeFile(w, r, job.ResultPath)
}

func (s *Server) writeAttemptRow(r *http.Request, job model.Job, reason model.DownloadAttemptReason, ip, userAgent string) {
	if err := s.Store.WriteDownloadAttemptRow(r.Context(), job, reason, ip, userAgent); err != nil {
		s.Logger.Error("could not record download attempt", "job_id", job.ID, "error", err)
	}
}

// requestIP extracts the first hop of X-Forwarded-For when present
// (Open Question Q4): "unknown" is used only when the header is
// genuinely absent, not as a standing placeholder.
func requestIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}

	return "unknown"
}
