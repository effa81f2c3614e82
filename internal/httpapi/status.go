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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zymatik-com/genomerge/internal/jobstore"
	"github.com/zymatik-com/genomerge/internal/progress"
	"github.com/zymatik-com/genomerge/internal/secure"
)

// statusResponse is the body returned by GET /jobs/{id} (spec §6
// "Status & progress").
type statusResponse struct {
	Status        string     `json:"status"`
	Progress      int        `json:"progress"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	OutputFormats []string   `json:"output_formats"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	jobID := chi.URLParam(r, "id")

	job, err := s.Store.Get(ctx, jobID)
	if errors.Is(err, jobstore.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.Logger.Error("could not fetch job status", "job_id", jobID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := statusResponse{
		Status:        string(job.Status),
		CreatedAt:     job.CreatedAt,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
		OutputFormats: formatsToStrings(job.OutputFormats),
		ErrorMessage:  job.ErrorMessage,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func formatsToStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// upgrader configures the web-socket upgrade for the progress relay.
// Origin checking is delegated to the CORS middleware ahead of it; chi's
// Recoverer keeps a malformed handshake from crashing the server.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsPingInterval matches spec §6 "sends a ping every 30 s".
const wsPingInterval = 30 * time.Second

// handleWebSocket opens a web-socket, sends the current status, then
// relays genetics:progress:{id} messages until the client disconnects or
// an error occurs (spec §6 "Status & progress").
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := s.Store.Get(r.Context(), jobID)
	if errors.Is(err, jobstore.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Error("could not upgrade websocket", "job_id", jobID, "error", err)
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(statusResponse{
		Status:    string(job.Status),
		CreatedAt: job.CreatedAt,
	}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := progress.NewSubscriber(ctx, s.Redis, jobID)
	defer sub.Close()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	// Drain client-initiated close/error frames on a background reader so
	// a half-closed socket doesn't leak this goroutine.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			if msg.ProgressPct >= 100 {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := s.Store.Get(r.Context(), jobID)
	if errors.Is(err, jobstore.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := s.Queue.Remove(r.Context(), jobID); err != nil {
		s.Logger.Error("could not remove job from queue", "job_id", jobID, "error", err)
	}

	if err := secure.RemoveAll(filepath.Join(s.UploadsDir, jobID)); err != nil {
		s.Logger.Error("could not securely remove upload directory", "job_id", jobID, "error", err)
	}
	if err := secure.RemoveAll(filepath.Join(s.ResultsDir, jobID)); err != nil {
		s.Logger.Error("could not securely remove result directory", "job_id", jobID, "error", err)
	}

	if err := s.Store.Delete(r.Context(), job.SubmitterEmail, jobID); err != nil {
		s.Logger.Error("could not delete job row", "job_id", jobID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
