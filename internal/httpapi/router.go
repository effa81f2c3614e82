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

// Package httpapi is the HTTP surface (spec §6): job status, the
// web-socket progress relay, the download endpoint and job deletion. The
// multipart upload contract itself is an external collaborator (spec §1
// "Out of scope"); this package's handlers accept it.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/zymatik-com/genomerge/internal/jobstore"
	"github.com/zymatik-com/genomerge/internal/queue"
)

// Server holds the dependencies every handler needs.
type Server struct {
	Logger        *slog.Logger
	Store         *jobstore.Store
	Queue         *queue.Queue
	Redis         *redis.Client
	UploadsDir    string
	ProcessingDir string
	ResultsDir    string
	CORSOrigins   []string
}

// NewRouter builds the chi router for the server process.
func (s *Server) NewRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/jobs/{id}", s.handleStatus)
	r.Get("/jobs/{id}/ws", s.handleWebSocket)
	r.Delete("/jobs/{id}", s.handleDelete)
	r.Get("/download", s.handleDownload)

	r.Post("/submit", s.handleSubmit)
	r.Post("/chunk", s.handleChunk)
	r.Post("/finalize", s.handleFinalize)

	return r
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range s.CORSOrigins {
			if allowed == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				break
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requestTimeout bounds every handler's work against a slow client or
// dependency.
const requestTimeout = 30 * time.Second
