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

// Package config reads the worker/server processes' environment
// configuration (spec §6 "Environment") via viper's env binding, with
// CLI flags (bound by the caller) taking precedence for free.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/zymatik-com/genomerge/internal/notify"
)

// Volume is ENCRYPTED_VOLUME_PATH's fixed subdirectory layout.
type Volume struct {
	Root string
}

func (v Volume) Uploads() string       { return filepath.Join(v.Root, "uploads") }
func (v Volume) UploadChunks() string  { return filepath.Join(v.Root, "uploads", "chunks") }
func (v Volume) Processing() string    { return filepath.Join(v.Root, "processing") }
func (v Volume) Results() string       { return filepath.Join(v.Root, "results") }
func (v Volume) ReferencePanel() string { return filepath.Join(v.Root, "reference_panel.db") }

// Config is the resolved set of connection strings and paths shared by
// both entrypoints.
type Config struct {
	DatabaseURL        string
	RedisURL           string
	Volume             Volume
	CORSAllowedOrigins []string
	SMTP               notify.Config
}

// Load builds a viper instance bound to the environment and reads every
// setting this service needs. Each *_FILE variant, if set, is read by
// the caller before Load (the CLI's Before hook), matching the teacher's
// pattern of resolving secrets files ahead of flag/env parsing.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("ENCRYPTED_VOLUME_PATH", "/var/lib/genomerge")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")

	databaseURL := v.GetString("DATABASE_URL")
	if databaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := v.GetString("REDIS_URL")
	if redisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL is required")
	}

	var origins []string
	if raw := v.GetString("CORS_ALLOWED_ORIGINS"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}

	return Config{
		DatabaseURL: databaseURL,
		RedisURL:    redisURL,
		Volume:      Volume{Root: v.GetString("ENCRYPTED_VOLUME_PATH")},
		CORSAllowedOrigins: origins,
		SMTP: notify.Config{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetString("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("SMTP_FROM"),
		},
	}, nil
}
