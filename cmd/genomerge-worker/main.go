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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/zymatik-com/genomerge/internal/config"
	"github.com/zymatik-com/genomerge/internal/jobstore"
	"github.com/zymatik-com/genomerge/internal/queue"
	"github.com/zymatik-com/genomerge/internal/runtime"
)

func main() {
	var logger *slog.Logger

	init := func(c *cli.Context) error {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: (*slog.Level)(c.Generic("log-level").(*logLevelFlag)),
		}))
		return nil
	}

	app := &cli.App{
		Name:  "genomerge-worker",
		Usage: "Dequeue and process genomic merge jobs",
		Flags: []cli.Flag{
			&cli.GenericFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set the log level",
				Value:   fromLogLevel(slog.LevelInfo),
			},
		},
		Before: init,
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("could not load configuration: %w", err)
			}

			pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("could not connect to database: %w", err)
			}
			defer pool.Close()

			if _, err := pool.Exec(ctx, jobstore.Schema); err != nil {
				return fmt.Errorf("could not apply schema: %w", err)
			}

			redisOpts, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("could not parse redis URL: %w", err)
			}
			redisClient := redis.NewClient(redisOpts)
			defer redisClient.Close()

			for _, dir := range []string{cfg.Volume.Uploads(), cfg.Volume.Processing(), cfg.Volume.Results()} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("could not create %s: %w", dir, err)
				}
			}

			rt := &runtime.Runtime{
				Logger:         logger,
				Queue:          queue.New(redisClient),
				Store:          jobstore.New(pool),
				Redis:          redisClient,
				ReferencePanel: cfg.Volume.ReferencePanel(),
				SMTP:           cfg.SMTP,
			}

			go rt.RunRetentionSweep(ctx, cfg.Volume.Root)

			logger.Info("Worker started", "referencePanel", rt.ReferencePanel)

			return rt.Run(ctx)
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("Error running app", "error", err)
		os.Exit(1)
	}
}

type logLevelFlag slog.Level

func fromLogLevel(l slog.Level) *logLevelFlag {
	f := logLevelFlag(l)
	return &f
}

func (f *logLevelFlag) Set(value string) error {
	return (*slog.Level)(f).UnmarshalText([]byte(value))
}

func (f *logLevelFlag) String() string {
	return (*slog.Level)(f).String()
}
