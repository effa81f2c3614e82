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

// Package queue implements the durable FIFO job queue (C5 §4.5): a single
// Redis list, blocking pop with a 1-second timeout, at-least-once delivery.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zymatik-com/genomerge/internal/model"
)

// Key is the list key holding serialized JobPayloads.
const Key = "genetics:job_queue"

// popTimeout is how long a single blocking pop waits before returning
// ErrEmpty, so the caller's loop can check for shutdown.
const popTimeout = 1 * time.Second

// ErrEmpty is returned by Pop when no job was available within the
// blocking timeout.
var ErrEmpty = errors.New("queue: no job available")

// Queue is a thin wrapper over a Redis list used as a FIFO.
type Queue struct {
	client *redis.Client
}

func New(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Push enqueues a job payload at the tail of the list.
func (q *Queue) Push(ctx context.Context, payload model.JobPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("could not marshal job payload: %w", err)
	}

	if err := q.client.RPush(ctx, Key, data).Err(); err != nil {
		return fmt.Errorf("could not push job %s: %w", payload.JobID, err)
	}

	return nil
}

// Pop blocks for up to one second waiting for a job at the head of the
// list. It returns ErrEmpty (not a hard error) on timeout, so the worker
// loop can poll for cancellation between attempts.
func (q *Queue) Pop(ctx context.Context) (model.JobPayload, error) {
	result, err := q.client.BLPop(ctx, popTimeout, Key).Result()
	if errors.Is(err, redis.Nil) {
		return model.JobPayload{}, ErrEmpty
	}
	if err != nil {
		return model.JobPayload{}, fmt.Errorf("could not pop job: %w", err)
	}

	// BLPop returns [key, value].
	if len(result) != 2 {
		return model.JobPayload{}, fmt.Errorf("unexpected BLPOP reply shape: %d elements", len(result))
	}

	var payload model.JobPayload
	if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
		return model.JobPayload{}, fmt.Errorf("could not unmarshal job payload: %w", err)
	}

	return payload, nil
}

// Remove deletes the first enqueued payload matching jobID, used by the
// job deletion endpoint (spec §6 "Deletion"). Since the queue is a plain
// list, this is a linear scan; the queue is expected to be shallow (one
// active worker, no backlog under normal operation).
func (q *Queue) Remove(ctx context.Context, jobID string) error {
	items, err := q.client.LRange(ctx, Key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("could not list queue: %w", err)
	}

	for _, item := range items {
		var payload model.JobPayload
		if err := json.Unmarshal([]byte(item), &payload); err != nil {
			continue
		}
		if payload.JobID == jobID {
			if err := q.client.LRem(ctx, Key, 1, item).Err(); err != nil {
				return fmt.Errorf("could not remove job %s from queue: %w", jobID, err)
			}
			return nil
		}
	}

	return nil
}
