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

// Package progress implements the job progress pub/sub channel (C5 §4.5):
// markers are published to genetics:progress:{job_id} as the pipeline
// advances and relayed to any subscribed web-socket client.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zymatik-com/genomerge/internal/model"
)

// Channel returns the pub/sub channel name for a given job.
func Channel(jobID string) string {
	return fmt.Sprintf("genetics:progress:%s", jobID)
}

// Publisher publishes progress markers for one job.
type Publisher struct {
	client *redis.Client
	jobID  string
}

func NewPublisher(client *redis.Client, jobID string) *Publisher {
	return &Publisher{client: client, jobID: jobID}
}

// Publish sends one progress marker. Publish failures are logged by the
// caller but are not treated as fatal to the job: progress reporting is
// best-effort relative to the pipeline itself (spec §5 "every... pub/sub
// publish is a suspension point", not a correctness dependency).
func (p *Publisher) Publish(ctx context.Context, pct int, message string) error {
	msg := model.ProgressMessage{
		JobID:       p.jobID,
		ProgressPct: pct,
		Message:     message,
		Timestamp:   time.Now(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("could not marshal progress message: %w", err)
	}

	if err := p.client.Publish(ctx, Channel(p.jobID), data).Err(); err != nil {
		return fmt.Errorf("could not publish progress for job %s: %w", p.jobID, err)
	}

	return nil
}

// Subscriber relays progress messages for one job to a channel of decoded
// messages, used by the web-socket relay handler.
type Subscriber struct {
	pubsub *redis.PubSub
}

func NewSubscriber(ctx context.Context, client *redis.Client, jobID string) *Subscriber {
	return &Subscriber{pubsub: client.Subscribe(ctx, Channel(jobID))}
}

// Messages returns an unbounded channel of decoded progress messages.
// Malformed payloads are dropped rather than surfaced, since a stray
// message must never take down the relay. The channel is closed when the
// underlying subscription closes.
func (s *Subscriber) Messages() <-chan model.ProgressMessage {
	out := make(chan model.ProgressMessage)

	go func() {
		defer close(out)

		ch := s.pubsub.Channel()
		for raw := range ch {
			var msg model.ProgressMessage
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				continue
			}
			out <- msg
		}
	}()

	return out
}

func (s *Subscriber) Close() error {
	return s.pubsub.Close()
}
