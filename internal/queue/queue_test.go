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

package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/zymatik-com/genomerge/internal/model"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return New(client)
}

func TestQueuePushPopOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, model.JobPayload{JobID: "job-1"}))
	require.NoError(t, q.Push(ctx, model.JobPayload{JobID: "job-2"}))

	first, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "job-1", first.JobID)

	second, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "job-2", second.JobID)
}

func TestQueuePopEmpty(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Pop(context.Background())
	require.ErrorIs(t, err, ErrEmpty)
}

func TestQueueRemove(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, model.JobPayload{JobID: "job-1"}))
	require.NoError(t, q.Push(ctx, model.JobPayload{JobID: "job-2"}))

	require.NoError(t, q.Remove(ctx, "job-1"))

	remaining, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "job-2", remaining.JobID)
}
