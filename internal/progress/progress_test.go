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

package progress

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()

	sub := NewSubscriber(ctx, client, "job-1")
	t.Cleanup(func() { sub.Close() })

	// Give the subscription a moment to register before publishing;
	// miniredis delivers synchronously once subscribed.
	time.Sleep(10 * time.Millisecond)

	pub := NewPublisher(client, "job-1")
	require.NoError(t, pub.Publish(ctx, 25, "sparse parse"))

	select {
	case msg := <-sub.Messages():
		require.Equal(t, "job-1", msg.JobID)
		require.Equal(t, 25, msg.ProgressPct)
		require.Equal(t, "sparse parse", msg.Message)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for progress message")
	}
}

func TestChannelNaming(t *testing.T) {
	require.Equal(t, "genetics:progress:job-42", Channel("job-42"))
}
