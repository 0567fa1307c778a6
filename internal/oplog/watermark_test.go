// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package oplog

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/stretchr/testify/require"
)

func TestWatermarkTracksSlowestReader(t *testing.T) {
	l, err := Open(t.TempDir(), "orders", testSchema, 64)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 10; i++ {
		_, err := l.Append(1, types.Insert(types.Record{types.NewInt(int64(i))}))
		require.NoError(t, err)
	}

	fast, err := l.NewReader(0)
	require.NoError(t, err)
	defer fast.Close()
	slow, err := l.NewReader(0)
	require.NoError(t, err)
	defer slow.Close()

	for i := 0; i < 8; i++ {
		_, err := fast.Next()
		require.NoError(t, err)
	}
	fast.Ack()

	for i := 0; i < 3; i++ {
		_, err := slow.Next()
		require.NoError(t, err)
	}
	slow.Ack()

	watermark, _ := l.lowWatermark.Get()
	require.Equal(t, uint64(2), watermark)
}

func TestWatermarkAdvancesWhenSlowReaderCloses(t *testing.T) {
	l, err := Open(t.TempDir(), "orders", testSchema, 64)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 5; i++ {
		_, err := l.Append(1, types.Insert(types.Record{types.NewInt(int64(i))}))
		require.NoError(t, err)
	}

	fast, err := l.NewReader(0)
	require.NoError(t, err)
	defer fast.Close()
	slow, err := l.NewReader(0)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := fast.Next()
		require.NoError(t, err)
	}
	fast.Ack()

	watermark, _ := l.lowWatermark.Get()
	require.Equal(t, uint64(0), watermark)

	require.NoError(t, slow.Close())

	watermark, _ = l.lowWatermark.Get()
	require.Equal(t, uint64(4), watermark)
}

func TestWatchTruncationStopsOnContextCancel(t *testing.T) {
	l, err := Open(t.TempDir(), "orders", testSchema, 64)
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.WatchTruncation(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchTruncation did not exit after context cancellation")
	}
}
