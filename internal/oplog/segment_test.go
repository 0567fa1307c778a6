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
	"io"
	"testing"

	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/stretchr/testify/require"
)

func TestLogAppendAndReadBack(t *testing.T) {
	l, err := Open(t.TempDir(), "orders", testSchema, 0)
	require.NoError(t, err)
	defer l.Close()

	seq0, err := l.Append(1, types.Insert(types.Record{types.NewInt(1)}))
	require.NoError(t, err)
	require.Equal(t, uint64(0), seq0)

	seq1, err := l.Append(1, types.Insert(types.Record{types.NewInt(2)}))
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq1)

	r, err := l.NewReader(0)
	require.NoError(t, err)
	defer r.Close()

	first, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(0), first.Seq)

	second, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(1), second.Seq)

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestLogReaderSkipsRecordsBeforeFromSeq(t *testing.T) {
	l, err := Open(t.TempDir(), "orders", testSchema, 0)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 5; i++ {
		_, err := l.Append(1, types.Insert(types.Record{types.NewInt(int64(i))}))
		require.NoError(t, err)
	}

	r, err := l.NewReader(3)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(3), rec.Seq)
}

func TestLogRollsToNewSegmentWhenOverCapacity(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, "orders", testSchema, 64)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 50; i++ {
		_, err := l.Append(1, types.Insert(types.Record{types.NewInt(int64(i))}))
		require.NoError(t, err)
	}

	require.Greater(t, len(l.segments), 1)

	r, err := l.NewReader(0)
	require.NoError(t, err)
	defer r.Close()

	count := 0
	for {
		_, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		count++
	}
	require.Equal(t, 50, count)
}

func TestLogReopenResumesNextSeq(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, "orders", testSchema, 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := l.Append(1, types.Insert(types.Record{types.NewInt(int64(i))}))
		require.NoError(t, err)
	}
	require.NoError(t, l.Close())

	reopened, err := Open(dir, "orders", testSchema, 0)
	require.NoError(t, err)
	defer reopened.Close()

	seq, err := reopened.Append(2, types.Insert(types.Record{types.NewInt(99)}))
	require.NoError(t, err)
	require.Equal(t, uint64(3), seq)
}

func TestLogTruncateBeforeRemovesOldSegmentsOnly(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, "orders", testSchema, 64)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 50; i++ {
		_, err := l.Append(1, types.Insert(types.Record{types.NewInt(int64(i))}))
		require.NoError(t, err)
	}
	require.Greater(t, len(l.segments), 2)

	keepFrom := l.segments[len(l.segments)-1].startSeq
	require.NoError(t, l.TruncateBefore(keepFrom))

	// The current segment must always survive truncation.
	found := false
	for _, seg := range l.segments {
		if seg == l.cur {
			found = true
		}
	}
	require.True(t, found)

	r, err := l.NewReader(keepFrom)
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Next()
	require.NoError(t, err)
}
