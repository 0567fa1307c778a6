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

package state

import (
	"path/filepath"
	"testing"

	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.bolt")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLastCheckpointEmptyStore(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.LastCheckpoint()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRecordCheckpointRoundTrip(t *testing.T) {
	s := openTestStore(t)

	epoch := types.Epoch{ID: 3, SourcePositions: map[ident.NodeID]types.OpIdentifier{
		ident.NewNodeID("src"): {Txid: 10, SeqInTx: 2},
	}}
	require.NoError(t, s.RecordCheckpoint(epoch))

	got, ok, err := s.LastCheckpoint()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, epoch, got)
}

func TestOperatorStateStagedWritesVisibleBeforeCommit(t *testing.T) {
	s := openTestStore(t)
	op := s.Operator(ident.NewOperatorID("agg1"))

	op.Put([]byte("k"), []byte("v"))
	v, ok, err := op.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)

	// A fresh handle over the same operator must not see the uncommitted write.
	fresh := s.Operator(ident.NewOperatorID("agg1"))
	_, ok, err = fresh.Get([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOperatorStateCommitMakesWritesDurable(t *testing.T) {
	s := openTestStore(t)
	op := s.Operator(ident.NewOperatorID("agg1"))
	op.Put([]byte("k1"), []byte("v1"))
	op.Put([]byte("k2"), []byte("v2"))

	require.NoError(t, op.Commit(types.Epoch{ID: 1}))

	fresh := s.Operator(ident.NewOperatorID("agg1"))
	v, ok, err := fresh.Get([]byte("k1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)

	checkpoint, ok, err := s.LastCheckpoint()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), checkpoint.ID)
}

func TestOperatorStateDeleteStagesAndCommits(t *testing.T) {
	s := openTestStore(t)
	op := s.Operator(ident.NewOperatorID("agg1"))
	op.Put([]byte("k"), []byte("v"))
	require.NoError(t, op.Commit(types.Epoch{ID: 1}))

	op2 := s.Operator(ident.NewOperatorID("agg1"))
	op2.Delete([]byte("k"))
	_, ok, err := op2.Get([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, op2.Commit(types.Epoch{ID: 2}))

	op3 := s.Operator(ident.NewOperatorID("agg1"))
	_, ok, err = op3.Get([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOperatorStateScanPrefixMergesStagedAndDurable(t *testing.T) {
	s := openTestStore(t)
	op := s.Operator(ident.NewOperatorID("agg1"))
	op.Put([]byte("a/1"), []byte("one"))
	op.Put([]byte("a/2"), []byte("two"))
	op.Put([]byte("b/1"), []byte("other"))
	require.NoError(t, op.Commit(types.Epoch{ID: 1}))

	op2 := s.Operator(ident.NewOperatorID("agg1"))
	op2.Put([]byte("a/3"), []byte("three"))
	op2.Delete([]byte("a/1"))

	entries, err := op2.ScanPrefix([]byte("a/"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, []byte("a/2"), entries[0].Key)
	require.Equal(t, []byte("a/3"), entries[1].Key)
}

func TestOperatorStateCommitNoopWhenNothingStaged(t *testing.T) {
	s := openTestStore(t)
	op := s.Operator(ident.NewOperatorID("agg1"))
	require.NoError(t, op.Commit(types.Epoch{ID: 1}))

	_, ok, err := s.LastCheckpoint()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOperatorPartitionsAreIndependent(t *testing.T) {
	s := openTestStore(t)
	a := s.Operator(ident.NewOperatorID("a"))
	a.Put([]byte("k"), []byte("from-a"))
	require.NoError(t, a.Commit(types.Epoch{ID: 1}))

	b := s.Operator(ident.NewOperatorID("b"))
	_, ok, err := b.Get([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}
