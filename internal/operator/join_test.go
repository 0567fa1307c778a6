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

package operator

import (
	"path/filepath"
	"testing"

	"github.com/cockroachdb/dataflow/internal/state"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/stretchr/testify/require"
)

// left rows: [id, key]; right rows: [id, key]
func leftRow(id, key int64) types.Record  { return types.Record{types.NewInt(id), types.NewInt(key)} }
func rightRow(id, key int64) types.Record { return types.Record{types.NewInt(id), types.NewInt(key)} }

func TestJoinInnerMatchOrderIndependent(t *testing.T) {
	j := NewJoin([]int{1}, []int{1}, []int{0}, []int{0}, 2, 2, JoinInner)

	out, err := j.Apply(LeftPort, types.Insert(leftRow(1, 100)))
	require.NoError(t, err)
	require.Empty(t, out)

	out, err = j.Apply(RightPort, types.Insert(rightRow(1, 100)))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, types.OpInsert, out[0].Kind)
	require.Equal(t, types.NewInt(1), out[0].New[0])
	require.Equal(t, types.NewInt(1), out[0].New[2])
}

func TestJoinInnerDeleteRetracts(t *testing.T) {
	j := NewJoin([]int{1}, []int{1}, []int{0}, []int{0}, 2, 2, JoinInner)
	_, err := j.Apply(LeftPort, types.Insert(leftRow(1, 100)))
	require.NoError(t, err)
	_, err = j.Apply(RightPort, types.Insert(rightRow(1, 100)))
	require.NoError(t, err)

	out, err := j.Apply(LeftPort, types.Delete(leftRow(1, 100)))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, types.OpDelete, out[0].Kind)
}

func TestJoinLeftOuterPadsUnmatched(t *testing.T) {
	j := NewJoin([]int{1}, []int{1}, []int{0}, []int{0}, 2, 2, JoinLeft)

	out, err := j.Apply(LeftPort, types.Insert(leftRow(1, 100)))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, types.OpInsert, out[0].Kind)
	require.True(t, out[0].New[2].IsNull())
	require.True(t, out[0].New[3].IsNull())

	out, err = j.Apply(RightPort, types.Insert(rightRow(1, 100)))
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, types.OpDelete, out[0].Kind)
	require.Equal(t, types.OpInsert, out[1].Kind)
	require.Equal(t, types.NewInt(1), out[1].New[2])
}

func TestJoinLeftOuterDeleteMatchRepads(t *testing.T) {
	j := NewJoin([]int{1}, []int{1}, []int{0}, []int{0}, 2, 2, JoinLeft)
	_, err := j.Apply(LeftPort, types.Insert(leftRow(1, 100)))
	require.NoError(t, err)
	_, err = j.Apply(RightPort, types.Insert(rightRow(1, 100)))
	require.NoError(t, err)

	out, err := j.Apply(RightPort, types.Delete(rightRow(1, 100)))
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, types.OpDelete, out[0].Kind)
	require.Equal(t, types.OpInsert, out[1].Kind)
	require.True(t, out[1].New[2].IsNull())
}

func TestJoinRightOuterPadsUnmatched(t *testing.T) {
	j := NewJoin([]int{1}, []int{1}, []int{0}, []int{0}, 2, 2, JoinRight)

	out, err := j.Apply(RightPort, types.Insert(rightRow(1, 100)))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.True(t, out[0].New[0].IsNull())
	require.True(t, out[0].New[1].IsNull())
}

func TestJoinUnknownPortErrors(t *testing.T) {
	j := NewJoin([]int{1}, []int{1}, []int{0}, []int{0}, 2, 2, JoinInner)
	_, err := j.Apply(2, types.Insert(leftRow(1, 1)))
	require.Error(t, err)
}

// TestJoinRestartRestoresIndexedTablesAndPaddingFromStore is S5's
// crash/resume scenario applied directly to the operator: a second
// Join, backed by the same on-disk store and never shown the left row
// committed before the simulated crash again, must still produce the
// same retract-then-insert delta a continuously-running Join would
// have produced for the matching right row.
func TestJoinRestartRestoresIndexedTablesAndPaddingFromStore(t *testing.T) {
	store, err := state.Open(filepath.Join(t.TempDir(), "state.bbolt"))
	require.NoError(t, err)
	defer store.Close()

	opID := ident.NewOperatorID("join")
	newJoin := func() *Join { return NewJoin([]int{1}, []int{1}, []int{0}, []int{0}, 2, 2, JoinLeft) }

	first := newJoin()
	require.NoError(t, first.Restore(store.Operator(opID)))
	out, err := first.Apply(LeftPort, types.Insert(leftRow(1, 100)))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.True(t, out[0].New[2].IsNull())
	require.NoError(t, first.Commit(types.Epoch{ID: 1, SourcePositions: map[ident.NodeID]types.OpIdentifier{}}))

	// Simulate a crash and restart: the left row above is never
	// re-ingested, matching how a checkpointed source resumes strictly
	// after its last position.
	restarted := newJoin()
	require.NoError(t, restarted.Restore(store.Operator(opID)))
	out, err = restarted.Apply(RightPort, types.Insert(rightRow(1, 100)))
	require.NoError(t, err)

	// A reference Join that never crashed, seeing both rows in one
	// continuous process, must produce the identical delta.
	reference := newJoin()
	_, err = reference.Apply(LeftPort, types.Insert(leftRow(1, 100)))
	require.NoError(t, err)
	refOut, err := reference.Apply(RightPort, types.Insert(rightRow(1, 100)))
	require.NoError(t, err)

	require.Equal(t, refOut, out)
}

// TestJoinRestoreOnEmptyStoreStartsFresh confirms a first-ever startup
// (no prior commit) leaves the operator in the same state as one that
// was never attached to a store at all.
func TestJoinRestoreOnEmptyStoreStartsFresh(t *testing.T) {
	store, err := state.Open(filepath.Join(t.TempDir(), "state.bbolt"))
	require.NoError(t, err)
	defer store.Close()

	j := NewJoin([]int{1}, []int{1}, []int{0}, []int{0}, 2, 2, JoinInner)
	require.NoError(t, j.Restore(store.Operator(ident.NewOperatorID("join"))))
	require.Empty(t, j.leftTable)
	require.Empty(t, j.rightTable)
}
