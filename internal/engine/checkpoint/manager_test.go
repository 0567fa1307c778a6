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

package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/cockroachdb/dataflow/internal/state"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.Open(filepath.Join(t.TempDir(), "state.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestResumeFreshStoreStartsAtZero(t *testing.T) {
	m := New(openTestStore(t))

	positions, ok, err := m.Resume()
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, positions)
}

func TestResumeReturnsLastCheckpointSourcePositions(t *testing.T) {
	store := openTestStore(t)
	m := New(store)

	src := ident.NewNodeID("src")
	epoch := types.Epoch{ID: 4, SourcePositions: map[ident.NodeID]types.OpIdentifier{
		src: {Txid: 11, SeqInTx: 3},
	}}
	require.NoError(t, m.RecordCheckpoint(epoch))

	positions, ok, err := m.Resume()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.OpIdentifier{Txid: 11, SeqInTx: 3}, positions[src])
}
