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

package pipeline

import (
	"testing"

	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/stretchr/testify/require"
)

func TestProvideStoreOpensAndCleansUp(t *testing.T) {
	cfg := Config{StateDir: t.TempDir()}
	store, cleanup, err := ProvideStore(cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	cleanup()
}

func TestProvideCheckpointManagerStartsEmptyOnFreshStore(t *testing.T) {
	cfg := Config{StateDir: t.TempDir()}
	store, cleanup, err := ProvideStore(cfg)
	require.NoError(t, err)
	defer cleanup()

	mgr, resume, err := ProvideCheckpointManager(store)
	require.NoError(t, err)
	require.NotNil(t, mgr)
	require.Empty(t, resume)
}

func TestProvideCheckpointManagerReturnsRecordedCheckpoint(t *testing.T) {
	cfg := Config{StateDir: t.TempDir()}
	store, cleanup, err := ProvideStore(cfg)
	require.NoError(t, err)
	defer cleanup()

	nodeID := ident.NewNodeID("orders")
	epoch := types.Epoch{ID: 3, SourcePositions: map[ident.NodeID]types.OpIdentifier{nodeID: {Txid: 9}}}
	require.NoError(t, store.RecordCheckpoint(epoch))

	_, resume, err := ProvideCheckpointManager(store)
	require.NoError(t, err)
	require.Equal(t, types.OpIdentifier{Txid: 9}, resume[nodeID])
}
