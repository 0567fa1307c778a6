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

package exec

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/stretchr/testify/require"
)

func TestAlignerSingleInputPassesThrough(t *testing.T) {
	ch := NewChannel(1)
	inputs := Inputs{0: ch}
	stopping := make(chan struct{})

	op := types.ExecutorOp(types.TableOperation{})
	require.NoError(t, ch.Send(context.Background(), stopping, op))

	a := NewAligner(inputs)
	port, got, err := a.Next(context.Background(), stopping, inputs)
	require.NoError(t, err)
	require.Equal(t, ident.Port(0), port)
	require.Equal(t, op, got)
}

func TestAlignerHoldsBackUntilAllInputsCommit(t *testing.T) {
	left := NewChannel(2)
	right := NewChannel(2)
	inputs := Inputs{0: left, 1: right}
	stopping := make(chan struct{})
	ctx := context.Background()

	epoch := types.Epoch{ID: 1, SourcePositions: map[ident.NodeID]types.OpIdentifier{
		ident.NewNodeID("left"): {Txid: 1},
	}}
	require.NoError(t, left.Send(ctx, stopping, types.ExecutorCommit(epoch)))
	require.NoError(t, left.Send(ctx, stopping, types.ExecutorOp(types.TableOperation{})))

	a := NewAligner(inputs)

	// Left is stalled on Commit(1); the op behind it must not be drained
	// until right also reaches Commit(1).
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, got, err := a.Next(ctx, stopping, inputs)
		require.NoError(t, err)
		require.Equal(t, types.ExecCommit, got.Kind)
		require.Equal(t, uint64(1), got.Epoch.ID)
	}()

	select {
	case <-done:
		t.Fatal("aligner resolved commit before the right input reached it")
	case <-time.After(20 * time.Millisecond):
	}

	rightEpoch := types.Epoch{ID: 1, SourcePositions: map[ident.NodeID]types.OpIdentifier{
		ident.NewNodeID("right"): {Txid: 2},
	}}
	require.NoError(t, right.Send(ctx, stopping, types.ExecutorCommit(rightEpoch)))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("aligner never resolved after both inputs committed")
	}
}

func TestAlignerTerminateBypassesAlignment(t *testing.T) {
	left := NewChannel(1)
	right := NewChannel(1)
	inputs := Inputs{0: left, 1: right}
	stopping := make(chan struct{})
	ctx := context.Background()

	require.NoError(t, left.Send(ctx, stopping, types.ExecutorTerminate))

	a := NewAligner(inputs)
	_, got, err := a.Next(ctx, stopping, inputs)
	require.NoError(t, err)
	require.Equal(t, types.ExecTerminate, got.Kind)
}
