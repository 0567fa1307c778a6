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
	"context"
	"io"
	"testing"

	"github.com/cockroachdb/dataflow/internal/oplog"
	"github.com/cockroachdb/dataflow/internal/state"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/stretchr/testify/require"
)

type fakeSinkDriver struct {
	ops     []types.Operation
	commits []types.Epoch
}

func (d *fakeSinkDriver) OnSchema(types.Schema) error { return nil }
func (d *fakeSinkDriver) OnOperation(ctx context.Context, op types.Operation) error {
	d.ops = append(d.ops, op)
	return nil
}
func (d *fakeSinkDriver) OnCommit(ctx context.Context, epoch types.Epoch) error {
	d.commits = append(d.commits, epoch)
	return nil
}
func (d *fakeSinkDriver) OnTerminate(context.Context) error { return nil }

func TestLoggingDriverAppendsOperationsUnderCurrentEpoch(t *testing.T) {
	lg, err := oplog.Open(t.TempDir(), "orders", state.SchemaID(1), 0)
	require.NoError(t, err)
	defer lg.Close()

	inner := &fakeSinkDriver{}
	d := &loggingDriver{inner: inner, log: lg}

	op1 := types.Insert(types.Record{types.NewInt(1)})
	require.NoError(t, d.OnOperation(context.Background(), op1))

	require.NoError(t, d.OnCommit(context.Background(), types.Epoch{ID: 7}))

	op2 := types.Insert(types.Record{types.NewInt(2)})
	require.NoError(t, d.OnOperation(context.Background(), op2))

	reader, err := lg.NewReader(0)
	require.NoError(t, err)
	defer reader.Close()

	first, err := reader.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(0), first.EpochID)
	require.Equal(t, op1, first.Op)

	second, err := reader.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(7), second.EpochID)
	require.Equal(t, op2, second.Op)

	_, err = reader.Next()
	require.ErrorIs(t, err, io.EOF)

	require.Equal(t, []types.Operation{op1, op2}, inner.ops)
	require.Equal(t, []types.Epoch{{ID: 7}}, inner.commits)
}

func TestLoggingDriverDelegatesSchemaAndTerminate(t *testing.T) {
	lg, err := oplog.Open(t.TempDir(), "orders", state.SchemaID(1), 0)
	require.NoError(t, err)
	defer lg.Close()

	inner := &fakeSinkDriver{}
	d := &loggingDriver{inner: inner, log: lg}

	require.NoError(t, d.OnSchema(types.Schema{}))
	require.NoError(t, d.OnTerminate(context.Background()))
}
