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
	"testing"

	"github.com/cockroachdb/dataflow/internal/expr"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/stretchr/testify/require"
)

func col(i int, k types.Kind) *expr.Expr {
	return expr.Column(i, types.FieldType{Kind: k})
}

func TestProjectInsert(t *testing.T) {
	p := &Project{Expressions: []*expr.Expr{col(1, types.KindString), col(0, types.KindInt)}}
	rec := types.Record{types.NewInt(1), types.NewString("a")}

	out, err := p.Apply(ident.Port(0), types.Insert(rec))
	require.NoError(t, err)
	require.Equal(t, []types.Operation{types.Insert(types.Record{types.NewString("a"), types.NewInt(1)})}, out)
}

func TestProjectUpdateBothPass(t *testing.T) {
	p := &Project{Expressions: []*expr.Expr{col(0, types.KindInt)}}
	old := types.Record{types.NewInt(1)}
	newRec := types.Record{types.NewInt(2)}

	out, err := p.Apply(ident.Port(0), types.Update(old, newRec))
	require.NoError(t, err)
	require.Equal(t, []types.Operation{types.Update(types.Record{types.NewInt(1)}, types.Record{types.NewInt(2)})}, out)
}

func TestProjectDropsOnEvalError(t *testing.T) {
	badCast := expr.Cast(col(0, types.KindString), types.FieldType{Kind: types.KindInt})
	p := &Project{Expressions: []*expr.Expr{badCast}, Policy: expr.PolicyDrop}
	rec := types.Record{types.NewString("nope")}

	out, err := p.Apply(ident.Port(0), types.Insert(rec))
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestProjectPropagatesOnEvalError(t *testing.T) {
	badCast := expr.Cast(col(0, types.KindString), types.FieldType{Kind: types.KindInt})
	p := &Project{Expressions: []*expr.Expr{badCast}, Policy: expr.PolicyPropagate}
	rec := types.Record{types.NewString("nope")}

	_, err := p.Apply(ident.Port(0), types.Insert(rec))
	require.Error(t, err)
}

func TestProjectBatchInsert(t *testing.T) {
	p := &Project{Expressions: []*expr.Expr{col(0, types.KindInt)}}
	batch := []types.Record{{types.NewInt(1)}, {types.NewInt(2)}}

	out, err := p.Apply(ident.Port(0), types.BatchInsertOp(batch))
	require.NoError(t, err)
	require.Equal(t, []types.Operation{types.BatchInsertOp([]types.Record{{types.NewInt(1)}, {types.NewInt(2)}})}, out)
}
