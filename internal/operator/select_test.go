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

func gtFive() *expr.Expr {
	return expr.Binary(expr.Gt, col(0, types.KindInt), expr.Literal(types.NewInt(5)),
		types.FieldType{Kind: types.KindBoolean})
}

func TestSelectInsertFilters(t *testing.T) {
	s := &Select{Predicate: gtFive()}

	out, err := s.Apply(ident.Port(0), types.Insert(types.Record{types.NewInt(10)}))
	require.NoError(t, err)
	require.Equal(t, []types.Operation{types.Insert(types.Record{types.NewInt(10)})}, out)

	out, err = s.Apply(ident.Port(0), types.Insert(types.Record{types.NewInt(1)}))
	require.NoError(t, err)
	require.Nil(t, out)
}

// TestSelectUpdateTransitions exercises the four-way emit table from
// spec.md §8's S1 scenario: both pass -> Update, enter -> Insert, leave
// -> Delete, neither -> nothing.
func TestSelectUpdateTransitions(t *testing.T) {
	s := &Select{Predicate: gtFive()}

	both := types.Record{types.NewInt(10)}
	bothNew := types.Record{types.NewInt(20)}
	out, err := s.Apply(ident.Port(0), types.Update(both, bothNew))
	require.NoError(t, err)
	require.Equal(t, []types.Operation{types.Update(both, bothNew)}, out)

	enter := types.Record{types.NewInt(1)}
	enterNew := types.Record{types.NewInt(20)}
	out, err = s.Apply(ident.Port(0), types.Update(enter, enterNew))
	require.NoError(t, err)
	require.Equal(t, []types.Operation{types.Insert(enterNew)}, out)

	leave := types.Record{types.NewInt(20)}
	leaveNew := types.Record{types.NewInt(1)}
	out, err = s.Apply(ident.Port(0), types.Update(leave, leaveNew))
	require.NoError(t, err)
	require.Equal(t, []types.Operation{types.Delete(leave)}, out)

	neither := types.Record{types.NewInt(1)}
	neitherNew := types.Record{types.NewInt(2)}
	out, err = s.Apply(ident.Port(0), types.Update(neither, neitherNew))
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestSelectNullPredicateFilters(t *testing.T) {
	s := &Select{Predicate: gtFive()}
	out, err := s.Apply(ident.Port(0), types.Insert(types.Record{types.Null}))
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestSelectBatchInsert(t *testing.T) {
	s := &Select{Predicate: gtFive()}
	batch := []types.Record{{types.NewInt(10)}, {types.NewInt(1)}, {types.NewInt(6)}}

	out, err := s.Apply(ident.Port(0), types.BatchInsertOp(batch))
	require.NoError(t, err)
	require.Equal(t, []types.Operation{types.BatchInsertOp([]types.Record{{types.NewInt(10)}, {types.NewInt(6)}})}, out)
}
