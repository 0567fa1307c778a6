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

package types

import (
	"testing"

	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/stretchr/testify/require"
)

func TestSchemaValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		s := Schema{
			Fields: []FieldDefinition{
				{Name: "id", Type: FieldType{Kind: KindInt}},
				{Name: "v", Type: FieldType{Kind: KindInt}, Nullable: true},
			},
			PrimaryIndex: []int{0},
		}
		require.NoError(t, s.Validate())
	})

	t.Run("duplicate name", func(t *testing.T) {
		s := Schema{Fields: []FieldDefinition{{Name: "id"}, {Name: "id"}}}
		require.Error(t, s.Validate())
	})

	t.Run("primary index out of range", func(t *testing.T) {
		s := Schema{Fields: []FieldDefinition{{Name: "id"}}, PrimaryIndex: []int{5}}
		require.Error(t, s.Validate())
	})

	t.Run("nullable primary key", func(t *testing.T) {
		s := Schema{
			Fields:       []FieldDefinition{{Name: "id", Nullable: true}},
			PrimaryIndex: []int{0},
		}
		require.Error(t, s.Validate())
	})
}

func TestSchemaColumnIndexAndPrimaryKey(t *testing.T) {
	s := Schema{
		Fields: []FieldDefinition{
			{Name: "id", Type: FieldType{Kind: KindInt}},
			{Name: "name", Type: FieldType{Kind: KindString}},
		},
		PrimaryIndex: []int{0},
	}
	require.Equal(t, 1, s.ColumnIndex("name"))
	require.Equal(t, -1, s.ColumnIndex("missing"))

	rec := Record{NewInt(7), NewString("a")}
	require.Equal(t, []Field{NewInt(7)}, s.PrimaryKey(rec))
}

func TestCompareNumericLadder(t *testing.T) {
	cmp, ok := Compare(NewInt(3), NewFloat(3.5))
	require.True(t, ok)
	require.Equal(t, -1, cmp)

	cmp, ok = Compare(NewUInt(5), NewInt(5))
	require.True(t, ok)
	require.Equal(t, 0, cmp)
}

func TestCompareIncompatibleClasses(t *testing.T) {
	_, ok := Compare(NewString("a"), NewBoolean(true))
	require.False(t, ok)
}

func TestCompareNull(t *testing.T) {
	cmp, ok := Compare(Null, NewInt(1))
	require.True(t, ok)
	require.Equal(t, -1, cmp)

	cmp, ok = Compare(Null, Null)
	require.True(t, ok)
	require.Equal(t, 0, cmp)
}

func TestSQLEqualThreeValued(t *testing.T) {
	require.Equal(t, Unknown, SQLEqual(Null, NewInt(1)))
	require.Equal(t, Unknown, SQLEqual(Null, Null))
	require.Equal(t, True, SQLEqual(NewInt(1), NewInt(1)))
	require.Equal(t, False, SQLEqual(NewInt(1), NewInt(2)))
}

func TestHashKeyNullIsDistinctBucket(t *testing.T) {
	require.Equal(t, HashKey(Null), HashKey(Null))
	require.NotEqual(t, HashKey(Null), HashKey(NewInt(0)))
}

func TestOpIdentifierOrdering(t *testing.T) {
	a := OpIdentifier{Txid: 1, SeqInTx: 5}
	b := OpIdentifier{Txid: 1, SeqInTx: 6}
	c := OpIdentifier{Txid: 2, SeqInTx: 0}

	require.True(t, a.Less(b))
	require.True(t, b.Less(c))
	require.Equal(t, 0, a.Compare(a))
}

func TestEpochClone(t *testing.T) {
	node := ident.NewNodeID("src")
	e := Epoch{ID: 1, SourcePositions: map[ident.NodeID]OpIdentifier{node: {Txid: 1, SeqInTx: 2}}}
	clone := e.Clone()
	require.Equal(t, e, clone)

	clone.SourcePositions[node] = OpIdentifier{Txid: 9, SeqInTx: 9}
	require.NotEqual(t, e.SourcePositions[node], clone.SourcePositions[node])
}

func TestOperationConstructors(t *testing.T) {
	old := Record{NewInt(1)}
	newRow := Record{NewInt(2)}

	require.Equal(t, Operation{Kind: OpInsert, New: newRow}, Insert(newRow))
	require.Equal(t, Operation{Kind: OpDelete, Old: old}, Delete(old))
	require.Equal(t, Operation{Kind: OpUpdate, Old: old, New: newRow}, Update(old, newRow))

	batch := []Record{old, newRow}
	require.Equal(t, Operation{Kind: OpBatchInsert, Batch: batch}, BatchInsertOp(batch))
}

func TestFieldRoundTrip(t *testing.T) {
	require.Equal(t, uint64(7), NewUInt(7).UInt())
	require.Equal(t, int64(-3), NewInt(-3).Int())
	require.Equal(t, 1.5, NewFloat(1.5).Float())
	require.True(t, NewBoolean(true).Boolean())
	require.Equal(t, "hi", NewString("hi").String())
	require.True(t, Null.IsNull())
}
