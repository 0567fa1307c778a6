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

package pgtest

import (
	"testing"
	"time"

	"github.com/cockroachdb/dataflow/internal/source"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

func TestValueToFieldMapsDriverTypes(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := []struct {
		name string
		in   any
		want types.Field
	}{
		{"nil", nil, types.Null},
		{"int64", int64(7), types.NewInt(7)},
		{"int32", int32(7), types.NewInt(7)},
		{"float64", float64(1.5), types.NewFloat(1.5)},
		{"bool", true, types.NewBoolean(true)},
		{"string", "hi", types.NewString("hi")},
		{"bytes", []byte("raw"), types.NewBinary([]byte("raw"))},
		{"time", ts, types.NewTimestamp(ts)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, valueToField(c.in))
		})
	}
}

func TestValueToFieldSanitizesPgxIdentifier(t *testing.T) {
	got := valueToField(pgx.Identifier{"public", "orders"})
	require.Equal(t, types.NewString(`"public"."orders"`), got)
}

func TestValuesToRecordPreservesColumnOrder(t *testing.T) {
	rec := valuesToRecord([]any{int64(1), "a", nil})
	require.Equal(t, types.Record{types.NewInt(1), types.NewString("a"), types.Null}, rec)
}

func TestToInt64(t *testing.T) {
	n, ok := toInt64(int64(42))
	require.True(t, ok)
	require.Equal(t, int64(42), n)

	n, ok = toInt64(int32(42))
	require.True(t, ok)
	require.Equal(t, int64(42), n)

	_, ok = toInt64("nope")
	require.False(t, ok)
}

func TestGetSchemasMarksSeqColumnAsPrimaryAndNotNull(t *testing.T) {
	d := &Driver{cfg: Config{SeqColumn: "id"}}
	out, err := d.GetSchemas(nil, []source.TableInfo{
		{
			TableIdentifier: source.TableIdentifier{Schema: "public", Name: "orders"},
			ColumnNames:     []string{"id", "amount"},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)

	schema := out[0].Schema
	require.Equal(t, []int{0}, schema.PrimaryIndex)
	require.False(t, schema.Fields[0].Nullable)
	require.True(t, schema.Fields[1].Nullable)
	require.Equal(t, types.CdcFullChanges, out[0].Cdc)
}

func TestGetSchemasLeavesPrimaryIndexEmptyWhenSeqColumnMissing(t *testing.T) {
	d := &Driver{cfg: Config{SeqColumn: "missing"}}
	out, err := d.GetSchemas(nil, []source.TableInfo{
		{TableIdentifier: source.TableIdentifier{Schema: "public", Name: "orders"}, ColumnNames: []string{"id"}},
	})
	require.NoError(t, err)
	require.Empty(t, out[0].Schema.PrimaryIndex)
}
