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
	"math/big"
	"testing"
	"time"

	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := types.Record{
		types.NewInt(-7),
		types.NewUInt(42),
		types.NewFloat(3.5),
		types.NewBoolean(true),
		types.NewString("hello"),
		types.NewBinary([]byte{1, 2, 3}),
		types.NewDecimal(big.NewRat(1, 3)),
		types.NewTimestamp(ts),
		types.Null,
	}

	encoded, err := EncodeRecord(SchemaID(5), rec)
	require.NoError(t, err)

	decoded, err := DecodeRecord(encoded, SchemaID(5))
	require.NoError(t, err)
	require.Equal(t, rec, decoded)
}

func TestDecodeRecordRejectsSchemaMismatch(t *testing.T) {
	encoded, err := EncodeRecord(SchemaID(1), types.Record{types.NewInt(1)})
	require.NoError(t, err)

	_, err = DecodeRecord(encoded, SchemaID(2))
	require.Error(t, err)
}

func TestDecodeRecordRejectsTruncatedPayload(t *testing.T) {
	encoded, err := EncodeRecord(SchemaID(1), types.Record{types.NewInt(1)})
	require.NoError(t, err)

	_, err = DecodeRecord(encoded[:len(encoded)-4], SchemaID(1))
	require.Error(t, err)
}
