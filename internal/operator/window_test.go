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
	"time"

	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/stretchr/testify/require"
)

func TestNewTumbleRejectsNonPositiveSize(t *testing.T) {
	_, err := NewTumble(0, 0)
	require.Error(t, err)
}

func TestNewHopRejectsBadHop(t *testing.T) {
	_, err := NewHop(0, time.Minute, 0)
	require.Error(t, err)
	_, err = NewHop(0, time.Minute, 2*time.Minute)
	require.Error(t, err)
}

func TestTumbleAssignsSingleWindow(t *testing.T) {
	w, err := NewTumble(0, time.Minute)
	require.NoError(t, err)

	ts := time.Date(2026, 1, 1, 0, 0, 30, 0, time.UTC)
	rec := types.Record{types.NewTimestamp(ts)}

	out, err := w.Apply(ident.Port(0), types.Insert(rec))
	require.NoError(t, err)
	require.Len(t, out, 1)
	newRec := out[0].New
	require.Len(t, newRec, 3)

	start := newRec[1].Timestamp()
	end := newRec[2].Timestamp()
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC), end)
}

func TestHopAssignsOverlappingWindows(t *testing.T) {
	w, err := NewHop(0, 2*time.Minute, time.Minute)
	require.NoError(t, err)

	ts := time.Date(2026, 1, 1, 0, 1, 30, 0, time.UTC)
	rec := types.Record{types.NewTimestamp(ts)}

	out, err := w.Apply(ident.Port(0), types.Insert(rec))
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestWindowNullTimestampDropsRow(t *testing.T) {
	w, err := NewTumble(0, time.Minute)
	require.NoError(t, err)
	out, err := w.Apply(ident.Port(0), types.Insert(types.Record{types.Null}))
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestWindowRejectsNonTimestampColumn(t *testing.T) {
	w, err := NewTumble(0, time.Minute)
	require.NoError(t, err)
	_, err = w.Apply(ident.Port(0), types.Insert(types.Record{types.NewInt(5)}))
	require.Error(t, err)
}
