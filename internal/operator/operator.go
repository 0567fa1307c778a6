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

// Package operator implements the incremental SQL operator library of
// spec.md §4.4: PROJECT, SELECT, AGGREGATE, JOIN, WINDOW, and UNION.
// Each Operator is a small, testable state machine over Operation
// values; Node adapts an Operator into an exec.NodeRunner so it can be
// scheduled by the executor.
package operator

import (
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
)

// Operator is the behavior common to every operator in the library: it
// consumes one incoming Operation at a time (tagged with the input
// port it arrived on, for the N-ary operators JOIN and UNION) and
// produces zero or more output Operations, per the per-operator rules
// of spec.md §4.4. Stateless operators (PROJECT, SELECT, WINDOW, UNION)
// implement Commit as a no-op.
type Operator interface {
	// Apply processes one Operation received on port and returns the
	// Operations to emit downstream.
	Apply(port ident.Port, op types.Operation) ([]types.Operation, error)

	// Commit persists any buffered state as of epoch. Called only after
	// every input has aligned on the same Commit(E), per spec.md §4.3.
	Commit(epoch types.Epoch) error
}

// GroupKey is a stable, comparable encoding of a set of Field values
// used as a GROUP BY / join key, built from types.HashKey so that NULL
// forms one distinct bucket (spec.md §3, §4.4.3).
type GroupKey string

// KeyOf derives the GroupKey for the given column positions of rec.
func KeyOf(rec types.Record, positions []int) GroupKey {
	var buf []byte
	for _, p := range positions {
		encoded := types.HashKey(rec[p])
		var lenPrefix [4]byte
		lenPrefix[0] = byte(len(encoded) >> 24)
		lenPrefix[1] = byte(len(encoded) >> 16)
		lenPrefix[2] = byte(len(encoded) >> 8)
		lenPrefix[3] = byte(len(encoded))
		buf = append(buf, lenPrefix[:]...)
		buf = append(buf, encoded...)
	}
	return GroupKey(buf)
}
