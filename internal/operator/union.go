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
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
)

// Union implements spec.md §4.4.6: UNION ALL, an N-ary stateless
// operator that forwards every input operation unchanged regardless of
// which input port it arrived on. UNION DISTINCT is a non-goal.
type Union struct{}

var _ Operator = (*Union)(nil)

// Apply implements Operator; UNION ALL passes every operation through
// untouched, so the port it arrived on is irrelevant.
func (Union) Apply(_ ident.Port, op types.Operation) ([]types.Operation, error) {
	return []types.Operation{op}, nil
}

// Commit implements Operator; UNION is stateless.
func (Union) Commit(types.Epoch) error { return nil }
