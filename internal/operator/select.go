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
	"github.com/cockroachdb/dataflow/internal/expr"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
)

// Select implements spec.md §4.4.2: a stateless filter evaluating
// Predicate in three-valued logic over both the before- and after-image
// of an Operation, per the emit table in the spec.
type Select struct {
	Predicate *expr.Expr
}

var _ Operator = (*Select)(nil)

// Apply implements Operator.
func (s *Select) Apply(_ ident.Port, op types.Operation) ([]types.Operation, error) {
	switch op.Kind {
	case types.OpInsert:
		passes, err := s.passes(op.New)
		if err != nil {
			return nil, err
		}
		if passes {
			return []types.Operation{types.Insert(op.New)}, nil
		}
		return nil, nil

	case types.OpDelete:
		passes, err := s.passes(op.Old)
		if err != nil {
			return nil, err
		}
		if passes {
			return []types.Operation{types.Delete(op.Old)}, nil
		}
		return nil, nil

	case types.OpUpdate:
		oldPasses, err := s.passes(op.Old)
		if err != nil {
			return nil, err
		}
		newPasses, err := s.passes(op.New)
		if err != nil {
			return nil, err
		}
		switch {
		case oldPasses && newPasses:
			return []types.Operation{types.Update(op.Old, op.New)}, nil
		case !oldPasses && newPasses:
			return []types.Operation{types.Insert(op.New)}, nil
		case oldPasses && !newPasses:
			return []types.Operation{types.Delete(op.Old)}, nil
		default:
			return nil, nil
		}

	case types.OpBatchInsert:
		var batch []types.Record
		for _, row := range op.Batch {
			passes, err := s.passes(row)
			if err != nil {
				return nil, err
			}
			if passes {
				batch = append(batch, row)
			}
		}
		if len(batch) == 0 {
			return nil, nil
		}
		return []types.Operation{types.BatchInsertOp(batch)}, nil

	default:
		return nil, nil
	}
}

// Commit implements Operator; SELECT is stateless.
func (s *Select) Commit(types.Epoch) error { return nil }

func (s *Select) passes(row types.Record) (bool, error) {
	tri, err := expr.EvalPredicate(s.Predicate, row)
	if err != nil {
		return false, err
	}
	return tri.Passes(), nil
}
