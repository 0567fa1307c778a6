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

// Project implements spec.md §4.4.1: stateless column projection.
// Expressions is evaluated over New (and, for Update/Delete, Old) to
// build the output Record; BatchInsert is projected element-wise.
type Project struct {
	Expressions []*expr.Expr
	Policy      expr.ErrorPolicy
}

var _ Operator = (*Project)(nil)

// Apply implements Operator.
func (p *Project) Apply(_ ident.Port, op types.Operation) ([]types.Operation, error) {
	switch op.Kind {
	case types.OpInsert:
		rec, ok, err := p.project(op.New)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return []types.Operation{types.Insert(rec)}, nil

	case types.OpDelete:
		rec, ok, err := p.project(op.Old)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return []types.Operation{types.Delete(rec)}, nil

	case types.OpUpdate:
		oldRec, oldOK, err := p.project(op.Old)
		if err != nil {
			return nil, err
		}
		newRec, newOK, err := p.project(op.New)
		if err != nil {
			return nil, err
		}
		switch {
		case oldOK && newOK:
			return []types.Operation{types.Update(oldRec, newRec)}, nil
		case newOK:
			return []types.Operation{types.Insert(newRec)}, nil
		case oldOK:
			return []types.Operation{types.Delete(oldRec)}, nil
		default:
			return nil, nil
		}

	case types.OpBatchInsert:
		var batch []types.Record
		for _, row := range op.Batch {
			rec, ok, err := p.project(row)
			if err != nil {
				return nil, err
			}
			if ok {
				batch = append(batch, rec)
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

// Commit implements Operator; PROJECT is stateless.
func (p *Project) Commit(types.Epoch) error { return nil }

func (p *Project) project(row types.Record) (types.Record, bool, error) {
	if row == nil {
		return nil, false, nil
	}
	out := make(types.Record, len(p.Expressions))
	for i, e := range p.Expressions {
		v, ok, err := expr.EvalWithPolicy(e, row, p.Policy)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		out[i] = v
	}
	return out, true, nil
}
