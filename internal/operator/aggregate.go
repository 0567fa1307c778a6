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
	"encoding/binary"

	"github.com/cockroachdb/dataflow/internal/state"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/pkg/errors"
)

// groupKeyPrefix namespaces every persisted group so ScanPrefix during
// Restore and the stale-key sweep during Commit only ever see this
// operator's own group snapshots.
var groupKeyPrefix = []byte("g:")

func groupDBKey(key GroupKey) []byte {
	return append(append([]byte(nil), groupKeyPrefix...), key...)
}

// groupState is one GROUP BY bucket's live accumulator set.
type groupState struct {
	rowCount uint64
	accs     []*aggAccumulator
	keyRec   types.Record
}

// Aggregate implements spec.md §4.4.3: per-key accumulators over SUM,
// COUNT, AVG, MIN, MAX and their append-only variants, maintained
// incrementally under Insert, Delete, and Update.
type Aggregate struct {
	GroupBy []int
	Aggs    []AggSpec

	groups map[GroupKey]*groupState
	store  *state.OperatorState
}

var _ Operator = (*Aggregate)(nil)
var _ Stateful = (*Aggregate)(nil)

// NewAggregate constructs an Aggregate over the given grouping columns
// and aggregate specs.
func NewAggregate(groupBy []int, aggs []AggSpec) *Aggregate {
	return &Aggregate{GroupBy: groupBy, Aggs: aggs, groups: make(map[GroupKey]*groupState)}
}

// Apply implements Operator.
func (a *Aggregate) Apply(_ ident.Port, op types.Operation) ([]types.Operation, error) {
	switch op.Kind {
	case types.OpInsert:
		return a.applyInsert(op.New)

	case types.OpDelete:
		return a.applyDelete(op.Old)

	case types.OpUpdate:
		keyOld := KeyOf(op.Old, a.GroupBy)
		keyNew := KeyOf(op.New, a.GroupBy)
		if keyOld == keyNew {
			return a.applyRetractApply(keyOld, op.Old, op.New)
		}
		outOld, err := a.applyDelete(op.Old)
		if err != nil {
			return nil, err
		}
		outNew, err := a.applyInsert(op.New)
		if err != nil {
			return nil, err
		}
		return append(outOld, outNew...), nil

	case types.OpBatchInsert:
		var out []types.Operation
		for _, row := range op.Batch {
			ops, err := a.applyInsert(row)
			if err != nil {
				return nil, err
			}
			out = append(out, ops...)
		}
		return out, nil

	default:
		return nil, nil
	}
}

// Commit implements Operator. Each live group is re-encoded in full
// and staged over its previous snapshot; any group present in the
// store but no longer live (its last row retracted since the prior
// commit) is staged for deletion. A nil store means this Aggregate was
// never attached to persistent state (e.g. a unit test constructing it
// directly), in which case Commit is a no-op as before.
func (a *Aggregate) Commit(epoch types.Epoch) error {
	if a.store == nil {
		return nil
	}

	existing, err := a.store.ScanPrefix(groupKeyPrefix)
	if err != nil {
		return errors.Wrap(err, "aggregate: scanning persisted groups")
	}
	live := make(map[string]bool, len(a.groups))
	for key, g := range a.groups {
		dbKey := groupDBKey(key)
		encoded, err := a.encodeGroup(g)
		if err != nil {
			return errors.Wrap(err, "aggregate: encoding group state")
		}
		a.store.Put(dbKey, encoded)
		live[string(dbKey)] = true
	}
	for _, e := range existing {
		if !live[string(e.Key)] {
			a.store.Delete(e.Key)
		}
	}
	return a.store.Commit(epoch)
}

// Restore implements Stateful, repopulating groups from every group
// snapshot os held as of the last committed epoch.
func (a *Aggregate) Restore(os *state.OperatorState) error {
	a.store = os
	entries, err := os.ScanPrefix(groupKeyPrefix)
	if err != nil {
		return errors.Wrap(err, "aggregate: scanning persisted groups")
	}
	for _, e := range entries {
		g, err := a.decodeGroup(e.Value)
		if err != nil {
			return errors.Wrap(err, "aggregate: decoding persisted group")
		}
		key := GroupKey(e.Key[len(groupKeyPrefix):])
		a.groups[key] = g
	}
	return nil
}

// encodeGroup serializes g as: row count (8 bytes BE), the group-by
// key Record, then each accumulator's scalar snapshot followed by its
// multiset (entry count, then value/count pairs), in a.Aggs order.
func (a *Aggregate) encodeGroup(g *groupState) ([]byte, error) {
	buf := make([]byte, 8, 128)
	binary.BigEndian.PutUint64(buf[0:8], g.rowCount)

	keyBytes, err := state.EncodeRecord(internalSchema, g.keyRec)
	if err != nil {
		return nil, err
	}
	buf = appendBlock(buf, keyBytes)

	for _, acc := range g.accs {
		fieldBytes, err := state.EncodeRecord(internalSchema, acc.snapshotFields())
		if err != nil {
			return nil, err
		}
		buf = appendBlock(buf, fieldBytes)

		entries := acc.multisetEntries()
		buf = append(buf, encodeUint32(len(entries))...)
		for _, e := range entries {
			valueBytes, err := encodeSingleField(e.value)
			if err != nil {
				return nil, err
			}
			buf = appendBlock(buf, valueBytes)
			buf = append(buf, encodeUint32(e.count)...)
		}
	}
	return buf, nil
}

// decodeGroup reverses encodeGroup, constructing fresh accumulators
// from a.Aggs and restoring each one's scalar and multiset state.
func (a *Aggregate) decodeGroup(data []byte) (*groupState, error) {
	if len(data) < 8 {
		return nil, errors.New("aggregate: truncated group row count")
	}
	rowCount := binary.BigEndian.Uint64(data[0:8])
	rest := data[8:]

	keyBytes, rest, err := readBlock(rest)
	if err != nil {
		return nil, err
	}
	keyRec, err := state.DecodeRecord(keyBytes, internalSchema)
	if err != nil {
		return nil, err
	}

	accs := make([]*aggAccumulator, len(a.Aggs))
	for i, spec := range a.Aggs {
		acc := newAggAccumulator(spec)

		fieldBytes, r, err := readBlock(rest)
		if err != nil {
			return nil, err
		}
		rest = r
		fieldRec, err := state.DecodeRecord(fieldBytes, internalSchema)
		if err != nil {
			return nil, err
		}
		if err := acc.restoreFields(fieldRec); err != nil {
			return nil, err
		}

		count, r, err := decodeUint32(rest)
		if err != nil {
			return nil, err
		}
		rest = r
		entries := make([]msEntry, count)
		for j := 0; j < count; j++ {
			valueBytes, r, err := readBlock(rest)
			if err != nil {
				return nil, err
			}
			rest = r
			value, err := decodeSingleField(valueBytes)
			if err != nil {
				return nil, err
			}
			n, r, err := decodeUint32(rest)
			if err != nil {
				return nil, err
			}
			rest = r
			entries[j] = msEntry{value: value, count: n}
		}
		acc.restoreMultiset(entries)
		accs[i] = acc
	}

	return &groupState{rowCount: rowCount, accs: accs, keyRec: keyRec}, nil
}

func (a *Aggregate) applyInsert(row types.Record) ([]types.Operation, error) {
	key := KeyOf(row, a.GroupBy)
	g, exists := a.groups[key]

	var oldResult types.Record
	if exists {
		oldResult = a.resultRecord(g)
	} else {
		g = a.newGroup(row)
		a.groups[key] = g
	}

	g.rowCount++
	for _, acc := range g.accs {
		acc.Add(row)
	}

	newResult := a.resultRecord(g)
	if !exists {
		return []types.Operation{types.Insert(newResult)}, nil
	}
	return []types.Operation{types.Update(oldResult, newResult)}, nil
}

func (a *Aggregate) applyDelete(row types.Record) ([]types.Operation, error) {
	key := KeyOf(row, a.GroupBy)
	g, exists := a.groups[key]
	if !exists {
		return nil, errors.New("aggregate: delete for a group with no live accumulator")
	}

	oldResult := a.resultRecord(g)
	g.rowCount--
	for _, acc := range g.accs {
		acc.Retract(row)
	}

	if g.rowCount == 0 {
		delete(a.groups, key)
		return []types.Operation{types.Delete(oldResult)}, nil
	}
	newResult := a.resultRecord(g)
	return []types.Operation{types.Update(oldResult, newResult)}, nil
}

func (a *Aggregate) applyRetractApply(key GroupKey, oldRow, newRow types.Record) ([]types.Operation, error) {
	g, exists := a.groups[key]
	if !exists {
		return nil, errors.New("aggregate: update for a group with no live accumulator")
	}
	oldResult := a.resultRecord(g)
	for _, acc := range g.accs {
		acc.Retract(oldRow)
		acc.Add(newRow)
	}
	newResult := a.resultRecord(g)
	return []types.Operation{types.Update(oldResult, newResult)}, nil
}

func (a *Aggregate) newGroup(row types.Record) *groupState {
	accs := make([]*aggAccumulator, len(a.Aggs))
	for i, spec := range a.Aggs {
		accs[i] = newAggAccumulator(spec)
	}
	keyRec := make(types.Record, len(a.GroupBy))
	for i, pos := range a.GroupBy {
		keyRec[i] = row[pos]
	}
	return &groupState{accs: accs, keyRec: keyRec}
}

// resultRecord builds the output row as groupBy columns followed by
// aggregate result columns, matching the output Schema the DAG builder
// computes for this node's PropagateFunc.
func (a *Aggregate) resultRecord(g *groupState) types.Record {
	out := make(types.Record, 0, len(g.keyRec)+len(g.accs))
	out = append(out, g.keyRec...)
	for _, acc := range g.accs {
		out = append(out, acc.Result())
	}
	return out
}
