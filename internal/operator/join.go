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
	"github.com/cockroachdb/dataflow/internal/state"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/pkg/errors"
)

// Key prefixes namespacing Join's four persisted collections within
// one operator's state partition: each side's live rows (keyed by
// that side's primary key, so Commit can diff against the previous
// snapshot by key rather than by position) and each side's set of
// primary keys currently holding a null-padded OUTER output.
var (
	leftRowPrefix     = []byte("lr:")
	rightRowPrefix    = []byte("rr:")
	leftPaddedPrefix  = []byte("lp:")
	rightPaddedPrefix = []byte("rp:")
)

// JoinType discriminates the supported binary equijoin variants. FULL
// OUTER is a non-goal (spec.md §4.4.4, §9).
type JoinType uint8

// Supported join types.
const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
)

// LeftPort and RightPort are the conventional input port numbers a
// Join node is wired with by the DAG builder.
const (
	LeftPort  ident.Port = 0
	RightPort ident.Port = 1
)

type joinRow struct {
	pk  GroupKey
	row types.Record
}

// Join implements spec.md §4.4.4: a binary equijoin maintaining two
// indexed tables, L and R, keyed by the join predicate's columns, plus
// a primary-key index on each side so Update/Delete can locate the
// exact row being changed. LEFT/RIGHT OUTER additionally track which
// rows currently hold a null-padded output so that a later matching
// row on the other side can retract it.
type Join struct {
	LeftKeyCols, RightKeyCols []int
	LeftPKCols, RightPKCols   []int
	LeftWidth, RightWidth     int
	Type                      JoinType

	leftTable  map[GroupKey][]joinRow
	rightTable map[GroupKey][]joinRow

	leftPadded  map[GroupKey]bool // by left PK
	rightPadded map[GroupKey]bool // by right PK

	store *state.OperatorState
}

var _ Operator = (*Join)(nil)
var _ Stateful = (*Join)(nil)

// NewJoin constructs a Join. leftWidth/rightWidth are each side's
// column count, used to build null-padded rows for OUTER joins.
func NewJoin(leftKey, rightKey, leftPK, rightPK []int, leftWidth, rightWidth int, joinType JoinType) *Join {
	return &Join{
		LeftKeyCols: leftKey, RightKeyCols: rightKey,
		LeftPKCols: leftPK, RightPKCols: rightPK,
		LeftWidth: leftWidth, RightWidth: rightWidth,
		Type:        joinType,
		leftTable:   make(map[GroupKey][]joinRow),
		rightTable:  make(map[GroupKey][]joinRow),
		leftPadded:  make(map[GroupKey]bool),
		rightPadded: make(map[GroupKey]bool),
	}
}

// Apply implements Operator; port LeftPort feeds the left side, port
// RightPort the right.
func (j *Join) Apply(port ident.Port, op types.Operation) ([]types.Operation, error) {
	switch port {
	case LeftPort:
		return j.applyLeft(op)
	case RightPort:
		return j.applyRight(op)
	default:
		return nil, errors.Errorf("join: unexpected input port %s", port)
	}
}

// Commit implements Operator. Both indexed tables and both padding
// sets are re-synced against the store in full: every live row/marker
// is staged, and anything the store still holds from a prior commit
// but that Apply has since removed (a retracted row, a padding marker
// that a later real match retracted) is staged for deletion. A nil
// store means this Join was never attached to persistent state (e.g.
// a unit test constructing it directly), in which case Commit is a
// no-op as before.
func (j *Join) Commit(epoch types.Epoch) error {
	if j.store == nil {
		return nil
	}
	if err := j.syncRows(leftRowPrefix, j.leftTable); err != nil {
		return err
	}
	if err := j.syncRows(rightRowPrefix, j.rightTable); err != nil {
		return err
	}
	if err := j.syncPadded(leftPaddedPrefix, j.leftPadded); err != nil {
		return err
	}
	if err := j.syncPadded(rightPaddedPrefix, j.rightPadded); err != nil {
		return err
	}
	return j.store.Commit(epoch)
}

func (j *Join) syncRows(prefix []byte, table map[GroupKey][]joinRow) error {
	existing, err := j.store.ScanPrefix(prefix)
	if err != nil {
		return errors.Wrap(err, "join: scanning persisted rows")
	}
	live := make(map[string]bool)
	for _, rows := range table {
		for _, r := range rows {
			dbKey := append(append([]byte(nil), prefix...), r.pk...)
			encoded, err := state.EncodeRecord(internalSchema, r.row)
			if err != nil {
				return errors.Wrap(err, "join: encoding persisted row")
			}
			j.store.Put(dbKey, encoded)
			live[string(dbKey)] = true
		}
	}
	for _, e := range existing {
		if !live[string(e.Key)] {
			j.store.Delete(e.Key)
		}
	}
	return nil
}

func (j *Join) syncPadded(prefix []byte, padded map[GroupKey]bool) error {
	existing, err := j.store.ScanPrefix(prefix)
	if err != nil {
		return errors.Wrap(err, "join: scanning persisted padding markers")
	}
	live := make(map[string]bool, len(padded))
	for pk := range padded {
		dbKey := append(append([]byte(nil), prefix...), pk...)
		j.store.Put(dbKey, []byte{1})
		live[string(dbKey)] = true
	}
	for _, e := range existing {
		if !live[string(e.Key)] {
			j.store.Delete(e.Key)
		}
	}
	return nil
}

// Restore implements Stateful, repopulating both indexed tables and
// both padding sets from whatever os held as of the last committed
// epoch.
func (j *Join) Restore(os *state.OperatorState) error {
	j.store = os
	if err := j.restoreRows(leftRowPrefix, j.leftTable, j.LeftKeyCols); err != nil {
		return err
	}
	if err := j.restoreRows(rightRowPrefix, j.rightTable, j.RightKeyCols); err != nil {
		return err
	}
	if err := j.restorePadded(leftPaddedPrefix, j.leftPadded); err != nil {
		return err
	}
	if err := j.restorePadded(rightPaddedPrefix, j.rightPadded); err != nil {
		return err
	}
	return nil
}

func (j *Join) restoreRows(prefix []byte, table map[GroupKey][]joinRow, keyCols []int) error {
	entries, err := j.store.ScanPrefix(prefix)
	if err != nil {
		return errors.Wrap(err, "join: scanning persisted rows")
	}
	for _, e := range entries {
		row, err := state.DecodeRecord(e.Value, internalSchema)
		if err != nil {
			return errors.Wrap(err, "join: decoding persisted row")
		}
		pk := GroupKey(e.Key[len(prefix):])
		key := KeyOf(row, keyCols)
		table[key] = append(table[key], joinRow{pk: pk, row: row})
	}
	return nil
}

func (j *Join) restorePadded(prefix []byte, padded map[GroupKey]bool) error {
	entries, err := j.store.ScanPrefix(prefix)
	if err != nil {
		return errors.Wrap(err, "join: scanning persisted padding markers")
	}
	for _, e := range entries {
		padded[GroupKey(e.Key[len(prefix):])] = true
	}
	return nil
}

func nullPaddedRow(width int) types.Record {
	row := make(types.Record, width)
	for i := range row {
		row[i] = types.Null
	}
	return row
}

func (j *Join) nullRight() types.Record { return nullPaddedRow(j.RightWidth) }
func (j *Join) nullLeft() types.Record  { return nullPaddedRow(j.LeftWidth) }

func joinRows(left, right types.Record) types.Record {
	out := make(types.Record, 0, len(left)+len(right))
	out = append(out, left...)
	out = append(out, right...)
	return out
}

func tableRemove(table map[GroupKey][]joinRow, key, pk GroupKey) {
	rows := table[key]
	for i, r := range rows {
		if r.pk == pk {
			rows = append(rows[:i], rows[i+1:]...)
			break
		}
	}
	if len(rows) == 0 {
		delete(table, key)
	} else {
		table[key] = rows
	}
}

func (j *Join) applyLeft(op types.Operation) ([]types.Operation, error) {
	switch op.Kind {
	case types.OpInsert:
		return j.insertLeft(op.New), nil
	case types.OpDelete:
		return j.deleteLeft(op.Old), nil
	case types.OpUpdate:
		if KeyOf(op.Old, j.LeftKeyCols) == KeyOf(op.New, j.LeftKeyCols) {
			return j.updateLeftSameKey(op.Old, op.New), nil
		}
		out := j.deleteLeft(op.Old)
		return append(out, j.insertLeft(op.New)...), nil
	case types.OpBatchInsert:
		var out []types.Operation
		for _, row := range op.Batch {
			out = append(out, j.insertLeft(row)...)
		}
		return out, nil
	default:
		return nil, nil
	}
}

func (j *Join) applyRight(op types.Operation) ([]types.Operation, error) {
	switch op.Kind {
	case types.OpInsert:
		return j.insertRight(op.New), nil
	case types.OpDelete:
		return j.deleteRight(op.Old), nil
	case types.OpUpdate:
		if KeyOf(op.Old, j.RightKeyCols) == KeyOf(op.New, j.RightKeyCols) {
			return j.updateRightSameKey(op.Old, op.New), nil
		}
		out := j.deleteRight(op.Old)
		return append(out, j.insertRight(op.New)...), nil
	case types.OpBatchInsert:
		var out []types.Operation
		for _, row := range op.Batch {
			out = append(out, j.insertRight(row)...)
		}
		return out, nil
	default:
		return nil, nil
	}
}

func (j *Join) insertLeft(lnew types.Record) []types.Operation {
	key := KeyOf(lnew, j.LeftKeyCols)
	pk := KeyOf(lnew, j.LeftPKCols)
	j.leftTable[key] = append(j.leftTable[key], joinRow{pk: pk, row: lnew})

	matches := j.rightTable[key]
	var out []types.Operation
	if len(matches) > 0 {
		for _, r := range matches {
			if j.Type == JoinRight && j.rightPadded[r.pk] {
				out = append(out, types.Delete(joinRows(j.nullLeft(), r.row)))
				delete(j.rightPadded, r.pk)
			}
			out = append(out, types.Insert(joinRows(lnew, r.row)))
		}
		return out
	}
	if j.Type == JoinLeft {
		out = append(out, types.Insert(joinRows(lnew, j.nullRight())))
		j.leftPadded[pk] = true
	}
	return out
}

func (j *Join) deleteLeft(lold types.Record) []types.Operation {
	key := KeyOf(lold, j.LeftKeyCols)
	pk := KeyOf(lold, j.LeftPKCols)
	tableRemove(j.leftTable, key, pk)

	matches := j.rightTable[key]
	var out []types.Operation
	if len(matches) > 0 {
		for _, r := range matches {
			out = append(out, types.Delete(joinRows(lold, r.row)))
		}
		if len(j.leftTable[key]) == 0 && j.Type == JoinRight {
			for _, r := range matches {
				out = append(out, types.Insert(joinRows(j.nullLeft(), r.row)))
				j.rightPadded[r.pk] = true
			}
		}
		return out
	}
	if j.Type == JoinLeft && j.leftPadded[pk] {
		out = append(out, types.Delete(joinRows(lold, j.nullRight())))
		delete(j.leftPadded, pk)
	}
	return out
}

func (j *Join) updateLeftSameKey(lold, lnew types.Record) []types.Operation {
	key := KeyOf(lold, j.LeftKeyCols)
	oldPK := KeyOf(lold, j.LeftPKCols)
	newPK := KeyOf(lnew, j.LeftPKCols)
	tableRemove(j.leftTable, key, oldPK)
	j.leftTable[key] = append(j.leftTable[key], joinRow{pk: newPK, row: lnew})

	matches := j.rightTable[key]
	var out []types.Operation
	if len(matches) > 0 {
		for _, r := range matches {
			out = append(out, types.Update(joinRows(lold, r.row), joinRows(lnew, r.row)))
		}
		if j.Type == JoinLeft && j.leftPadded[oldPK] {
			delete(j.leftPadded, oldPK)
		}
		return out
	}
	if j.Type == JoinLeft {
		out = append(out, types.Update(joinRows(lold, j.nullRight()), joinRows(lnew, j.nullRight())))
		if j.leftPadded[oldPK] {
			delete(j.leftPadded, oldPK)
		}
		j.leftPadded[newPK] = true
	}
	return out
}

func (j *Join) insertRight(rnew types.Record) []types.Operation {
	key := KeyOf(rnew, j.RightKeyCols)
	pk := KeyOf(rnew, j.RightPKCols)
	j.rightTable[key] = append(j.rightTable[key], joinRow{pk: pk, row: rnew})

	matches := j.leftTable[key]
	var out []types.Operation
	for _, l := range matches {
		if j.Type == JoinLeft && j.leftPadded[l.pk] {
			out = append(out, types.Delete(joinRows(l.row, j.nullRight())))
			delete(j.leftPadded, l.pk)
		}
		out = append(out, types.Insert(joinRows(l.row, rnew)))
	}
	if len(matches) == 0 && j.Type == JoinRight {
		out = append(out, types.Insert(joinRows(j.nullLeft(), rnew)))
		j.rightPadded[pk] = true
	}
	return out
}

func (j *Join) deleteRight(rold types.Record) []types.Operation {
	key := KeyOf(rold, j.RightKeyCols)
	pk := KeyOf(rold, j.RightPKCols)
	tableRemove(j.rightTable, key, pk)

	matches := j.leftTable[key]
	var out []types.Operation
	if len(matches) > 0 {
		for _, l := range matches {
			out = append(out, types.Delete(joinRows(l.row, rold)))
		}
		if len(j.rightTable[key]) == 0 && j.Type == JoinLeft {
			for _, l := range matches {
				out = append(out, types.Insert(joinRows(l.row, j.nullRight())))
				j.leftPadded[l.pk] = true
			}
		}
		return out
	}
	if j.Type == JoinRight && j.rightPadded[pk] {
		out = append(out, types.Delete(joinRows(j.nullLeft(), rold)))
		delete(j.rightPadded, pk)
	}
	return out
}

func (j *Join) updateRightSameKey(rold, rnew types.Record) []types.Operation {
	key := KeyOf(rold, j.RightKeyCols)
	oldPK := KeyOf(rold, j.RightPKCols)
	newPK := KeyOf(rnew, j.RightPKCols)
	tableRemove(j.rightTable, key, oldPK)
	j.rightTable[key] = append(j.rightTable[key], joinRow{pk: newPK, row: rnew})

	matches := j.leftTable[key]
	var out []types.Operation
	if len(matches) > 0 {
		for _, l := range matches {
			out = append(out, types.Update(joinRows(l.row, rold), joinRows(l.row, rnew)))
		}
		if j.Type == JoinRight && j.rightPadded[oldPK] {
			delete(j.rightPadded, oldPK)
		}
		return out
	}
	if j.Type == JoinRight {
		out = append(out, types.Update(joinRows(j.nullLeft(), rold), joinRows(j.nullLeft(), rnew)))
		if j.rightPadded[oldPK] {
			delete(j.rightPadded, oldPK)
		}
		j.rightPadded[newPK] = true
	}
	return out
}
