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
	"fmt"

	"github.com/cockroachdb/dataflow/internal/util/ident"
)

// OpKind discriminates the Operation sum type.
type OpKind uint8

// Operation variants.
const (
	OpInsert OpKind = iota
	OpDelete
	OpUpdate
	OpBatchInsert
)

// Operation is the sum type {Insert, Delete, Update, BatchInsert} from
// spec.md §3. Exactly the fields relevant to Kind are populated; the
// others are left at their zero value.
type Operation struct {
	Kind OpKind

	// New holds the inserted/updated-to row for Insert and Update.
	New Record
	// Old holds the deleted/updated-from row for Delete and Update.
	// For sources whose CdcType is OnlyPK, non-key columns of Old may
	// be Null (spec.md §3).
	Old Record
	// Batch holds the rows for BatchInsert.
	Batch []Record
}

// Insert constructs an Insert operation.
func Insert(new Record) Operation { return Operation{Kind: OpInsert, New: new} }

// Delete constructs a Delete operation.
func Delete(old Record) Operation { return Operation{Kind: OpDelete, Old: old} }

// Update constructs an Update operation.
func Update(old, new Record) Operation { return Operation{Kind: OpUpdate, Old: old, New: new} }

// BatchInsertOp constructs a BatchInsert operation.
func BatchInsertOp(rows []Record) Operation { return Operation{Kind: OpBatchInsert, Batch: rows} }

// OpIdentifier tags a change event with its origin in the source's own
// progress space: a transaction id and a sequence number within that
// transaction. Ordering is lexicographic on (Txid, SeqInTx); within one
// source, identifiers are monotonically non-decreasing (spec.md §3).
type OpIdentifier struct {
	Txid     uint64
	SeqInTx  uint64
}

// Compare returns -1, 0, or 1 according to lexicographic order on
// (Txid, SeqInTx).
func (o OpIdentifier) Compare(other OpIdentifier) int {
	switch {
	case o.Txid < other.Txid:
		return -1
	case o.Txid > other.Txid:
		return 1
	case o.SeqInTx < other.SeqInTx:
		return -1
	case o.SeqInTx > other.SeqInTx:
		return 1
	default:
		return 0
	}
}

// Less reports whether o strictly precedes other.
func (o OpIdentifier) Less(other OpIdentifier) bool { return o.Compare(other) < 0 }

// String implements fmt.Stringer.
func (o OpIdentifier) String() string { return fmt.Sprintf("%d.%d", o.Txid, o.SeqInTx) }

// ZeroOpIdentifier is the identifier of "no progress yet".
var ZeroOpIdentifier = OpIdentifier{}

// TableOperation binds an Operation to the source-native identifier
// that produced it and the output port it should be delivered on.
type TableOperation struct {
	ID   OpIdentifier
	Op   Operation
	Port ident.Port
}

// CdcType declares the fidelity of old-row data a Source provides.
type CdcType uint8

// CdcType variants.
const (
	// CdcFullChanges means Old is a complete, accurate before-image.
	CdcFullChanges CdcType = iota
	// CdcOnlyPK means Old carries only primary-key columns; all
	// others are Null.
	CdcOnlyPK
	// CdcNothing means only Insert operations are legal.
	CdcNothing
)

// ExecOpKind discriminates the ExecutorOperation sum type: the
// messages that actually flow over DAG edges, a superset of Operation
// that also carries epoch and lifecycle control messages.
type ExecOpKind uint8

// ExecutorOperation variants.
const (
	ExecOp ExecOpKind = iota
	ExecCommit
	ExecSnapshottingStarted
	ExecSnapshottingDone
	ExecTerminate
)

// ExecutorOperation is what flows over typed DAG edges (spec.md §3).
type ExecutorOperation struct {
	Kind ExecOpKind

	// Op is populated when Kind == ExecOp.
	Op TableOperation

	// Epoch is populated when Kind == ExecCommit.
	Epoch Epoch

	// Table is populated when Kind is ExecSnapshottingStarted or
	// ExecSnapshottingDone.
	Table string
	// SnapshotID is populated when Kind == ExecSnapshottingDone.
	SnapshotID OpIdentifier
}

// ExecutorOp wraps a TableOperation as a data-carrying
// ExecutorOperation.
func ExecutorOp(op TableOperation) ExecutorOperation {
	return ExecutorOperation{Kind: ExecOp, Op: op}
}

// ExecutorCommit wraps an Epoch as a Commit marker.
func ExecutorCommit(e Epoch) ExecutorOperation {
	return ExecutorOperation{Kind: ExecCommit, Epoch: e}
}

// ExecutorTerminate is the shutdown sentinel.
var ExecutorTerminate = ExecutorOperation{Kind: ExecTerminate}

// Epoch is a globally numbered checkpoint boundary: a monotonically
// increasing id plus the high-watermark OpIdentifier for every source
// node as of that boundary (spec.md §3).
type Epoch struct {
	ID              uint64
	SourcePositions map[ident.NodeID]OpIdentifier
}

// Clone returns a deep-enough copy of e (the SourcePositions map is
// copied; OpIdentifier values are immutable) so that callers may retain
// an Epoch past the point its source map would otherwise be mutated.
func (e Epoch) Clone() Epoch {
	out := Epoch{ID: e.ID, SourcePositions: make(map[ident.NodeID]OpIdentifier, len(e.SourcePositions))}
	for k, v := range e.SourcePositions {
		out.SourcePositions[k] = v
	}
	return out
}
