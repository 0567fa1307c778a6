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
	"github.com/pkg/errors"
)

// Build-time errors (spec.md §7). Each is a distinct type so callers
// can errors.As to the specific cause.

// SchemaMismatchError is returned when an edge's producer and consumer
// disagree on column count or type.
type SchemaMismatchError struct {
	Edge   ident.Edge
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch on %s: %s", e.Edge, e.Reason)
}

// PortNotFoundError is returned when a plan references a port a node
// does not have.
type PortNotFoundError struct {
	Node ident.NodeID
	Port ident.Port
}

func (e *PortNotFoundError) Error() string {
	return fmt.Sprintf("node %s has no %s", e.Node, e.Port)
}

// InvalidTopologyError is returned when the plan graph contains a cycle
// or is otherwise not a valid DAG.
type InvalidTopologyError struct {
	Reason string
}

func (e *InvalidTopologyError) Error() string { return "invalid topology: " + e.Reason }

// MissingInputError is returned when a processor node is missing a
// required input port.
type MissingInputError struct {
	Node ident.NodeID
	Port ident.Port
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("node %s is missing required input %s", e.Node, e.Port)
}

// UnsupportedExpressionError reports an expression or operator variant
// the engine does not implement. No code path in this module returns
// it; the plan builder rejects an unknown join type (such as FULL
// OUTER) with a plain "unknown join type" error.
type UnsupportedExpressionError struct {
	Reason string
}

func (e *UnsupportedExpressionError) Error() string { return "unsupported: " + e.Reason }

// TypeResolutionError is returned when an expression's static type
// cannot be resolved at build time.
type TypeResolutionError struct {
	Reason string
}

func (e *TypeResolutionError) Error() string { return "type resolution failed: " + e.Reason }

// Runtime/recoverable, per-record errors (spec.md §7). No operator
// declares an error port for them: the configurable policy in
// internal/expr either logs the error and drops the record (PolicyDrop)
// or returns the error to the caller (PolicyPropagate).

// CastError is returned when a CAST expression fails for one row.
type CastError struct {
	From, To FieldType
	Reason   string
}

func (e *CastError) Error() string {
	return fmt.Sprintf("cast from %v to %v failed: %s", e.From.Kind, e.To.Kind, e.Reason)
}

// ArithmeticOverflowError is returned when an arithmetic expression
// overflows its result type.
type ArithmeticOverflowError struct {
	Op string
}

func (e *ArithmeticOverflowError) Error() string { return "arithmetic overflow in " + e.Op }

// ExpressionEvalError wraps any other scalar expression evaluation
// failure.
type ExpressionEvalError struct {
	Reason string
}

func (e *ExpressionEvalError) Error() string { return "expression evaluation failed: " + e.Reason }

// Runtime/fatal errors (spec.md §7) and their carrier, ExecutionError.

// ErrChannelDisconnected is returned by an edge when its peer has
// closed without a graceful Terminate handshake.
var ErrChannelDisconnected = errors.New("channel disconnected")

// StatePersistenceError wraps a failure to durably write operator
// state or checkpoint data.
type StatePersistenceError struct {
	Operator ident.OperatorID
	Cause    error
}

func (e *StatePersistenceError) Error() string {
	return fmt.Sprintf("failed to persist state for %s: %v", e.Operator, e.Cause)
}

func (e *StatePersistenceError) Unwrap() error { return e.Cause }

// SinkApplyFailedError wraps a Sink.OnOperation failure.
type SinkApplyFailedError struct {
	Sink  ident.NodeID
	Cause error
}

func (e *SinkApplyFailedError) Error() string {
	return fmt.Sprintf("sink %s failed to apply operation: %v", e.Sink, e.Cause)
}

func (e *SinkApplyFailedError) Unwrap() error { return e.Cause }

// SourceDriverLostError wraps a Source connection failure.
type SourceDriverLostError struct {
	Source ident.NodeID
	Cause  error
}

func (e *SourceDriverLostError) Error() string {
	return fmt.Sprintf("source %s lost connection: %v", e.Source, e.Cause)
}

func (e *SourceDriverLostError) Unwrap() error { return e.Cause }

// CommitTimeoutError describes a node that failed to align on a
// Commit(E) marker in time. No component returns it: commit alignment
// is not timed, and Config.CommitTimeout is not read by the engine.
type CommitTimeoutError struct {
	Node  ident.NodeID
	Epoch uint64
}

func (e *CommitTimeoutError) Error() string {
	return fmt.Sprintf("node %s timed out waiting to commit epoch %d", e.Node, e.Epoch)
}

// EpochOrderingViolationError is a protocol error (spec.md §7): a
// source emitted a non-monotone OpIdentifier.
type EpochOrderingViolationError struct {
	Source   ident.NodeID
	Previous OpIdentifier
	Got      OpIdentifier
}

func (e *EpochOrderingViolationError) Error() string {
	return fmt.Sprintf("source %s emitted non-monotone id: %s after %s", e.Source, e.Got, e.Previous)
}

// ExecutionError is the terminal error reported to the pipeline owner
// when a fatal error cancels the DAG (spec.md §5, §7).
type ExecutionError struct {
	Node  ident.NodeID
	Cause error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution error at node %s: %v", e.Node, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// NewExecutionError wraps cause as an ExecutionError attributed to
// node, preserving cause's stack via errors.WithStack if it does not
// already carry one.
func NewExecutionError(node ident.NodeID, cause error) *ExecutionError {
	return &ExecutionError{Node: node, Cause: errors.WithStack(cause)}
}
