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

// Package dag builds a validated, fully-typed directed acyclic graph
// from a logical plan (internal/engine/dag.Plan), resolving each node's
// output schemas by propagating its declared inputs through a
// node-supplied function. This is the "DAG model & builder" component
// of spec.md §4.1.
package dag

import (
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
)

// NodeKind discriminates the three node kinds of spec.md §2.
type NodeKind uint8

// NodeKind variants.
const (
	NodeSource NodeKind = iota
	NodeProcessor
	NodeSink
)

// PropagateFunc computes a node's output schemas from its input
// schemas. Sources receive an empty input map. Processors must handle
// exactly the input ports they declare; extra or missing ports are
// build-time errors surfaced by the Builder, not by the function
// itself, so PropagateFunc implementations can assume arity has
// already been checked.
type PropagateFunc func(inputs map[ident.Port]types.Schema) (map[ident.Port]types.Schema, error)

// PlanNode is one node of the logical plan handed to the Builder.
type PlanNode struct {
	ID      ident.NodeID
	Kind    NodeKind
	Inputs  []ident.Port
	Outputs []ident.Port

	Propagate PropagateFunc
}

// PlanEdge connects an output port of one node to an input port of
// another.
type PlanEdge struct {
	From     ident.NodeID
	FromPort ident.Port
	To       ident.NodeID
	ToPort   ident.Port
}

// AsIdent returns the ident.Edge view of p.
func (p PlanEdge) AsIdent() ident.Edge {
	return ident.Edge{From: p.From, FromPort: p.FromPort, To: p.To, ToPort: p.ToPort}
}

// Plan is the already-resolved logical plan the core consumes; the
// SQL-text parser and YAML configuration surface that produce it are
// out of scope (spec.md §1).
type Plan struct {
	Nodes []PlanNode
	Edges []PlanEdge
}
