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

package dag

import (
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/pkg/errors"
)

// DagSchemas carries, per edge, the schema of the records that will
// flow there (spec.md §4.1).
type DagSchemas struct {
	edges map[ident.Edge]types.Schema
}

// Schema returns the resolved schema for edge, and whether it was
// found.
func (d *DagSchemas) Schema(edge ident.Edge) (types.Schema, bool) {
	s, ok := d.edges[edge]
	return s, ok
}

// Dag is a fully-typed, validated directed acyclic graph, ready to hand
// to the executor.
type Dag struct {
	Nodes   map[ident.NodeID]PlanNode
	Edges   []PlanEdge
	Schemas *DagSchemas
	// Order is a topological ordering of node ids: every node appears
	// after all of its upstream dependencies.
	Order []ident.NodeID

	// inputsOf and outputsOf index edges by node for O(1) traversal
	// during build and by the executor when wiring channels.
	inputsOf  map[ident.NodeID][]PlanEdge
	outputsOf map[ident.NodeID][]PlanEdge
}

// InputEdges returns the edges feeding into node, in plan order.
func (d *Dag) InputEdges(node ident.NodeID) []PlanEdge { return d.inputsOf[node] }

// OutputEdges returns the edges leaving node, in plan order.
func (d *Dag) OutputEdges(node ident.NodeID) []PlanEdge { return d.outputsOf[node] }

// Build validates plan and resolves every edge's schema, implementing
// spec.md §4.1 steps 1-4.
func Build(plan Plan) (*Dag, error) {
	nodes := make(map[ident.NodeID]PlanNode, len(plan.Nodes))
	for _, n := range plan.Nodes {
		nodes[n.ID] = n
	}

	inputsOf := make(map[ident.NodeID][]PlanEdge, len(nodes))
	outputsOf := make(map[ident.NodeID][]PlanEdge, len(nodes))
	for _, e := range plan.Edges {
		if _, ok := nodes[e.From]; !ok {
			return nil, errors.Errorf("edge references unknown node %s", e.From)
		}
		if _, ok := nodes[e.To]; !ok {
			return nil, errors.Errorf("edge references unknown node %s", e.To)
		}
		inputsOf[e.To] = append(inputsOf[e.To], e)
		outputsOf[e.From] = append(outputsOf[e.From], e)
	}

	order, err := topoSort(nodes, inputsOf)
	if err != nil {
		return nil, err
	}

	if err := validatePorts(nodes, inputsOf, outputsOf); err != nil {
		return nil, err
	}

	schemas := &DagSchemas{edges: make(map[ident.Edge]types.Schema, len(plan.Edges))}
	for _, id := range order {
		n := nodes[id]

		inputs := make(map[ident.Port]types.Schema, len(inputsOf[id]))
		for _, e := range inputsOf[id] {
			s, ok := schemas.edges[e.AsIdent()]
			if !ok {
				return nil, errors.Errorf("node %s: upstream edge %s has no resolved schema", id, e.AsIdent())
			}
			inputs[e.ToPort] = s
		}

		outputs, err := n.Propagate(inputs)
		if err != nil {
			return nil, errors.Wrapf(err, "node %s: schema propagation failed", id)
		}

		for _, e := range outputsOf[id] {
			s, ok := outputs[e.FromPort]
			if !ok {
				return nil, &types.PortNotFoundError{Node: id, Port: e.FromPort}
			}
			schemas.edges[e.AsIdent()] = s
		}
	}

	if err := validateSinks(nodes, inputsOf); err != nil {
		return nil, err
	}

	return &Dag{
		Nodes:     nodes,
		Edges:     plan.Edges,
		Schemas:   schemas,
		Order:     order,
		inputsOf:  inputsOf,
		outputsOf: outputsOf,
	}, nil
}

// topoSort performs Kahn's algorithm over the node/edge set, returning
// InvalidTopologyError if a cycle is present.
func topoSort(
	nodes map[ident.NodeID]PlanNode, inputsOf map[ident.NodeID][]PlanEdge,
) ([]ident.NodeID, error) {
	inDegree := make(map[ident.NodeID]int, len(nodes))
	for id := range nodes {
		inDegree[id] = len(inputsOf[id])
	}

	var ready []ident.NodeID
	for _, n := range orderedIDs(nodes) {
		if inDegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	outputsOf := make(map[ident.NodeID][]ident.NodeID, len(nodes))
	for _, to := range orderedIDs(nodes) {
		for _, e := range inputsOf[to] {
			outputsOf[e.From] = append(outputsOf[e.From], to)
		}
	}

	var order []ident.NodeID
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, next := range outputsOf[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, &types.InvalidTopologyError{Reason: "cycle detected among remaining nodes"}
	}
	return order, nil
}

// orderedIDs returns the node ids of nodes in a deterministic order
// (sorted by string form), so that Build's output ordering is
// reproducible across runs given the same Plan.
func orderedIDs(nodes map[ident.NodeID]PlanNode) []ident.NodeID {
	ids := make([]ident.NodeID, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	// Stable insertion sort by string form keeps this deterministic
	// without pulling in sort for what is, in practice, a handful of
	// nodes per pipeline.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j].String() < ids[j-1].String(); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

// validatePorts checks that every declared input/output port is
// actually wired, and that no edge targets an undeclared port.
func validatePorts(
	nodes map[ident.NodeID]PlanNode,
	inputsOf, outputsOf map[ident.NodeID][]PlanEdge,
) error {
	for id, n := range nodes {
		declaredIn := make(map[ident.Port]bool, len(n.Inputs))
		for _, p := range n.Inputs {
			declaredIn[p] = true
		}
		wiredIn := make(map[ident.Port]bool, len(inputsOf[id]))
		for _, e := range inputsOf[id] {
			if !declaredIn[e.ToPort] {
				return &types.PortNotFoundError{Node: id, Port: e.ToPort}
			}
			wiredIn[e.ToPort] = true
		}
		for _, p := range n.Inputs {
			if !wiredIn[p] {
				return &types.MissingInputError{Node: id, Port: p}
			}
		}

		declaredOut := make(map[ident.Port]bool, len(n.Outputs))
		for _, p := range n.Outputs {
			declaredOut[p] = true
		}
		for _, e := range outputsOf[id] {
			if !declaredOut[e.FromPort] {
				return &types.PortNotFoundError{Node: id, Port: e.FromPort}
			}
		}
	}
	return nil
}

// validateSinks enforces that every sink node sees exactly one input
// schema (spec.md §4.1 step 4).
func validateSinks(nodes map[ident.NodeID]PlanNode, inputsOf map[ident.NodeID][]PlanEdge) error {
	for id, n := range nodes {
		if n.Kind != NodeSink {
			continue
		}
		if len(inputsOf[id]) != 1 {
			return errors.Errorf("sink %s must have exactly one input edge, has %d", id, len(inputsOf[id]))
		}
	}
	return nil
}
