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

package pipeline

import (
	"fmt"

	"github.com/cockroachdb/dataflow/internal/engine/dag"
	"github.com/cockroachdb/dataflow/internal/expr"
	"github.com/cockroachdb/dataflow/internal/operator"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/pkg/errors"
)

// planBuilder accumulates the dag.Plan and, as a side effect of running
// each processor's PropagateFunc during dag.Build, the concrete
// operator.Operator instance that node will run -- constructing it
// lazily here because operators like Project need column FieldTypes
// that are only known once the input schema is resolved.
type planBuilder struct {
	nodes     []dag.PlanNode
	edges     []dag.PlanEdge
	operators map[ident.NodeID]operator.Operator
	sinkNodes map[ident.NodeID]bool
}

func newPlanBuilder() *planBuilder {
	return &planBuilder{
		operators: make(map[ident.NodeID]operator.Operator),
		sinkNodes: make(map[ident.NodeID]bool),
	}
}

// addSource registers a source node whose output schema is already
// known (resolved via the driver's GetSchemas during connection setup,
// before the Dag is built).
func (b *planBuilder) addSource(name string, schema types.Schema) {
	id := ident.NewNodeID(name)
	b.nodes = append(b.nodes, dag.PlanNode{
		ID:      id,
		Kind:    dag.NodeSource,
		Outputs: []ident.Port{0},
		Propagate: func(map[ident.Port]types.Schema) (map[ident.Port]types.Schema, error) {
			return map[ident.Port]types.Schema{0: schema}, nil
		},
	})
}

// addSink registers a terminal node; its schema is simply its one
// input's schema.
func (b *planBuilder) addSink(name string) {
	id := ident.NewNodeID(name)
	b.sinkNodes[id] = true
	b.nodes = append(b.nodes, dag.PlanNode{
		ID:      id,
		Kind:    dag.NodeSink,
		Inputs:  []ident.Port{0},
		Outputs: nil,
		Propagate: func(inputs map[ident.Port]types.Schema) (map[ident.Port]types.Schema, error) {
			return nil, nil
		},
	})
}

// addProcessor registers one processor node per cfg, wiring a
// PropagateFunc that both resolves the output schema and constructs
// the concrete Operator, stashed in b.operators for later retrieval.
func (b *planBuilder) addProcessor(cfg ProcessorConfig) error {
	id := ident.NewNodeID(cfg.Name)

	var inPorts []ident.Port
	switch cfg.Kind {
	case "join":
		inPorts = []ident.Port{operator.LeftPort, operator.RightPort}
	default:
		inPorts = make([]ident.Port, len(cfg.Inputs))
		for i := range cfg.Inputs {
			inPorts[i] = ident.Port(i)
		}
	}

	var propagate dag.PropagateFunc
	switch cfg.Kind {
	case "project":
		propagate = b.propagateProject(id, cfg.Project)
	case "select":
		propagate = b.propagateSelect(id, cfg.Select)
	case "aggregate":
		propagate = b.propagateAggregate(id, cfg.Aggregate)
	case "join":
		propagate = b.propagateJoin(id, cfg.Join)
	case "window":
		propagate = b.propagateWindow(id, cfg.Window)
	case "union":
		propagate = b.propagateUnion(id)
	default:
		return errors.Errorf("pipeline: unknown processor kind %q for node %s", cfg.Kind, cfg.Name)
	}

	b.nodes = append(b.nodes, dag.PlanNode{
		ID:        id,
		Kind:      dag.NodeProcessor,
		Inputs:    inPorts,
		Outputs:   []ident.Port{0},
		Propagate: propagate,
	})
	return nil
}

func (b *planBuilder) propagateProject(id ident.NodeID, cfg *ProjectConfig) dag.PropagateFunc {
	return func(inputs map[ident.Port]types.Schema) (map[ident.Port]types.Schema, error) {
		in, ok := inputs[0]
		if !ok {
			return nil, &types.PortNotFoundError{Node: id, Port: 0}
		}

		exprs := make([]*expr.Expr, len(cfg.Columns))
		fields := make([]types.FieldDefinition, len(cfg.Columns))
		for i, col := range cfg.Columns {
			if col < 0 || col >= len(in.Fields) {
				return nil, errors.Errorf("project %s: column %d out of range", id, col)
			}
			exprs[i] = expr.Column(col, in.Fields[col].Type)
			fields[i] = in.Fields[col]
		}

		out := types.Schema{Fields: fields, PrimaryIndex: remapPrimaryIndex(in.PrimaryIndex, cfg.Columns)}
		b.operators[id] = &operator.Project{Expressions: exprs, Policy: expr.PolicyDrop}
		return map[ident.Port]types.Schema{0: out}, nil
	}
}

// remapPrimaryIndex returns the projected positions of every original
// primary-key column, or nil if any primary-key column was dropped by
// the projection (the output stream then has no stable key).
func remapPrimaryIndex(original []int, kept []int) []int {
	if len(original) == 0 {
		return nil
	}
	pos := make(map[int]int, len(kept))
	for i, col := range kept {
		pos[col] = i
	}
	out := make([]int, 0, len(original))
	for _, col := range original {
		newPos, ok := pos[col]
		if !ok {
			return nil
		}
		out = append(out, newPos)
	}
	return out
}

var compareOps = map[CompareOp]expr.BinaryOp{
	CompareEq:    expr.Eq,
	CompareNotEq: expr.NotEq,
	CompareLt:    expr.Lt,
	CompareLtEq:  expr.LtEq,
	CompareGt:    expr.Gt,
	CompareGtEq:  expr.GtEq,
}

func (b *planBuilder) propagateSelect(id ident.NodeID, cfg *SelectConfig) dag.PropagateFunc {
	return func(inputs map[ident.Port]types.Schema) (map[ident.Port]types.Schema, error) {
		in, ok := inputs[0]
		if !ok {
			return nil, &types.PortNotFoundError{Node: id, Port: 0}
		}
		if cfg.Column < 0 || cfg.Column >= len(in.Fields) {
			return nil, errors.Errorf("select %s: column %d out of range", id, cfg.Column)
		}
		op, ok := compareOps[cfg.Op]
		if !ok {
			return nil, errors.Errorf("select %s: unknown comparison %q", id, cfg.Op)
		}
		col := expr.Column(cfg.Column, in.Fields[cfg.Column].Type)
		lit := expr.Literal(cfg.Literal)
		predicate := expr.Binary(op, col, lit, types.FieldType{Kind: types.KindBoolean})

		b.operators[id] = &operator.Select{Predicate: predicate}
		return map[ident.Port]types.Schema{0: in}, nil
	}
}

func (b *planBuilder) propagateAggregate(id ident.NodeID, cfg *AggregateConfig) dag.PropagateFunc {
	return func(inputs map[ident.Port]types.Schema) (map[ident.Port]types.Schema, error) {
		in, ok := inputs[0]
		if !ok {
			return nil, &types.PortNotFoundError{Node: id, Port: 0}
		}

		fields := make([]types.FieldDefinition, 0, len(cfg.GroupBy)+len(cfg.Aggs))
		for _, col := range cfg.GroupBy {
			if col < 0 || col >= len(in.Fields) {
				return nil, errors.Errorf("aggregate %s: group-by column %d out of range", id, col)
			}
			fields = append(fields, in.Fields[col])
		}
		for _, spec := range cfg.Aggs {
			fields = append(fields, aggResultField(in, spec))
		}

		primary := make([]int, len(cfg.GroupBy))
		for i := range cfg.GroupBy {
			primary[i] = i
		}

		b.operators[id] = operator.NewAggregate(cfg.GroupBy, cfg.Aggs)
		return map[ident.Port]types.Schema{0: {Fields: fields, PrimaryIndex: primary}}, nil
	}
}

func aggResultField(in types.Schema, spec operator.AggSpec) types.FieldDefinition {
	name := aggFuncName(spec.Func)
	if spec.InputCol < 0 {
		return types.FieldDefinition{Name: name + "_star", Type: types.FieldType{Kind: types.KindInt}}
	}
	inType := in.Fields[spec.InputCol].Type
	outType := inType
	if spec.Func == operator.Count {
		outType = types.FieldType{Kind: types.KindInt}
	}
	if spec.Func == operator.Avg {
		outType = types.FieldType{Kind: types.KindFloat}
	}
	return types.FieldDefinition{
		Name:     fmt.Sprintf("%s_%s", name, in.Fields[spec.InputCol].Name),
		Type:     outType,
		Nullable: true, // an empty group's accumulator result is NULL
	}
}

func aggFuncName(f operator.AggFunc) string {
	switch f {
	case operator.Sum:
		return "sum"
	case operator.Count:
		return "count"
	case operator.Avg:
		return "avg"
	case operator.Min:
		return "min"
	case operator.Max:
		return "max"
	case operator.MinAppendOnly:
		return "min_append"
	case operator.MaxAppendOnly:
		return "max_append"
	default:
		return "agg"
	}
}

func (b *planBuilder) propagateJoin(id ident.NodeID, cfg *JoinConfig) dag.PropagateFunc {
	return func(inputs map[ident.Port]types.Schema) (map[ident.Port]types.Schema, error) {
		left, ok := inputs[operator.LeftPort]
		if !ok {
			return nil, &types.PortNotFoundError{Node: id, Port: operator.LeftPort}
		}
		right, ok := inputs[operator.RightPort]
		if !ok {
			return nil, &types.PortNotFoundError{Node: id, Port: operator.RightPort}
		}

		fields := make([]types.FieldDefinition, 0, len(left.Fields)+len(right.Fields))
		fields = append(fields, left.Fields...)
		fields = append(fields, right.Fields...)
		// An outer join's padded side makes every column nullable;
		// the non-outer case keeps left/right's own nullability.
		if cfg.Type == JoinLeft || cfg.Type == JoinRight {
			for i := range fields {
				fields[i].Nullable = true
			}
		}

		var joinType operator.JoinType
		switch cfg.Type {
		case JoinInner, "":
			joinType = operator.JoinInner
		case JoinLeft:
			joinType = operator.JoinLeft
		case JoinRight:
			joinType = operator.JoinRight
		default:
			return nil, errors.Errorf("join %s: unknown join type %q", id, cfg.Type)
		}

		b.operators[id] = operator.NewJoin(
			cfg.LeftKeyCols, cfg.RightKeyCols, cfg.LeftPKCols, cfg.RightPKCols,
			len(left.Fields), len(right.Fields), joinType,
		)
		return map[ident.Port]types.Schema{0: {Fields: fields}}, nil
	}
}

func (b *planBuilder) propagateWindow(id ident.NodeID, cfg *WindowConfig) dag.PropagateFunc {
	return func(inputs map[ident.Port]types.Schema) (map[ident.Port]types.Schema, error) {
		in, ok := inputs[0]
		if !ok {
			return nil, &types.PortNotFoundError{Node: id, Port: 0}
		}

		var win *operator.Window
		var err error
		switch cfg.Kind {
		case WindowTumble:
			win, err = operator.NewTumble(cfg.TimeCol, cfg.Size)
		case WindowHop:
			win, err = operator.NewHop(cfg.TimeCol, cfg.Size, cfg.Hop)
		default:
			return nil, errors.Errorf("window %s: unknown kind %q", id, cfg.Kind)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "window %s", id)
		}

		fields := append(append([]types.FieldDefinition{}, in.Fields...),
			types.FieldDefinition{Name: "window_start", Type: types.FieldType{Kind: types.KindTimestamp}},
			types.FieldDefinition{Name: "window_end", Type: types.FieldType{Kind: types.KindTimestamp}},
		)
		b.operators[id] = win
		return map[ident.Port]types.Schema{0: {Fields: fields}}, nil
	}
}

func (b *planBuilder) propagateUnion(id ident.NodeID) dag.PropagateFunc {
	return func(inputs map[ident.Port]types.Schema) (map[ident.Port]types.Schema, error) {
		var any types.Schema
		for _, s := range inputs {
			any = s
			break
		}
		b.operators[id] = &operator.Union{}
		return map[ident.Port]types.Schema{0: any}, nil
	}
}

// buildPlan turns cfg into a dag.Plan, given the already-resolved
// schema of each source (sourceSchemas, keyed by SourceConfig.Name).
func buildPlan(cfg Config, sourceSchemas map[string]types.Schema) (dag.Plan, *planBuilder, error) {
	b := newPlanBuilder()

	for _, src := range cfg.Sources {
		schema, ok := sourceSchemas[src.Name]
		if !ok {
			return dag.Plan{}, nil, errors.Errorf("pipeline: no resolved schema for source %q", src.Name)
		}
		b.addSource(src.Name, schema)
	}
	for _, proc := range cfg.Processors {
		if err := b.addProcessor(proc); err != nil {
			return dag.Plan{}, nil, err
		}
	}
	for _, ep := range cfg.Endpoints {
		b.addSink(ep.Name)
	}

	for _, e := range cfg.Edges {
		b.edges = append(b.edges, dag.PlanEdge{
			From: ident.NewNodeID(e.From), FromPort: ident.Port(e.FromPort),
			To: ident.NewNodeID(e.To), ToPort: ident.Port(e.ToPort),
		})
	}

	return dag.Plan{Nodes: b.nodes, Edges: b.edges}, b, nil
}
