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

// Package pipeline assembles the configuration surface of spec.md
// §6.4 — connections, sources, endpoints, and scheduler options — into
// a running dag.Dag + exec.Executor, wiring in the checkpoint manager
// and per-endpoint operation logs.
package pipeline

import (
	"time"

	"github.com/cockroachdb/dataflow/internal/operator"
	"github.com/cockroachdb/dataflow/internal/types"
)

// ConnectionConfig names one opaque, driver-specific connection. Kind
// selects which reference driver package to open it with; core code
// never interprets DSN itself (spec.md §6.4: "opaque to the core").
type ConnectionConfig struct {
	Kind string // "pgtest" or "mysqltest"
	DSN  string
}

// SourceConfig declares one source node.
type SourceConfig struct {
	Name          string
	ConnectionRef string
	TableSchema   string
	TableName     string
	// SeqColumn/PKColumn is the watermark column, interpreted according
	// to the resolved driver Kind.
	WatermarkColumn string
}

// ProcessorConfig declares one intermediate operator node. Exactly one
// of the kind-specific fields should be set, matching Kind.
//
// The configuration surface of spec.md §6.4 lists SQL text as an
// optional way to define intermediate views; this pipeline accepts
// processor topology directly instead of parsing SQL (see DESIGN.md
// for why), so Kind/Inputs/Edges play the role SQL would otherwise
// play.
type ProcessorConfig struct {
	Name   string
	Kind   string // "project", "select", "aggregate", "join", "window", "union"
	Inputs []string

	Project   *ProjectConfig
	Select    *SelectConfig
	Aggregate *AggregateConfig
	Join      *JoinConfig
	Window    *WindowConfig
}

// ProjectConfig keeps only column positions from the single input.
type ProjectConfig struct {
	Columns []int
}

// CompareOp names a Select predicate's comparison.
type CompareOp string

// Supported CompareOp values.
const (
	CompareEq    CompareOp = "eq"
	CompareNotEq CompareOp = "neq"
	CompareLt    CompareOp = "lt"
	CompareLtEq  CompareOp = "lteq"
	CompareGt    CompareOp = "gt"
	CompareGtEq  CompareOp = "gteq"
)

// SelectConfig filters rows by comparing Column against Literal.
type SelectConfig struct {
	Column  int
	Op      CompareOp
	Literal types.Field
}

// AggregateConfig groups the single input by GroupBy and computes Aggs.
type AggregateConfig struct {
	GroupBy []int
	Aggs    []operator.AggSpec
}

// JoinType names which side(s) of a two-input JOIN pad unmatched rows.
type JoinType string

// Supported JoinType values (FULL OUTER is a non-goal, spec.md §4.4.4).
const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
	JoinRight JoinType = "right"
)

// JoinConfig joins two inputs (ports 0 and 1, named in Inputs in that
// order) on the given key/primary-key column positions.
type JoinConfig struct {
	LeftKeyCols, RightKeyCols []int
	LeftPKCols, RightPKCols   []int
	Type                      JoinType
}

// WindowKindConfig names a WINDOW operator's tiling strategy.
type WindowKindConfig string

// Supported WindowKindConfig values.
const (
	WindowTumble WindowKindConfig = "tumble"
	WindowHop    WindowKindConfig = "hop"
)

// WindowConfig expands each input row into one or more window-tagged
// output rows.
type WindowConfig struct {
	Kind    WindowKindConfig
	TimeCol int
	Size    time.Duration
	Hop     time.Duration // only meaningful for WindowHop
}

// EdgeConfig connects one node's output port to another's input port,
// naming nodes by their declared Name (source, processor, or
// endpoint).
type EdgeConfig struct {
	From     string
	FromPort int
	To       string
	ToPort   int
}

// EndpointConfig declares one sink node and, implicitly, the
// append-only operation log kept alongside it (spec.md §4.7).
type EndpointConfig struct {
	Name          string
	ConnectionRef string
	Table         string
}

// Config is the pipeline specification of spec.md §6.4.
type Config struct {
	Connections map[string]ConnectionConfig
	Sources     []SourceConfig
	Processors  []ProcessorConfig
	Endpoints   []EndpointConfig
	Edges       []EdgeConfig

	// SQL is accepted for forward compatibility with spec.md §6.4's
	// configuration surface but is not parsed; see DESIGN.md.
	SQL string

	ChannelCapacity int
	EpochInterval   time.Duration
	StateDir        string
	LogDir          string
	CommitTimeout   time.Duration
	MaxSegmentBytes int64
}
