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

// Package pipelinetest provides in-memory Source/Sink doubles for
// exercising a complete dag.Dag end to end against fixtures instead of
// a live database.
package pipelinetest

import (
	"context"
	"sync"

	"github.com/cockroachdb/dataflow/internal/source"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
)

// MemorySource replays a fixed sequence of Operations as a
// source.Driver, each tagged with a monotonically increasing
// OpIdentifier, without touching a network or a disk.
type MemorySource struct {
	Table  source.TableIdentifier
	Schema types.Schema
	Rows   []types.Operation
}

var _ source.Driver = (*MemorySource)(nil)

// TypesMapping implements source.Driver.
func (s *MemorySource) TypesMapping() map[string]types.FieldType { return nil }

// ValidateConnection implements source.Driver.
func (s *MemorySource) ValidateConnection(context.Context) error { return nil }

// ListTables implements source.Driver.
func (s *MemorySource) ListTables(context.Context) ([]source.TableIdentifier, error) {
	return []source.TableIdentifier{s.Table}, nil
}

// ListColumns implements source.Driver.
func (s *MemorySource) ListColumns(_ context.Context, tables []source.TableIdentifier) ([]source.TableInfo, error) {
	names := make([]string, len(s.Schema.Fields))
	for i, f := range s.Schema.Fields {
		names[i] = f.Name
	}
	out := make([]source.TableInfo, len(tables))
	for i, t := range tables {
		out[i] = source.TableInfo{TableIdentifier: t, ColumnNames: names}
	}
	return out, nil
}

// GetSchemas implements source.Driver, reporting CdcFullChanges.
func (s *MemorySource) GetSchemas(_ context.Context, tables []source.TableInfo) ([]source.TableSchema, error) {
	out := make([]source.TableSchema, len(tables))
	for i, t := range tables {
		out[i] = source.TableSchema{Table: t.TableIdentifier, Schema: s.Schema, Cdc: types.CdcFullChanges}
	}
	return out, nil
}

// Start implements source.Driver by ingesting every row in Rows, in
// order, then returning nil so the owning source.Node broadcasts
// ExecTerminate.
func (s *MemorySource) Start(
	ctx context.Context, ingestor source.Ingestor, _ []source.TableIdentifier, _ map[string]types.OpIdentifier,
) error {
	for i, op := range s.Rows {
		msg := source.IngestionMessage{
			Kind: source.MessageOperation,
			Op:   op,
			ID:   types.OpIdentifier{Txid: uint64(i) + 1},
		}
		if err := ingestor.Ingest(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// MemorySink records every operation and commit a sink.Driver
// receives, guarded by a mutex so a test goroutine can safely read it
// back after the pipeline finishes.
type MemorySink struct {
	mu         sync.Mutex
	schema     types.Schema
	ops        []types.Operation
	commits    []types.Epoch
	terminated bool
}

// OnSchema implements sink.Driver.
func (m *MemorySink) OnSchema(schema types.Schema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schema = schema
	return nil
}

// OnOperation implements sink.Driver.
func (m *MemorySink) OnOperation(_ context.Context, op types.Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, op)
	return nil
}

// OnCommit implements sink.Driver.
func (m *MemorySink) OnCommit(_ context.Context, epoch types.Epoch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits = append(m.commits, epoch)
	return nil
}

// OnTerminate implements sink.Driver.
func (m *MemorySink) OnTerminate(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = true
	return nil
}

// Operations returns every operation applied so far, in order.
func (m *MemorySink) Operations() []types.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Operation, len(m.ops))
	copy(out, m.ops)
	return out
}

// Terminated reports whether OnTerminate has been called.
func (m *MemorySink) Terminated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminated
}

// NodeIDs is a convenience for building a dag.Plan's PlanNode/PlanEdge
// slices from readable names rather than repeating ident.NewNodeID at
// every call site.
func NodeIDs(names ...string) []ident.NodeID {
	out := make([]ident.NodeID, len(names))
	for i, n := range names {
		out[i] = ident.NewNodeID(n)
	}
	return out
}
