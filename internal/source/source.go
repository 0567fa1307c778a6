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

// Package source defines the external source driver contract of
// spec.md §6.1 and wraps drivers as dag/exec.NodeRunner source nodes.
package source

import (
	"context"

	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
)

// TableIdentifier names a source-side table, optionally schema
// qualified.
type TableIdentifier struct {
	Schema string
	Name   string
}

// TableInfo describes one table's columns as reported by a Driver.
type TableInfo struct {
	TableIdentifier
	ColumnNames []string
}

// MessageKind discriminates the variants of IngestionMessage.
type MessageKind uint8

// Supported ingestion message kinds.
const (
	MessageOperation MessageKind = iota
	MessageSnapshottingStarted
	MessageSnapshottingDone
)

// IngestionMessage is what a Driver feeds to an Ingestor as it reads
// its upstream change stream.
type IngestionMessage struct {
	Kind  MessageKind
	Table ident.NodeID
	Op    types.Operation
	ID    types.OpIdentifier
}

// Ingestor receives IngestionMessages from a running Driver. A Driver
// must call Ingest with non-decreasing OpIdentifiers across all the
// tables it feeds; an identifier lower than the last one ingested is
// reported by the caller as *types.EpochOrderingViolationError.
type Ingestor interface {
	Ingest(ctx context.Context, msg IngestionMessage) error
}

// Driver is the external source contract of spec.md §6.1. A single
// Driver may feed more than one declared table.
type Driver interface {
	// TypesMapping reports how the driver's external type names relate
	// to FieldType, for drivers whose schema discovery returns names
	// rather than resolved types.
	TypesMapping() map[string]types.FieldType

	// ValidateConnection checks reachability without altering state.
	ValidateConnection(ctx context.Context) error

	// ListTables enumerates the tables visible to this driver.
	ListTables(ctx context.Context) ([]TableIdentifier, error)

	// ListColumns reports column names for the given tables.
	ListColumns(ctx context.Context, tables []TableIdentifier) ([]TableInfo, error)

	// GetSchemas resolves a Schema and CdcType per requested table.
	GetSchemas(ctx context.Context, tables []TableInfo) ([]TableSchema, error)

	// Start begins driving ingestion. It blocks until ctx is canceled
	// or a fatal, non-recoverable error occurs. from records, per
	// table, the OpIdentifier to resume after; a zero value means
	// start from the beginning.
	Start(ctx context.Context, ingestor Ingestor, tables []TableIdentifier, from map[string]types.OpIdentifier) error
}

// TableSchema pairs a resolved Schema with the driver's reported
// CdcType for one table.
type TableSchema struct {
	Table  TableIdentifier
	Schema types.Schema
	Cdc    types.CdcType
}
