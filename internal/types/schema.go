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

import "github.com/pkg/errors"

// FieldDefinition describes one column of a Schema.
type FieldDefinition struct {
	Name     string
	Type     FieldType
	Nullable bool
	// Source names the upstream column this field was derived from,
	// for diagnostics; it is not part of the schema's identity.
	Source string
}

// Schema is the immutable, ordered column list shared by every Record
// that flows across one DAG edge. Schemas are built once by the DAG
// builder (internal/engine/dag) and never mutated afterward; operators
// hold them by value or pointer, never by copy-and-edit.
type Schema struct {
	Fields []FieldDefinition
	// PrimaryIndex is an ordered sequence of column positions forming
	// the primary key, empty if the row stream has no stable key
	// (e.g. an append-only window output).
	PrimaryIndex []int
}

// Validate checks the invariants from spec.md §3: all names unique,
// primary-index positions in range, and no nullable primary-key column.
func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if _, dup := seen[f.Name]; dup {
			return errors.Errorf("schema: duplicate column name %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	for _, pos := range s.PrimaryIndex {
		if pos < 0 || pos >= len(s.Fields) {
			return errors.Errorf("schema: primary index position %d out of range", pos)
		}
		if s.Fields[pos].Nullable {
			return errors.Errorf("schema: primary key column %q may not be nullable", s.Fields[pos].Name)
		}
	}
	return nil
}

// ColumnIndex returns the position of the named column, or -1 if absent.
func (s Schema) ColumnIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// PrimaryKey extracts the primary-key Fields from rec in PrimaryIndex
// order.
func (s Schema) PrimaryKey(rec Record) []Field {
	key := make([]Field, len(s.PrimaryIndex))
	for i, pos := range s.PrimaryIndex {
		key[i] = rec[pos]
	}
	return key
}

// Record is an ordered sequence of Field values whose length and typing
// must match some Schema; the schema itself is carried alongside the
// Record by the caller (on the edge, in the Operation, or in the
// operator), not embedded in the Record, so that a hot loop processing
// many Records of one Schema pays no per-row overhead for it.
type Record []Field

// Clone returns a shallow copy of the Record; Fields are immutable
// values, so a shallow copy is always safe.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	copy(out, r)
	return out
}
