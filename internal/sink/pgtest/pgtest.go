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

// Package pgtest is a reference Sink driver that applies operations to
// a Postgres-compatible table via upsert-by-primary-key, pairing with
// internal/source/pgtest as a round-trippable test fixture for the
// external interfaces of spec.md §6.2.
package pgtest

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/dataflow/internal/sink"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Config names the target table for a Driver.
type Config struct {
	ConnString string
	// Table is the fully-qualified "schema.table" destination.
	Table string
}

// Driver implements sink.Driver by issuing one upsert or delete
// statement per operation against a Postgres-compatible table.
type Driver struct {
	cfg    Config
	pool   *pgxpool.Pool
	schema types.Schema
}

var _ sink.Driver = (*Driver)(nil)

// Open connects to cfg.ConnString.
func Open(ctx context.Context, cfg Config) (*Driver, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnString)
	if err != nil {
		return nil, errors.Wrap(err, "pgtest sink: connect")
	}
	return &Driver{cfg: cfg, pool: pool}, nil
}

// OnSchema implements sink.Driver.
func (d *Driver) OnSchema(schema types.Schema) error {
	if len(schema.PrimaryIndex) == 0 {
		return errors.Errorf("pgtest sink: table %s requires a primary key to upsert by", d.cfg.Table)
	}
	d.schema = schema
	return nil
}

// OnOperation implements sink.Driver: each variant is applied
// immediately rather than buffered, so OnCommit has nothing further to
// flush (this driver's "buffer" is Postgres's own transaction log).
func (d *Driver) OnOperation(ctx context.Context, op types.Operation) error {
	switch op.Kind {
	case types.OpInsert:
		return d.upsert(ctx, op.New)
	case types.OpUpdate:
		if d.primaryKeyChanged(op.Old, op.New) {
			if err := d.delete(ctx, op.Old); err != nil {
				return err
			}
		}
		return d.upsert(ctx, op.New)
	case types.OpDelete:
		return d.delete(ctx, op.Old)
	case types.OpBatchInsert:
		for _, row := range op.Batch {
			if err := d.upsert(ctx, row); err != nil {
				return err
			}
		}
		return nil
	default:
		return errors.Errorf("pgtest sink: unsupported operation kind %d", op.Kind)
	}
}

func (d *Driver) primaryKeyChanged(old, new types.Record) bool {
	for _, pos := range d.schema.PrimaryIndex {
		if !fieldEqual(old[pos], new[pos]) {
			return true
		}
	}
	return false
}

// fieldEqual compares two Fields by value. types.Field is not itself
// comparable with == (it carries a []byte arm), so primary-key columns
// — expected to be scalar, never binary or JSON — are compared via
// their decoded Go value.
func fieldEqual(a, b types.Field) bool {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() == b.IsNull()
	}
	if a.Kind != b.Kind {
		return false
	}
	av, bv := fieldToValue(a), fieldToValue(b)
	switch x := av.(type) {
	case []byte:
		y, ok := bv.([]byte)
		return ok && string(x) == string(y)
	default:
		return av == bv
	}
}

func (d *Driver) upsert(ctx context.Context, row types.Record) error {
	cols := make([]string, len(d.schema.Fields))
	placeholders := make([]string, len(d.schema.Fields))
	args := make([]any, len(d.schema.Fields))
	for i, f := range d.schema.Fields {
		cols[i] = f.Name
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = fieldToValue(row[i])
	}

	pkCols := make([]string, len(d.schema.PrimaryIndex))
	for i, pos := range d.schema.PrimaryIndex {
		pkCols[i] = d.schema.Fields[pos].Name
	}

	var setClauses []string
	for _, c := range cols {
		if contains(pkCols, c) {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s)",
		d.cfg.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(pkCols, ", "),
	)
	if len(setClauses) == 0 {
		query += " DO NOTHING"
	} else {
		query += " DO UPDATE SET " + strings.Join(setClauses, ", ")
	}

	_, err := d.pool.Exec(ctx, query, args...)
	return errors.Wrap(err, "pgtest sink: upsert")
}

func (d *Driver) delete(ctx context.Context, row types.Record) error {
	var where []string
	args := make([]any, 0, len(d.schema.PrimaryIndex))
	for i, pos := range d.schema.PrimaryIndex {
		where = append(where, fmt.Sprintf("%s = $%d", d.schema.Fields[pos].Name, i+1))
		args = append(args, fieldToValue(row[pos]))
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", d.cfg.Table, strings.Join(where, " AND "))
	_, err := d.pool.Exec(ctx, query, args...)
	return errors.Wrap(err, "pgtest sink: delete")
}

// OnCommit implements sink.Driver; every operation up to this point was
// already applied by OnOperation, so commit only logs progress.
func (d *Driver) OnCommit(_ context.Context, epoch types.Epoch) error {
	log.WithField("epoch", epoch.ID).Trace("pgtest sink: commit acknowledged")
	return nil
}

// OnTerminate implements sink.Driver.
func (d *Driver) OnTerminate(_ context.Context) error {
	d.pool.Close()
	return nil
}

func fieldToValue(f types.Field) any {
	if f.IsNull() {
		return nil
	}
	switch f.Kind {
	case types.KindInt:
		return f.Int()
	case types.KindUInt:
		return f.UInt()
	case types.KindFloat:
		return f.Float()
	case types.KindBoolean:
		return f.Boolean()
	case types.KindString, types.KindText:
		return f.String()
	case types.KindBinary:
		return f.Binary()
	case types.KindDecimal:
		return f.Decimal().RatString()
	case types.KindTimestamp:
		return f.Timestamp()
	case types.KindDate:
		return f.Date()
	default:
		return f.String()
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
