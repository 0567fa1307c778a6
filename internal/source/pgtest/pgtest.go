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

// Package pgtest is a reference Source driver backed by a polling
// query against a PostgreSQL-compatible database, used by
// internal/pipeline's driver registry and as a template for a real logical-decoding
// driver. It reports CdcFullChanges: every poll reads the row's
// complete current image.
package pgtest

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/dataflow/internal/source"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Config names the connection and polling parameters for a Driver.
type Config struct {
	ConnString string
	// SeqColumn is a monotonically increasing integer column (e.g. a
	// serial primary key) used to detect new rows.
	SeqColumn string
	// PollInterval bounds how often each table is re-queried.
	PollInterval time.Duration
}

// Driver implements source.Driver by polling each table for rows whose
// SeqColumn exceeds the last one seen.
type Driver struct {
	cfg  Config
	pool *pgxpool.Pool
}

var _ source.Driver = (*Driver)(nil)

// Open connects to cfg.ConnString and returns a ready Driver.
func Open(ctx context.Context, cfg Config) (*Driver, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	pool, err := pgxpool.New(ctx, cfg.ConnString)
	if err != nil {
		return nil, errors.Wrap(err, "pgtest: connect")
	}
	return &Driver{cfg: cfg, pool: pool}, nil
}

// Close releases the connection pool.
func (d *Driver) Close() { d.pool.Close() }

// TypesMapping implements source.Driver.
func (d *Driver) TypesMapping() map[string]types.FieldType {
	return map[string]types.FieldType{
		"int8":        {Kind: types.KindInt},
		"int4":        {Kind: types.KindInt},
		"float8":      {Kind: types.KindFloat},
		"numeric":     {Kind: types.KindDecimal},
		"text":        {Kind: types.KindText},
		"varchar":     {Kind: types.KindString},
		"bool":        {Kind: types.KindBoolean},
		"timestamp":   {Kind: types.KindTimestamp},
		"timestamptz": {Kind: types.KindTimestamp},
		"date":        {Kind: types.KindDate},
		"bytea":       {Kind: types.KindBinary},
	}
}

// ValidateConnection implements source.Driver.
func (d *Driver) ValidateConnection(ctx context.Context) error {
	return errors.Wrap(d.pool.Ping(ctx), "pgtest: ping")
}

// ListTables implements source.Driver.
func (d *Driver) ListTables(ctx context.Context) ([]source.TableIdentifier, error) {
	rows, err := d.pool.Query(ctx, `SELECT schemaname, tablename FROM pg_tables WHERE schemaname = 'public'`)
	if err != nil {
		return nil, errors.Wrap(err, "pgtest: list tables")
	}
	defer rows.Close()

	var out []source.TableIdentifier
	for rows.Next() {
		var t source.TableIdentifier
		if err := rows.Scan(&t.Schema, &t.Name); err != nil {
			return nil, errors.Wrap(err, "pgtest: scan table")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListColumns implements source.Driver.
func (d *Driver) ListColumns(ctx context.Context, tables []source.TableIdentifier) ([]source.TableInfo, error) {
	out := make([]source.TableInfo, len(tables))
	for i, t := range tables {
		rows, err := d.pool.Query(ctx,
			`SELECT column_name FROM information_schema.columns WHERE table_schema=$1 AND table_name=$2 ORDER BY ordinal_position`,
			t.Schema, t.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "pgtest: list columns of %s.%s", t.Schema, t.Name)
		}
		info := source.TableInfo{TableIdentifier: t}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return nil, errors.Wrap(err, "pgtest: scan column")
			}
			info.ColumnNames = append(info.ColumnNames, name)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		out[i] = info
	}
	return out, nil
}

// GetSchemas implements source.Driver. Every column is reported
// nullable except SeqColumn, which forms the primary index.
func (d *Driver) GetSchemas(_ context.Context, tables []source.TableInfo) ([]source.TableSchema, error) {
	out := make([]source.TableSchema, len(tables))
	for i, t := range tables {
		fields := make([]types.FieldDefinition, len(t.ColumnNames))
		primary := -1
		for j, name := range t.ColumnNames {
			fields[j] = types.FieldDefinition{Name: name, Type: types.FieldType{Kind: types.KindString}, Nullable: name != d.cfg.SeqColumn}
			if name == d.cfg.SeqColumn {
				primary = j
			}
		}
		schema := types.Schema{Fields: fields}
		if primary >= 0 {
			schema.PrimaryIndex = []int{primary}
		}
		out[i] = source.TableSchema{Table: t.TableIdentifier, Schema: schema, Cdc: types.CdcFullChanges}
	}
	return out, nil
}

// Start implements source.Driver: it polls each table on cfg.PollInterval,
// emitting an Insert per row whose SeqColumn exceeds the high-watermark
// recorded in from (or 0, for a cold start).
func (d *Driver) Start(
	ctx context.Context, ingestor source.Ingestor, tables []source.TableIdentifier, from map[string]types.OpIdentifier,
) error {
	watermarks := make(map[string]int64, len(tables))
	for _, t := range tables {
		key := t.Schema + "." + t.Name
		if id, ok := from[key]; ok {
			watermarks[key] = int64(id.SeqInTx)
		}
	}

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, t := range tables {
				if err := d.pollOnce(ctx, ingestor, t, watermarks); err != nil {
					log.WithError(err).WithField("table", t.Name).Error("pgtest: poll failed")
					return err
				}
			}
		}
	}
}

func (d *Driver) pollOnce(
	ctx context.Context, ingestor source.Ingestor, t source.TableIdentifier, watermarks map[string]int64,
) error {
	key := t.Schema + "." + t.Name
	query := fmt.Sprintf(`SELECT * FROM %s.%s WHERE %s > $1 ORDER BY %s`, t.Schema, t.Name, d.cfg.SeqColumn, d.cfg.SeqColumn)
	rows, err := d.pool.Query(ctx, query, watermarks[key])
	if err != nil {
		return errors.Wrapf(err, "pgtest: poll %s", key)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return errors.Wrap(err, "pgtest: read row")
		}
		rec := valuesToRecord(vals)

		seqIdx := -1
		for i, fd := range fieldDescs {
			if string(fd.Name) == d.cfg.SeqColumn {
				seqIdx = i
				break
			}
		}
		var seq int64
		if seqIdx >= 0 {
			seq, _ = toInt64(vals[seqIdx])
		}
		watermarks[key] = seq

		id := types.OpIdentifier{Txid: 0, SeqInTx: uint64(seq)}
		if err := ingestor.Ingest(ctx, source.IngestionMessage{
			Kind: source.MessageOperation,
			Op:   types.Insert(rec),
			ID:   id,
		}); err != nil {
			return err
		}
	}
	return rows.Err()
}

func valuesToRecord(vals []any) types.Record {
	rec := make(types.Record, len(vals))
	for i, v := range vals {
		rec[i] = valueToField(v)
	}
	return rec
}

func valueToField(v any) types.Field {
	switch t := v.(type) {
	case nil:
		return types.Null
	case int64:
		return types.NewInt(t)
	case int32:
		return types.NewInt(int64(t))
	case float64:
		return types.NewFloat(t)
	case bool:
		return types.NewBoolean(t)
	case string:
		return types.NewString(t)
	case []byte:
		return types.NewBinary(t)
	case time.Time:
		return types.NewTimestamp(t)
	case pgx.Identifier:
		return types.NewString(t.Sanitize())
	default:
		return types.NewString(fmt.Sprintf("%v", t))
	}
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int32:
		return int64(t), true
	default:
		return 0, false
	}
}
