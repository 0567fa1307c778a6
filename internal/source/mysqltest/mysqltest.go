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

// Package mysqltest is a reference Source driver for MySQL-compatible
// databases that reports the CdcOnlyPK type of spec.md §3. It polls for
// rows whose primary-key column exceeds the highest value already read
// and surfaces each as an Insert of the row's current image; updates
// and deletes of rows already read are not observed.
package mysqltest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cockroachdb/dataflow/internal/source"
	"github.com/cockroachdb/dataflow/internal/types"
	_ "github.com/go-sql-driver/mysql" // register driver
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Config names the connection and polling parameters for a Driver.
type Config struct {
	DSN          string
	PKColumn     string
	PollInterval time.Duration
}

// Driver implements source.Driver over a polled MySQL connection.
type Driver struct {
	cfg Config
	db  *sql.DB
}

var _ source.Driver = (*Driver)(nil)

// Open connects to cfg.DSN and returns a ready Driver.
func Open(cfg Config) (*Driver, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "mysqltest: open")
	}
	return &Driver{cfg: cfg, db: db}, nil
}

// Close releases the connection.
func (d *Driver) Close() error { return d.db.Close() }

// TypesMapping implements source.Driver.
func (d *Driver) TypesMapping() map[string]types.FieldType {
	return map[string]types.FieldType{
		"bigint":   {Kind: types.KindInt},
		"int":      {Kind: types.KindInt},
		"double":   {Kind: types.KindFloat},
		"decimal":  {Kind: types.KindDecimal},
		"varchar":  {Kind: types.KindString},
		"text":     {Kind: types.KindText},
		"tinyint":  {Kind: types.KindBoolean},
		"datetime": {Kind: types.KindTimestamp},
		"date":     {Kind: types.KindDate},
		"blob":     {Kind: types.KindBinary},
	}
}

// ValidateConnection implements source.Driver.
func (d *Driver) ValidateConnection(ctx context.Context) error {
	return errors.Wrap(d.db.PingContext(ctx), "mysqltest: ping")
}

// ListTables implements source.Driver.
func (d *Driver) ListTables(ctx context.Context) ([]source.TableIdentifier, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT table_schema, table_name FROM information_schema.tables WHERE table_type='BASE TABLE'`)
	if err != nil {
		return nil, errors.Wrap(err, "mysqltest: list tables")
	}
	defer rows.Close()

	var out []source.TableIdentifier
	for rows.Next() {
		var t source.TableIdentifier
		if err := rows.Scan(&t.Schema, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListColumns implements source.Driver.
func (d *Driver) ListColumns(ctx context.Context, tables []source.TableIdentifier) ([]source.TableInfo, error) {
	out := make([]source.TableInfo, len(tables))
	for i, t := range tables {
		rows, err := d.db.QueryContext(ctx,
			`SELECT column_name FROM information_schema.columns WHERE table_schema=? AND table_name=? ORDER BY ordinal_position`,
			t.Schema, t.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "mysqltest: list columns of %s.%s", t.Schema, t.Name)
		}
		info := source.TableInfo{TableIdentifier: t}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return nil, err
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

// GetSchemas implements source.Driver, reporting CdcOnlyPK.
func (d *Driver) GetSchemas(_ context.Context, tables []source.TableInfo) ([]source.TableSchema, error) {
	out := make([]source.TableSchema, len(tables))
	for i, t := range tables {
		fields := make([]types.FieldDefinition, len(t.ColumnNames))
		primary := -1
		for j, name := range t.ColumnNames {
			fields[j] = types.FieldDefinition{Name: name, Type: types.FieldType{Kind: types.KindString}, Nullable: name != d.cfg.PKColumn}
			if name == d.cfg.PKColumn {
				primary = j
			}
		}
		schema := types.Schema{Fields: fields}
		if primary >= 0 {
			schema.PrimaryIndex = []int{primary}
		}
		out[i] = source.TableSchema{Table: t.TableIdentifier, Schema: schema, Cdc: types.CdcOnlyPK}
	}
	return out, nil
}

// Start implements source.Driver by polling each table for rows whose
// PKColumn exceeds the high-watermark in from.
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
					log.WithError(err).WithField("table", t.Name).Error("mysqltest: poll failed")
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
	query := fmt.Sprintf("SELECT * FROM `%s`.`%s` WHERE `%s` > ? ORDER BY `%s`", t.Schema, t.Name, d.cfg.PKColumn, d.cfg.PKColumn)
	rows, err := d.db.QueryContext(ctx, query, watermarks[key])
	if err != nil {
		return errors.Wrapf(err, "mysqltest: poll %s", key)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	pkIdx := -1
	for i, c := range cols {
		if c == d.cfg.PKColumn {
			pkIdx = i
			break
		}
	}

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return errors.Wrap(err, "mysqltest: scan row")
		}
		rec := make(types.Record, len(vals))
		for i, v := range vals {
			rec[i] = valueToField(v)
		}

		var seq int64
		if pkIdx >= 0 {
			seq, _ = toInt64(vals[pkIdx])
		}
		watermarks[key] = seq

		if err := ingestor.Ingest(ctx, source.IngestionMessage{
			Kind: source.MessageOperation,
			Op:   types.Insert(rec),
			ID:   types.OpIdentifier{Txid: 0, SeqInTx: uint64(seq)},
		}); err != nil {
			return err
		}
	}
	return rows.Err()
}

func valueToField(v any) types.Field {
	switch t := v.(type) {
	case nil:
		return types.Null
	case int64:
		return types.NewInt(t)
	case float64:
		return types.NewFloat(t)
	case []byte:
		return types.NewString(string(t))
	case string:
		return types.NewString(t)
	case time.Time:
		return types.NewTimestamp(t)
	default:
		return types.NewString(fmt.Sprintf("%v", t))
	}
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case []byte:
		var n int64
		_, err := fmt.Sscanf(string(t), "%d", &n)
		return n, err == nil
	default:
		return 0, false
	}
}
