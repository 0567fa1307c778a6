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
	"context"
	"time"

	"github.com/cockroachdb/dataflow/internal/sink"
	sinkpg "github.com/cockroachdb/dataflow/internal/sink/pgtest"
	"github.com/cockroachdb/dataflow/internal/source"
	"github.com/cockroachdb/dataflow/internal/source/mysqltest"
	sourcepg "github.com/cockroachdb/dataflow/internal/source/pgtest"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// defaultPollInterval governs the reference polling source drivers
// when a connection does not override it.
const defaultPollInterval = time.Second

// openSource resolves src's connection Kind into a concrete
// source.Driver, plus a close func reclaiming its connection --
// pgtest.Driver.Close and mysqltest.Driver.Close have different
// signatures, so the difference is absorbed here rather than in the
// pipeline assembly code.
func openSource(ctx context.Context, conn ConnectionConfig, src SourceConfig) (source.Driver, func(), error) {
	switch conn.Kind {
	case "pgtest":
		drv, err := sourcepg.Open(ctx, sourcepg.Config{
			ConnString:   conn.DSN,
			SeqColumn:    src.WatermarkColumn,
			PollInterval: defaultPollInterval,
		})
		if err != nil {
			return nil, nil, err
		}
		return drv, drv.Close, nil
	case "mysqltest":
		drv, err := mysqltest.Open(mysqltest.Config{
			DSN:          conn.DSN,
			PKColumn:     src.WatermarkColumn,
			PollInterval: defaultPollInterval,
		})
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := drv.Close(); err != nil {
				log.WithError(err).Warn("pipeline: closing mysqltest source")
			}
		}
		return drv, closeFn, nil
	default:
		return nil, nil, errors.Errorf("pipeline: unknown source connection kind %q", conn.Kind)
	}
}

// openSink resolves ep's connection Kind into a concrete sink.Driver.
// Only a Postgres-compatible reference sink exists in this tree;
// mysqltest is source-only (see DESIGN.md).
func openSink(ctx context.Context, conn ConnectionConfig, ep EndpointConfig) (sink.Driver, error) {
	switch conn.Kind {
	case "pgtest":
		return sinkpg.Open(ctx, sinkpg.Config{ConnString: conn.DSN, Table: ep.Table})
	default:
		return nil, errors.Errorf("pipeline: unknown endpoint connection kind %q", conn.Kind)
	}
}
