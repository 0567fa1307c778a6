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
	"path/filepath"

	"github.com/cockroachdb/dataflow/internal/engine/checkpoint"
	"github.com/cockroachdb/dataflow/internal/engine/dag"
	"github.com/cockroachdb/dataflow/internal/oplog"
	"github.com/cockroachdb/dataflow/internal/sink"
	"github.com/cockroachdb/dataflow/internal/source"
	"github.com/cockroachdb/dataflow/internal/state"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// The Provide* functions below are the wire providers chained by
// wire_gen.go's Start. Each is independently testable and free of the
// bookkeeping Start's generated chain otherwise has to repeat inline.

// ProvideStore opens the checkpoint store under cfg.StateDir.
func ProvideStore(cfg Config) (*state.Store, func(), error) {
	store, err := state.Open(filepath.Join(cfg.StateDir, "checkpoint.bbolt"))
	if err != nil {
		return nil, nil, errors.Wrap(err, "pipeline: opening checkpoint store")
	}
	return store, func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("pipeline: closing checkpoint store")
		}
	}, nil
}

// ProvideCheckpointManager wraps store and resolves the pipeline's
// resume position.
func ProvideCheckpointManager(store *state.Store) (*checkpoint.Manager, map[ident.NodeID]types.OpIdentifier, error) {
	mgr := checkpoint.New(store)
	resume, ok, err := mgr.Resume()
	if err != nil {
		return nil, nil, errors.Wrap(err, "pipeline: resolving resume position")
	}
	if !ok {
		resume = map[ident.NodeID]types.OpIdentifier{}
	}
	return mgr, resume, nil
}

// sourceBundle is every artifact ProvideSources resolves per source,
// keyed by SourceConfig.Name.
type sourceBundle struct {
	drivers map[string]source.Driver
	schemas map[string]types.Schema
	tables  map[string]source.TableIdentifier
}

// ProvideSources opens every configured source's driver and resolves
// its table schema.
func ProvideSources(ctx context.Context, cfg Config) (*sourceBundle, func(), error) {
	b := &sourceBundle{
		drivers: make(map[string]source.Driver, len(cfg.Sources)),
		schemas: make(map[string]types.Schema, len(cfg.Sources)),
		tables:  make(map[string]source.TableIdentifier, len(cfg.Sources)),
	}
	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			if c != nil {
				c()
			}
		}
	}

	for _, src := range cfg.Sources {
		conn, ok := cfg.Connections[src.ConnectionRef]
		if !ok {
			cleanup()
			return nil, nil, errors.Errorf("pipeline: source %q references unknown connection %q", src.Name, src.ConnectionRef)
		}
		drv, closeFn, err := openSource(ctx, conn, src)
		if err != nil {
			cleanup()
			return nil, nil, errors.Wrapf(err, "pipeline: opening source %q", src.Name)
		}
		closers = append(closers, closeFn)
		b.drivers[src.Name] = drv

		table := source.TableIdentifier{Schema: src.TableSchema, Name: src.TableName}
		b.tables[src.Name] = table

		cols, err := drv.ListColumns(ctx, []source.TableIdentifier{table})
		if err != nil {
			cleanup()
			return nil, nil, errors.Wrapf(err, "pipeline: listing columns for source %q", src.Name)
		}
		schemas, err := drv.GetSchemas(ctx, cols)
		if err != nil {
			cleanup()
			return nil, nil, errors.Wrapf(err, "pipeline: resolving schema for source %q", src.Name)
		}
		if len(schemas) != 1 {
			cleanup()
			return nil, nil, errors.Errorf("pipeline: source %q resolved %d schemas, expected 1", src.Name, len(schemas))
		}
		b.schemas[src.Name] = schemas[0].Schema
	}
	return b, cleanup, nil
}

// ProvideDag builds the validated dag.Dag and its per-node operators
// from cfg, given each source's already-resolved schema.
func ProvideDag(cfg Config, sources *sourceBundle) (*dag.Dag, *planBuilder, error) {
	plan, builder, err := buildPlan(cfg, sources.schemas)
	if err != nil {
		return nil, nil, err
	}
	d, err := dag.Build(plan)
	if err != nil {
		return nil, nil, errors.Wrap(err, "pipeline: building dag")
	}
	return d, builder, nil
}

// sinkBundle is every artifact ProvideSinks resolves per endpoint,
// keyed by EndpointConfig.Name.
type sinkBundle struct {
	drivers map[string]sink.Driver
	logs    map[string]*oplog.Log
}

// ProvideSinks opens every configured endpoint's driver and its
// append-only operation log.
func ProvideSinks(ctx context.Context, cfg Config) (*sinkBundle, func(), error) {
	b := &sinkBundle{
		drivers: make(map[string]sink.Driver, len(cfg.Endpoints)),
		logs:    make(map[string]*oplog.Log, len(cfg.Endpoints)),
	}
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	cleanup := func() {
		cancelWatch()
		for _, lg := range b.logs {
			if err := lg.Close(); err != nil {
				log.WithError(err).Warn("pipeline: closing operation log")
			}
		}
	}

	for i, ep := range cfg.Endpoints {
		conn, ok := cfg.Connections[ep.ConnectionRef]
		if !ok {
			cleanup()
			return nil, nil, errors.Errorf("pipeline: endpoint %q references unknown connection %q", ep.Name, ep.ConnectionRef)
		}
		drv, err := openSink(ctx, conn, ep)
		if err != nil {
			cleanup()
			return nil, nil, errors.Wrapf(err, "pipeline: opening endpoint %q", ep.Name)
		}
		b.drivers[ep.Name] = drv

		maxBytes := cfg.MaxSegmentBytes
		if maxBytes <= 0 {
			maxBytes = oplog.DefaultMaxSegmentBytes
		}
		lg, err := oplog.Open(cfg.LogDir, ep.Name, state.SchemaID(i+1), maxBytes)
		if err != nil {
			cleanup()
			return nil, nil, errors.Wrapf(err, "pipeline: opening operation log for endpoint %q", ep.Name)
		}
		b.logs[ep.Name] = lg
		go lg.WatchTruncation(watchCtx)
	}
	return b, cleanup, nil
}
