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
// and per-endpoint operation logs. Start, in wire_gen.go, is the
// generated entry point; Provide* functions in provide.go are its
// providers.
package pipeline

import (
	"context"
	"time"

	"github.com/cockroachdb/dataflow/internal/engine/exec"
	"github.com/cockroachdb/dataflow/internal/oplog"
	"github.com/cockroachdb/dataflow/internal/sink"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/pkg/errors"
)

// Pipeline is one running instance of a Config: a wired dag.Dag and
// exec.Executor plus the supporting durable state -- the checkpoint
// store and, per endpoint, an append-only operation log.
type Pipeline struct {
	executor *exec.Executor
	logs     map[string]*oplog.Log
}

// Run starts the wired executor and blocks until every node exits or
// ctx is canceled.
func (p *Pipeline) Run(ctx context.Context) error {
	return p.executor.Run(ctx)
}

// Log returns the open operation log for endpoint, satisfying
// wire.Server's Logs field (spec.md §6.3).
func (p *Pipeline) Log(endpoint string) (*oplog.Log, bool) {
	lg, ok := p.logs[endpoint]
	return lg, ok
}

// loggingDriver decorates a sink.Driver so every applied operation is
// also appended to that endpoint's append-only operation log (spec.md
// §4.7), tagged with the epoch it was applied under.
type loggingDriver struct {
	inner      sink.Driver
	log        *oplog.Log
	curEpochID uint64
}

var _ sink.Driver = (*loggingDriver)(nil)

func (d *loggingDriver) OnSchema(schema types.Schema) error { return d.inner.OnSchema(schema) }

func (d *loggingDriver) OnOperation(ctx context.Context, op types.Operation) error {
	if err := d.inner.OnOperation(ctx, op); err != nil {
		return err
	}
	_, err := d.log.Append(d.curEpochID, op)
	return errors.Wrap(err, "pipeline: appending to operation log")
}

func (d *loggingDriver) OnCommit(ctx context.Context, epoch types.Epoch) error {
	start := time.Now()
	if err := d.inner.OnCommit(ctx, epoch); err != nil {
		commitErrors.WithLabelValues(d.log.Endpoint()).Inc()
		return err
	}
	commitDurations.WithLabelValues(d.log.Endpoint()).Observe(time.Since(start).Seconds())
	d.curEpochID = epoch.ID
	return nil
}

func (d *loggingDriver) OnTerminate(ctx context.Context) error { return d.inner.OnTerminate(ctx) }
