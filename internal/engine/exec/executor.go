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

package exec

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/dataflow/internal/engine/dag"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/cockroachdb/dataflow/internal/util/stopper"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultGracePeriod bounds how long a worker is given to drain its
// inputs to end-of-channel after a Terminate before it is aborted
// (spec.md §4.2, §5).
const DefaultGracePeriod = 30 * time.Second

// NodeRunner is the behavior of one DAG node: consume from in, produce
// to out, until a Terminate is observed or ctx is stopped. Source
// implementations receive an empty in; sink implementations produce to
// an empty out. A returned error other than context.Canceled is fatal
// and triggers a pipeline-wide shutdown.
type NodeRunner interface {
	Run(ctx *stopper.Context, in Inputs, out Outputs) error
}

// Executor wires a validated dag.Dag's nodes to bounded Channels and
// drives one goroutine per node to completion, implementing spec.md
// §4.2 and §5.
type Executor struct {
	Dag             *dag.Dag
	Runners         map[ident.NodeID]NodeRunner
	ChannelCapacity int
	GracePeriod     time.Duration
}

// New constructs an Executor with default capacity and grace period.
func New(d *dag.Dag, runners map[ident.NodeID]NodeRunner) *Executor {
	return &Executor{Dag: d, Runners: runners}
}

// Run wires every edge to a Channel, spawns one worker per node, and
// blocks until every worker exits. A fatal worker error cancels the
// remaining workers and, after GracePeriod, force-aborts any still
// running; the first fatal error observed is returned wrapped as
// *types.ExecutionError.
func (e *Executor) Run(parent context.Context) error {
	ctx := stopper.WithContext(parent)

	capacity := e.ChannelCapacity
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}

	channels := make(map[ident.Edge]*Channel, len(e.Dag.Edges))
	for _, edge := range e.Dag.Edges {
		channels[edge.AsIdent()] = NewChannel(capacity)
	}

	var wg sync.WaitGroup
	failed := make(chan struct{})
	var failOnce sync.Once

	for _, id := range e.Dag.Order {
		id := id
		runner, ok := e.Runners[id]
		if !ok {
			return errors.Errorf("executor: no runner registered for node %s", id)
		}

		in := make(Inputs, len(e.Dag.InputEdges(id)))
		for _, edge := range e.Dag.InputEdges(id) {
			in[edge.ToPort] = channels[edge.AsIdent()]
		}
		out := make(Outputs, len(e.Dag.OutputEdges(id)))
		for _, edge := range e.Dag.OutputEdges(id) {
			out[edge.FromPort] = channels[edge.AsIdent()]
		}

		wg.Add(1)
		ctx.Go(func() error {
			defer wg.Done()
			start := time.Now()
			err := runner.Run(ctx, in, out)
			nodeRunDurations.WithLabelValues(id.String()).Observe(time.Since(start).Seconds())
			if err != nil {
				nodeRunErrors.WithLabelValues(id.String()).Inc()
				log.WithFields(log.Fields{"node": id, "error": err}).Error("node worker failed")
				failOnce.Do(func() { close(failed) })
				return types.NewExecutionError(id, err)
			}
			return nil
		})
	}

	allDone := make(chan struct{})
	go func() { wg.Wait(); close(allDone) }()
	select {
	case <-allDone:
	case <-failed:
	case <-parent.Done():
	}

	grace := e.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return ctx.Stop(grace)
}

// Broadcast sends an ExecutorOperation to every Channel in out,
// respecting backpressure and stopping cooperatively. Node
// implementations use this to fan out Commit and Terminate markers to
// all declared output ports.
func Broadcast(ctx context.Context, stopping <-chan struct{}, out Outputs, op types.ExecutorOperation) error {
	for _, ch := range out {
		if err := ch.Send(ctx, stopping, op); err != nil {
			return err
		}
	}
	return nil
}
