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

// Package exec runs a validated dag.Dag: one worker goroutine per node,
// communicating over bounded, backpressured channels, aligning on epoch
// Commit markers at multi-input nodes (spec.md §4.2, §4.3, §5).
package exec

import (
	"context"

	"github.com/cockroachdb/dataflow/internal/types"
)

// DefaultChannelCapacity is the bounded capacity applied to a Channel
// when the Executor is not configured with an explicit override
// (spec.md §4.2).
const DefaultChannelCapacity = 20

// Channel is one typed, bounded edge of the running DAG. A full Channel
// blocks its sender (backpressure); an empty Channel blocks its
// receiver. Closing is cooperative: nodes exchange an ExecTerminate
// message rather than closing the underlying Go channel, so Channel is
// never closed while the pipeline is healthy.
type Channel struct {
	ch chan types.ExecutorOperation
}

// NewChannel allocates a Channel with the given buffer capacity.
func NewChannel(capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	return &Channel{ch: make(chan types.ExecutorOperation, capacity)}
}

// Send delivers op, blocking until there is room, the node is asked to
// stop, or ctx is cancelled.
func (c *Channel) Send(ctx context.Context, stopping <-chan struct{}, op types.ExecutorOperation) error {
	select {
	case c.ch <- op:
		return nil
	case <-stopping:
		return types.ErrChannelDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive takes the next op, blocking until one is available, the node
// is asked to stop, or ctx is cancelled.
func (c *Channel) Receive(ctx context.Context, stopping <-chan struct{}) (types.ExecutorOperation, error) {
	select {
	case op := <-c.ch:
		return op, nil
	case <-stopping:
		return types.ExecutorOperation{}, types.ErrChannelDisconnected
	case <-ctx.Done():
		return types.ExecutorOperation{}, ctx.Err()
	}
}

// Raw exposes the underlying channel for use with reflect.Select when
// fanning in over a dynamic set of ports (see Aligner).
func (c *Channel) Raw() chan types.ExecutorOperation { return c.ch }
