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

package sink

import (
	"github.com/cockroachdb/dataflow/internal/engine/exec"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/stopper"
)

// Checkpointer durably records an epoch's checkpoint, independent of
// any operator's own persisted state. internal/state.Store satisfies
// this.
type Checkpointer interface {
	RecordCheckpoint(epoch types.Epoch) error
}

// Node adapts a Driver into an exec.NodeRunner sink, the single
// terminal consumer of one DAG sink node's input edges.
type Node struct {
	Driver       Driver
	Schema       types.Schema
	Checkpointer Checkpointer
}

var _ exec.NodeRunner = (*Node)(nil)

// Run implements exec.NodeRunner.
func (n *Node) Run(ctx *stopper.Context, in exec.Inputs, _ exec.Outputs) error {
	if err := n.Driver.OnSchema(n.Schema); err != nil {
		return err
	}

	aligner := exec.NewAligner(in)
	for {
		_, msg, err := aligner.Next(ctx, ctx.Stopping(), in)
		if err == types.ErrChannelDisconnected {
			return nil
		}
		if err != nil {
			return err
		}

		switch msg.Kind {
		case types.ExecTerminate:
			return n.Driver.OnTerminate(ctx)

		case types.ExecCommit:
			if err := n.Driver.OnCommit(ctx, msg.Epoch); err != nil {
				return err
			}
			if n.Checkpointer != nil {
				if err := n.Checkpointer.RecordCheckpoint(msg.Epoch); err != nil {
					return err
				}
			}

		case types.ExecOp:
			if err := n.Driver.OnOperation(ctx, msg.Op.Op); err != nil {
				return err
			}

		case types.ExecSnapshottingStarted, types.ExecSnapshottingDone:
			// Sink has no further downstream to relay these to.
		}
	}
}
