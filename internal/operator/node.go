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

package operator

import (
	"github.com/cockroachdb/dataflow/internal/engine/exec"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/cockroachdb/dataflow/internal/util/stopper"
)

// Node adapts an Operator into an exec.NodeRunner: it drains inputs
// through exec.Aligner (epoch-aligned when there is more than one input
// port; see Aligner for the order inputs are read in), calls Operator.Apply per incoming Op, forwards the
// resulting Operations to OutPort on every output edge, and calls
// Operator.Commit when every input has aligned on a Commit marker.
type Node struct {
	Op      Operator
	OutPort ident.Port
}

var _ exec.NodeRunner = (*Node)(nil)

// Run implements exec.NodeRunner.
func (n *Node) Run(ctx *stopper.Context, in exec.Inputs, out exec.Outputs) error {
	aligner := exec.NewAligner(in)
	for {
		_, msg, err := aligner.Next(ctx, ctx.Stopping(), in)
		if err != nil {
			if err == types.ErrChannelDisconnected {
				return nil
			}
			return err
		}

		switch msg.Kind {
		case types.ExecTerminate:
			return exec.Broadcast(ctx, ctx.Stopping(), out, msg)

		case types.ExecCommit:
			if err := n.Op.Commit(msg.Epoch); err != nil {
				return err
			}
			if err := exec.Broadcast(ctx, ctx.Stopping(), out, msg); err != nil {
				return err
			}

		case types.ExecSnapshottingStarted, types.ExecSnapshottingDone:
			if err := exec.Broadcast(ctx, ctx.Stopping(), out, msg); err != nil {
				return err
			}

		case types.ExecOp:
			results, err := n.Op.Apply(msg.Op.Port, msg.Op.Op)
			if err != nil {
				return err
			}
			for _, result := range results {
				tableOp := types.TableOperation{ID: msg.Op.ID, Op: result, Port: n.OutPort}
				if err := exec.Broadcast(ctx, ctx.Stopping(), out, types.ExecutorOp(tableOp)); err != nil {
					return err
				}
			}
		}
	}
}
