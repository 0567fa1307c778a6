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

package source

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/dataflow/internal/engine/exec"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/cockroachdb/dataflow/internal/util/stopper"
	"github.com/pkg/errors"
)

// Node adapts a Driver into an exec.NodeRunner source. At most one Node
// across a pipeline should set EpochInterval > 0: that instance is the
// epoch source of spec.md §4.3, driving the periodic Commit that every
// other node aligns on.
type Node struct {
	ID            ident.NodeID
	Driver        Driver
	Tables        []TableIdentifier
	OutPort       ident.Port
	EpochInterval time.Duration
	Resume        map[string]types.OpIdentifier
}

var _ exec.NodeRunner = (*Node)(nil)

// Run implements exec.NodeRunner.
func (n *Node) Run(ctx *stopper.Context, _ exec.Inputs, out exec.Outputs) error {
	tracker := newPositionTracker(n.ID, n.Resume)
	ing := &channelIngestor{nodeID: n.ID, out: out, port: n.OutPort, tracker: tracker}

	if n.EpochInterval > 0 {
		ctx.Go(func() error { return n.runEpochTimer(ctx, out, tracker) })
	}

	if err := n.Driver.Start(ctx, ing, n.Tables, n.Resume); err != nil {
		return errors.Wrap(err, "source driver")
	}
	return exec.Broadcast(ctx, ctx.Stopping(), out, types.ExecutorTerminate)
}

func (n *Node) runEpochTimer(ctx *stopper.Context, out exec.Outputs, tracker *positionTracker) error {
	ticker := time.NewTicker(n.EpochInterval)
	defer ticker.Stop()

	var epochID uint64
	for {
		select {
		case <-ctx.Stopping():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			epochID++
			epoch := types.Epoch{ID: epochID, SourcePositions: tracker.snapshot()}
			if err := exec.Broadcast(ctx, ctx.Stopping(), out, types.ExecutorCommit(epoch)); err != nil {
				return err
			}
		}
	}
}

// positionTracker records the highest OpIdentifier observed across all
// of a source node's tables, seeded from a prior checkpoint's recorded
// positions.
type positionTracker struct {
	node ident.NodeID

	mu  sync.Mutex
	pos types.OpIdentifier
}

func newPositionTracker(node ident.NodeID, resume map[string]types.OpIdentifier) *positionTracker {
	t := &positionTracker{node: node}
	for _, id := range resume {
		if id.Compare(t.pos) > 0 {
			t.pos = id
		}
	}
	return t
}

func (t *positionTracker) observe(id types.OpIdentifier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id.Compare(t.pos) > 0 {
		t.pos = id
	}
}

func (t *positionTracker) snapshot() map[ident.NodeID]types.OpIdentifier {
	t.mu.Lock()
	defer t.mu.Unlock()
	return map[ident.NodeID]types.OpIdentifier{t.node: t.pos}
}

// channelIngestor implements Ingestor by forwarding every message as an
// ExecutorOperation on the node's single output port.
type channelIngestor struct {
	nodeID  ident.NodeID
	out     exec.Outputs
	port    ident.Port
	tracker *positionTracker
}

func (c *channelIngestor) Ingest(ctx context.Context, msg IngestionMessage) error {
	ch, ok := c.out[c.port]
	if !ok {
		return errors.Errorf("source: no channel bound to output port %s", c.port)
	}

	switch msg.Kind {
	case MessageOperation:
		if err := c.checkMonotone(msg.ID); err != nil {
			return err
		}
		c.tracker.observe(msg.ID)
		return ch.Send(ctx, nil, types.ExecutorOp(types.TableOperation{ID: msg.ID, Op: msg.Op, Port: c.port}))

	case MessageSnapshottingStarted:
		return ch.Send(ctx, nil, types.ExecutorOperation{Kind: types.ExecSnapshottingStarted, Table: msg.Table.Raw()})

	case MessageSnapshottingDone:
		return ch.Send(ctx, nil, types.ExecutorOperation{
			Kind:       types.ExecSnapshottingDone,
			Table:      msg.Table.Raw(),
			SnapshotID: msg.ID,
		})

	default:
		return errors.Errorf("source: unknown ingestion message kind %d", msg.Kind)
	}
}

func (c *channelIngestor) checkMonotone(id types.OpIdentifier) error {
	c.tracker.mu.Lock()
	defer c.tracker.mu.Unlock()
	if id.Compare(c.tracker.pos) < 0 {
		return &types.EpochOrderingViolationError{Source: c.nodeID, Got: id, Previous: c.tracker.pos}
	}
	return nil
}
