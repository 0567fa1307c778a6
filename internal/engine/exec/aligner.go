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
	"reflect"

	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/pkg/errors"
)

// Inputs maps a node's declared input ports to the Channel wired to
// each by the Executor.
type Inputs map[ident.Port]*Channel

// Outputs maps a node's declared output ports to the Channel wired to
// each by the Executor.
type Outputs map[ident.Port]*Channel

// Aligner implements the multi-input synchronization rule of spec.md
// §4.3: a node waits on all of its non-stalled inputs at once, but
// once a Commit(E) marker has been seen on one input, that input is
// held back (no further receives from it) until Commit(E) has been
// seen on every other input. Once all inputs agree on E, Next returns
// a single merged Commit and every input resumes. When several inputs
// have a message ready, reflect.Select picks one of them at random;
// inputs are not visited in strict round-robin order.
//
// A single-input node never stalls; Aligner degrades to plain
// receive-and-return for it.
type Aligner struct {
	ports   []ident.Port
	cursor  int
	stalled map[ident.Port]types.Epoch
}

// NewAligner builds an Aligner over the ports of inputs, visited in
// ascending port order for determinism.
func NewAligner(inputs Inputs) *Aligner {
	ports := make([]ident.Port, 0, len(inputs))
	for p := range inputs {
		ports = append(ports, p)
	}
	for i := 1; i < len(ports); i++ {
		for j := i; j > 0 && ports[j] < ports[j-1]; j-- {
			ports[j], ports[j-1] = ports[j-1], ports[j]
		}
	}
	return &Aligner{ports: ports, stalled: make(map[ident.Port]types.Epoch, len(ports))}
}

// Next returns the next (port, op) pair ready for consumption. A
// Commit op is only ever returned once all inputs have reached the
// same epoch; the returned port is whichever input's Commit completed
// the alignment. An ExecTerminate on any input is returned immediately,
// bypassing alignment, since shutdown overrides epoch bookkeeping.
func (a *Aligner) Next(
	ctx context.Context, stopping <-chan struct{}, inputs Inputs,
) (ident.Port, types.ExecutorOperation, error) {
	for {
		ready := a.readyPorts()
		if len(ready) == 0 {
			return 0, types.ExecutorOperation{}, errors.New("aligner: all inputs stalled with no matching epoch")
		}

		cases := make([]reflect.SelectCase, 0, len(ready)+2)
		for _, p := range ready {
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(inputs[p].Raw())})
		}
		stopIdx := len(cases)
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(stopping)})
		doneIdx := len(cases)
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})

		chosen, recv, recvOK := reflect.Select(cases)
		switch chosen {
		case stopIdx:
			return 0, types.ExecutorOperation{}, types.ErrChannelDisconnected
		case doneIdx:
			return 0, types.ExecutorOperation{}, ctx.Err()
		}

		port := ready[chosen]
		if !recvOK {
			return port, types.ExecutorOperation{}, types.ErrChannelDisconnected
		}
		op := recv.Interface().(types.ExecutorOperation)

		if op.Kind == types.ExecTerminate {
			return port, op, nil
		}
		if op.Kind != types.ExecCommit {
			return port, op, nil
		}

		a.stalled[port] = op.Epoch
		if merged, ok := a.tryResolve(len(inputs)); ok {
			return port, merged, nil
		}
		// Still waiting on other inputs; loop and drain another port.
	}
}

// readyPorts returns the non-stalled ports, starting at a cursor that
// advances by one position on each call. The order only arranges the
// select cases; it does not decide which ready input is received from.
func (a *Aligner) readyPorts() []ident.Port {
	n := len(a.ports)
	ready := make([]ident.Port, 0, n)
	for i := 0; i < n; i++ {
		p := a.ports[(a.cursor+i)%n]
		if _, stalled := a.stalled[p]; !stalled {
			ready = append(ready, p)
		}
	}
	if len(ready) > 0 {
		a.cursor = (a.cursor + 1) % n
	}
	return ready
}

// tryResolve checks whether every input has stalled at the same epoch
// id; if so it clears the stall set and returns a merged Commit op
// whose SourcePositions is the union across every input's view of the
// epoch (each input typically reports only the sources upstream of it).
func (a *Aligner) tryResolve(totalInputs int) (types.ExecutorOperation, bool) {
	if len(a.stalled) != totalInputs {
		return types.ExecutorOperation{}, false
	}
	var epochID uint64
	first := true
	positions := make(map[ident.NodeID]types.OpIdentifier)
	for _, e := range a.stalled {
		if first {
			epochID = e.ID
			first = false
		} else if e.ID != epochID {
			return types.ExecutorOperation{}, false
		}
		for node, pos := range e.SourcePositions {
			positions[node] = pos
		}
	}
	for p := range a.stalled {
		delete(a.stalled, p)
	}
	return types.ExecutorOperation{Kind: types.ExecCommit, Epoch: types.Epoch{ID: epochID, SourcePositions: positions}}, true
}
