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

// Package checkpoint resolves the restart position of spec.md §4.3: on
// startup, it reads the last durable epoch from internal/state.Store
// and hands each source the OpIdentifier it should resume from.
package checkpoint

import (
	"github.com/cockroachdb/dataflow/internal/state"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	log "github.com/sirupsen/logrus"
)

// Manager wraps a state.Store to answer "where should this pipeline
// resume from" at startup.
type Manager struct {
	Store *state.Store
}

// New constructs a Manager over an opened Store.
func New(store *state.Store) *Manager { return &Manager{Store: store} }

// Resume reads the last durable checkpoint and returns, per source
// node, the OpIdentifier that node's driver should resume after. The
// returned bool is false if the pipeline has never committed an epoch,
// in which case every source starts from types.ZeroOpIdentifier.
func (m *Manager) Resume() (map[ident.NodeID]types.OpIdentifier, bool, error) {
	epoch, ok, err := m.Store.LastCheckpoint()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	log.WithFields(log.Fields{"epoch": epoch.ID, "sources": len(epoch.SourcePositions)}).
		Info("resuming from last durable checkpoint")
	return epoch.SourcePositions, true, nil
}

// RecordCheckpoint implements sink.Checkpointer by delegating to the
// Store.
func (m *Manager) RecordCheckpoint(epoch types.Epoch) error {
	return m.Store.RecordCheckpoint(epoch)
}
