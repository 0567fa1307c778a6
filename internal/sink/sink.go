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

// Package sink defines the external sink driver contract of spec.md
// §6.2 and wraps drivers as dag/exec.NodeRunner sink nodes.
package sink

import (
	"context"

	"github.com/cockroachdb/dataflow/internal/types"
)

// Driver is the external sink contract of spec.md §6.2. Implementations
// should make OnOperation idempotent where the target system allows it,
// since a crash between OnOperation and the next OnCommit can cause an
// operation to be redelivered after restart.
type Driver interface {
	// OnSchema is called once, with the sink node's input schema, when
	// the node starts running.
	OnSchema(port types.Schema) error

	// OnOperation applies one delta to the external system. Calls
	// between two OnCommit calls may be buffered by the driver and
	// need not be durable until OnCommit returns.
	OnOperation(ctx context.Context, op types.Operation) error

	// OnCommit flushes buffered writes and acknowledges epoch. The
	// caller persists epoch.SourcePositions to the checkpoint store
	// only after OnCommit returns successfully.
	OnCommit(ctx context.Context, epoch types.Epoch) error

	// OnTerminate closes the driver gracefully.
	OnTerminate(ctx context.Context) error
}
