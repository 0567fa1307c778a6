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
	"encoding/binary"

	"github.com/cockroachdb/dataflow/internal/state"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/pkg/errors"
)

// Stateful is implemented by the operators that own working state
// which must survive a process restart -- AGGREGATE's group
// accumulators and JOIN's indexed tables (spec.md §4.3, §4.4, §4.6).
// Restore is called once, before the owning Node begins processing,
// with the OperatorState the prior process last committed into;
// Commit (see Operator) is where the operator stages this epoch's
// writes back into the same handle.
type Stateful interface {
	Operator

	// Restore repopulates the operator's live working state from os,
	// which holds whatever the previous process committed as of the
	// last checkpointed epoch. A fresh store (no prior commits) leaves
	// the operator in its newly-constructed, empty state.
	Restore(os *state.OperatorState) error
}

// internalSchema tags every Record this package persists through
// state.EncodeRecord/DecodeRecord. It never round-trips through a
// source or sink, so it only needs to be self-consistent within one
// operator's own writes, not stable across the wider pipeline schema
// registry.
const internalSchema state.SchemaID = 0

// appendBlock writes a 4-byte big-endian length prefix followed by
// block, the convention the rest of this package's persisted records
// use to concatenate several independently-decodable pieces into one
// stored value.
func appendBlock(buf []byte, block []byte) []byte {
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(block)))
	buf = append(buf, lenPrefix[:]...)
	return append(buf, block...)
}

// readBlock reverses one appendBlock write, returning the block and
// the remaining unread suffix of buf.
func readBlock(buf []byte) (block, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, nil, errors.New("operator: truncated block length")
	}
	n := binary.BigEndian.Uint32(buf[0:4])
	buf = buf[4:]
	if uint32(len(buf)) < n {
		return nil, nil, errors.New("operator: truncated block payload")
	}
	return buf[:n], buf[n:], nil
}

func encodeUint32(n int) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	return b[:]
}

func decodeUint32(buf []byte) (int, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, errors.New("operator: truncated uint32")
	}
	return int(binary.BigEndian.Uint32(buf[0:4])), buf[4:], nil
}

// encodeSingleField wraps f as a one-column Record so it can be
// staged through state.EncodeRecord, which already knows how to
// serialize every types.Kind losslessly.
func encodeSingleField(f types.Field) ([]byte, error) {
	return state.EncodeRecord(internalSchema, types.Record{f})
}

func decodeSingleField(data []byte) (types.Field, error) {
	rec, err := state.DecodeRecord(data, internalSchema)
	if err != nil {
		return types.Field{}, err
	}
	if len(rec) != 1 {
		return types.Field{}, errors.New("operator: expected a single-column persisted field")
	}
	return rec[0], nil
}
