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

// Package oplog implements the append-only, size-segmented operation
// log of spec.md §4.7: one log per declared endpoint, each record
// carrying its epoch id, its op, and a seq that numbers records across
// the whole log (it does not restart at each epoch), with a sparse
// offset index letting a reader seek to any seq without scanning from
// the start.
package oplog

import (
	"encoding/binary"

	"github.com/cockroachdb/dataflow/internal/state"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/pkg/errors"
)

// Record is one entry of an endpoint's operation log.
type Record struct {
	EpochID uint64
	Seq     uint64
	Op      types.Operation
}

// EncodeFrame serializes rec as: epoch id (8 bytes BE), seq (8 bytes
// BE), op kind (1 byte), then a kind-specific payload of
// length-prefixed state.EncodeRecord blocks. A segment file wraps this
// in its own 4-byte length prefix; the gRPC wire layer (internal/oplog
// wire) ships the same frame verbatim as one streamed message's body.
func EncodeFrame(schema state.SchemaID, rec Record) ([]byte, error) {
	buf := make([]byte, 17, 64)
	binary.BigEndian.PutUint64(buf[0:8], rec.EpochID)
	binary.BigEndian.PutUint64(buf[8:16], rec.Seq)
	buf[16] = byte(rec.Op.Kind)

	appendBlock := func(r types.Record) error {
		enc, err := state.EncodeRecord(schema, r)
		if err != nil {
			return err
		}
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(enc)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, enc...)
		return nil
	}

	switch rec.Op.Kind {
	case types.OpInsert:
		if err := appendBlock(rec.Op.New); err != nil {
			return nil, err
		}
	case types.OpDelete:
		if err := appendBlock(rec.Op.Old); err != nil {
			return nil, err
		}
	case types.OpUpdate:
		if err := appendBlock(rec.Op.Old); err != nil {
			return nil, err
		}
		if err := appendBlock(rec.Op.New); err != nil {
			return nil, err
		}
	case types.OpBatchInsert:
		var countBuf [4]byte
		binary.BigEndian.PutUint32(countBuf[:], uint32(len(rec.Op.Batch)))
		buf = append(buf, countBuf[:]...)
		for _, row := range rec.Op.Batch {
			if err := appendBlock(row); err != nil {
				return nil, err
			}
		}
	default:
		return nil, errors.Errorf("oplog: unknown operation kind %d", rec.Op.Kind)
	}
	return buf, nil
}

// DecodeFrame reverses EncodeFrame.
func DecodeFrame(schema state.SchemaID, buf []byte) (Record, error) {
	if len(buf) < 17 {
		return Record{}, errors.New("oplog: truncated record header")
	}
	rec := Record{
		EpochID: binary.BigEndian.Uint64(buf[0:8]),
		Seq:     binary.BigEndian.Uint64(buf[8:16]),
	}
	kind := types.OpKind(buf[16])
	off := 17

	readBlock := func() (types.Record, error) {
		if off+4 > len(buf) {
			return nil, errors.New("oplog: truncated block length")
		}
		n := int(binary.BigEndian.Uint32(buf[off : off+4]))
		off += 4
		if off+n > len(buf) {
			return nil, errors.New("oplog: truncated block payload")
		}
		r, err := state.DecodeRecord(buf[off:off+n], schema)
		off += n
		return r, err
	}

	switch kind {
	case types.OpInsert:
		row, err := readBlock()
		if err != nil {
			return Record{}, err
		}
		rec.Op = types.Insert(row)
	case types.OpDelete:
		row, err := readBlock()
		if err != nil {
			return Record{}, err
		}
		rec.Op = types.Delete(row)
	case types.OpUpdate:
		oldRow, err := readBlock()
		if err != nil {
			return Record{}, err
		}
		newRow, err := readBlock()
		if err != nil {
			return Record{}, err
		}
		rec.Op = types.Update(oldRow, newRow)
	case types.OpBatchInsert:
		if off+4 > len(buf) {
			return Record{}, errors.New("oplog: truncated batch count")
		}
		count := binary.BigEndian.Uint32(buf[off : off+4])
		off += 4
		rows := make([]types.Record, 0, count)
		for i := uint32(0); i < count; i++ {
			row, err := readBlock()
			if err != nil {
				return Record{}, err
			}
			rows = append(rows, row)
		}
		rec.Op = types.BatchInsertOp(rows)
	default:
		return Record{}, errors.Errorf("oplog: unknown operation kind %d", kind)
	}
	return rec, nil
}
