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

package state

import (
	"encoding/binary"
	"math"
	"math/big"
	"time"

	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/pkg/errors"
)

// SchemaID tags an encoded Record with the id of the Schema it was
// produced under, so a restarted operator can detect a schema that has
// drifted out from under its persisted state (spec.md §4.6).
type SchemaID uint32

// EncodeRecord serializes rec as: schema id (4 bytes BE), field count
// (4 bytes BE), then each field as a 1-byte Kind tag followed by a
// length-prefixed value payload. Using a self-describing per-field tag
// (rather than relying solely on the caller's Schema) lets decode
// validate that persisted data still matches the Kind the schema
// expects.
func EncodeRecord(schema SchemaID, rec types.Record) ([]byte, error) {
	buf := make([]byte, 8, 64)
	binary.BigEndian.PutUint32(buf[0:4], uint32(schema))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(rec)))
	for _, f := range rec {
		buf = append(buf, byte(f.Kind))
		payload, err := encodeFieldPayload(f)
		if err != nil {
			return nil, err
		}
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, payload...)
	}
	return buf, nil
}

// DecodeRecord reverses EncodeRecord, validating that the encoded
// schema id matches expect.
func DecodeRecord(data []byte, expect SchemaID) (types.Record, error) {
	if len(data) < 8 {
		return nil, errors.New("state: truncated record header")
	}
	got := SchemaID(binary.BigEndian.Uint32(data[0:4]))
	if got != expect {
		return nil, errors.Errorf("state: record encoded with schema %d, expected %d", got, expect)
	}
	count := binary.BigEndian.Uint32(data[4:8])
	off := 8
	rec := make(types.Record, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+5 > len(data) {
			return nil, errors.New("state: truncated field header")
		}
		kind := types.Kind(data[off])
		length := int(binary.BigEndian.Uint32(data[off+1 : off+5]))
		off += 5
		if off+length > len(data) {
			return nil, errors.New("state: truncated field payload")
		}
		payload := data[off : off+length]
		off += length
		f, err := decodeFieldPayload(kind, payload)
		if err != nil {
			return nil, err
		}
		rec = append(rec, f)
	}
	return rec, nil
}

func encodeFieldPayload(f types.Field) ([]byte, error) {
	if f.IsNull() {
		return nil, nil
	}
	switch f.Kind {
	case types.KindUInt:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], f.UInt())
		return b[:], nil
	case types.KindInt:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(f.Int()))
		return b[:], nil
	case types.KindU128:
		hi, lo := f.U128()
		var b [16]byte
		binary.BigEndian.PutUint64(b[0:8], hi)
		binary.BigEndian.PutUint64(b[8:16], lo)
		return b[:], nil
	case types.KindI128:
		hi, lo := f.I128()
		var b [16]byte
		binary.BigEndian.PutUint64(b[0:8], uint64(hi))
		binary.BigEndian.PutUint64(b[8:16], lo)
		return b[:], nil
	case types.KindFloat:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(f.Float()))
		return b[:], nil
	case types.KindBoolean:
		if f.Boolean() {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case types.KindString, types.KindText:
		return []byte(f.String()), nil
	case types.KindBinary:
		return f.Binary(), nil
	case types.KindDecimal:
		return []byte(f.Decimal().RatString()), nil
	case types.KindTimestamp:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(f.Timestamp().UnixNano()))
		return b[:], nil
	case types.KindDate:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(f.Date().UnixNano()))
		return b[:], nil
	case types.KindDuration:
		d := f.DurationValue()
		var b [9]byte
		binary.BigEndian.PutUint64(b[0:8], uint64(d.Value))
		b[8] = byte(d.Unit)
		return b[:], nil
	case types.KindPoint:
		p := f.PointValue()
		var b [16]byte
		binary.BigEndian.PutUint64(b[0:8], math.Float64bits(p.X))
		binary.BigEndian.PutUint64(b[8:16], math.Float64bits(p.Y))
		return b[:], nil
	default:
		return nil, errors.Errorf("state: field kind %d has no persistence encoding", f.Kind)
	}
}

func decodeFieldPayload(kind types.Kind, payload []byte) (types.Field, error) {
	if kind == types.KindNull {
		return types.Null, nil
	}
	switch kind {
	case types.KindUInt:
		if len(payload) < 8 {
			return types.Field{}, errors.New("state: truncated uint payload")
		}
		return types.NewUInt(binary.BigEndian.Uint64(payload)), nil
	case types.KindInt:
		if len(payload) < 8 {
			return types.Field{}, errors.New("state: truncated int payload")
		}
		return types.NewInt(int64(binary.BigEndian.Uint64(payload))), nil
	case types.KindU128:
		if len(payload) < 16 {
			return types.Field{}, errors.New("state: truncated u128 payload")
		}
		return types.NewU128(binary.BigEndian.Uint64(payload[0:8]), binary.BigEndian.Uint64(payload[8:16])), nil
	case types.KindI128:
		if len(payload) < 16 {
			return types.Field{}, errors.New("state: truncated i128 payload")
		}
		return types.NewI128(int64(binary.BigEndian.Uint64(payload[0:8])), binary.BigEndian.Uint64(payload[8:16])), nil
	case types.KindFloat:
		if len(payload) < 8 {
			return types.Field{}, errors.New("state: truncated float payload")
		}
		return types.NewFloat(math.Float64frombits(binary.BigEndian.Uint64(payload))), nil
	case types.KindBoolean:
		if len(payload) < 1 {
			return types.Field{}, errors.New("state: truncated bool payload")
		}
		return types.NewBoolean(payload[0] != 0), nil
	case types.KindString:
		return types.NewString(string(payload)), nil
	case types.KindText:
		return types.NewText(string(payload)), nil
	case types.KindBinary:
		return types.NewBinary(append([]byte(nil), payload...)), nil
	case types.KindDecimal:
		r, ok := new(big.Rat).SetString(string(payload))
		if !ok {
			return types.Field{}, errors.Errorf("state: invalid decimal payload %q", payload)
		}
		return types.NewDecimal(r), nil
	case types.KindTimestamp:
		if len(payload) < 8 {
			return types.Field{}, errors.New("state: truncated timestamp payload")
		}
		return types.NewTimestamp(time.Unix(0, int64(binary.BigEndian.Uint64(payload))).UTC()), nil
	case types.KindDate:
		if len(payload) < 8 {
			return types.Field{}, errors.New("state: truncated date payload")
		}
		return types.NewDate(time.Unix(0, int64(binary.BigEndian.Uint64(payload))).UTC()), nil
	case types.KindDuration:
		if len(payload) < 9 {
			return types.Field{}, errors.New("state: truncated duration payload")
		}
		return types.NewDuration(types.Duration{
			Value: int64(binary.BigEndian.Uint64(payload[0:8])),
			Unit:  types.DurationUnit(payload[8]),
		}), nil
	case types.KindPoint:
		if len(payload) < 16 {
			return types.Field{}, errors.New("state: truncated point payload")
		}
		return types.NewPoint(types.Point{
			X: math.Float64frombits(binary.BigEndian.Uint64(payload[0:8])),
			Y: math.Float64frombits(binary.BigEndian.Uint64(payload[8:16])),
		}), nil
	default:
		return types.Field{}, errors.Errorf("state: unsupported persisted field kind %d", kind)
	}
}
