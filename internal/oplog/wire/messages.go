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

package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ReadRequest opens a stream of an endpoint's log starting at FromSeq,
// per spec.md §6.3's `read(endpoint, from_seq)`.
type ReadRequest struct {
	Endpoint string
	FromSeq  uint64
}

func (r *ReadRequest) marshalWire() ([]byte, error) {
	buf := make([]byte, 12, 12+len(r.Endpoint))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(r.Endpoint)))
	binary.BigEndian.PutUint64(buf[4:12], r.FromSeq)
	buf = append(buf, r.Endpoint...)
	return buf, nil
}

func (r *ReadRequest) unmarshalWire(data []byte) error {
	if len(data) < 12 {
		return errors.New("oplog/wire: truncated ReadRequest")
	}
	n := int(binary.BigEndian.Uint32(data[0:4]))
	r.FromSeq = binary.BigEndian.Uint64(data[4:12])
	if len(data) < 12+n {
		return errors.New("oplog/wire: truncated ReadRequest endpoint")
	}
	r.Endpoint = string(data[12 : 12+n])
	return nil
}

// ReadResponse carries one streamed log record: the epoch and seq it
// was recorded under, and its oplog.EncodeFrame-encoded op payload
// (self-describing, including epoch/seq again at the frame level, so
// that a client can decode it with oplog.DecodeFrame using only the
// schema id it already has for the endpoint).
type ReadResponse struct {
	EpochID uint64
	Seq     uint64
	Frame   []byte
}

func (r *ReadResponse) marshalWire() ([]byte, error) {
	buf := make([]byte, 20, 20+len(r.Frame))
	binary.BigEndian.PutUint64(buf[0:8], r.EpochID)
	binary.BigEndian.PutUint64(buf[8:16], r.Seq)
	binary.BigEndian.PutUint32(buf[16:20], uint32(len(r.Frame)))
	buf = append(buf, r.Frame...)
	return buf, nil
}

func (r *ReadResponse) unmarshalWire(data []byte) error {
	if len(data) < 20 {
		return errors.New("oplog/wire: truncated ReadResponse")
	}
	r.EpochID = binary.BigEndian.Uint64(data[0:8])
	r.Seq = binary.BigEndian.Uint64(data[8:16])
	n := int(binary.BigEndian.Uint32(data[16:20]))
	if len(data) < 20+n {
		return errors.New("oplog/wire: truncated ReadResponse frame")
	}
	r.Frame = append([]byte(nil), data[20:20+n]...)
	return nil
}
