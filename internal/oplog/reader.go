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

package oplog

import (
	"encoding/binary"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// Reader streams records from fromSeq onward, using the sparse offset
// index to seek directly into the segment (and approximate byte
// offset) containing fromSeq rather than scanning every prior record.
type Reader struct {
	log     *Log
	segIdx  int
	file    *os.File
	want    uint64
	lastSeq uint64
}

// NewReader opens a Reader positioned at fromSeq. Records with seq <
// fromSeq, even within the seeked-to segment, are skipped before the
// first call to Next returns.
func (l *Log) NewReader(fromSeq uint64) (*Reader, error) {
	l.mu.Lock()
	segs := append([]*segment(nil), l.segments...)
	l.mu.Unlock()

	idx := sort.Search(len(segs), func(i int) bool {
		return segs[i].startSeq+segs[i].count > fromSeq
	})
	if idx == len(segs) {
		if len(segs) == 0 {
			return nil, errors.New("oplog: log has no segments")
		}
		idx = len(segs) - 1
	}
	seg := segs[idx]

	f, err := os.Open(seg.path)
	if err != nil {
		return nil, errors.Wrapf(err, "oplog: opening segment %s", seg.path)
	}

	offset := int64(0)
	for _, e := range seg.index {
		if e.seq <= fromSeq {
			offset = e.offset
		} else {
			break
		}
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	r := &Reader{log: l, segIdx: idx, file: f, want: fromSeq}
	l.registerReader(r)
	return r, nil
}

// Next returns the next record with seq >= the reader's requested
// fromSeq, advancing across segment boundaries transparently. It
// returns io.EOF once it reaches the end of the log's last segment at
// the time of the call; callers that want tailing semantics (as the gRPC reader
// does) should re-poll after a short delay.
func (r *Reader) Next() (Record, error) {
	for {
		lenBuf := make([]byte, 4)
		_, err := io.ReadFull(r.file, lenBuf)
		if err == io.EOF {
			if !r.advanceSegment() {
				return Record{}, io.EOF
			}
			continue
		}
		if err != nil {
			return Record{}, errors.Wrap(err, "oplog: reading record length")
		}
		n := binary.BigEndian.Uint32(lenBuf)
		payload := make([]byte, n)
		if _, err := io.ReadFull(r.file, payload); err != nil {
			return Record{}, errors.Wrap(err, "oplog: reading record payload")
		}
		rec, err := DecodeFrame(r.log.schema, payload)
		if err != nil {
			return Record{}, err
		}
		if rec.Seq < r.want {
			continue
		}
		r.lastSeq = rec.Seq
		return rec, nil
	}
}

// Ack reports that every record this Reader has returned so far has
// been durably consumed, letting the log's truncation watermark
// advance past them.
func (r *Reader) Ack() {
	r.log.ack(r, r.lastSeq)
}

func (r *Reader) advanceSegment() bool {
	r.log.mu.Lock()
	segs := r.log.segments
	r.log.mu.Unlock()

	// Locate the current segment by path: truncation may have removed
	// earlier segments and shifted positions since segIdx was set.
	next := len(segs)
	for i, s := range segs {
		if s.path == r.file.Name() {
			next = i + 1
			break
		}
	}
	if next >= len(segs) {
		return false
	}
	r.file.Close()
	f, err := os.Open(segs[next].path)
	if err != nil {
		return false
	}
	r.file = f
	r.segIdx = next
	return true
}

// Close releases the reader's open file handle.
func (r *Reader) Close() error {
	r.log.unregisterReader(r)
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}
