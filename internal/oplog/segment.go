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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/dataflow/internal/state"
	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/notify"
	"github.com/pkg/errors"
)

// indexInterval is the sparse offset_index granularity of spec.md §4.7:
// one index entry roughly every 1 MiB of segment file.
const indexInterval = 1 << 20

// DefaultMaxSegmentBytes bounds how large a single segment file grows
// before the log rolls to a new one.
const DefaultMaxSegmentBytes = 64 << 20

type indexEntry struct {
	seq    uint64
	offset int64
}

// segment is one size-bounded slice of an endpoint's log: a single
// file holding every record whose seq is in [startSeq, startSeq+count).
type segment struct {
	startSeq uint64
	path     string
	file     *os.File
	size     int64
	count    uint64
	index    []indexEntry // sorted by seq, one entry per ~indexInterval bytes
	sinceIdx int64
}

// Log is the append-only, size-segmented operation log for one
// declared endpoint (spec.md §4.7).
type Log struct {
	dir      string
	endpoint string
	schema   state.SchemaID
	maxBytes int64

	mu       sync.Mutex
	segments []*segment
	cur      *segment
	nextSeq  uint64

	// acks and lowWatermark track truncation eligibility: a segment may
	// be removed only once every open Reader has acknowledged past it.
	acks         map[*Reader]uint64
	lowWatermark notify.Var[uint64]
}

// Open opens or creates the log directory for endpoint under dir,
// replaying any existing segment files to rebuild the in-memory sparse
// index and resume appending after the last written seq.
func Open(dir, endpoint string, schema state.SchemaID, maxSegmentBytes int64) (*Log, error) {
	if maxSegmentBytes <= 0 {
		maxSegmentBytes = DefaultMaxSegmentBytes
	}
	epDir := filepath.Join(dir, endpoint)
	if err := os.MkdirAll(epDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "oplog: creating directory for endpoint %s", endpoint)
	}

	l := &Log{dir: epDir, endpoint: endpoint, schema: schema, maxBytes: maxSegmentBytes}

	entries, err := os.ReadDir(epDir)
	if err != nil {
		return nil, errors.Wrap(err, "oplog: listing segments")
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".log" {
			paths = append(paths, filepath.Join(epDir, e.Name()))
		}
	}
	sort.Strings(paths)

	for _, p := range paths {
		seg, err := replaySegment(p)
		if err != nil {
			return nil, err
		}
		l.segments = append(l.segments, seg)
		if seg.startSeq+seg.count > l.nextSeq {
			l.nextSeq = seg.startSeq + seg.count
		}
	}
	if len(l.segments) > 0 {
		last := l.segments[len(l.segments)-1]
		f, err := os.OpenFile(last.path, os.O_RDWR|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrap(err, "oplog: reopening current segment")
		}
		last.file = f
		l.cur = last
	} else {
		seg, err := l.newSegment(0)
		if err != nil {
			return nil, err
		}
		l.segments = append(l.segments, seg)
		l.cur = seg
	}
	return l, nil
}

func segmentPath(dir string, startSeq uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%020d.log", startSeq))
}

func (l *Log) newSegment(startSeq uint64) (*segment, error) {
	path := segmentPath(l.dir, startSeq)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "oplog: creating segment %s", path)
	}
	return &segment{startSeq: startSeq, path: path, file: f}, nil
}

// replaySegment reopens an existing segment file read-only long enough
// to rebuild its sparse index and count, matching the seq the file
// name encodes as its start.
func replaySegment(path string) (*segment, error) {
	var startSeq uint64
	if _, err := fmt.Sscanf(filepath.Base(path), "%020d.log", &startSeq); err != nil {
		return nil, errors.Wrapf(err, "oplog: parsing segment filename %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "oplog: opening segment %s", path)
	}
	defer f.Close()

	seg := &segment{startSeq: startSeq, path: path}
	var offset int64
	var sinceIdx int64
	for {
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(f, lenBuf); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrapf(err, "oplog: scanning segment %s", path)
		}
		n := binary.BigEndian.Uint32(lenBuf)
		if sinceIdx == 0 || sinceIdx >= indexInterval {
			seg.index = append(seg.index, indexEntry{seq: startSeq + seg.count, offset: offset})
			sinceIdx = 0
		}
		if _, err := f.Seek(int64(n), io.SeekCurrent); err != nil {
			return nil, err
		}
		advance := int64(4 + n)
		offset += advance
		sinceIdx += advance
		seg.count++
	}
	seg.size = offset
	seg.sinceIdx = sinceIdx
	return seg, nil
}

// Append encodes a new log record under the next available seq for
// this endpoint and writes it to the current segment, rolling to a new
// segment first if the current one has grown past maxBytes.
func (l *Log) Append(epochID uint64, op types.Operation) (seq uint64, err error) {
	start := time.Now()
	defer func() {
		appendDurations.WithLabelValues(l.endpoint).Observe(time.Since(start).Seconds())
		if err != nil {
			appendErrors.WithLabelValues(l.endpoint).Inc()
		}
	}()

	l.mu.Lock()
	defer l.mu.Unlock()

	seq = l.nextSeq
	var frame []byte
	frame, err = EncodeFrame(l.schema, Record{EpochID: epochID, Seq: seq, Op: op})
	if err != nil {
		return 0, err
	}

	if l.cur.size > 0 && l.cur.size+int64(4+len(frame)) > l.maxBytes {
		if err := l.cur.file.Close(); err != nil {
			return 0, errors.Wrap(err, "oplog: closing full segment")
		}
		seg, err := l.newSegment(seq)
		if err != nil {
			return 0, err
		}
		l.segments = append(l.segments, seg)
		l.cur = seg
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frame)))
	if l.cur.sinceIdx == 0 || l.cur.sinceIdx >= indexInterval {
		l.cur.index = append(l.cur.index, indexEntry{seq: seq, offset: l.cur.size})
		l.cur.sinceIdx = 0
	}
	if _, err := l.cur.file.Write(lenBuf[:]); err != nil {
		return 0, errors.Wrap(err, "oplog: writing record length")
	}
	if _, err := l.cur.file.Write(frame); err != nil {
		return 0, errors.Wrap(err, "oplog: writing record payload")
	}
	advance := int64(4 + len(frame))
	l.cur.size += advance
	l.cur.sinceIdx += advance
	l.cur.count++
	l.nextSeq++
	return seq, nil
}

// TruncateBefore removes every whole segment file whose highest seq is
// strictly less than keepFrom, bounding retention by the oldest
// reader's acknowledged seq (spec.md §4.7). The segment straddling
// keepFrom, if any, is left untouched: truncation operates at segment
// granularity, not record granularity.
func (l *Log) TruncateBefore(keepFrom uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.segments[:0]
	for _, seg := range l.segments {
		if seg != l.cur && seg.startSeq+seg.count <= keepFrom {
			if err := os.Remove(seg.path); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "oplog: removing truncated segment %s", seg.path)
			}
			continue
		}
		kept = append(kept, seg)
	}
	l.segments = kept
	return nil
}

// Schema returns the SchemaID records in this log are encoded under.
func (l *Log) Schema() state.SchemaID { return l.schema }

// Endpoint returns the name of the endpoint this log was opened for.
func (l *Log) Endpoint() string { return l.endpoint }

// Close releases the underlying segment file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur != nil && l.cur.file != nil {
		return l.cur.file.Close()
	}
	return nil
}
