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
	"time"

	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/pkg/errors"
)

// WindowKind discriminates the table functions of spec.md §4.4.5.
type WindowKind uint8

// Supported window kinds.
const (
	Tumble WindowKind = iota
	Hop
)

// Window implements spec.md §4.4.5: a stateless table function that
// appends window_start/window_end columns to every row, emitting one
// output row per window the row's timestamp falls into. TUMBLE assigns
// exactly one window per row; HOP assigns every window the row
// overlaps, so a single Insert can fan out into several.
type Window struct {
	Kind      WindowKind
	TimeCol   int
	Size      time.Duration
	Hop       time.Duration // only meaningful for Kind == Hop
}

var _ Operator = (*Window)(nil)

// NewTumble builds a TUMBLE(size) window operator over timeCol.
func NewTumble(timeCol int, size time.Duration) (*Window, error) {
	if size <= 0 {
		return nil, errors.New("window: tumble size must be positive")
	}
	return &Window{Kind: Tumble, TimeCol: timeCol, Size: size}, nil
}

// NewHop builds a HOP(size, hop) window operator over timeCol. hop must
// evenly divide size is not required by spec.md §4.4.5; any positive
// hop <= size is accepted.
func NewHop(timeCol int, size, hop time.Duration) (*Window, error) {
	if size <= 0 {
		return nil, errors.New("window: hop size must be positive")
	}
	if hop <= 0 || hop > size {
		return nil, errors.New("window: hop must be positive and no larger than size")
	}
	return &Window{Kind: Hop, TimeCol: timeCol, Size: size, Hop: hop}, nil
}

// Apply implements Operator.
func (w *Window) Apply(_ ident.Port, op types.Operation) ([]types.Operation, error) {
	switch op.Kind {
	case types.OpInsert:
		rows, err := w.expand(op.New)
		if err != nil {
			return nil, err
		}
		return wrap(rows, types.Insert), nil

	case types.OpDelete:
		rows, err := w.expand(op.Old)
		if err != nil {
			return nil, err
		}
		return wrap(rows, types.Delete), nil

	case types.OpUpdate:
		oldRows, err := w.expand(op.Old)
		if err != nil {
			return nil, err
		}
		newRows, err := w.expand(op.New)
		if err != nil {
			return nil, err
		}
		out := make([]types.Operation, 0, len(oldRows)+len(newRows))
		// A changed timestamp can move a row into a different number
		// of windows, so old and new windows are paired by position
		// as Updates, and any surplus old windows become Deletes and
		// any surplus new windows become Inserts.
		n := len(oldRows)
		if len(newRows) < n {
			n = len(newRows)
		}
		for i := 0; i < n; i++ {
			out = append(out, types.Update(oldRows[i], newRows[i]))
		}
		for i := n; i < len(oldRows); i++ {
			out = append(out, types.Delete(oldRows[i]))
		}
		for i := n; i < len(newRows); i++ {
			out = append(out, types.Insert(newRows[i]))
		}
		return out, nil

	case types.OpBatchInsert:
		var out []types.Record
		for _, row := range op.Batch {
			rows, err := w.expand(row)
			if err != nil {
				return nil, err
			}
			out = append(out, rows...)
		}
		if len(out) == 0 {
			return nil, nil
		}
		return []types.Operation{types.BatchInsertOp(out)}, nil

	default:
		return nil, nil
	}
}

// Commit implements Operator; WINDOW is stateless.
func (w *Window) Commit(types.Epoch) error { return nil }

func wrap(rows []types.Record, ctor func(types.Record) types.Operation) []types.Operation {
	if len(rows) == 0 {
		return nil
	}
	out := make([]types.Operation, len(rows))
	for i, r := range rows {
		out[i] = ctor(r)
	}
	return out
}

// expand computes every window row's timestamp assigns it to, and
// returns one output record per window with window_start/window_end
// appended after the input columns.
func (w *Window) expand(row types.Record) ([]types.Record, error) {
	if row == nil {
		return nil, nil
	}
	ts := row[w.TimeCol]
	if ts.IsNull() {
		return nil, nil
	}
	if ts.Kind != types.KindTimestamp {
		return nil, errors.Errorf("window: column %d is not a timestamp", w.TimeCol)
	}
	t := ts.Timestamp()

	var starts []time.Time
	switch w.Kind {
	case Tumble:
		starts = []time.Time{tumbleStart(t, w.Size)}
	case Hop:
		starts = hopStarts(t, w.Size, w.Hop)
	}

	out := make([]types.Record, len(starts))
	for i, start := range starts {
		rec := make(types.Record, 0, len(row)+2)
		rec = append(rec, row...)
		rec = append(rec, types.NewTimestamp(start), types.NewTimestamp(start.Add(w.Size)))
		out[i] = rec
	}
	return out, nil
}

func tumbleStart(t time.Time, size time.Duration) time.Time {
	unix := t.UnixNano()
	width := size.Nanoseconds()
	start := unix - (unix % width)
	if unix < 0 && unix%width != 0 {
		start -= width
	}
	return time.Unix(0, start).UTC()
}

// hopStarts returns the start of every hop-aligned window of length
// size that contains t, stepping backwards in increments of hop from
// t's own tumble-aligned hop boundary.
func hopStarts(t time.Time, size, hop time.Duration) []time.Time {
	unix := t.UnixNano()
	hopWidth := hop.Nanoseconds()
	latestHopStart := unix - (unix % hopWidth)
	if unix < 0 && unix%hopWidth != 0 {
		latestHopStart -= hopWidth
	}

	var starts []time.Time
	for start := latestHopStart; start > unix-size.Nanoseconds(); start -= hopWidth {
		if unix >= start && unix < start+size.Nanoseconds() {
			starts = append(starts, time.Unix(0, start).UTC())
		}
	}
	return starts
}
