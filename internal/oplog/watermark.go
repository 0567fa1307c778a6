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
	"context"
	"math"

	log "github.com/sirupsen/logrus"
)

// registerReader begins tracking r for truncation eligibility: until r
// acknowledges some seq, it holds the watermark at 0 and blocks all
// truncation.
func (l *Log) registerReader(r *Reader) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acks == nil {
		l.acks = make(map[*Reader]uint64)
	}
	l.acks[r] = 0
	l.lowWatermark.Set(0)
}

// unregisterReader stops tracking r, letting truncation advance past
// whatever it last acknowledged.
func (l *Log) unregisterReader(r *Reader) {
	l.mu.Lock()
	delete(l.acks, r)
	l.recomputeWatermarkLocked()
	l.mu.Unlock()
}

// ack records that r has consumed every record up to and including seq.
func (l *Log) ack(r *Reader, seq uint64) {
	l.mu.Lock()
	if cur, ok := l.acks[r]; ok && seq > cur {
		l.acks[r] = seq
	}
	l.recomputeWatermarkLocked()
	l.mu.Unlock()
}

// recomputeWatermarkLocked recomputes the slowest reader's position.
// Callers must hold l.mu.
func (l *Log) recomputeWatermarkLocked() {
	if len(l.acks) == 0 {
		return
	}
	min := uint64(math.MaxUint64)
	for _, seq := range l.acks {
		if seq < min {
			min = seq
		}
	}
	l.lowWatermark.Set(min)
}

// WatchTruncation blocks until ctx is done, truncating segments
// preceding the slowest registered Reader's acknowledged position
// (spec.md §4.7: "truncation bounded by the oldest reader's
// acknowledged seq") every time that position advances. Run it as a
// background goroutine per Log; a Log with no registered readers never
// truncates.
func (l *Log) WatchTruncation(ctx context.Context) {
	for {
		watermark, changed := l.lowWatermark.Get()
		if watermark > 0 {
			if err := l.TruncateBefore(watermark); err != nil {
				log.WithError(err).WithField("endpoint", l.endpoint).Warn("oplog: truncation failed")
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
	}
}
