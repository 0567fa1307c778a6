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
	"math/big"

	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/pkg/errors"
)

// AggFunc discriminates the aggregate functions of spec.md §4.4.3.
type AggFunc uint8

// Supported aggregate functions.
const (
	Sum AggFunc = iota
	Count
	Avg
	Min
	Max
	MinAppendOnly
	MaxAppendOnly
)

// AggSpec names one aggregate column of a GROUP BY clause. InputCol is
// -1 for COUNT(*), which counts rows including nulls, per spec.md
// §4.4.3's "NULLs are ignored except for COUNT(*) which counts nulls."
type AggSpec struct {
	Func     AggFunc
	InputCol int
}

// msEntry is one distinct value's live multiplicity within a
// retraction-capable MIN/MAX accumulator.
type msEntry struct {
	value types.Field
	count int
}

// aggAccumulator tracks one AggSpec's running state for one group. The
// non-append-only MIN/MAX variants keep a full multiset so that a
// retraction of the current extreme value can fall back to the next
// one; the append-only variants keep only the current extreme and
// silently ignore retractions, per spec.md §4.4.3.
type aggAccumulator struct {
	spec AggSpec

	sum      *big.Rat // Sum, Avg
	count    uint64   // Count, Avg (non-null count)
	rowCount uint64   // Count(*) when spec.InputCol < 0

	multiset map[string]*msEntry // Min, Max

	extreme    types.Field // MinAppendOnly, MaxAppendOnly
	hasExtreme bool
}

func newAggAccumulator(spec AggSpec) *aggAccumulator {
	a := &aggAccumulator{spec: spec}
	switch spec.Func {
	case Sum, Avg:
		a.sum = new(big.Rat)
	case Min, Max:
		a.multiset = make(map[string]*msEntry)
	}
	return a
}

// Add folds row into the accumulator.
func (a *aggAccumulator) Add(row types.Record) {
	switch a.spec.Func {
	case Count:
		if a.spec.InputCol < 0 {
			a.rowCount++
			return
		}
		if !row[a.spec.InputCol].IsNull() {
			a.count++
		}
	case Sum:
		if v := row[a.spec.InputCol]; !v.IsNull() {
			a.sum.Add(a.sum, asRatValue(v))
		}
	case Avg:
		if v := row[a.spec.InputCol]; !v.IsNull() {
			a.sum.Add(a.sum, asRatValue(v))
			a.count++
		}
	case Min, Max:
		v := row[a.spec.InputCol]
		if v.IsNull() {
			return
		}
		key := string(types.HashKey(v))
		if e, ok := a.multiset[key]; ok {
			e.count++
		} else {
			a.multiset[key] = &msEntry{value: v, count: 1}
		}
	case MinAppendOnly:
		v := row[a.spec.InputCol]
		if v.IsNull() {
			return
		}
		if !a.hasExtreme {
			a.extreme, a.hasExtreme = v, true
			return
		}
		if cmp, ok := types.Compare(v, a.extreme); ok && cmp < 0 {
			a.extreme = v
		}
	case MaxAppendOnly:
		v := row[a.spec.InputCol]
		if v.IsNull() {
			return
		}
		if !a.hasExtreme {
			a.extreme, a.hasExtreme = v, true
			return
		}
		if cmp, ok := types.Compare(v, a.extreme); ok && cmp > 0 {
			a.extreme = v
		}
	}
}

// Retract removes row's contribution. Append-only MIN/MAX variants
// ignore retractions entirely (spec.md §4.4.3).
func (a *aggAccumulator) Retract(row types.Record) {
	switch a.spec.Func {
	case Count:
		if a.spec.InputCol < 0 {
			if a.rowCount > 0 {
				a.rowCount--
			}
			return
		}
		if !row[a.spec.InputCol].IsNull() && a.count > 0 {
			a.count--
		}
	case Sum:
		if v := row[a.spec.InputCol]; !v.IsNull() {
			a.sum.Sub(a.sum, asRatValue(v))
		}
	case Avg:
		if v := row[a.spec.InputCol]; !v.IsNull() {
			a.sum.Sub(a.sum, asRatValue(v))
			if a.count > 0 {
				a.count--
			}
		}
	case Min, Max:
		v := row[a.spec.InputCol]
		if v.IsNull() {
			return
		}
		key := string(types.HashKey(v))
		if e, ok := a.multiset[key]; ok {
			e.count--
			if e.count <= 0 {
				delete(a.multiset, key)
			}
		}
	case MinAppendOnly, MaxAppendOnly:
		// Intentionally ignored.
	}
}

// Result computes the accumulator's current output Field.
func (a *aggAccumulator) Result() types.Field {
	switch a.spec.Func {
	case Count:
		if a.spec.InputCol < 0 {
			return types.NewInt(int64(a.rowCount))
		}
		return types.NewInt(int64(a.count))
	case Sum:
		return types.NewDecimal(new(big.Rat).Set(a.sum))
	case Avg:
		if a.count == 0 {
			return types.Null
		}
		avg := new(big.Rat).Quo(a.sum, new(big.Rat).SetUint64(a.count))
		return types.NewDecimal(avg)
	case Min:
		return extremeOf(a.multiset, -1)
	case Max:
		return extremeOf(a.multiset, 1)
	case MinAppendOnly, MaxAppendOnly:
		if !a.hasExtreme {
			return types.Null
		}
		return a.extreme
	default:
		return types.Null
	}
}

// extremeOf scans the live multiset for the smallest (want<0) or
// largest (want>0) member.
func extremeOf(set map[string]*msEntry, want int) types.Field {
	var best types.Field
	found := false
	for _, e := range set {
		if e.count <= 0 {
			continue
		}
		if !found {
			best, found = e.value, true
			continue
		}
		if cmp, ok := types.Compare(e.value, best); ok {
			if (want < 0 && cmp < 0) || (want > 0 && cmp > 0) {
				best = e.value
			}
		}
	}
	if !found {
		return types.Null
	}
	return best
}

// snapshotFields captures the accumulator's scalar state -- the part
// every AggFunc keeps regardless of which branch populated it -- as a
// four-column Record suitable for state.EncodeRecord: running sum (or
// zero), non-null count, COUNT(*) row count, and the append-only
// extreme value (or Null if hasExtreme is false). The multiset that
// backs retraction-capable MIN/MAX is persisted separately, since it
// is variable-width.
func (a *aggAccumulator) snapshotFields() types.Record {
	sum := new(big.Rat)
	if a.sum != nil {
		sum.Set(a.sum)
	}
	extreme := types.Null
	if a.hasExtreme {
		extreme = a.extreme
	}
	return types.Record{
		types.NewDecimal(sum),
		types.NewUInt(a.count),
		types.NewUInt(a.rowCount),
		extreme,
	}
}

// restoreFields reverses snapshotFields onto a freshly constructed
// accumulator of the same AggSpec.
func (a *aggAccumulator) restoreFields(rec types.Record) error {
	if len(rec) != 4 {
		return errors.New("operator: accumulator snapshot has the wrong column count")
	}
	if a.sum != nil {
		a.sum.Set(rec[0].Decimal())
	}
	a.count = rec[1].UInt()
	a.rowCount = rec[2].UInt()
	if !rec[3].IsNull() {
		a.extreme, a.hasExtreme = rec[3], true
	}
	return nil
}

// multisetEntries returns the accumulator's multiset as a slice, in
// no particular order, for persistence; restoreMultiset rebuilds the
// map from the same slice.
func (a *aggAccumulator) multisetEntries() []msEntry {
	out := make([]msEntry, 0, len(a.multiset))
	for _, e := range a.multiset {
		out = append(out, *e)
	}
	return out
}

func (a *aggAccumulator) restoreMultiset(entries []msEntry) {
	if a.multiset == nil {
		return
	}
	for _, e := range entries {
		entry := e
		a.multiset[string(types.HashKey(entry.value))] = &entry
	}
}

// asRatValue converts a numeric Field to an exact rational. It mirrors
// expr.asRat's Kind coverage (UInt, Int, Float, Decimal); aggregates
// over other Kinds are a build-time type error, not a runtime one, so
// this deliberately panics-free: unsupported Kinds contribute zero
// rather than crashing an otherwise-healthy group.
func asRatValue(v types.Field) *big.Rat {
	switch v.Kind {
	case types.KindUInt:
		return new(big.Rat).SetUint64(v.UInt())
	case types.KindInt:
		return new(big.Rat).SetInt64(v.Int())
	case types.KindFloat:
		r := new(big.Rat)
		r.SetFloat64(v.Float())
		return r
	case types.KindDecimal:
		return v.Decimal()
	default:
		return new(big.Rat)
	}
}
