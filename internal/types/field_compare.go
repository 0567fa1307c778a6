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

package types

import (
	"encoding/binary"
	"math"
	"math/big"
)

// TriBool is a three-valued logic result: True, False, or Unknown. SQL
// predicates over NULL operands evaluate to Unknown, which filters the
// same way as False but must be distinguishable from it (e.g. for NOT).
type TriBool uint8

// TriBool values.
const (
	Unknown TriBool = iota
	False
	True
)

// Passes reports whether t should be treated as satisfying a filter:
// only True passes, exactly matching SQL's WHERE-clause semantics
// (spec.md §4.5: "predicates treat NULL as false for filtering").
func (t TriBool) Passes() bool { return t == True }

// Not implements three-valued negation.
func (t TriBool) Not() TriBool {
	switch t {
	case True:
		return False
	case False:
		return True
	default:
		return Unknown
	}
}

// numericClass returns the position of k on the widening ladder
// UInt -> Int -> U128 -> I128 -> Float -> Decimal used for arithmetic/comparison
// promotion (spec.md §4.5), or -1 if k is not numeric.
func numericClass(k Kind) int {
	switch k {
	case KindUInt:
		return 0
	case KindInt:
		return 1
	case KindU128:
		return 2
	case KindI128:
		return 3
	case KindFloat:
		return 4
	case KindDecimal:
		return 5
	default:
		return -1
	}
}

// asRat converts a numeric Field into a big.Rat for uniform comparison
// across numeric Kinds. Float values are converted exactly (no
// rounding), since big.Rat can represent any finite float64 exactly.
func asRat(f Field) *big.Rat {
	switch f.Kind {
	case KindUInt:
		return new(big.Rat).SetUint64(f.uintVal)
	case KindInt:
		return new(big.Rat).SetInt64(f.intVal)
	case KindU128:
		hi, lo := f.U128()
		v := new(big.Int).Lsh(new(big.Int).SetUint64(hi), 64)
		v.Or(v, new(big.Int).SetUint64(lo))
		return new(big.Rat).SetInt(v)
	case KindI128:
		hi, lo := f.I128()
		v := new(big.Int).Lsh(big.NewInt(hi), 64)
		v.Or(v, new(big.Int).SetUint64(lo))
		return new(big.Rat).SetInt(v)
	case KindFloat:
		r := new(big.Rat)
		r.SetFloat64(f.floatVal)
		return r
	case KindDecimal:
		return f.decVal
	default:
		return nil
	}
}

// Compare imposes a total order over Fields within a compatible type
// class (spec.md §3: "Equality and ordering are total within compatible
// type classes"). Numeric Kinds are compared across the widening ladder
// via exact rational arithmetic, so no precision is lost comparing e.g.
// an Int against a Decimal. Null sorts before every non-null value and
// compares equal to itself, which is the ordering (not SQL-equality)
// convention used internally for MIN/MAX tie-breaking and sorted-set
// bookkeeping; SQL-level equality must use SQLEqual instead.
//
// ok is false if a and b belong to incomparable classes (e.g. String
// vs Boolean), in which case the returned int is meaningless.
func Compare(a, b Field) (cmp int, ok bool) {
	if a.Kind == KindNull && b.Kind == KindNull {
		return 0, true
	}
	if a.Kind == KindNull {
		return -1, true
	}
	if b.Kind == KindNull {
		return 1, true
	}

	if ca, cb := numericClass(a.Kind), numericClass(b.Kind); ca >= 0 && cb >= 0 {
		return asRat(a).Cmp(asRat(b)), true
	}

	switch a.Kind {
	case KindBoolean:
		if b.Kind != KindBoolean {
			return 0, false
		}
		switch {
		case a.boolVal == b.boolVal:
			return 0, true
		case !a.boolVal:
			return -1, true
		default:
			return 1, true
		}
	case KindString, KindText:
		if b.Kind != KindString && b.Kind != KindText {
			return 0, false
		}
		switch {
		case a.strVal < b.strVal:
			return -1, true
		case a.strVal > b.strVal:
			return 1, true
		default:
			return 0, true
		}
	case KindBinary:
		if b.Kind != KindBinary {
			return 0, false
		}
		lo, hi := a.binVal, b.binVal
		n := len(lo)
		if len(hi) < n {
			n = len(hi)
		}
		for i := 0; i < n; i++ {
			if lo[i] != hi[i] {
				if lo[i] < hi[i] {
					return -1, true
				}
				return 1, true
			}
		}
		switch {
		case len(lo) < len(hi):
			return -1, true
		case len(lo) > len(hi):
			return 1, true
		default:
			return 0, true
		}
	case KindTimestamp:
		if b.Kind != KindTimestamp {
			return 0, false
		}
		return compareTime(a.timeVal, b.timeVal), true
	case KindDate:
		if b.Kind != KindDate {
			return 0, false
		}
		return compareTime(a.dateVal, b.dateVal), true
	case KindDuration:
		if b.Kind != KindDuration {
			return 0, false
		}
		an, bn := a.durVal.Nanos(), b.durVal.Nanos()
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}

func compareTime(a, b interface{ UnixNano() int64 }) int {
	an, bn := a.UnixNano(), b.UnixNano()
	switch {
	case an < bn:
		return -1
	case an > bn:
		return 1
	default:
		return 0
	}
}

// Nanos converts the Duration to a nanosecond count for ordering and
// arithmetic purposes.
func (d Duration) Nanos() int64 {
	var scale int64
	switch d.Unit {
	case DurationNanos:
		scale = 1
	case DurationMicros:
		scale = 1e3
	case DurationMillis:
		scale = 1e6
	case DurationSeconds:
		scale = 1e9
	case DurationMinutes:
		scale = 60 * 1e9
	case DurationHours:
		scale = 3600 * 1e9
	case DurationDays:
		scale = 24 * 3600 * 1e9
	}
	return d.Value * scale
}

// SQLEqual implements SQL's three-valued equality: NULL compared to
// anything (including another NULL) is Unknown, never True or False,
// per spec.md §3.
func SQLEqual(a, b Field) TriBool {
	if a.Kind == KindNull || b.Kind == KindNull {
		return Unknown
	}
	cmp, ok := Compare(a, b)
	if !ok {
		return Unknown
	}
	if cmp == 0 {
		return True
	}
	return False
}

// HashKey returns a stable byte encoding of f suitable for use as (or
// within) a GROUP BY / join bucket key. Unlike SQLEqual, HashKey treats
// Null as a single, distinct, self-equal bucket, per spec.md §3: "for
// grouping/hashing Null is a distinct bucket."
func HashKey(f Field) []byte {
	buf := make([]byte, 0, 16)
	buf = append(buf, byte(f.Kind))
	switch f.Kind {
	case KindNull:
		// Kind tag alone is the whole key.
	case KindUInt:
		buf = binary.BigEndian.AppendUint64(buf, f.uintVal)
	case KindInt:
		buf = binary.BigEndian.AppendUint64(buf, uint64(f.intVal))
	case KindU128:
		hi, lo := f.U128()
		buf = binary.BigEndian.AppendUint64(buf, hi)
		buf = binary.BigEndian.AppendUint64(buf, lo)
	case KindI128:
		hi, lo := f.I128()
		buf = binary.BigEndian.AppendUint64(buf, uint64(hi))
		buf = binary.BigEndian.AppendUint64(buf, lo)
	case KindFloat:
		buf = binary.BigEndian.AppendUint64(buf, floatBits(f.floatVal))
	case KindBoolean:
		if f.boolVal {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindString, KindText:
		buf = append(buf, []byte(f.strVal)...)
	case KindBinary:
		buf = append(buf, f.binVal...)
	case KindDecimal:
		if f.decVal != nil {
			buf = append(buf, []byte(f.decVal.RatString())...)
		}
	case KindTimestamp:
		buf = binary.BigEndian.AppendUint64(buf, uint64(f.timeVal.UnixNano()))
	case KindDate:
		buf = binary.BigEndian.AppendUint64(buf, uint64(f.dateVal.UnixNano()))
	case KindDuration:
		buf = binary.BigEndian.AppendUint64(buf, uint64(f.durVal.Nanos()))
	case KindJSON:
		buf = append(buf, jsonHashKey(f.jsonVal)...)
	case KindPoint:
		buf = binary.BigEndian.AppendUint64(buf, floatBits(f.pointVal.X))
		buf = binary.BigEndian.AppendUint64(buf, floatBits(f.pointVal.Y))
	}
	return buf
}

func floatBits(f float64) uint64 {
	return math.Float64bits(f)
}

func jsonHashKey(v JSON) []byte {
	switch v.valueKind {
	case jsonNull:
		return []byte{0}
	case jsonBool:
		if v.Bool {
			return []byte{1, 1}
		}
		return []byte{1, 0}
	case jsonNumber:
		if v.Number == nil {
			return []byte{2}
		}
		return append([]byte{2}, []byte(v.Number.Text('g', -1))...)
	case jsonString:
		return append([]byte{3}, []byte(v.Str)...)
	case jsonArray:
		out := []byte{4}
		for _, e := range v.Array {
			out = append(out, jsonHashKey(e)...)
		}
		return out
	case jsonObject:
		out := []byte{5}
		for k, e := range v.Object {
			out = append(out, []byte(k)...)
			out = append(out, jsonHashKey(e)...)
		}
		return out
	default:
		return nil
	}
}
