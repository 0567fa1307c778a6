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

// Package types contains the data model shared by every component of
// the streaming engine: tagged Field values, Schemas, Records, and the
// Operation / ExecutorOperation sum types that flow across the DAG.
package types

import (
	"math/big"
	"time"
)

// Kind discriminates the variants of a Field or FieldType.
type Kind uint8

// Field variants. Null is a distinct Kind rather than a nil-valued
// variant of another Kind, since SQL NULL carries no type information
// of its own until combined with a declared column type.
const (
	KindInvalid Kind = iota
	KindUInt
	KindInt
	KindU128
	KindI128
	KindFloat
	KindBoolean
	KindString
	KindText
	KindBinary
	KindDecimal
	KindTimestamp
	KindDate
	KindJSON
	KindPoint
	KindDuration
	KindNull
)

// DurationUnit names the unit a Duration field's integer value is
// expressed in.
type DurationUnit uint8

// Supported duration units, smallest to largest.
const (
	DurationNanos DurationUnit = iota
	DurationMicros
	DurationMillis
	DurationSeconds
	DurationMinutes
	DurationHours
	DurationDays
)

// Point is a 2-dimensional coordinate.
type Point struct {
	X, Y float64
}

// Duration is an integer value tagged with its unit, as opposed to
// Go's time.Duration which is always nanoseconds; some source systems
// report coarser-grained intervals that would overflow or lose
// precision if forced into nanoseconds.
type Duration struct {
	Value int64
	Unit  DurationUnit
}

// JSON is a recursive value mirroring the JSON data model: null, bool,
// number (held as *big.Float), string, []JSON (array) or
// map[string]JSON (object).
type JSON struct {
	// Exactly one of the following is meaningful, selected by valueKind.
	Null      bool
	Bool      bool
	Number    *big.Float
	Str       string
	Array     []JSON
	Object    map[string]JSON
	valueKind jsonKind
}

type jsonKind uint8

const (
	jsonNull jsonKind = iota
	jsonBool
	jsonNumber
	jsonString
	jsonArray
	jsonObject
)

// JSONNull constructs a JSON null value.
func JSONNull() JSON { return JSON{Null: true, valueKind: jsonNull} }

// JSONBool constructs a JSON boolean value.
func JSONBool(b bool) JSON { return JSON{Bool: b, valueKind: jsonBool} }

// JSONNumber constructs a JSON numeric value.
func JSONNumber(n *big.Float) JSON { return JSON{Number: n, valueKind: jsonNumber} }

// JSONString constructs a JSON string value.
func JSONString(s string) JSON { return JSON{Str: s, valueKind: jsonString} }

// JSONArray constructs a JSON array value.
func JSONArray(vs []JSON) JSON { return JSON{Array: vs, valueKind: jsonArray} }

// JSONObject constructs a JSON object value.
func JSONObject(m map[string]JSON) JSON { return JSON{Object: m, valueKind: jsonObject} }

// FieldType is the declared static type of a column: a Kind plus the
// auxiliary metadata (decimal precision/scale) needed to
// validate and format values of that Kind.
type FieldType struct {
	Kind Kind

	// DecimalPrecision and DecimalScale apply only when Kind ==
	// KindDecimal; zero means "unspecified / arbitrary".
	DecimalPrecision int
	DecimalScale     int
}

// Field is a tagged value. Exactly one of the typed accessors below is
// meaningful, selected by Kind; constructors are provided so that
// callers never assemble an inconsistent Field by hand.
type Field struct {
	Kind Kind

	uintVal   uint64
	intVal    int64
	u128Hi    uint64
	u128Lo    uint64
	i128Hi    int64
	i128Lo    uint64
	floatVal  float64
	boolVal   bool
	strVal    string
	binVal    []byte
	decVal    *big.Rat
	timeVal   time.Time
	dateVal   time.Time
	jsonVal   JSON
	pointVal  Point
	durVal    Duration
}

// Null is the singleton Null field. Per spec.md §3, Null is never equal
// to anything in SQL comparison semantics (three-valued logic), but is
// a distinct, stable bucket for GROUP BY / hash purposes.
var Null = Field{Kind: KindNull}

// NewUInt constructs a KindUInt Field.
func NewUInt(v uint64) Field { return Field{Kind: KindUInt, uintVal: v} }

// NewInt constructs a KindInt Field.
func NewInt(v int64) Field { return Field{Kind: KindInt, intVal: v} }

// NewU128 constructs a KindU128 Field from its big-endian halves.
func NewU128(hi, lo uint64) Field { return Field{Kind: KindU128, u128Hi: hi, u128Lo: lo} }

// NewI128 constructs a KindI128 Field from its big-endian halves.
func NewI128(hi int64, lo uint64) Field { return Field{Kind: KindI128, i128Hi: hi, i128Lo: lo} }

// NewFloat constructs a KindFloat Field.
func NewFloat(v float64) Field { return Field{Kind: KindFloat, floatVal: v} }

// NewBoolean constructs a KindBoolean Field.
func NewBoolean(v bool) Field { return Field{Kind: KindBoolean, boolVal: v} }

// NewString constructs a KindString Field.
func NewString(v string) Field { return Field{Kind: KindString, strVal: v} }

// NewText constructs a KindText Field (unbounded-length string).
func NewText(v string) Field { return Field{Kind: KindText, strVal: v} }

// NewBinary constructs a KindBinary Field.
func NewBinary(v []byte) Field { return Field{Kind: KindBinary, binVal: v} }

// NewDecimal constructs a KindDecimal Field from an arbitrary-precision
// rational.
func NewDecimal(v *big.Rat) Field { return Field{Kind: KindDecimal, decVal: v} }

// NewTimestamp constructs a KindTimestamp Field. The time is always
// normalized to UTC with nanosecond resolution, per spec.md §3.
func NewTimestamp(v time.Time) Field { return Field{Kind: KindTimestamp, timeVal: v.UTC()} }

// NewDate constructs a KindDate Field.
func NewDate(v time.Time) Field { return Field{Kind: KindDate, dateVal: v.UTC()} }

// NewJSON constructs a KindJSON Field.
func NewJSON(v JSON) Field { return Field{Kind: KindJSON, jsonVal: v} }

// NewPoint constructs a KindPoint Field.
func NewPoint(v Point) Field { return Field{Kind: KindPoint, pointVal: v} }

// NewDuration constructs a KindDuration Field.
func NewDuration(v Duration) Field { return Field{Kind: KindDuration, durVal: v} }

// IsNull reports whether the Field is the Null variant.
func (f Field) IsNull() bool { return f.Kind == KindNull }

// UInt returns the uint64 value; valid only when Kind == KindUInt.
func (f Field) UInt() uint64 { return f.uintVal }

// Int returns the int64 value; valid only when Kind == KindInt.
func (f Field) Int() int64 { return f.intVal }

// U128 returns the big-endian halves; valid only when Kind == KindU128.
func (f Field) U128() (hi, lo uint64) { return f.u128Hi, f.u128Lo }

// I128 returns the big-endian halves; valid only when Kind == KindI128.
func (f Field) I128() (hi int64, lo uint64) { return f.i128Hi, f.i128Lo }

// Float returns the float64 value; valid only when Kind == KindFloat.
func (f Field) Float() float64 { return f.floatVal }

// Boolean returns the bool value; valid only when Kind == KindBoolean.
func (f Field) Boolean() bool { return f.boolVal }

// String returns the string value; valid only when Kind is KindString
// or KindText.
func (f Field) String() string { return f.strVal }

// Binary returns the byte value; valid only when Kind == KindBinary.
func (f Field) Binary() []byte { return f.binVal }

// Decimal returns the rational value; valid only when Kind ==
// KindDecimal.
func (f Field) Decimal() *big.Rat { return f.decVal }

// Timestamp returns the UTC time value; valid only when Kind ==
// KindTimestamp.
func (f Field) Timestamp() time.Time { return f.timeVal }

// Date returns the UTC time value; valid only when Kind == KindDate.
func (f Field) Date() time.Time { return f.dateVal }

// JSONValue returns the recursive JSON value; valid only when Kind ==
// KindJSON.
func (f Field) JSONValue() JSON { return f.jsonVal }

// PointValue returns the coordinate value; valid only when Kind ==
// KindPoint.
func (f Field) PointValue() Point { return f.pointVal }

// DurationValue returns the tagged duration; valid only when Kind ==
// KindDuration.
func (f Field) DurationValue() Duration { return f.durVal }

// TypeOf returns the FieldType that describes this Field's Kind,
// discarding its value. Decimal precision/scale are not recoverable
// from a value alone and are left unspecified.
func (f Field) TypeOf() FieldType { return FieldType{Kind: f.Kind} }
