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

// Package expr implements the scalar expression evaluator of spec.md
// §4.5: literal, column reference, unary/binary operator, function
// call, CASE, IN, LIKE, IS NULL, and CAST nodes, evaluated over a
// types.Record under the widest-operand promotion ladder.
package expr

import (
	"github.com/cockroachdb/dataflow/internal/types"
)

// UnaryOp discriminates the unary operator family.
type UnaryOp uint8

// Supported unary operators.
const (
	Neg UnaryOp = iota
	Not
)

// BinaryOp discriminates the binary operator family.
type BinaryOp uint8

// Supported binary operators.
const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Eq
	NotEq
	Lt
	LtEq
	Gt
	GtEq
	And
	Or
	Concat
)

// Expr is a scalar expression tree node. Exactly one field group is
// meaningful, selected by op; the constructors below keep this
// consistent.
type Expr struct {
	op exprOp

	literal  types.Field
	colIndex int

	unaryOp  UnaryOp
	operand  *Expr

	binaryOp BinaryOp
	left     *Expr
	right    *Expr

	funcName string
	funcArgs []*Expr

	caseWhen []CaseBranch
	caseElse *Expr

	inTarget *Expr
	inList   []*Expr

	likePattern *Expr
	likeEscape  rune

	isNullOperand *Expr

	castTarget types.FieldType
	castFrom   *Expr

	resultType types.FieldType
}

type exprOp uint8

const (
	opLiteral exprOp = iota
	opColumn
	opUnary
	opBinary
	opFunc
	opCase
	opIn
	opLike
	opIsNull
	opCast
)

// CaseBranch is one WHEN cond THEN result pair of a CASE expression.
type CaseBranch struct {
	Cond   *Expr
	Result *Expr
}

// Literal constructs a literal-valued Expr.
func Literal(v types.Field) *Expr {
	return &Expr{op: opLiteral, literal: v, resultType: v.TypeOf()}
}

// Column constructs a positional column-reference Expr.
func Column(index int, t types.FieldType) *Expr {
	return &Expr{op: opColumn, colIndex: index, resultType: t}
}

// Unary constructs a unary-operator Expr. resultType is the statically
// resolved result type (build-time type resolution, spec.md §4.5).
func Unary(op UnaryOp, operand *Expr, resultType types.FieldType) *Expr {
	return &Expr{op: opUnary, unaryOp: op, operand: operand, resultType: resultType}
}

// Binary constructs a binary-operator Expr.
func Binary(op BinaryOp, left, right *Expr, resultType types.FieldType) *Expr {
	return &Expr{op: opBinary, binaryOp: op, left: left, right: right, resultType: resultType}
}

// Func constructs a function-call Expr.
func Func(name string, args []*Expr, resultType types.FieldType) *Expr {
	return &Expr{op: opFunc, funcName: name, funcArgs: args, resultType: resultType}
}

// Case constructs a CASE WHEN...THEN...ELSE Expr.
func Case(branches []CaseBranch, elseExpr *Expr, resultType types.FieldType) *Expr {
	return &Expr{op: opCase, caseWhen: branches, caseElse: elseExpr, resultType: resultType}
}

// In constructs an `target IN (list...)` Expr.
func In(target *Expr, list []*Expr) *Expr {
	return &Expr{op: opIn, inTarget: target, inList: list, resultType: types.FieldType{Kind: types.KindBoolean}}
}

// Like constructs a `target LIKE pattern` Expr with the given escape
// rune (0 disables escaping).
func Like(target, pattern *Expr, escape rune) *Expr {
	return &Expr{op: opLike, operand: target, likePattern: pattern, likeEscape: escape, resultType: types.FieldType{Kind: types.KindBoolean}}
}

// IsNull constructs an `operand IS NULL` Expr.
func IsNull(operand *Expr) *Expr {
	return &Expr{op: opIsNull, isNullOperand: operand, resultType: types.FieldType{Kind: types.KindBoolean}}
}

// Cast constructs a `CAST(from AS target)` Expr.
func Cast(from *Expr, target types.FieldType) *Expr {
	return &Expr{op: opCast, castFrom: from, castTarget: target, resultType: target}
}

// ResultType returns the statically resolved type of the expression.
func (e *Expr) ResultType() types.FieldType { return e.resultType }
