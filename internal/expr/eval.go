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

package expr

import (
	"math/big"
	"strings"

	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrorPolicy governs what happens to a row whose expression
// evaluation fails with a per-row error (CastError, ArithmeticOverflow,
// ExpressionEvalError), per spec.md §4.5 and §7. The default,
// PolicyDrop, matches the spec's stated default of logging and
// dropping the offending record rather than failing the pipeline.
type ErrorPolicy uint8

// ErrorPolicy variants.
const (
	// PolicyDrop logs the error and causes EvalWithPolicy to return
	// ok=false so the caller drops the record.
	PolicyDrop ErrorPolicy = iota
	// PolicyPropagate returns the error to the caller, which is
	// expected to route it to the operator's error port or fail the
	// pipeline if none is declared.
	PolicyPropagate
)

// Eval evaluates e over rec, returning the result or an error. Errors
// are always returned here; it is EvalWithPolicy that applies policy.
func Eval(e *Expr, rec types.Record) (types.Field, error) {
	switch e.op {
	case opLiteral:
		return e.literal, nil
	case opColumn:
		if e.colIndex < 0 || e.colIndex >= len(rec) {
			return types.Field{}, &types.ExpressionEvalError{Reason: "column index out of range"}
		}
		return rec[e.colIndex], nil
	case opUnary:
		return evalUnary(e, rec)
	case opBinary:
		return evalBinary(e, rec)
	case opFunc:
		return evalFunc(e, rec)
	case opCase:
		return evalCase(e, rec)
	case opIn:
		return evalIn(e, rec)
	case opLike:
		return evalLike(e, rec)
	case opIsNull:
		operand, err := Eval(e.isNullOperand, rec)
		if err != nil {
			return types.Field{}, err
		}
		return types.NewBoolean(operand.IsNull()), nil
	case opCast:
		return evalCast(e, rec)
	default:
		return types.Field{}, &types.ExpressionEvalError{Reason: "unknown expression node"}
	}
}

// EvalPredicate evaluates e and collapses the result to three-valued
// logic, per spec.md §4.4.2 / §4.5: NULL in a predicate is Unknown.
func EvalPredicate(e *Expr, rec types.Record) (types.TriBool, error) {
	v, err := Eval(e, rec)
	if err != nil {
		return types.Unknown, err
	}
	if v.IsNull() {
		return types.Unknown, nil
	}
	if v.Boolean() {
		return types.True, nil
	}
	return types.False, nil
}

// EvalWithPolicy evaluates e and applies policy to any per-row error:
// under PolicyDrop, the error is logged and a zero Field and ok=false
// are returned with no error (the caller should drop the record);
// under PolicyPropagate, the error is returned unchanged.
func EvalWithPolicy(e *Expr, rec types.Record, policy ErrorPolicy) (result types.Field, ok bool, err error) {
	result, err = Eval(e, rec)
	if err == nil {
		return result, true, nil
	}
	if policy == PolicyPropagate {
		return types.Field{}, false, err
	}
	log.WithError(err).Warn("expr: dropping record after evaluation error")
	return types.Field{}, false, nil
}

func evalUnary(e *Expr, rec types.Record) (types.Field, error) {
	v, err := Eval(e.operand, rec)
	if err != nil {
		return types.Field{}, err
	}
	if v.IsNull() {
		return types.Null, nil
	}
	switch e.unaryOp {
	case Not:
		return types.NewBoolean(!v.Boolean()), nil
	case Neg:
		return negate(v)
	default:
		return types.Field{}, &types.ExpressionEvalError{Reason: "unknown unary operator"}
	}
}

func negate(v types.Field) (types.Field, error) {
	switch v.Kind {
	case types.KindInt:
		return types.NewInt(-v.Int()), nil
	case types.KindFloat:
		return types.NewFloat(-v.Float()), nil
	case types.KindDecimal:
		return types.NewDecimal(new(big.Rat).Neg(v.Decimal())), nil
	default:
		return types.Field{}, &types.ExpressionEvalError{Reason: "negation requires a numeric operand"}
	}
}

func evalBinary(e *Expr, rec types.Record) (types.Field, error) {
	l, err := Eval(e.left, rec)
	if err != nil {
		return types.Field{}, err
	}
	r, err := Eval(e.right, rec)
	if err != nil {
		return types.Field{}, err
	}

	switch e.binaryOp {
	case And:
		return evalAnd(l, r), nil
	case Or:
		return evalOr(l, r), nil
	}

	// Per spec.md §4.5, NULL in any arithmetic or comparison yields
	// NULL.
	if l.IsNull() || r.IsNull() {
		return types.Null, nil
	}

	switch e.binaryOp {
	case Eq:
		return triToField(types.SQLEqual(l, r)), nil
	case NotEq:
		return triToField(types.SQLEqual(l, r).Not()), nil
	case Lt, LtEq, Gt, GtEq:
		cmp, ok := types.Compare(l, r)
		if !ok {
			return types.Field{}, &types.ExpressionEvalError{Reason: "incomparable operand types"}
		}
		return types.NewBoolean(evalComparison(e.binaryOp, cmp)), nil
	case Add, Sub, Mul, Div:
		return evalArithmetic(e.binaryOp, l, r, e.resultType)
	case Concat:
		return types.NewString(l.String() + r.String()), nil
	default:
		return types.Field{}, &types.ExpressionEvalError{Reason: "unknown binary operator"}
	}
}

// triToField converts three-valued logic to a nullable boolean Field:
// Unknown becomes SQL NULL.
func triToField(t types.TriBool) types.Field {
	if t == types.Unknown {
		return types.Null
	}
	return types.NewBoolean(t == types.True)
}

func evalAnd(l, r types.Field) types.Field {
	// Three-valued AND: false dominates even when the other side is
	// NULL; otherwise NULL propagates, then TRUE && TRUE.
	if !l.IsNull() && !l.Boolean() {
		return types.NewBoolean(false)
	}
	if !r.IsNull() && !r.Boolean() {
		return types.NewBoolean(false)
	}
	if l.IsNull() || r.IsNull() {
		return types.Null
	}
	return types.NewBoolean(true)
}

func evalOr(l, r types.Field) types.Field {
	if !l.IsNull() && l.Boolean() {
		return types.NewBoolean(true)
	}
	if !r.IsNull() && r.Boolean() {
		return types.NewBoolean(true)
	}
	if l.IsNull() || r.IsNull() {
		return types.Null
	}
	return types.NewBoolean(false)
}

func evalComparison(op BinaryOp, cmp int) bool {
	switch op {
	case Lt:
		return cmp < 0
	case LtEq:
		return cmp <= 0
	case Gt:
		return cmp > 0
	case GtEq:
		return cmp >= 0
	default:
		return false
	}
}

// evalArithmetic promotes l and r to the widest of their Kinds along
// the Int -> Float -> Decimal ladder named in spec.md §4.5 and performs
// op exactly via big.Rat, converting down to resultType's Kind at the
// end. Overflow of an integer result type fails with
// ArithmeticOverflowError.
func evalArithmetic(op BinaryOp, l, r types.Field, resultType types.FieldType) (types.Field, error) {
	lr, rr := asRat(l), asRat(r)
	if lr == nil || rr == nil {
		return types.Field{}, &types.ExpressionEvalError{Reason: "arithmetic requires numeric operands"}
	}

	var result *big.Rat
	switch op {
	case Add:
		result = new(big.Rat).Add(lr, rr)
	case Sub:
		result = new(big.Rat).Sub(lr, rr)
	case Mul:
		result = new(big.Rat).Mul(lr, rr)
	case Div:
		if rr.Sign() == 0 {
			return types.Field{}, &types.ExpressionEvalError{Reason: "division by zero"}
		}
		result = new(big.Rat).Quo(lr, rr)
	}

	return ratToField(result, resultType, opName(op))
}

func opName(op BinaryOp) string {
	switch op {
	case Add:
		return "+"
	case Sub:
		return "-"
	case Mul:
		return "*"
	case Div:
		return "/"
	default:
		return "?"
	}
}

// asRat converts a numeric Field into an exact rational, mirroring
// types.Compare's promotion (exported there only internally, so the
// conversion is duplicated narrowly here for the Kinds the evaluator
// actually promotes through).
func asRat(f types.Field) *big.Rat {
	switch f.Kind {
	case types.KindUInt:
		return new(big.Rat).SetUint64(f.UInt())
	case types.KindInt:
		return new(big.Rat).SetInt64(f.Int())
	case types.KindFloat:
		r := new(big.Rat)
		r.SetFloat64(f.Float())
		return r
	case types.KindDecimal:
		return f.Decimal()
	default:
		return nil
	}
}

// ratToField converts an exact rational result back into resultType,
// failing with ArithmeticOverflowError if it does not fit an integer
// target.
func ratToField(r *big.Rat, resultType types.FieldType, op string) (types.Field, error) {
	switch resultType.Kind {
	case types.KindInt:
		if !r.IsInt() {
			return types.Field{}, &types.ExpressionEvalError{Reason: "non-integral result for integer expression"}
		}
		i := r.Num()
		if !i.IsInt64() {
			return types.Field{}, &types.ArithmeticOverflowError{Op: op}
		}
		return types.NewInt(i.Int64()), nil
	case types.KindUInt:
		if !r.IsInt() {
			return types.Field{}, &types.ExpressionEvalError{Reason: "non-integral result for unsigned expression"}
		}
		i := r.Num()
		if !i.IsUint64() {
			return types.Field{}, &types.ArithmeticOverflowError{Op: op}
		}
		return types.NewUInt(i.Uint64()), nil
	case types.KindFloat:
		f, _ := r.Float64()
		return types.NewFloat(f), nil
	case types.KindDecimal:
		return types.NewDecimal(r), nil
	default:
		return types.Field{}, &types.ExpressionEvalError{Reason: "arithmetic result type must be numeric"}
	}
}

func evalFunc(e *Expr, rec types.Record) (types.Field, error) {
	args := make([]types.Field, len(e.funcArgs))
	for i, a := range e.funcArgs {
		v, err := Eval(a, rec)
		if err != nil {
			return types.Field{}, err
		}
		args[i] = v
	}
	return CallFunction(e.funcName, args)
}

func evalCase(e *Expr, rec types.Record) (types.Field, error) {
	for _, branch := range e.caseWhen {
		tri, err := EvalPredicate(branch.Cond, rec)
		if err != nil {
			return types.Field{}, err
		}
		if tri.Passes() {
			return Eval(branch.Result, rec)
		}
	}
	if e.caseElse != nil {
		return Eval(e.caseElse, rec)
	}
	return types.Null, nil
}

func evalIn(e *Expr, rec types.Record) (types.Field, error) {
	target, err := Eval(e.inTarget, rec)
	if err != nil {
		return types.Field{}, err
	}
	if target.IsNull() {
		return types.Null, nil
	}
	sawUnknown := false
	for _, candidate := range e.inList {
		v, err := Eval(candidate, rec)
		if err != nil {
			return types.Field{}, err
		}
		switch types.SQLEqual(target, v) {
		case types.True:
			return types.NewBoolean(true), nil
		case types.Unknown:
			sawUnknown = true
		}
	}
	if sawUnknown {
		return types.Null, nil
	}
	return types.NewBoolean(false), nil
}

func evalLike(e *Expr, rec types.Record) (types.Field, error) {
	target, err := Eval(e.operand, rec)
	if err != nil {
		return types.Field{}, err
	}
	pattern, err := Eval(e.likePattern, rec)
	if err != nil {
		return types.Field{}, err
	}
	if target.IsNull() || pattern.IsNull() {
		return types.Null, nil
	}
	return types.NewBoolean(matchLike(target.String(), pattern.String(), e.likeEscape)), nil
}

// matchLike implements the POSIX-ish LIKE semantics of spec.md §4.5:
// '%' matches any sequence (including empty), '_' matches exactly one
// character, and escape (if non-zero) makes the following character
// literal.
func matchLike(s, pattern string, escape rune) bool {
	sr := []rune(s)
	pr := compilePattern(pattern, escape)
	return likeMatch(sr, pr, 0, 0)
}

type patternToken struct {
	any    bool // '%'
	single bool // '_'
	lit    rune
}

func compilePattern(pattern string, escape rune) []patternToken {
	runes := []rune(pattern)
	tokens := make([]patternToken, 0, len(runes))
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if escape != 0 && c == escape && i+1 < len(runes) {
			i++
			tokens = append(tokens, patternToken{lit: runes[i]})
			continue
		}
		switch c {
		case '%':
			tokens = append(tokens, patternToken{any: true})
		case '_':
			tokens = append(tokens, patternToken{single: true})
		default:
			tokens = append(tokens, patternToken{lit: c})
		}
	}
	return tokens
}

// likeMatch is a small backtracking matcher; LIKE patterns in practice
// are short, so the worst-case blowup from naive backtracking is not a
// concern here.
func likeMatch(s []rune, p []patternToken, si, pi int) bool {
	for pi < len(p) {
		tok := p[pi]
		switch {
		case tok.any:
			// Try every possible split; consume zero first so trailing
			// '%' short-circuits quickly on exact-suffix matches.
			for skip := 0; skip <= len(s)-si; skip++ {
				if likeMatch(s, p, si+skip, pi+1) {
					return true
				}
			}
			return false
		case tok.single:
			if si >= len(s) {
				return false
			}
			si++
			pi++
		default:
			if si >= len(s) || s[si] != tok.lit {
				return false
			}
			si++
			pi++
		}
	}
	return si == len(s)
}

func evalCast(e *Expr, rec types.Record) (types.Field, error) {
	v, err := Eval(e.castFrom, rec)
	if err != nil {
		return types.Field{}, err
	}
	if v.IsNull() {
		return types.Null, nil
	}
	result, err := Cast_(v, e.castTarget)
	if err != nil {
		return types.Field{}, &types.CastError{From: v.TypeOf(), To: e.castTarget, Reason: err.Error()}
	}
	return result, nil
}

// Cast_ converts v to target's Kind, per the limited set of
// conversions the engine supports. The trailing underscore avoids
// colliding with the Cast Expr constructor in expr.go.
func Cast_(v types.Field, target types.FieldType) (types.Field, error) {
	if v.Kind == target.Kind {
		return v, nil
	}
	switch target.Kind {
	case types.KindInt, types.KindUInt, types.KindFloat, types.KindDecimal:
		r := asRat(v)
		if r == nil {
			if v.Kind == types.KindString || v.Kind == types.KindText {
				parsed, ok := new(big.Rat).SetString(strings.TrimSpace(v.String()))
				if !ok {
					return types.Field{}, errors.Errorf("cannot parse %q as a number", v.String())
				}
				r = parsed
			} else {
				return types.Field{}, errors.New("source value is not numeric or numeric-like")
			}
		}
		return ratToField(r, target, "cast")
	case types.KindString, types.KindText:
		return types.NewString(fieldToString(v)), nil
	case types.KindBoolean:
		if v.Kind == types.KindString || v.Kind == types.KindText {
			switch strings.ToLower(v.String()) {
			case "true", "t", "1":
				return types.NewBoolean(true), nil
			case "false", "f", "0":
				return types.NewBoolean(false), nil
			default:
				return types.Field{}, errors.Errorf("cannot parse %q as boolean", v.String())
			}
		}
		return types.Field{}, errors.New("unsupported source type for boolean cast")
	default:
		return types.Field{}, errors.Errorf("unsupported cast target kind %d", target.Kind)
	}
}

func fieldToString(v types.Field) string {
	switch v.Kind {
	case types.KindString, types.KindText:
		return v.String()
	case types.KindBoolean:
		if v.Boolean() {
			return "true"
		}
		return "false"
	case types.KindInt:
		return big.NewInt(v.Int()).String()
	case types.KindUInt:
		return new(big.Int).SetUint64(v.UInt()).String()
	case types.KindDecimal:
		return v.Decimal().RatString()
	default:
		r := asRat(v)
		if r != nil {
			return r.RatString()
		}
		return ""
	}
}
