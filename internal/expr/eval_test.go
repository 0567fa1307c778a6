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
	"testing"

	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/stretchr/testify/require"
)

func intCol(i int) *Expr {
	return Column(i, types.FieldType{Kind: types.KindInt})
}

func TestEvalArithmeticPromotion(t *testing.T) {
	rec := types.Record{types.NewInt(3), types.NewFloat(1.5)}
	e := Binary(Add, intCol(0), Column(1, types.FieldType{Kind: types.KindFloat}),
		types.FieldType{Kind: types.KindFloat})

	got, err := Eval(e, rec)
	require.NoError(t, err)
	require.Equal(t, 4.5, got.Float())
}

func TestEvalArithmeticOverflow(t *testing.T) {
	rec := types.Record{types.NewInt(0), types.NewInt(5)}
	e := Binary(Sub, intCol(0), intCol(1), types.FieldType{Kind: types.KindUInt})

	_, err := Eval(e, rec)
	require.Error(t, err)
}

func TestEvalDivisionByZero(t *testing.T) {
	rec := types.Record{types.NewInt(1), types.NewInt(0)}
	e := Binary(Div, intCol(0), intCol(1), types.FieldType{Kind: types.KindFloat})
	_, err := Eval(e, rec)
	require.Error(t, err)
}

func TestEvalNullPropagationInArithmeticAndComparison(t *testing.T) {
	rec := types.Record{types.Null, types.NewInt(1)}
	add := Binary(Add, intCol(0), intCol(1), types.FieldType{Kind: types.KindInt})
	got, err := Eval(add, rec)
	require.NoError(t, err)
	require.True(t, got.IsNull())

	eq := Binary(Eq, intCol(0), intCol(1), types.FieldType{Kind: types.KindBoolean})
	got, err = Eval(eq, rec)
	require.NoError(t, err)
	require.True(t, got.IsNull())
}

func TestEvalPredicateTreatsNullAsUnknown(t *testing.T) {
	rec := types.Record{types.Null}
	pred := IsNull(Literal(types.NewInt(1)))
	tri, err := EvalPredicate(pred, rec)
	require.NoError(t, err)
	require.Equal(t, types.False, tri)

	nullPred := Binary(Eq, intCol(0), Literal(types.NewInt(1)), types.FieldType{Kind: types.KindBoolean})
	tri, err = EvalPredicate(nullPred, rec)
	require.NoError(t, err)
	require.Equal(t, types.Unknown, tri)
	require.False(t, tri.Passes())
}

func TestEvalThreeValuedAndOr(t *testing.T) {
	falseVal := Literal(types.NewBoolean(false))
	trueVal := Literal(types.NewBoolean(true))
	nullVal := Literal(types.Null)

	got, err := Eval(Binary(And, falseVal, nullVal, types.FieldType{Kind: types.KindBoolean}), nil)
	require.NoError(t, err)
	require.False(t, got.Boolean())

	got, err = Eval(Binary(And, trueVal, nullVal, types.FieldType{Kind: types.KindBoolean}), nil)
	require.NoError(t, err)
	require.True(t, got.IsNull())

	got, err = Eval(Binary(Or, trueVal, nullVal, types.FieldType{Kind: types.KindBoolean}), nil)
	require.NoError(t, err)
	require.True(t, got.Boolean())

	got, err = Eval(Binary(Or, falseVal, nullVal, types.FieldType{Kind: types.KindBoolean}), nil)
	require.NoError(t, err)
	require.True(t, got.IsNull())
}

func TestEvalCase(t *testing.T) {
	rec := types.Record{types.NewInt(5)}
	branches := []CaseBranch{
		{
			Cond:   Binary(Gt, intCol(0), Literal(types.NewInt(10)), types.FieldType{Kind: types.KindBoolean}),
			Result: Literal(types.NewString("big")),
		},
		{
			Cond:   Binary(Gt, intCol(0), Literal(types.NewInt(0)), types.FieldType{Kind: types.KindBoolean}),
			Result: Literal(types.NewString("small")),
		},
	}
	c := Case(branches, Literal(types.NewString("none")), types.FieldType{Kind: types.KindString})
	got, err := Eval(c, rec)
	require.NoError(t, err)
	require.Equal(t, "small", got.String())
}

func TestEvalIn(t *testing.T) {
	rec := types.Record{types.NewInt(2)}
	list := []*Expr{Literal(types.NewInt(1)), Literal(types.NewInt(2)), Literal(types.NewInt(3))}
	got, err := Eval(In(intCol(0), list), rec)
	require.NoError(t, err)
	require.True(t, got.Boolean())

	missing := []*Expr{Literal(types.NewInt(1)), Literal(types.NewInt(3))}
	got, err = Eval(In(intCol(0), missing), rec)
	require.NoError(t, err)
	require.False(t, got.Boolean())

	withNull := []*Expr{Literal(types.NewInt(1)), Literal(types.Null)}
	got, err = Eval(In(intCol(0), withNull), rec)
	require.NoError(t, err)
	require.True(t, got.IsNull())
}

func TestEvalLike(t *testing.T) {
	rec := types.Record{types.NewString("hello world")}
	col := Column(0, types.FieldType{Kind: types.KindString})

	got, err := Eval(Like(col, Literal(types.NewString("hello%")), 0), rec)
	require.NoError(t, err)
	require.True(t, got.Boolean())

	got, err = Eval(Like(col, Literal(types.NewString("h_llo%")), 0), rec)
	require.NoError(t, err)
	require.True(t, got.Boolean())

	got, err = Eval(Like(col, Literal(types.NewString("bye%")), 0), rec)
	require.NoError(t, err)
	require.False(t, got.Boolean())
}

func TestEvalCast(t *testing.T) {
	rec := types.Record{types.NewString("42")}
	col := Column(0, types.FieldType{Kind: types.KindString})

	got, err := Eval(Cast(col, types.FieldType{Kind: types.KindInt}), rec)
	require.NoError(t, err)
	require.Equal(t, int64(42), got.Int())

	badRec := types.Record{types.NewString("not-a-number")}
	_, err = Eval(Cast(col, types.FieldType{Kind: types.KindInt}), badRec)
	require.Error(t, err)
	var castErr *types.CastError
	require.ErrorAs(t, err, &castErr)
}

func TestEvalWithPolicy(t *testing.T) {
	rec := types.Record{types.NewString("nope")}
	col := Column(0, types.FieldType{Kind: types.KindString})
	badCast := Cast(col, types.FieldType{Kind: types.KindInt})

	result, ok, err := EvalWithPolicy(badCast, rec, PolicyDrop)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, types.Field{}, result)

	_, ok, err = EvalWithPolicy(badCast, rec, PolicyPropagate)
	require.False(t, ok)
	require.Error(t, err)
}

func TestCallFunctionBuiltins(t *testing.T) {
	got, err := CallFunction("upper", []types.Field{types.NewString("abc")})
	require.NoError(t, err)
	require.Equal(t, "ABC", got.String())

	got, err = CallFunction("COALESCE", []types.Field{types.Null, types.Null, types.NewInt(9)})
	require.NoError(t, err)
	require.Equal(t, int64(9), got.Int())

	_, err = CallFunction("NOPE", nil)
	require.Error(t, err)
}
