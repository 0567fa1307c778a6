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
)

// builtins is the registry of scalar function-call implementations
// available to Func expression nodes. It is intentionally small: the
// spec leaves the function surface open, and new entries are added
// here as the SQL layer above the engine needs them.
var builtins = map[string]func([]types.Field) (types.Field, error){
	"LENGTH":   fnLength,
	"UPPER":    fnUpper,
	"LOWER":    fnLower,
	"ABS":      fnAbs,
	"COALESCE": fnCoalesce,
	"CONCAT":   fnConcat,
}

// CallFunction dispatches name to its builtin implementation.
func CallFunction(name string, args []types.Field) (types.Field, error) {
	fn, ok := builtins[strings.ToUpper(name)]
	if !ok {
		return types.Field{}, &types.ExpressionEvalError{Reason: "unknown function " + name}
	}
	return fn(args)
}

func fnLength(args []types.Field) (types.Field, error) {
	if len(args) != 1 {
		return types.Field{}, errors.New("LENGTH takes exactly one argument")
	}
	if args[0].IsNull() {
		return types.Null, nil
	}
	return types.NewInt(int64(len(args[0].String()))), nil
}

func fnUpper(args []types.Field) (types.Field, error) {
	if len(args) != 1 {
		return types.Field{}, errors.New("UPPER takes exactly one argument")
	}
	if args[0].IsNull() {
		return types.Null, nil
	}
	return types.NewString(strings.ToUpper(args[0].String())), nil
}

func fnLower(args []types.Field) (types.Field, error) {
	if len(args) != 1 {
		return types.Field{}, errors.New("LOWER takes exactly one argument")
	}
	if args[0].IsNull() {
		return types.Null, nil
	}
	return types.NewString(strings.ToLower(args[0].String())), nil
}

func fnAbs(args []types.Field) (types.Field, error) {
	if len(args) != 1 {
		return types.Field{}, errors.New("ABS takes exactly one argument")
	}
	v := args[0]
	if v.IsNull() {
		return types.Null, nil
	}
	r := asRat(v)
	if r == nil {
		return types.Field{}, errors.New("ABS requires a numeric argument")
	}
	abs := new(big.Rat).Abs(r)
	return ratToField(abs, v.TypeOf(), "abs")
}

func fnCoalesce(args []types.Field) (types.Field, error) {
	for _, a := range args {
		if !a.IsNull() {
			return a, nil
		}
	}
	return types.Null, nil
}

func fnConcat(args []types.Field) (types.Field, error) {
	var b strings.Builder
	for _, a := range args {
		if a.IsNull() {
			continue
		}
		b.WriteString(a.String())
	}
	return types.NewString(b.String()), nil
}
