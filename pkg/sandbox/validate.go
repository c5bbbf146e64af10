// Copyright 2025 The Weft Authors
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

package sandbox

import (
	"maps"
	"slices"
	"strings"

	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
)

// allowedOperators are the operator call targets the parser may emit.
var allowedOperators = map[string]bool{
	operators.Add:                 true,
	operators.Subtract:            true,
	operators.Multiply:            true,
	operators.Divide:              true,
	operators.Modulo:              true,
	operators.Negate:              true,
	operators.LogicalNot:          true,
	operators.LogicalAnd:          true,
	operators.LogicalOr:           true,
	operators.Equals:              true,
	operators.NotEquals:           true,
	operators.Less:                true,
	operators.LessEquals:          true,
	operators.Greater:             true,
	operators.GreaterEquals:       true,
	operators.Conditional:         true,
	operators.Index:               true,
	operators.In:                  true,
	operators.OldIn:               true,
	operators.NotStrictlyFalse:    true,
	operators.OldNotStrictlyFalse: true,
}

// allowedFunctions are the callable global functions.
var allowedFunctions = map[string]bool{
	"abs":    true,
	"all":    true,
	"any":    true,
	"bool":   true,
	"double": true,
	"float":  true,
	"int":    true,
	"len":    true,
	"list":   true,
	"max":    true,
	"min":    true,
	"round":  true,
	"size":   true,
	"sorted": true,
	"str":    true,
	"string": true,
	"sum":    true,
	"tuple":  true,
}

// allowedMethods are the callable member functions.
var allowedMethods = map[string]bool{
	"contains":   true,
	"endsWith":   true,
	"endswith":   true,
	"get":        true,
	"join":       true,
	"keys":       true,
	"lower":      true,
	"replace":    true,
	"size":       true,
	"split":      true,
	"startsWith": true,
	"startswith": true,
	"strip":      true,
	"upper":      true,
	"values":     true,
}

// validator walks a parsed expression and rejects constructs outside the
// whitelist. Comprehension-bound names (including the parser's internal
// accumulator) are tracked so they pass the identifier check.
type validator struct {
	bound map[string]int
	free  map[string]bool
}

func newValidator() *validator {
	return &validator{
		bound: make(map[string]int),
		free:  make(map[string]bool),
	}
}

func (v *validator) freeVars() []string {
	return slices.Sorted(maps.Keys(v.free))
}

func (v *validator) bind(name string) {
	if name != "" {
		v.bound[name]++
	}
}

func (v *validator) unbind(name string) {
	if name == "" {
		return
	}
	v.bound[name]--
	if v.bound[name] <= 0 {
		delete(v.bound, name)
	}
}

func (v *validator) validate(expr celast.Expr) error {
	switch expr.Kind() {
	case celast.LiteralKind:
		return nil

	case celast.IdentKind:
		name := expr.AsIdent()
		if v.bound[name] > 0 {
			return nil
		}
		if strings.HasPrefix(name, "_") {
			return &DisallowedError{Construct: name}
		}
		v.free[name] = true
		return nil

	case celast.ListKind:
		for _, elem := range expr.AsList().Elements() {
			if err := v.validate(elem); err != nil {
				return err
			}
		}
		return nil

	case celast.MapKind:
		for _, entry := range expr.AsMap().Entries() {
			mapEntry := entry.AsMapEntry()
			if err := v.validate(mapEntry.Key()); err != nil {
				return err
			}
			if err := v.validate(mapEntry.Value()); err != nil {
				return err
			}
		}
		return nil

	case celast.SelectKind:
		sel := expr.AsSelect()
		if err := v.validate(sel.Operand()); err != nil {
			return err
		}
		if strings.HasPrefix(sel.FieldName(), "_") {
			return &DisallowedError{Construct: sel.FieldName()}
		}
		return nil

	case celast.CallKind:
		return v.validateCall(expr.AsCall())

	case celast.ComprehensionKind:
		return v.validateComprehension(expr.AsComprehension())

	case celast.StructKind:
		return &DisallowedError{Construct: expr.AsStruct().TypeName()}

	default:
		return &DisallowedError{Construct: "unsupported expression"}
	}
}

func (v *validator) validateCall(call celast.CallExpr) error {
	name := call.FunctionName()

	if call.IsMemberFunction() {
		// Validate the receiver first so an illegal inner construct is
		// reported rather than the method wrapping it.
		if err := v.validate(call.Target()); err != nil {
			return err
		}
		if !allowedMethods[name] {
			return &DisallowedError{Construct: name}
		}
	} else if !allowedOperators[name] && !allowedFunctions[name] {
		return &DisallowedError{Construct: name}
	}

	for _, arg := range call.Args() {
		if err := v.validate(arg); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) validateComprehension(comp celast.ComprehensionExpr) error {
	if err := v.validate(comp.IterRange()); err != nil {
		return err
	}
	if err := v.validate(comp.AccuInit()); err != nil {
		return err
	}

	v.bind(comp.IterVar())
	v.bind(comp.IterVar2())
	v.bind(comp.AccuVar())
	defer func() {
		v.unbind(comp.IterVar())
		v.unbind(comp.IterVar2())
		v.unbind(comp.AccuVar())
	}()

	if err := v.validate(comp.LoopCondition()); err != nil {
		return err
	}
	if err := v.validate(comp.LoopStep()); err != nil {
		return err
	}
	return v.validate(comp.Result())
}
