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
	"fmt"
	"math"
	"sort"
	"strings"

	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// binding is a comprehension-scoped variable.
type binding struct {
	name  string
	value any
}

// scope resolves identifiers: comprehension bindings shadow input variables.
type scope struct {
	vars  map[string]any
	stack []binding
}

func newScope(vars map[string]any) *scope {
	return &scope{vars: vars}
}

func (s *scope) lookup(name string) (any, bool) {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].name == name {
			return s.stack[i].value, true
		}
	}
	v, ok := s.vars[name]
	if !ok {
		return nil, false
	}
	return normalize(v), true
}

func (s *scope) push(name string, value any) {
	s.stack = append(s.stack, binding{name: name, value: value})
}

func (s *scope) pop(n int) {
	s.stack = s.stack[:len(s.stack)-n]
}

// set updates the topmost binding with the given name.
func (s *scope) set(name string, value any) {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].name == name {
			s.stack[i].value = value
			return
		}
	}
}

func evalExpr(expr celast.Expr, sc *scope) (any, error) {
	switch expr.Kind() {
	case celast.LiteralKind:
		return literalValue(expr.AsLiteral()), nil

	case celast.IdentKind:
		name := expr.AsIdent()
		value, ok := sc.lookup(name)
		if !ok {
			return nil, fmt.Errorf("undefined variable %q", name)
		}
		return value, nil

	case celast.ListKind:
		elements := expr.AsList().Elements()
		result := make([]any, 0, len(elements))
		for _, elem := range elements {
			value, err := evalExpr(elem, sc)
			if err != nil {
				return nil, err
			}
			result = append(result, value)
		}
		return result, nil

	case celast.MapKind:
		entries := expr.AsMap().Entries()
		result := make(map[string]any, len(entries))
		for _, entry := range entries {
			mapEntry := entry.AsMapEntry()
			key, err := evalExpr(mapEntry.Key(), sc)
			if err != nil {
				return nil, err
			}
			keyStr, ok := key.(string)
			if !ok {
				return nil, fmt.Errorf("map keys must be strings, got %s", typeName(key))
			}
			value, err := evalExpr(mapEntry.Value(), sc)
			if err != nil {
				return nil, err
			}
			result[keyStr] = value
		}
		return result, nil

	case celast.SelectKind:
		return evalSelect(expr.AsSelect(), sc)

	case celast.CallKind:
		return evalCall(expr.AsCall(), sc)

	case celast.ComprehensionKind:
		return evalComprehension(expr.AsComprehension(), sc)

	default:
		return nil, fmt.Errorf("unsupported expression kind")
	}
}

func evalSelect(sel celast.SelectExpr, sc *scope) (any, error) {
	operand, err := evalExpr(sel.Operand(), sc)
	if err != nil {
		return nil, err
	}
	m, ok := operand.(map[string]any)
	if !ok {
		if sel.IsTestOnly() {
			return false, nil
		}
		return nil, fmt.Errorf("cannot access field %q on %s", sel.FieldName(), typeName(operand))
	}
	value, present := m[sel.FieldName()]
	if sel.IsTestOnly() {
		return present, nil
	}
	if !present {
		return nil, fmt.Errorf("no such key %q", sel.FieldName())
	}
	return value, nil
}

func evalCall(call celast.CallExpr, sc *scope) (any, error) {
	name := call.FunctionName()

	if call.IsMemberFunction() {
		receiver, err := evalExpr(call.Target(), sc)
		if err != nil {
			return nil, err
		}
		args, err := evalArgs(call.Args(), sc)
		if err != nil {
			return nil, err
		}
		return callMethod(receiver, name, args)
	}

	// Short-circuiting forms evaluate their own operands.
	switch name {
	case operators.Conditional:
		args := call.Args()
		if len(args) != 3 {
			return nil, fmt.Errorf("conditional expects 3 operands")
		}
		cond, err := evalExpr(args[0], sc)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return evalExpr(args[1], sc)
		}
		return evalExpr(args[2], sc)

	case operators.LogicalAnd:
		args := call.Args()
		left, err := evalExpr(args[0], sc)
		if err != nil {
			return nil, err
		}
		if !truthy(left) {
			return false, nil
		}
		right, err := evalExpr(args[1], sc)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil

	case operators.LogicalOr:
		args := call.Args()
		left, err := evalExpr(args[0], sc)
		if err != nil {
			return nil, err
		}
		if truthy(left) {
			return true, nil
		}
		right, err := evalExpr(args[1], sc)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	}

	args, err := evalArgs(call.Args(), sc)
	if err != nil {
		return nil, err
	}

	switch name {
	case operators.LogicalNot:
		return !truthy(args[0]), nil
	case operators.NotStrictlyFalse, operators.OldNotStrictlyFalse:
		if b, ok := args[0].(bool); ok {
			return b, nil
		}
		return true, nil
	case operators.Equals:
		return equals(args[0], args[1]), nil
	case operators.NotEquals:
		return !equals(args[0], args[1]), nil
	case operators.Less, operators.LessEquals, operators.Greater, operators.GreaterEquals:
		cmp, err := compare(args[0], args[1])
		if err != nil {
			return nil, err
		}
		switch name {
		case operators.Less:
			return cmp < 0, nil
		case operators.LessEquals:
			return cmp <= 0, nil
		case operators.Greater:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	case operators.Add:
		return opAdd(args[0], args[1])
	case operators.Subtract:
		return opArith(name, args[0], args[1])
	case operators.Multiply:
		return opArith(name, args[0], args[1])
	case operators.Divide:
		return opArith(name, args[0], args[1])
	case operators.Modulo:
		return opArith(name, args[0], args[1])
	case operators.Negate:
		return opNegate(args[0])
	case operators.Index:
		return opIndex(args[0], args[1])
	case operators.In, operators.OldIn:
		return opIn(args[0], args[1])
	}

	return callFunction(name, args)
}

func evalArgs(exprs []celast.Expr, sc *scope) ([]any, error) {
	args := make([]any, len(exprs))
	for i, e := range exprs {
		value, err := evalExpr(e, sc)
		if err != nil {
			return nil, err
		}
		args[i] = value
	}
	return args, nil
}

func evalComprehension(comp celast.ComprehensionExpr, sc *scope) (any, error) {
	rangeVal, err := evalExpr(comp.IterRange(), sc)
	if err != nil {
		return nil, err
	}

	accu, err := evalExpr(comp.AccuInit(), sc)
	if err != nil {
		return nil, err
	}

	sc.push(comp.AccuVar(), accu)
	defer sc.pop(1)

	twoVar := comp.IterVar2() != ""

	iterate := func(first, second any) (bool, error) {
		bound := 1
		sc.push(comp.IterVar(), first)
		if twoVar {
			sc.push(comp.IterVar2(), second)
			bound = 2
		}
		defer sc.pop(bound)

		cond, err := evalExpr(comp.LoopCondition(), sc)
		if err != nil {
			return false, err
		}
		if !truthy(cond) {
			return false, nil
		}
		next, err := evalExpr(comp.LoopStep(), sc)
		if err != nil {
			return false, err
		}
		sc.set(comp.AccuVar(), next)
		return true, nil
	}

	switch r := rangeVal.(type) {
	case []any:
		for i, elem := range r {
			first, second := elem, any(nil)
			if twoVar {
				first, second = int64(i), elem
			}
			cont, err := iterate(first, second)
			if err != nil {
				return nil, err
			}
			if !cont {
				break
			}
		}
	case map[string]any:
		keys := sortedKeys(r)
		for _, key := range keys {
			cont, err := iterate(key, r[key])
			if err != nil {
				return nil, err
			}
			if !cont {
				break
			}
		}
	default:
		return nil, fmt.Errorf("cannot iterate over %s", typeName(rangeVal))
	}

	return evalExpr(comp.Result(), sc)
}

// literalValue converts a parsed literal to the interpreter's value model.
func literalValue(val ref.Val) any {
	if _, ok := val.(types.Null); ok {
		return nil
	}
	return normalize(val.Value())
}

// normalize coerces input values into the interpreter's value model.
func normalize(v any) any {
	switch n := v.(type) {
	case nil, bool, int64, float64, string, []any, map[string]any:
		return n
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case float32:
		return float64(n)
	}
	return v
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truthy implements condition semantics: nil, false, zero and empty
// collections are false, everything else is true.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

// toNumber extracts a numeric value. isInt reports an integer source.
func toNumber(v any) (i int64, f float64, isInt bool, err error) {
	switch n := normalize(v).(type) {
	case int64:
		return n, float64(n), true, nil
	case float64:
		return 0, n, false, nil
	}
	return 0, 0, false, fmt.Errorf("expected number, got %s", typeName(v))
}

func opAdd(l, r any) (any, error) {
	if ls, ok := l.(string); ok {
		if rs, ok := r.(string); ok {
			return ls + rs, nil
		}
	}
	if ll, ok := l.([]any); ok {
		if rl, ok := r.([]any); ok {
			out := make([]any, 0, len(ll)+len(rl))
			out = append(out, ll...)
			out = append(out, rl...)
			return out, nil
		}
	}
	return opArith(operators.Add, l, r)
}

// opArith applies a binary arithmetic operator. Two integers stay integer
// (integer division included); a float operand promotes both to float.
func opArith(op string, l, r any) (any, error) {
	li, lf, lInt, err := toNumber(l)
	if err != nil {
		return nil, fmt.Errorf("operator %s: %w", opSymbol(op), err)
	}
	ri, rf, rInt, err := toNumber(r)
	if err != nil {
		return nil, fmt.Errorf("operator %s: %w", opSymbol(op), err)
	}

	if lInt && rInt {
		switch op {
		case operators.Add:
			return li + ri, nil
		case operators.Subtract:
			return li - ri, nil
		case operators.Multiply:
			return li * ri, nil
		case operators.Divide:
			if ri == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return li / ri, nil
		case operators.Modulo:
			if ri == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return li % ri, nil
		}
	}

	switch op {
	case operators.Add:
		return lf + rf, nil
	case operators.Subtract:
		return lf - rf, nil
	case operators.Multiply:
		return lf * rf, nil
	case operators.Divide:
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case operators.Modulo:
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return math.Mod(lf, rf), nil
	}
	return nil, fmt.Errorf("unknown arithmetic operator %s", op)
}

func opNegate(v any) (any, error) {
	i, f, isInt, err := toNumber(v)
	if err != nil {
		return nil, err
	}
	if isInt {
		return -i, nil
	}
	return -f, nil
}

func opIndex(container, key any) (any, error) {
	switch c := container.(type) {
	case []any:
		idx, err := listIndex(key, len(c))
		if err != nil {
			return nil, err
		}
		return c[idx], nil
	case map[string]any:
		keyStr, ok := key.(string)
		if !ok {
			return nil, fmt.Errorf("map index must be a string, got %s", typeName(key))
		}
		value, present := c[keyStr]
		if !present {
			return nil, fmt.Errorf("no such key %q", keyStr)
		}
		return value, nil
	case string:
		runes := []rune(c)
		idx, err := listIndex(key, len(runes))
		if err != nil {
			return nil, err
		}
		return string(runes[idx]), nil
	}
	return nil, fmt.Errorf("cannot index %s", typeName(container))
}

// listIndex resolves an index, supporting negative offsets from the end.
func listIndex(key any, length int) (int, error) {
	i, _, isInt, err := toNumber(key)
	if err != nil || !isInt {
		return 0, fmt.Errorf("index must be an integer, got %s", typeName(key))
	}
	idx := int(i)
	if idx < 0 {
		idx += length
	}
	if idx < 0 || idx >= length {
		return 0, fmt.Errorf("index %d out of range (length %d)", i, length)
	}
	return idx, nil
}

func opIn(needle, haystack any) (any, error) {
	switch h := haystack.(type) {
	case []any:
		for _, elem := range h {
			if equals(needle, elem) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		keyStr, ok := needle.(string)
		if !ok {
			return false, nil
		}
		_, present := h[keyStr]
		return present, nil
	case string:
		sub, ok := needle.(string)
		if !ok {
			return nil, fmt.Errorf("operator in: expected string, got %s", typeName(needle))
		}
		return strings.Contains(h, sub), nil
	}
	return nil, fmt.Errorf("operator in: cannot search %s", typeName(haystack))
}

// equals compares values with cross-type numeric equality.
func equals(l, r any) bool {
	l, r = normalize(l), normalize(r)

	if l == nil || r == nil {
		return l == nil && r == nil
	}

	_, lf, _, lerr := toNumber(l)
	_, rf, _, rerr := toNumber(r)
	if lerr == nil && rerr == nil {
		return lf == rf
	}

	switch lv := l.(type) {
	case string:
		rv, ok := r.(string)
		return ok && lv == rv
	case bool:
		rv, ok := r.(bool)
		return ok && lv == rv
	case []any:
		rv, ok := r.([]any)
		if !ok || len(lv) != len(rv) {
			return false
		}
		for i := range lv {
			if !equals(lv[i], rv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		rv, ok := r.(map[string]any)
		if !ok || len(lv) != len(rv) {
			return false
		}
		for k, v := range lv {
			rvv, present := rv[k]
			if !present || !equals(v, rvv) {
				return false
			}
		}
		return true
	}
	return false
}

// compare orders two values. Numbers compare across int and float.
func compare(l, r any) (int, error) {
	l, r = normalize(l), normalize(r)

	_, lf, _, lerr := toNumber(l)
	_, rf, _, rerr := toNumber(r)
	if lerr == nil && rerr == nil {
		switch {
		case lf < rf:
			return -1, nil
		case lf > rf:
			return 1, nil
		default:
			return 0, nil
		}
	}

	if ls, ok := l.(string); ok {
		if rs, ok := r.(string); ok {
			switch {
			case ls < rs:
				return -1, nil
			case ls > rs:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}

	if lb, ok := l.(bool); ok {
		if rb, ok := r.(bool); ok {
			switch {
			case lb == rb:
				return 0, nil
			case rb:
				return -1, nil
			default:
				return 1, nil
			}
		}
	}

	return 0, fmt.Errorf("cannot compare %s and %s", typeName(l), typeName(r))
}

func typeName(v any) string {
	switch normalize(v).(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "string"
	case []any:
		return "list"
	case map[string]any:
		return "map"
	}
	return fmt.Sprintf("%T", v)
}

func opSymbol(op string) string {
	switch op {
	case operators.Add:
		return "+"
	case operators.Subtract:
		return "-"
	case operators.Multiply:
		return "*"
	case operators.Divide:
		return "/"
	case operators.Modulo:
		return "%"
	}
	return op
}
