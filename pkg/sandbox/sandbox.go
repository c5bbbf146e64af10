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

// Package sandbox compiles and evaluates restricted expressions.
//
// Expressions are parsed with the CEL parser and then validated against a
// whitelist of constructs before any evaluation happens. Name resolution,
// attribute access on anything but plain maps, and every function outside
// the whitelist are rejected at compile time, so user-supplied expressions
// cannot reach the host process. Evaluation runs in a dedicated interpreter
// over the parsed tree with plain Go values (nil, bool, int64, float64,
// string, []any, map[string]any).
//
// Arithmetic follows CEL for integers (int / int is integer division) and
// promotes to float64 when either operand is a float. Conditions accept
// truthy values: empty strings, empty collections, zero and nil are false.
package sandbox

import (
	"fmt"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
)

// DisallowedError reports an expression construct outside the whitelist.
type DisallowedError struct {
	Construct string
}

func (e *DisallowedError) Error() string {
	return fmt.Sprintf("expression uses disallowed construct %q", e.Construct)
}

// Program is a compiled, validated expression ready for evaluation.
type Program struct {
	source string
	expr   celast.Expr
	vars   []string
}

// Compile parses and validates an expression. Any construct outside the
// whitelist fails compilation with a *DisallowedError naming it.
func Compile(source string) (*Program, error) {
	env, err := cel.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("expression environment: %w", err)
	}

	ast, issues := env.Parse(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("parse expression: %w", issues.Err())
	}

	expr := ast.NativeRep().Expr()

	v := newValidator()
	if err := v.validate(expr); err != nil {
		return nil, err
	}

	return &Program{
		source: source,
		expr:   expr,
		vars:   v.freeVars(),
	}, nil
}

// Source returns the original expression text.
func (p *Program) Source() string {
	return p.source
}

// Variables returns the free variable names the expression references,
// sorted and deduplicated.
func (p *Program) Variables() []string {
	return p.vars
}

// Eval evaluates the expression with the given variables in scope.
func (p *Program) Eval(vars map[string]any) (any, error) {
	scope := newScope(vars)
	return evalExpr(p.expr, scope)
}
