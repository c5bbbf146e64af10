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

// Package expragent provides the expression leaf agent: a sandboxed
// expression evaluated against named session state slots.
//
// The expression compiles once at construction; a forbidden construct is
// a configuration error and fails hydration. Evaluation errors at run
// time (undefined variable, type error, division by zero) become error
// events with an empty state delta, so downstream agents observe the
// missing output key and fail on their own terms.
package expragent

import (
	"fmt"
	"iter"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/callbacks"
	"github.com/weftworks/weft/pkg/sandbox"
	"github.com/weftworks/weft/pkg/template"
)

// Config contains the configuration for an expression agent.
type Config struct {
	// Name must be unique within the agent tree.
	Name string

	// Description describes what the agent computes.
	Description string

	// Expression is the restricted expression source.
	Expression string

	// InputKeys name the state slots exposed as variables.
	InputKeys []string

	// OutputKey names the state slot receiving the result.
	OutputKey string

	// Callbacks are the agent's resolved named hooks; only the agent
	// hook points apply to this kind.
	Callbacks *callbacks.Set
}

type exprAgent struct {
	agent.Agent

	program   *sandbox.Program
	inputKeys []string
	outputKey string
	callbacks *callbacks.Set
}

// New creates an expression agent, compiling and whitelisting the
// expression up front.
func New(cfg Config) (agent.Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("expression agent name is required")
	}
	program, err := sandbox.Compile(cfg.Expression)
	if err != nil {
		return nil, fmt.Errorf("expression agent %q: %w", cfg.Name, err)
	}

	cbs := cfg.Callbacks
	if cbs == nil {
		cbs = &callbacks.Set{}
	}

	a := &exprAgent{
		program:   program,
		inputKeys: cfg.InputKeys,
		outputKey: cfg.OutputKey,
		callbacks: cbs,
	}
	base, err := agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		Run:         a.run,
	})
	if err != nil {
		return nil, err
	}
	a.Agent = base
	return a, nil
}

func (a *exprAgent) run(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		defer func() {
			if r := recover(); r != nil {
				yield(a.errorEvent(ctx, fmt.Sprintf("internal failure: %v", r)), nil)
			}
		}()

		actions := &agent.EventActions{StateDelta: make(map[string]any)}
		cbCtx := agent.NewCallbackContext(ctx, actions)

		for _, cb := range a.callbacks.BeforeAgent {
			content, err := cb(cbCtx)
			if err != nil {
				yield(a.errorEvent(ctx, fmt.Sprintf("before_agent callback: %v", err)), nil)
				return
			}
			if content != nil {
				yield(a.finalEvent(ctx, content, actions), nil)
				return
			}
		}

		// Expose only the keys that exist; the interpreter reports an
		// absent input as an undefined variable.
		vars := make(map[string]any, len(a.inputKeys))
		state := ctx.Session().State()
		for _, key := range a.inputKeys {
			if value, err := state.Get(key); err == nil {
				vars[key] = value
			}
		}

		result, err := a.program.Eval(vars)
		if err != nil {
			yield(a.errorEvent(ctx, err.Error()), nil)
			return
		}

		// after_agent hooks run before the state write so a hook error
		// leaves the session untouched.
		content := agent.NewTextContent(template.Stringify(result), a2a.MessageRoleAgent)
		for _, cb := range a.callbacks.AfterAgent {
			replaced, err := cb(cbCtx)
			if err != nil {
				yield(a.errorEvent(ctx, fmt.Sprintf("after_agent callback: %v", err)), nil)
				return
			}
			if replaced != nil {
				content = replaced
			}
		}

		if a.outputKey != "" {
			if err := cbCtx.State().Set(a.outputKey, result); err != nil {
				yield(a.errorEvent(ctx, fmt.Sprintf("write %s: %v", a.outputKey, err)), nil)
				return
			}
		}

		yield(a.finalEvent(ctx, content, actions), nil)
	}
}

func (a *exprAgent) finalEvent(ctx agent.InvocationContext, content *agent.Content, actions *agent.EventActions) *agent.Event {
	ev := agent.NewEvent(ctx.InvocationID())
	ev.Author = a.Name()
	ev.Branch = ctx.Branch()
	ev.Message = content.ToMessage()
	ev.Actions = *actions
	ev.TurnComplete = true
	return ev
}

func (a *exprAgent) errorEvent(ctx agent.InvocationContext, message string) *agent.Event {
	ev := agent.NewErrorEvent(ctx.InvocationID(), a.Name(), "expression_error", message)
	ev.Branch = ctx.Branch()
	return ev
}
