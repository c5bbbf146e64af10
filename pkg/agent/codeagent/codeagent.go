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

// Package codeagent provides the registered-function leaf agent.
//
// Workflow definitions reference functions by dotted path
// ("myapp.transform.clean"); Go code registers the implementations at
// process start:
//
//	codeagent.Register("myapp.transform.clean", func(ctx context.Context, kwargs map[string]any) (any, error) {
//	    ...
//	})
//
// The registry freezes with the rest of the boot-time registries. An
// unknown path at construction is a hydration failure; a function error
// or panic at run time becomes an error event with an empty delta.
package codeagent

import (
	"context"
	"fmt"
	"iter"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/callbacks"
	"github.com/weftworks/weft/pkg/registry"
	"github.com/weftworks/weft/pkg/template"
)

// Func is a callable a code agent can invoke. The kwargs map carries the
// agent's input keys resolved from session state; keys absent from state
// are absent from the map. The function must honor ctx.
type Func func(ctx context.Context, kwargs map[string]any) (any, error)

var functions = registry.NewBaseRegistry[Func]()

// Register adds a function under a dotted path. Registering the same
// path twice replaces the earlier function; registration after Freeze
// fails.
func Register(path string, fn Func) error {
	return functions.Put(path, fn)
}

// Freeze makes the function registry read-only. Called once boot
// completes.
func Freeze() {
	functions.Freeze()
}

// Names returns the registered function paths.
func Names() []string {
	return functions.Names()
}

// Config contains the configuration for a code agent.
type Config struct {
	// Name must be unique within the agent tree.
	Name string

	// Description describes what the agent computes.
	Description string

	// Function is the dotted path of a registered Func.
	Function string

	// InputKeys name the state slots passed as kwargs.
	InputKeys []string

	// OutputKey names the state slot receiving the result.
	OutputKey string

	// Callbacks are the agent's resolved named hooks; only the agent
	// hook points apply to this kind.
	Callbacks *callbacks.Set
}

type codeAgent struct {
	agent.Agent

	fn        Func
	fnPath    string
	inputKeys []string
	outputKey string
	callbacks *callbacks.Set
}

// New creates a code agent, resolving the function path up front.
func New(cfg Config) (agent.Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("code agent name is required")
	}
	fn, ok := functions.Get(cfg.Function)
	if !ok {
		return nil, fmt.Errorf("code agent %q: no function registered at %q", cfg.Name, cfg.Function)
	}

	cbs := cfg.Callbacks
	if cbs == nil {
		cbs = &callbacks.Set{}
	}

	a := &codeAgent{
		fn:        fn,
		fnPath:    cfg.Function,
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

func (a *codeAgent) run(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
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

		kwargs := make(map[string]any, len(a.inputKeys))
		state := ctx.Session().State()
		for _, key := range a.inputKeys {
			if value, err := state.Get(key); err == nil {
				kwargs[key] = value
			}
		}

		result, err := a.invoke(ctx, kwargs)
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

// invoke runs the function on its own goroutine so a function that
// ignores ctx cannot wedge the scheduler, and converts panics into
// errors.
func (a *codeAgent) invoke(ctx agent.InvocationContext, kwargs map[string]any) (any, error) {
	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panicked: %v", r)}
			}
		}()
		value, err := a.fn(ctx, kwargs)
		done <- outcome{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			return nil, fmt.Errorf("function %s: %w", a.fnPath, out.err)
		}
		return out.value, nil
	}
}

func (a *codeAgent) finalEvent(ctx agent.InvocationContext, content *agent.Content, actions *agent.EventActions) *agent.Event {
	ev := agent.NewEvent(ctx.InvocationID())
	ev.Author = a.Name()
	ev.Branch = ctx.Branch()
	ev.Message = content.ToMessage()
	ev.Actions = *actions
	ev.TurnComplete = true
	return ev
}

func (a *codeAgent) errorEvent(ctx agent.InvocationContext, message string) *agent.Event {
	ev := agent.NewErrorEvent(ctx.InvocationID(), a.Name(), "code_error", message)
	ev.Branch = ctx.Branch()
	return ev
}
