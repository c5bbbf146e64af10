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

// Package toolagent provides the single-tool leaf agent: one registry
// tool invoked with a config map whose string values may carry {key}
// placeholders resolved against session state at invocation time.
//
// The tool's result map is written to the output key as-is. Tools report
// domain failures as data (an "error" key in the result), which lands in
// state for downstream agents to branch on; only an infrastructure error
// from the tool becomes an error event.
package toolagent

import (
	"fmt"
	"iter"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/callbacks"
	"github.com/weftworks/weft/pkg/plugin"
	"github.com/weftworks/weft/pkg/template"
	"github.com/weftworks/weft/pkg/tool"
)

// Config contains the configuration for a tool agent.
type Config struct {
	// Name must be unique within the agent tree.
	Name string

	// Description describes what the agent does.
	Description string

	// Tool is the resolved registry tool to invoke.
	Tool tool.CallableTool

	// ToolConfig is the argument map. String values may contain {key}
	// placeholders; a value that is exactly "{key}" preserves the
	// underlying state value's type.
	ToolConfig map[string]any

	// OutputKey names the state slot receiving the result map.
	OutputKey string

	// Callbacks are the agent's resolved named hooks.
	Callbacks *callbacks.Set
}

type toolAgent struct {
	agent.Agent

	tool       tool.CallableTool
	toolConfig map[string]any
	outputKey  string
	callbacks  *callbacks.Set
}

// New creates a tool agent.
func New(cfg Config) (agent.Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("tool agent name is required")
	}
	if cfg.Tool == nil {
		return nil, fmt.Errorf("tool agent %q: tool is required", cfg.Name)
	}

	cbs := cfg.Callbacks
	if cbs == nil {
		cbs = &callbacks.Set{}
	}

	a := &toolAgent{
		tool:       cfg.Tool,
		toolConfig: cfg.ToolConfig,
		outputKey:  cfg.OutputKey,
		callbacks:  cbs,
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

func (a *toolAgent) run(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
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

		// Placeholder resolution never fails: a missing key stays
		// literal and surfaces in the tool's own error handling.
		args := template.ResolveConfig(cbCtx, a.toolConfig)

		toolCtx := tool.NewContext(ctx, "")
		result, err := a.callWithHooks(ctx, toolCtx, args)
		if err != nil {
			yield(a.errorEvent(ctx, err.Error()), nil)
			return
		}
		mergeActions(actions, toolCtx.Actions())

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

// callWithHooks runs the tool through the before/after hook layers:
// per-agent callbacks, then the runner's plugin chain.
func (a *toolAgent) callWithHooks(ctx agent.InvocationContext, toolCtx tool.Context, args map[string]any) (map[string]any, error) {
	for _, cb := range a.callbacks.BeforeTool {
		result, err := cb(toolCtx, a.tool, args)
		if err != nil {
			return nil, fmt.Errorf("before_tool callback: %w", err)
		}
		if result != nil {
			return result, nil
		}
	}
	chain := plugin.FromContext(ctx)
	if result, err := chain.BeforeTool(toolCtx, a.tool, args); err != nil || result != nil {
		return result, err
	}

	result, callErr := a.tool.Call(toolCtx, args)

	if replaced, err := chain.AfterTool(toolCtx, a.tool, args, result, callErr); err != nil {
		return nil, err
	} else if replaced != nil {
		return replaced, nil
	}
	for _, cb := range a.callbacks.AfterTool {
		replaced, err := cb(toolCtx, a.tool, args, result, callErr)
		if err != nil {
			return nil, fmt.Errorf("after_tool callback: %w", err)
		}
		if replaced != nil {
			return replaced, nil
		}
	}

	return result, callErr
}

func mergeActions(dst, src *agent.EventActions) {
	if src == nil {
		return
	}
	for k, v := range src.StateDelta {
		if dst.StateDelta == nil {
			dst.StateDelta = make(map[string]any)
		}
		dst.StateDelta[k] = v
	}
	for name, version := range src.ArtifactDelta {
		if dst.ArtifactDelta == nil {
			dst.ArtifactDelta = make(map[string]int64)
		}
		dst.ArtifactDelta[name] = version
	}
	if src.Escalate {
		dst.Escalate = true
	}
	if src.SkipSummarization {
		dst.SkipSummarization = true
	}
	if src.TransferToAgent != "" {
		dst.TransferToAgent = src.TransferToAgent
	}
}

func (a *toolAgent) finalEvent(ctx agent.InvocationContext, content *agent.Content, actions *agent.EventActions) *agent.Event {
	ev := agent.NewEvent(ctx.InvocationID())
	ev.Author = a.Name()
	ev.Branch = ctx.Branch()
	ev.Message = content.ToMessage()
	ev.Actions = *actions
	ev.TurnComplete = true
	return ev
}

func (a *toolAgent) errorEvent(ctx agent.InvocationContext, message string) *agent.Event {
	ev := agent.NewErrorEvent(ctx.InvocationID(), a.Name(), "tool_error", message)
	ev.Branch = ctx.Branch()
	return ev
}
