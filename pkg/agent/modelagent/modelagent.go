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

// Package modelagent provides the model-backed leaf agent.
//
// A model agent resolves its instruction template against session state,
// runs a bounded call-tools-call loop against its LLM, and emits exactly
// one non-partial event: on success the event carries the final text (or
// structured value) and a state delta writing the agent's output key; on
// failure it is an error event with an empty delta. Streaming mode adds
// partial events before the final one.
//
//	ag, err := modelagent.New(modelagent.Config{
//	    Name:        "summarizer",
//	    Model:       llm,
//	    Instruction: "Summarize {article} in two sentences.",
//	    OutputKey:   "summary",
//	})
package modelagent

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/callbacks"
	"github.com/weftworks/weft/pkg/model"
	"github.com/weftworks/weft/pkg/plugin"
	"github.com/weftworks/weft/pkg/template"
	"github.com/weftworks/weft/pkg/tool"
	"github.com/weftworks/weft/pkg/tool/controltool"
)

// defaultMaxToolRounds bounds the internal reasoning loop. It is a
// safety limit, not a tuning knob; normal flows end when the model
// stops requesting tools.
const defaultMaxToolRounds = 16

// maxPluginRetries bounds consecutive model retries requested by
// plugins (reflect_and_retry), independent of the plugin's own budget.
const maxPluginRetries = 3

// Config contains the configuration for a model agent.
type Config struct {
	// Name must be unique within the agent tree.
	Name string

	// Description helps routers and cards describe the agent.
	Description string

	// Model is the LLM to use for generation.
	Model model.LLM

	// Instruction guides the agent. {key} placeholders resolve against
	// session state at invocation time; a missing required key fails
	// the execution.
	Instruction string

	// GenerateConfig carries per-agent generation settings.
	GenerateConfig *model.GenerateConfig

	// Tools available to the agent.
	Tools []tool.Tool

	// Toolsets provide dynamic tool resolution (MCP servers).
	Toolsets []tool.Toolset

	// OutputKey names the state slot receiving the agent's output.
	OutputKey string

	// OutputSchema, when set, constrains the output to a JSON object
	// and records the decoded value instead of raw text.
	OutputSchema map[string]any

	// InputSchema describes expected input when the agent is exposed
	// as a tool. Not enforced here.
	InputSchema map[string]any

	// Planner shapes the reasoning style. Nil means none.
	Planner Planner

	// Callbacks are the agent's resolved named hooks.
	Callbacks *callbacks.Set

	// MaxToolRounds overrides the reasoning-loop safety bound.
	MaxToolRounds int
}

type modelAgent struct {
	agent.Agent

	model          model.LLM
	instruction    string
	generateConfig *model.GenerateConfig
	tools          []tool.Tool
	toolsets       []tool.Toolset
	outputKey      string
	outputSchema   map[string]any
	inputSchema    map[string]any
	planner        Planner
	callbacks      *callbacks.Set
	maxToolRounds  int
}

// New creates a model agent.
func New(cfg Config) (agent.Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("model agent name is required")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("model agent %q: model is required", cfg.Name)
	}

	cbs := cfg.Callbacks
	if cbs == nil {
		cbs = &callbacks.Set{}
	}
	maxRounds := cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}

	a := &modelAgent{
		model:          cfg.Model,
		instruction:    cfg.Instruction,
		generateConfig: cfg.GenerateConfig,
		tools:          cfg.Tools,
		toolsets:       cfg.Toolsets,
		outputKey:      cfg.OutputKey,
		outputSchema:   cfg.OutputSchema,
		inputSchema:    cfg.InputSchema,
		planner:        cfg.Planner,
		callbacks:      cbs,
		maxToolRounds:  maxRounds,
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

// InputSchema returns the agent's declared input schema, if any.
// Used by agent-as-tool wrappers to build their parameter schema.
func (a *modelAgent) InputSchema() map[string]any {
	return a.inputSchema
}

func (a *modelAgent) run(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		// A leaf never lets a panic escape: whatever happens inside
		// becomes an error event on the stream.
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Model agent panicked", "agent", a.Name(), "panic", r)
				yield(agent.NewErrorEvent(ctx.InvocationID(), a.Name(),
					"agent_error", fmt.Sprintf("internal failure: %v", r)), nil)
			}
		}()

		actions := &agent.EventActions{StateDelta: make(map[string]any)}
		cbCtx := agent.NewCallbackContext(ctx, actions)

		// before_agent hooks may short-circuit the whole execution.
		for _, cb := range a.callbacks.BeforeAgent {
			content, err := cb(cbCtx)
			if err != nil {
				yield(a.errorEvent(ctx, "callback_error", fmt.Sprintf("before_agent callback: %v", err)), nil)
				return
			}
			if content != nil {
				yield(a.finalEvent(ctx, content, actions), nil)
				return
			}
		}

		instruction, err := template.InjectState(cbCtx, a.instruction)
		if err != nil {
			yield(a.errorEvent(ctx, "template_error", fmt.Sprintf("resolve instruction: %v", err)), nil)
			return
		}

		ev := a.converse(ctx, cbCtx, instruction, actions, yield)
		if ev != nil {
			yield(ev, nil)
		}
	}
}

// converse runs the bounded reasoning loop and returns the single final
// event, or nil when the consumer stopped during streaming.
func (a *modelAgent) converse(
	ctx agent.InvocationContext,
	cbCtx agent.CallbackContext,
	instruction string,
	actions *agent.EventActions,
	yield func(*agent.Event, error) bool,
) *agent.Event {
	system := instruction
	genCfg := a.generateConfig.Clone()
	if genCfg == nil {
		genCfg = &model.GenerateConfig{}
	}
	if a.planner != nil {
		if pi := a.planner.Instruction(); pi != "" {
			if system != "" {
				system += "\n\n"
			}
			system += pi
		}
		a.planner.ApplyConfig(genCfg)
	}
	if a.outputSchema != nil {
		genCfg.ResponseMIMEType = "application/json"
		genCfg.ResponseSchema = a.outputSchema
	}

	transcript := a.buildTranscript(ctx)
	defs := a.collectToolDefinitions(ctx)

	retries := 0
	for round := 0; round < a.maxToolRounds; round++ {
		if ctx.Err() != nil {
			return a.errorEvent(ctx, "cancelled", ctx.Err().Error())
		}
		if ctx.Ended() {
			return nil
		}

		req := &model.Request{
			Messages:          transcript,
			Tools:             defs,
			Config:            genCfg,
			SystemInstruction: system,
		}

		resp, err := a.callModel(ctx, cbCtx, req, yield)
		if err != nil {
			if errors.Is(err, plugin.ErrRetry) && retries < maxPluginRetries {
				retries++
				slog.Debug("Retrying model call on plugin request",
					"agent", a.Name(), "attempt", retries, "reason", err)
				transcript = append(transcript, a2a.NewMessage(a2a.MessageRoleUser,
					a2a.TextPart{Text: fmt.Sprintf(
						"The previous response could not be used: %v. Correct the problem and respond again.", err)}))
				continue
			}
			return a.errorEvent(ctx, "model_error", err.Error())
		}
		if resp == nil {
			// A before hook consumed the call without producing output.
			return a.errorEvent(ctx, "model_error", "model call produced no response")
		}
		if resp.ErrorCode != "" {
			return a.errorEvent(ctx, resp.ErrorCode, resp.ErrorMessage)
		}
		retries = 0

		if !resp.HasToolCalls() {
			return a.finish(ctx, cbCtx, resp, actions)
		}

		assistantMsg, resultMsg, stop := a.executeToolCalls(ctx, resp, actions)
		transcript = append(transcript, assistantMsg, resultMsg)
		if stop {
			// A control tool ended the turn (exit_loop, escalate,
			// transfer). No summarization round follows.
			return a.finish(ctx, cbCtx, resp, actions)
		}
	}

	return a.errorEvent(ctx, "max_iterations",
		fmt.Sprintf("reasoning loop did not converge within %d rounds", a.maxToolRounds))
}

// finish applies after_agent hooks, records the output key and builds
// the final event.
func (a *modelAgent) finish(
	ctx agent.InvocationContext,
	cbCtx agent.CallbackContext,
	resp *model.Response,
	actions *agent.EventActions,
) *agent.Event {
	text := resp.TextContent()
	if a.planner != nil {
		text = a.planner.ExtractAnswer(text)
	}

	content := agent.NewTextContent(text, a2a.MessageRoleAgent)
	for _, cb := range a.callbacks.AfterAgent {
		replaced, err := cb(cbCtx)
		if err != nil {
			return a.errorEvent(ctx, "callback_error", fmt.Sprintf("after_agent callback: %v", err))
		}
		if replaced != nil {
			content = replaced
			text = replaced.Text()
		}
	}

	if a.outputKey != "" {
		var value any = text
		if a.outputSchema != nil {
			structured, err := parseStructuredOutput(text, a.outputSchema)
			if err != nil {
				return a.errorEvent(ctx, "output_schema_error", err.Error())
			}
			value = structured
		}
		if err := cbCtx.State().Set(a.outputKey, value); err != nil {
			return a.errorEvent(ctx, "state_error", fmt.Sprintf("write %s: %v", a.outputKey, err))
		}
	}

	return a.finalEvent(ctx, content, actions)
}

func (a *modelAgent) finalEvent(ctx agent.InvocationContext, content *agent.Content, actions *agent.EventActions) *agent.Event {
	ev := agent.NewEvent(ctx.InvocationID())
	ev.Author = a.Name()
	ev.Branch = ctx.Branch()
	ev.Message = content.ToMessage()
	ev.Actions = *actions
	ev.TurnComplete = true
	return ev
}

func (a *modelAgent) errorEvent(ctx agent.InvocationContext, code, message string) *agent.Event {
	ev := agent.NewErrorEvent(ctx.InvocationID(), a.Name(), code, message)
	ev.Branch = ctx.Branch()
	return ev
}

// collectToolDefinitions gathers definitions from static tools, control
// tools and toolsets.
func (a *modelAgent) collectToolDefinitions(ctx agent.InvocationContext) []tool.Definition {
	var defs []tool.Definition
	for _, t := range a.allTools(ctx) {
		defs = append(defs, tool.ToDefinition(t))
	}
	return defs
}

// allTools includes the control tools unconditionally: a model agent
// inside a loop needs exit_loop even when it has no domain tools.
func (a *modelAgent) allTools(ctx agent.InvocationContext) []tool.Tool {
	var out []tool.Tool
	out = append(out, a.tools...)
	for _, ts := range a.toolsets {
		tools, err := ts.Tools(ctx)
		if err != nil {
			slog.Warn("Toolset failed to provide tools",
				"toolset", ts.Name(), "agent", a.Name(), "error", err)
			continue
		}
		out = append(out, tools...)
	}
	out = append(out, controltool.ExitLoop(), controltool.Escalate())
	return out
}

func (a *modelAgent) findTool(ctx agent.InvocationContext, name string) tool.Tool {
	for _, t := range a.allTools(ctx) {
		if t.Name() == name {
			return t
		}
	}
	return nil
}
