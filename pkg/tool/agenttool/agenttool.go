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

// Package agenttool exposes an agent as a callable tool, letting a model
// agent delegate a sub-task and receive a structured result.
//
// The wrapped agent runs in an isolated session: parent state is copied
// in at invocation time (minus temp: keys), and nothing the child writes
// flows back except the returned result. The parent stays in control.
package agenttool

import (
	"context"
	"fmt"
	"strings"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/session"
	"github.com/weftworks/weft/pkg/tool"
)

// Config holds options for an agent tool.
type Config struct {
	// SkipSummarization stops the calling model from appending a
	// summary turn after the sub-agent finishes.
	SkipSummarization bool
}

// New wraps an agent as a tool. The tool name is the agent name.
func New(ag agent.Agent, cfg *Config) tool.CallableTool {
	if ag == nil {
		return nil
	}
	skip := false
	if cfg != nil {
		skip = cfg.SkipSummarization
	}
	return &agentTool{agent: ag, skipSummarization: skip}
}

type agentTool struct {
	agent             agent.Agent
	skipSummarization bool
}

func (t *agentTool) Name() string {
	return t.agent.Name()
}

func (t *agentTool) Description() string {
	return t.agent.Description()
}

func (t *agentTool) IsLongRunning() bool {
	return false
}

// inputSchemaProvider is implemented by agents that declare an input
// schema (model agents with input_schema configured).
type inputSchemaProvider interface {
	InputSchema() map[string]any
}

func (t *agentTool) Schema() map[string]any {
	if provider, ok := t.agent.(inputSchemaProvider); ok {
		if schema := provider.InputSchema(); schema != nil {
			return schema
		}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"request": map[string]any{
				"type":        "string",
				"description": "The task or request for the " + t.agent.Name() + " agent",
			},
		},
		"required": []string{"request"},
	}
}

// Call runs the wrapped agent in an isolated session and returns its
// final text.
func (t *agentTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	request, _ := args["request"].(string)
	if request == "" {
		// Structured input: pass the whole args map as the request.
		request = fmt.Sprintf("%v", args)
	}

	if t.skipSummarization {
		if actions := ctx.Actions(); actions != nil {
			actions.SkipSummarization = true
		}
	}

	parentCtx := invocationContext(ctx)
	if parentCtx == nil {
		return nil, fmt.Errorf("agent tool %q: no invocation context available", t.agent.Name())
	}

	childSession, err := t.isolatedSession(parentCtx)
	if err != nil {
		return nil, fmt.Errorf("agent tool %q: create session: %w", t.agent.Name(), err)
	}

	childCtx := agent.NewInvocationContext(parentCtx, agent.InvocationContextParams{
		Agent:       t.agent,
		Session:     childSession,
		Artifacts:   parentCtx.Artifacts(),
		Memory:      parentCtx.Memory(),
		UserContent: agent.NewTextContent(request, "user"),
		RunConfig:   parentCtx.RunConfig(),
		Branch:      ctx.Branch() + "/" + t.agent.Name(),
	})

	var output string
	for event, err := range t.agent.Run(childCtx) {
		if err != nil {
			return nil, fmt.Errorf("agent tool %q: %w", t.agent.Name(), err)
		}
		if event == nil || event.Partial {
			continue
		}
		if event.IsError() {
			return map[string]any{
				"error":      event.ErrorMessage,
				"agent_name": t.agent.Name(),
			}, nil
		}
		if text := event.TextContent(); text != "" {
			output = text
		}
	}

	if output == "" {
		output = fmt.Sprintf("Task completed by %s agent", t.agent.Name())
	}

	return map[string]any{
		"content":    output,
		"agent_name": t.agent.Name(),
	}, nil
}

// isolatedSession builds a throwaway session seeded with the parent's
// state minus temp: keys.
func (t *agentTool) isolatedSession(parentCtx agent.InvocationContext) (session.Session, error) {
	seed := make(map[string]any)
	if parentSession := parentCtx.Session(); parentSession != nil {
		for k, v := range parentSession.State().All() {
			if strings.HasPrefix(k, session.KeyPrefixTemp) {
				continue
			}
			seed[k] = v
		}
	}

	svc := session.InMemoryService()
	resp, err := svc.Create(context.Background(), &session.CreateRequest{
		AppName: t.agent.Name(),
		UserID:  parentCtx.UserID(),
		State:   seed,
	})
	if err != nil {
		return nil, err
	}
	return resp.Session, nil
}

// invocationContext digs the InvocationContext out of a tool.Context.
func invocationContext(ctx tool.Context) agent.InvocationContext {
	if invCtx, ok := ctx.(agent.InvocationContext); ok {
		return invCtx
	}
	type holder interface {
		InvocationContext() agent.InvocationContext
	}
	if h, ok := ctx.(holder); ok {
		return h.InvocationContext()
	}
	return nil
}

var _ tool.CallableTool = (*agentTool)(nil)
