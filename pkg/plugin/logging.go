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

package plugin

import (
	"context"
	"log/slog"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/model"
	"github.com/weftworks/weft/pkg/tool"
)

// loggingPlugin logs the invocation lifecycle at INFO.
type loggingPlugin struct {
	Base
}

func newLogging(cfg map[string]any) Plugin {
	return &loggingPlugin{Base{PluginName: "logging"}}
}

func (p *loggingPlugin) BeforeRun(ctx context.Context, invocationID string) {
	slog.Info("Run started", "invocation_id", invocationID)
}

func (p *loggingPlugin) AfterRun(ctx context.Context, invocationID string) {
	slog.Info("Run finished", "invocation_id", invocationID)
}

func (p *loggingPlugin) OnEvent(ctx agent.ReadonlyContext, ev *agent.Event) {
	if ev == nil || ev.Partial {
		return
	}
	if ev.IsError() {
		slog.Warn("Agent error event",
			"agent", ev.Author,
			"invocation_id", ev.InvocationID,
			"error_code", ev.ErrorCode,
			"error", ev.ErrorMessage)
		return
	}
	slog.Info("Agent event",
		"agent", ev.Author,
		"invocation_id", ev.InvocationID,
		"state_keys", len(ev.Actions.StateDelta))
}

// debugLoggingPlugin additionally logs model requests and tool calls at
// DEBUG, including payload sizes but never payload contents.
type debugLoggingPlugin struct {
	Base
}

func newDebugLogging(cfg map[string]any) Plugin {
	return &debugLoggingPlugin{Base{PluginName: "debug_logging"}}
}

func (p *debugLoggingPlugin) BeforeModel(ctx agent.CallbackContext, req *model.Request) (*model.Response, error) {
	slog.Debug("Model request",
		"agent", ctx.AgentName(),
		"messages", len(req.Messages),
		"tools", len(req.Tools),
		"instruction_len", len(req.SystemInstruction))
	return nil, nil
}

func (p *debugLoggingPlugin) AfterModel(ctx agent.CallbackContext, resp *model.Response, err error) (*model.Response, error) {
	if err != nil {
		slog.Debug("Model call failed", "agent", ctx.AgentName(), "error", err)
		return nil, nil
	}
	if resp != nil {
		slog.Debug("Model response",
			"agent", ctx.AgentName(),
			"model", resp.Model,
			"tool_calls", len(resp.ToolCalls),
			"finish_reason", resp.FinishReason)
	}
	return nil, nil
}

func (p *debugLoggingPlugin) BeforeTool(ctx tool.Context, t tool.Tool, args map[string]any) (map[string]any, error) {
	slog.Debug("Tool request", "tool", t.Name(), "agent", ctx.AgentName(), "args", len(args))
	return nil, nil
}

func (p *debugLoggingPlugin) AfterTool(ctx tool.Context, t tool.Tool, args, result map[string]any, err error) (map[string]any, error) {
	if err != nil {
		slog.Debug("Tool failed", "tool", t.Name(), "error", err)
		return nil, nil
	}
	slog.Debug("Tool result", "tool", t.Name(), "keys", len(result))
	return nil, nil
}
