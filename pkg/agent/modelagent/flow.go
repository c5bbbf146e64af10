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

package modelagent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/model"
	"github.com/weftworks/weft/pkg/plugin"
	"github.com/weftworks/weft/pkg/tool"
)

// callModel dispatches one model call through the hook layers:
// per-agent before_model callbacks, then the runner's plugin chain,
// then the LLM itself; after the call, the plugin chain and the
// after_model callbacks in that order. The first non-nil response from
// any before hook skips the call; the first non-nil response from any
// after hook replaces the model's.
func (a *modelAgent) callModel(
	ctx agent.InvocationContext,
	cbCtx agent.CallbackContext,
	req *model.Request,
	yield func(*agent.Event, error) bool,
) (*model.Response, error) {
	for _, cb := range a.callbacks.BeforeModel {
		resp, err := cb(cbCtx, req)
		if err != nil {
			return nil, fmt.Errorf("before_model callback: %w", err)
		}
		if resp != nil {
			return resp, nil
		}
	}

	chain := plugin.FromContext(ctx)
	if resp, err := chain.BeforeModel(cbCtx, req); err != nil || resp != nil {
		return resp, err
	}

	stream := ctx.RunConfig() != nil && ctx.RunConfig().StreamingMode == agent.StreamingModeSSE

	var final *model.Response
	var callErr error
	for resp, err := range a.model.GenerateContent(ctx, req, stream) {
		if err != nil {
			callErr = err
			break
		}
		if resp == nil {
			continue
		}
		if resp.Partial {
			if !yield(a.partialEvent(ctx, resp), nil) {
				return nil, fmt.Errorf("streaming interrupted")
			}
			continue
		}
		final = resp
	}

	if final != nil && final.Model == "" {
		final.Model = a.model.Name()
	}

	if replaced, err := chain.AfterModel(cbCtx, final, callErr); err != nil {
		return nil, err
	} else if replaced != nil {
		final, callErr = replaced, nil
	}
	for _, cb := range a.callbacks.AfterModel {
		replaced, err := cb(cbCtx, final, callErr)
		if err != nil {
			return nil, fmt.Errorf("after_model callback: %w", err)
		}
		if replaced != nil {
			final, callErr = replaced, nil
			break
		}
	}

	if callErr != nil {
		return nil, callErr
	}
	return final, nil
}

// partialEvent wraps a streaming chunk. Partial events reach the caller
// for live display but are never persisted.
func (a *modelAgent) partialEvent(ctx agent.InvocationContext, resp *model.Response) *agent.Event {
	ev := agent.NewEvent(ctx.InvocationID())
	ev.Author = a.Name()
	ev.Branch = ctx.Branch()
	ev.Partial = true
	if resp.Content != nil {
		ev.Message = a2a.NewMessage(a2a.MessageRoleAgent, resp.Content.Parts...)
	}
	return ev
}

// buildTranscript assembles the conversation sent to the model: the
// session's non-partial events visible from this branch, or just the
// user message when the session has none yet.
func (a *modelAgent) buildTranscript(ctx agent.InvocationContext) []*a2a.Message {
	var messages []*a2a.Message

	if session := ctx.Session(); session != nil {
		branch := ctx.Branch()
		for event := range session.Events().All() {
			if event.Message == nil || event.Partial {
				continue
			}
			if !eventVisible(branch, event.Branch) {
				continue
			}
			messages = append(messages, event.Message)
		}
	}

	if len(messages) == 0 {
		if uc := ctx.UserContent(); uc != nil {
			messages = append(messages, uc.ToMessage())
		}
	}
	return messages
}

// eventVisible reports whether an event's branch is this invocation's
// branch or an ancestor of it. Sibling branches stay hidden so parallel
// agents do not read each other's turns.
func eventVisible(invocationBranch, eventBranch string) bool {
	if invocationBranch == "" || eventBranch == "" {
		return true
	}
	if eventBranch == invocationBranch {
		return true
	}
	return strings.HasPrefix(invocationBranch, eventBranch+"/")
}

// executeToolCalls runs every tool call of the response and returns the
// assistant tool_use message, the paired tool_result message, and
// whether a control tool ended the turn.
func (a *modelAgent) executeToolCalls(
	ctx agent.InvocationContext,
	resp *model.Response,
	actions *agent.EventActions,
) (assistant, results *a2a.Message, stop bool) {
	var useParts []a2a.Part
	if text := resp.TextContent(); text != "" {
		useParts = append(useParts, a2a.TextPart{Text: text})
	}

	var resultParts []a2a.Part
	for _, tc := range resp.ToolCalls {
		useParts = append(useParts, a2a.DataPart{
			Data: map[string]any{
				"type":      "tool_use",
				"id":        tc.ID,
				"name":      tc.Name,
				"arguments": tc.Args,
			},
		})

		content, isError := a.executeOneTool(ctx, tc, actions)
		resultParts = append(resultParts, a2a.DataPart{
			Data: map[string]any{
				"type":         "tool_result",
				"tool_call_id": tc.ID,
				"tool_name":    tc.Name,
				"content":      content,
				"is_error":     isError,
			},
		})
	}

	stop = actions.Escalate || actions.TransferToAgent != "" || actions.SkipSummarization

	return a2a.NewMessage(a2a.MessageRoleAgent, useParts...),
		a2a.NewMessage(a2a.MessageRoleUser, resultParts...),
		stop
}

// executeOneTool runs a single tool call through the hook layers and
// merges the tool's actions into the pending event. Tool failures come
// back as error content for the model to read, never as stream errors.
func (a *modelAgent) executeOneTool(
	ctx agent.InvocationContext,
	tc tool.ToolCall,
	actions *agent.EventActions,
) (content string, isError bool) {
	t := a.findTool(ctx, tc.Name)
	if t == nil {
		return fmt.Sprintf("Error: tool %q not found", tc.Name), true
	}

	toolCtx := tool.NewContext(ctx, tc.ID)
	chain := plugin.FromContext(ctx)

	result, err := a.callToolWithHooks(toolCtx, chain, t, tc.Args)
	mergeActions(actions, toolCtx.Actions())
	if err != nil {
		return fmt.Sprintf("Error: %v", err), true
	}
	if errText, ok := result["error"].(string); ok && errText != "" {
		return formatToolResult(result), true
	}
	return formatToolResult(result), false
}

func (a *modelAgent) callToolWithHooks(
	toolCtx tool.Context,
	chain *plugin.Chain,
	t tool.Tool,
	args map[string]any,
) (map[string]any, error) {
	for _, cb := range a.callbacks.BeforeTool {
		result, err := cb(toolCtx, t, args)
		if err != nil {
			return nil, fmt.Errorf("before_tool callback: %w", err)
		}
		if result != nil {
			return result, nil
		}
	}
	if result, err := chain.BeforeTool(toolCtx, t, args); err != nil || result != nil {
		return result, err
	}

	var result map[string]any
	var callErr error
	switch impl := t.(type) {
	case tool.CallableTool:
		result, callErr = impl.Call(toolCtx, args)
	case tool.StreamingTool:
		// Inside the reasoning loop streaming collapses to the final
		// chunk; only the caller-facing event stream is live.
		var final *tool.Result
		for res, err := range impl.CallStreaming(toolCtx, args) {
			if err != nil {
				callErr = err
				break
			}
			if res != nil && !res.Streaming {
				final = res
			}
		}
		if final != nil {
			result = map[string]any{"content": final.Content}
			if final.Error != "" {
				result["error"] = final.Error
			}
		}
	default:
		return nil, fmt.Errorf("tool %q is not callable", t.Name())
	}

	if replaced, err := chain.AfterTool(toolCtx, t, args, result, callErr); err != nil {
		return nil, err
	} else if replaced != nil {
		return replaced, nil
	}
	for _, cb := range a.callbacks.AfterTool {
		replaced, err := cb(toolCtx, t, args, result, callErr)
		if err != nil {
			return nil, fmt.Errorf("after_tool callback: %w", err)
		}
		if replaced != nil {
			return replaced, nil
		}
	}

	return result, callErr
}

// mergeActions folds a tool call's actions into the pending event's.
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

// formatToolResult renders a tool result for the model. A "content"
// string passes through untouched; anything else is JSON.
func formatToolResult(result map[string]any) string {
	if result == nil {
		return "(no output)"
	}
	if content, ok := result["content"].(string); ok && len(result) == 1 {
		if trimmed := strings.TrimSpace(content); trimmed != "" {
			return trimmed
		}
		return "(no output)"
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(encoded)
}
