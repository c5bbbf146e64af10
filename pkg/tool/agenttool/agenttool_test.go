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

package agenttool_test

import (
	"context"
	"iter"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/session"
	"github.com/weftworks/weft/pkg/tool"
	"github.com/weftworks/weft/pkg/tool/agenttool"
)

func subAgent(t *testing.T, name string, run func(agent.InvocationContext, func(*agent.Event, error) bool)) agent.Agent {
	t.Helper()
	ag, err := agent.New(agent.Config{
		Name:        name,
		Description: "test sub-agent",
		Run: func(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
			return func(yield func(*agent.Event, error) bool) {
				run(ctx, yield)
			}
		},
	})
	require.NoError(t, err)
	return ag
}

func finalEvent(ctx agent.InvocationContext, text string) *agent.Event {
	ev := agent.NewEvent(ctx.InvocationID())
	ev.Author = ctx.AgentName()
	ev.Message = agent.NewTextContent(text, a2a.MessageRoleAgent).ToMessage()
	ev.TurnComplete = true
	return ev
}

// toolContext builds a tool.Context whose invocation is backed by a
// fresh in-memory session seeded with the given state.
func toolContext(t *testing.T, parent agent.Agent, state map[string]any) tool.Context {
	t.Helper()

	svc := session.InMemoryService()
	resp, err := svc.Create(context.Background(), &session.CreateRequest{
		AppName: "test", UserID: "u1", SessionID: "s1", State: state,
	})
	require.NoError(t, err)

	ictx := agent.NewInvocationContext(context.Background(), agent.InvocationContextParams{
		Agent:       parent,
		Session:     resp.Session,
		UserContent: agent.NewTextContent("go", a2a.MessageRoleUser),
		RunConfig:   &agent.RunConfig{},
	})
	return tool.NewContext(ictx, "call-1")
}

func TestCallReturnsSubAgentFinalText(t *testing.T) {
	sub := subAgent(t, "summarizer", func(ctx agent.InvocationContext, yield func(*agent.Event, error) bool) {
		yield(finalEvent(ctx, "the summary"), nil)
	})
	at := agenttool.New(sub, nil)

	require.Equal(t, "summarizer", at.Name())

	result, err := at.Call(toolContext(t, sub, nil), map[string]any{"request": "summarize this"})
	require.NoError(t, err)
	assert.Equal(t, "the summary", result["content"])
	assert.Equal(t, "summarizer", result["agent_name"])
}

func TestCallSeedsChildStateWithoutTempKeys(t *testing.T) {
	var seen map[string]any
	sub := subAgent(t, "inspector", func(ctx agent.InvocationContext, yield func(*agent.Event, error) bool) {
		seen = make(map[string]any)
		for k, v := range ctx.Session().State().All() {
			seen[k] = v
		}
		yield(finalEvent(ctx, "done"), nil)
	})
	at := agenttool.New(sub, nil)

	state := map[string]any{"kept": "v", "temp:scratch": "x"}
	_, err := at.Call(toolContext(t, sub, state), map[string]any{"request": "inspect"})
	require.NoError(t, err)

	assert.Equal(t, "v", seen["kept"])
	assert.NotContains(t, seen, "temp:scratch")
}

func TestSubAgentErrorBecomesResultData(t *testing.T) {
	sub := subAgent(t, "flaky", func(ctx agent.InvocationContext, yield func(*agent.Event, error) bool) {
		yield(agent.NewErrorEvent(ctx.InvocationID(), "flaky", "test_error", "induced failure"), nil)
	})
	at := agenttool.New(sub, nil)

	result, err := at.Call(toolContext(t, sub, nil), map[string]any{"request": "try"})
	require.NoError(t, err)
	assert.Equal(t, "induced failure", result["error"])
	assert.Equal(t, "flaky", result["agent_name"])
}

func TestSkipSummarizationSetsAction(t *testing.T) {
	sub := subAgent(t, "quiet", func(ctx agent.InvocationContext, yield func(*agent.Event, error) bool) {
		yield(finalEvent(ctx, "ok"), nil)
	})
	at := agenttool.New(sub, &agenttool.Config{SkipSummarization: true})

	ctx := toolContext(t, sub, nil)
	_, err := at.Call(ctx, map[string]any{"request": "go"})
	require.NoError(t, err)
	assert.True(t, ctx.Actions().SkipSummarization)
}

func TestDefaultSchemaRequiresRequest(t *testing.T) {
	sub := subAgent(t, "helper", func(ctx agent.InvocationContext, yield func(*agent.Event, error) bool) {
		yield(finalEvent(ctx, "ok"), nil)
	})
	at := agenttool.New(sub, nil)

	schema := at.Schema()
	require.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"request"}, schema["required"])
}

func TestNilAgentReturnsNil(t *testing.T) {
	assert.Nil(t, agenttool.New(nil, nil))
}
