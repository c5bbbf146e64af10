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

package toolagent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/agent/toolagent"
	"github.com/weftworks/weft/pkg/callbacks"
	"github.com/weftworks/weft/pkg/session"
	"github.com/weftworks/weft/pkg/tool"
)

// fakeTool records the args of its last call and replays a canned result.
type fakeTool struct {
	result map[string]any
	err    error
	args   map[string]any
}

func (f *fakeTool) Name() string        { return "fake" }
func (f *fakeTool) Description() string { return "records calls" }
func (f *fakeTool) IsLongRunning() bool { return false }
func (f *fakeTool) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (f *fakeTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	f.args = args
	return f.result, f.err
}

func run(t *testing.T, ag agent.Agent, state map[string]any) ([]*agent.Event, session.Session) {
	t.Helper()

	svc := session.InMemoryService()
	resp, err := svc.Create(context.Background(), &session.CreateRequest{
		AppName: "test", UserID: "u1", SessionID: "s1", State: state,
	})
	require.NoError(t, err)

	ctx := agent.NewInvocationContext(context.Background(), agent.InvocationContextParams{
		Agent:       ag,
		Session:     resp.Session,
		UserContent: agent.NewTextContent("go", a2a.MessageRoleUser),
		RunConfig:   &agent.RunConfig{},
	})

	var events []*agent.Event
	for ev, err := range ag.Run(ctx) {
		require.NoError(t, err)
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events, resp.Session
}

func TestResolvesPlaceholdersFromState(t *testing.T) {
	ft := &fakeTool{result: map[string]any{"status": 200}}
	ag, err := toolagent.New(toolagent.Config{
		Name: "caller",
		Tool: ft,
		ToolConfig: map[string]any{
			"url":     "https://api.test/{path}",
			"retries": 3,
			"payload": "{body}",
		},
		OutputKey: "response",
	})
	require.NoError(t, err)

	body := map[string]any{"kind": "ping"}
	run(t, ag, map[string]any{"path": "v1/status", "body": body})

	// Embedded placeholders substitute into the string; a value that is
	// exactly one placeholder keeps the state value's type.
	assert.Equal(t, "https://api.test/v1/status", ft.args["url"])
	assert.Equal(t, 3, ft.args["retries"])
	assert.Equal(t, body, ft.args["payload"])
}

func TestWritesResultMapToState(t *testing.T) {
	ft := &fakeTool{result: map[string]any{"rate": 4389.25}}
	ag, err := toolagent.New(toolagent.Config{
		Name:      "fetch",
		Tool:      ft,
		OutputKey: "rates",
	})
	require.NoError(t, err)

	events, sess := run(t, ag, nil)

	require.Len(t, events, 1)
	assert.False(t, events[0].IsError())

	val, err := sess.State().Get("rates")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"rate": 4389.25}, val)
}

func TestDomainErrorIsDataNotFailure(t *testing.T) {
	ft := &fakeTool{result: map[string]any{"error": "boom"}}
	ag, err := toolagent.New(toolagent.Config{
		Name:      "fetch",
		Tool:      ft,
		OutputKey: "result",
	})
	require.NoError(t, err)

	events, sess := run(t, ag, nil)

	require.Len(t, events, 1)
	assert.False(t, events[0].IsError())

	val, err := sess.State().Get("result")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"error": "boom"}, val)
}

func TestInfrastructureErrorBecomesErrorEvent(t *testing.T) {
	ft := &fakeTool{err: errors.New("connection refused")}
	ag, err := toolagent.New(toolagent.Config{
		Name:      "fetch",
		Tool:      ft,
		OutputKey: "result",
	})
	require.NoError(t, err)

	events, sess := run(t, ag, nil)

	require.Len(t, events, 1)
	assert.True(t, events[0].IsError())
	assert.Equal(t, "tool_error", events[0].ErrorCode)
	assert.Contains(t, events[0].ErrorMessage, "connection refused")

	_, err = sess.State().Get("result")
	assert.Error(t, err)
}

func TestAfterAgentErrorLeavesStateUnchanged(t *testing.T) {
	ft := &fakeTool{result: map[string]any{"status": 200}}
	ag, err := toolagent.New(toolagent.Config{
		Name:      "fetch",
		Tool:      ft,
		OutputKey: "result",
		Callbacks: &callbacks.Set{
			AfterAgent: []callbacks.AfterAgent{
				func(ctx agent.CallbackContext) (*agent.Content, error) {
					return nil, errors.New("hook rejected the result")
				},
			},
		},
	})
	require.NoError(t, err)

	events, sess := run(t, ag, nil)

	require.Len(t, events, 1)
	assert.True(t, events[0].IsError())
	assert.Empty(t, events[0].Actions.StateDelta)

	_, err = sess.State().Get("result")
	assert.ErrorIs(t, err, agent.ErrStateKeyNotFound)
}

func TestMissingPlaceholderStaysLiteral(t *testing.T) {
	ft := &fakeTool{result: map[string]any{}}
	ag, err := toolagent.New(toolagent.Config{
		Name:       "caller",
		Tool:       ft,
		ToolConfig: map[string]any{"url": "https://api.test/{nowhere}"},
		OutputKey:  "out",
	})
	require.NoError(t, err)

	run(t, ag, nil)
	assert.Equal(t, "https://api.test/{nowhere}", ft.args["url"])
}

func TestRequiresTool(t *testing.T) {
	_, err := toolagent.New(toolagent.Config{Name: "caller"})
	require.Error(t, err)
}
