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

package codeagent_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/agent/codeagent"
	"github.com/weftworks/weft/pkg/callbacks"
	"github.com/weftworks/weft/pkg/session"
)

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

func TestInvokesRegisteredFunction(t *testing.T) {
	require.NoError(t, codeagent.Register("codeagenttest.upper", func(ctx context.Context, kwargs map[string]any) (any, error) {
		text, _ := kwargs["text"].(string)
		return strings.ToUpper(text), nil
	}))

	ag, err := codeagent.New(codeagent.Config{
		Name:      "shout",
		Function:  "codeagenttest.upper",
		InputKeys: []string{"text"},
		OutputKey: "shout_out",
	})
	require.NoError(t, err)

	events, sess := run(t, ag, map[string]any{"text": "hello"})

	require.Len(t, events, 1)
	assert.Equal(t, "HELLO", events[0].TextContent())

	val, err := sess.State().Get("shout_out")
	require.NoError(t, err)
	assert.Equal(t, "HELLO", val)
}

func TestAbsentInputKeysAreOmitted(t *testing.T) {
	var got map[string]any
	require.NoError(t, codeagent.Register("codeagenttest.capture", func(ctx context.Context, kwargs map[string]any) (any, error) {
		got = kwargs
		return "ok", nil
	}))

	ag, err := codeagent.New(codeagent.Config{
		Name:      "capture",
		Function:  "codeagenttest.capture",
		InputKeys: []string{"present", "absent"},
		OutputKey: "out",
	})
	require.NoError(t, err)

	run(t, ag, map[string]any{"present": 1})

	assert.Equal(t, map[string]any{"present": 1}, got)
}

func TestUnknownFunctionFailsConstruction(t *testing.T) {
	_, err := codeagent.New(codeagent.Config{
		Name:      "ghost",
		Function:  "codeagenttest.never_registered",
		OutputKey: "out",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never_registered")
}

func TestFunctionErrorBecomesErrorEvent(t *testing.T) {
	require.NoError(t, codeagent.Register("codeagenttest.fails", func(ctx context.Context, kwargs map[string]any) (any, error) {
		return nil, errors.New("backend unavailable")
	}))

	ag, err := codeagent.New(codeagent.Config{
		Name:      "flaky",
		Function:  "codeagenttest.fails",
		OutputKey: "out",
	})
	require.NoError(t, err)

	events, sess := run(t, ag, nil)

	require.Len(t, events, 1)
	assert.True(t, events[0].IsError())
	assert.Equal(t, "code_error", events[0].ErrorCode)
	assert.Contains(t, events[0].ErrorMessage, "backend unavailable")

	_, err = sess.State().Get("out")
	assert.Error(t, err)
}

func TestAfterAgentErrorLeavesStateUnchanged(t *testing.T) {
	require.NoError(t, codeagent.Register("codeagenttest.ok", func(ctx context.Context, kwargs map[string]any) (any, error) {
		return "fine", nil
	}))

	ag, err := codeagent.New(codeagent.Config{
		Name:      "guarded",
		Function:  "codeagenttest.ok",
		OutputKey: "out",
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

	_, err = sess.State().Get("out")
	assert.ErrorIs(t, err, agent.ErrStateKeyNotFound)
}

func TestFunctionPanicBecomesErrorEvent(t *testing.T) {
	require.NoError(t, codeagent.Register("codeagenttest.panics", func(ctx context.Context, kwargs map[string]any) (any, error) {
		panic("boom")
	}))

	ag, err := codeagent.New(codeagent.Config{
		Name:      "explosive",
		Function:  "codeagenttest.panics",
		OutputKey: "out",
	})
	require.NoError(t, err)

	events, _ := run(t, ag, nil)

	require.Len(t, events, 1)
	assert.True(t, events[0].IsError())
	assert.Contains(t, events[0].ErrorMessage, "panicked")
}
