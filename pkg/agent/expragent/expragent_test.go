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

package expragent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/agent/expragent"
	"github.com/weftworks/weft/pkg/callbacks"
	"github.com/weftworks/weft/pkg/sandbox"
	"github.com/weftworks/weft/pkg/session"
)

// run executes the agent against a session seeded with the given state
// and returns the events plus the session.
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

func TestEvaluatesAgainstState(t *testing.T) {
	ag, err := expragent.New(expragent.Config{
		Name:       "total",
		Expression: "price * quantity",
		InputKeys:  []string{"price", "quantity"},
		OutputKey:  "total_out",
	})
	require.NoError(t, err)

	events, sess := run(t, ag, map[string]any{"price": 2.5, "quantity": int64(4)})

	require.Len(t, events, 1)
	assert.Equal(t, "total", events[0].Author)
	assert.Equal(t, "10", events[0].TextContent())

	val, err := sess.State().Get("total_out")
	require.NoError(t, err)
	assert.Equal(t, float64(10), val)
}

func TestUndeclaredInputIsUndefinedVariable(t *testing.T) {
	ag, err := expragent.New(expragent.Config{
		Name:       "calc",
		Expression: "missing + 1",
		InputKeys:  []string{"missing"},
		OutputKey:  "out",
	})
	require.NoError(t, err)

	events, sess := run(t, ag, nil)

	require.Len(t, events, 1)
	assert.True(t, events[0].IsError())
	assert.Equal(t, "expression_error", events[0].ErrorCode)

	// The failed evaluation leaves no partial write behind.
	_, err = sess.State().Get("out")
	assert.Error(t, err)
}

func TestDivisionByZeroBecomesErrorEvent(t *testing.T) {
	ag, err := expragent.New(expragent.Config{
		Name:       "calc",
		Expression: "1 / n",
		InputKeys:  []string{"n"},
		OutputKey:  "out",
	})
	require.NoError(t, err)

	events, _ := run(t, ag, map[string]any{"n": int64(0)})
	require.Len(t, events, 1)
	assert.True(t, events[0].IsError())
}

func TestAfterAgentErrorLeavesStateUnchanged(t *testing.T) {
	ag, err := expragent.New(expragent.Config{
		Name:       "calc",
		Expression: "n + 1",
		InputKeys:  []string{"n"},
		OutputKey:  "out",
		Callbacks: &callbacks.Set{
			AfterAgent: []callbacks.AfterAgent{
				func(ctx agent.CallbackContext) (*agent.Content, error) {
					return nil, errors.New("hook rejected the result")
				},
			},
		},
	})
	require.NoError(t, err)

	events, sess := run(t, ag, map[string]any{"n": int64(1)})

	require.Len(t, events, 1)
	assert.True(t, events[0].IsError())
	assert.Empty(t, events[0].Actions.StateDelta)

	_, err = sess.State().Get("out")
	assert.ErrorIs(t, err, agent.ErrStateKeyNotFound)
}

func TestForbiddenConstructFailsConstruction(t *testing.T) {
	_, err := expragent.New(expragent.Config{
		Name:       "evil",
		Expression: `__import__('os').system('x')`,
		OutputKey:  "out",
	})
	require.Error(t, err)

	var disallowed *sandbox.DisallowedError
	require.ErrorAs(t, err, &disallowed)
	assert.Equal(t, "__import__", disallowed.Construct)
}

func TestRequiresName(t *testing.T) {
	_, err := expragent.New(expragent.Config{Expression: "1"})
	require.Error(t, err)
}
