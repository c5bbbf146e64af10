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

package runner_test

import (
	"context"
	"iter"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/runner"
	"github.com/weftworks/weft/pkg/session"
)

func replyAgent(t *testing.T, text string) agent.Agent {
	t.Helper()
	ag, err := agent.New(agent.Config{
		Name: "worker",
		Run: func(ictx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
			return func(yield func(*agent.Event, error) bool) {
				ev := agent.NewEvent(ictx.InvocationID())
				ev.Author = "worker"
				ev.Message = agent.NewTextContent(text, a2a.MessageRoleAgent).ToMessage()
				ev.TurnComplete = true
				yield(ev, nil)
			}
		},
	})
	require.NoError(t, err)
	return ag
}

func collect(t *testing.T, seq iter.Seq2[*agent.Event, error]) []*agent.Event {
	t.Helper()
	var events []*agent.Event
	for ev, err := range seq {
		require.NoError(t, err)
		events = append(events, ev)
	}
	return events
}

func TestRunPersistsUserMessageWithUserAuthor(t *testing.T) {
	svc := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        "app",
		Agent:          replyAgent(t, "done"),
		SessionService: svc,
	})
	require.NoError(t, err)

	content := agent.NewTextContent("check my order", a2a.MessageRoleUser)
	events := collect(t, r.Run(context.Background(), "u1", "s1", content, agent.RunConfig{}))
	require.Len(t, events, 1)

	got, err := svc.Get(context.Background(), &session.GetRequest{
		AppName: "app", UserID: "u1", SessionID: "s1",
	})
	require.NoError(t, err)
	require.Equal(t, 2, got.Session.Events().Len())

	userEvent := got.Session.Events().At(0)
	assert.Equal(t, agent.AuthorUser, userEvent.Author)
	assert.Equal(t, "check my order", userEvent.TextContent())
	assert.Equal(t, "worker", got.Session.Events().At(1).Author)
}

func TestRunSkipsUserEventWithoutContent(t *testing.T) {
	svc := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        "app",
		Agent:          replyAgent(t, "done"),
		SessionService: svc,
	})
	require.NoError(t, err)

	collect(t, r.Run(context.Background(), "u1", "s1", nil, agent.RunConfig{}))

	got, err := svc.Get(context.Background(), &session.GetRequest{
		AppName: "app", UserID: "u1", SessionID: "s1",
	})
	require.NoError(t, err)
	require.Equal(t, 1, got.Session.Events().Len())
	assert.Equal(t, "worker", got.Session.Events().At(0).Author)
}
