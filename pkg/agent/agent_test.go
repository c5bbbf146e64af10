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

package agent

import (
	"context"
	"iter"
	"sync"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeState is a minimal State for tests.
type fakeState struct {
	mu     sync.RWMutex
	values map[string]any
}

func newFakeState() *fakeState {
	return &fakeState{values: make(map[string]any)}
}

func (s *fakeState) Get(key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, ErrStateKeyNotFound
	}
	return v, nil
}

func (s *fakeState) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *fakeState) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *fakeState) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for k, v := range s.values {
			if !yield(k, v) {
				return
			}
		}
	}
}

// fakeSession is a minimal Session for tests.
type fakeSession struct {
	id    string
	app   string
	user  string
	state *fakeState
}

func newFakeSession() *fakeSession {
	return &fakeSession{id: "sess-1", app: "weft", user: "user-1", state: newFakeState()}
}

func (s *fakeSession) ID() string      { return s.id }
func (s *fakeSession) AppName() string { return s.app }
func (s *fakeSession) UserID() string  { return s.user }
func (s *fakeSession) State() State    { return s.state }
func (s *fakeSession) Events() Events  { return nil }

func singleEventRun(ictx InvocationContext) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		event := NewEvent(ictx.InvocationID())
		event.Author = ictx.AgentName()
		yield(event, nil)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Run: singleEventRun})
	assert.Error(t, err)

	_, err = New(Config{Name: "worker"})
	assert.Error(t, err)

	ag, err := New(Config{Name: "worker", Run: singleEventRun})
	require.NoError(t, err)
	assert.Equal(t, "worker", ag.Name())
	assert.Empty(t, ag.SubAgents())
}

func TestInvocationContextAccessors(t *testing.T) {
	ag, err := New(Config{Name: "worker", Description: "test worker", Run: singleEventRun})
	require.NoError(t, err)

	sess := newFakeSession()
	ictx := NewInvocationContext(context.Background(), InvocationContextParams{
		Agent:       ag,
		Session:     sess,
		UserContent: NewTextContent("hello", a2a.MessageRoleUser),
		RunConfig:   &RunConfig{StreamingMode: StreamingModeNone},
	})

	assert.NotEmpty(t, ictx.InvocationID())
	assert.Equal(t, "worker", ictx.AgentName())
	assert.Equal(t, "sess-1", ictx.SessionID())
	assert.Equal(t, "weft", ictx.AppName())
	assert.Equal(t, "user-1", ictx.UserID())
	assert.Equal(t, "hello", ictx.UserContent().Text())
	assert.False(t, ictx.Ended())

	ictx.EndInvocation()
	assert.True(t, ictx.Ended())
}

func TestChildContextInheritsInvocationID(t *testing.T) {
	parentAgent, err := New(Config{Name: "pipeline", Run: singleEventRun})
	require.NoError(t, err)
	childAgent, err := New(Config{Name: "step_one", Run: singleEventRun})
	require.NoError(t, err)

	parent := NewInvocationContext(context.Background(), InvocationContextParams{
		Agent:   parentAgent,
		Session: newFakeSession(),
		Branch:  "pipeline",
	})
	child := NewChildContext(parent, childAgent)

	assert.Equal(t, parent.InvocationID(), child.InvocationID())
	assert.Equal(t, "pipeline/step_one", child.Branch())
	assert.Equal(t, "step_one", child.AgentName())
	assert.Same(t, parent.Session(), child.Session())
}

func TestExplicitInvocationIDInherited(t *testing.T) {
	ag, err := New(Config{Name: "worker", Run: singleEventRun})
	require.NoError(t, err)

	ictx := NewInvocationContext(context.Background(), InvocationContextParams{
		Agent:        ag,
		Session:      newFakeSession(),
		InvocationID: "inv-fixed",
	})
	assert.Equal(t, "inv-fixed", ictx.InvocationID())
}

func TestCallbackStateMirrorsDelta(t *testing.T) {
	ag, err := New(Config{Name: "worker", Run: singleEventRun})
	require.NoError(t, err)

	sess := newFakeSession()
	ictx := NewInvocationContext(context.Background(), InvocationContextParams{
		Agent:   ag,
		Session: sess,
	})

	actions := &EventActions{}
	cctx := NewCallbackContext(ictx, actions)
	require.NoError(t, cctx.State().Set("counter", 42))

	got, err := sess.state.Get("counter")
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 42, actions.StateDelta["counter"])
}
