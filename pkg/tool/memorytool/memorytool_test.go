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

package memorytool_test

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/session"
	"github.com/weftworks/weft/pkg/tool"
	"github.com/weftworks/weft/pkg/tool/memorytool"
)

// fakeMemory replays a canned search response.
type fakeMemory struct {
	resp *agent.MemorySearchResponse
	err  error
}

func (f *fakeMemory) AddSession(ctx context.Context, sess agent.Session) error { return nil }

func (f *fakeMemory) Search(ctx context.Context, query string) (*agent.MemorySearchResponse, error) {
	return f.resp, f.err
}

func toolContext(t *testing.T, mem agent.Memory) tool.Context {
	t.Helper()

	ag, err := agent.New(agent.Config{
		Name: "asker",
		Run: func(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
			return func(yield func(*agent.Event, error) bool) {}
		},
	})
	require.NoError(t, err)

	svc := session.InMemoryService()
	resp, err := svc.Create(context.Background(), &session.CreateRequest{
		AppName: "test", UserID: "u1", SessionID: "s1",
	})
	require.NoError(t, err)

	ictx := agent.NewInvocationContext(context.Background(), agent.InvocationContextParams{
		Agent:       ag,
		Session:     resp.Session,
		Memory:      mem,
		UserContent: agent.NewTextContent("go", a2a.MessageRoleUser),
		RunConfig:   &agent.RunConfig{},
	})
	return tool.NewContext(ictx, "call-1")
}

func TestLoadMemoryReturnsMatches(t *testing.T) {
	mem := &fakeMemory{resp: &agent.MemorySearchResponse{
		Results: []agent.MemoryResult{
			{Content: "user prefers metric units", Score: 0.9},
			{Content: "user lives in Bogota", Score: 0.4},
		},
	}}

	result, err := memorytool.LoadMemory().Call(toolContext(t, mem), map[string]any{"query": "units"})
	require.NoError(t, err)

	assert.Equal(t, "units", result["query"])
	assert.Equal(t, 2, result["count"])

	memories, ok := result["memories"].([]map[string]any)
	require.True(t, ok)
	assert.Equal(t, "user prefers metric units", memories[0]["content"])
	assert.Equal(t, 0.9, memories[0]["score"])
}

func TestLoadMemoryWithoutServiceIsEmpty(t *testing.T) {
	result, err := memorytool.LoadMemory().Call(toolContext(t, nil), map[string]any{"query": "anything"})
	require.NoError(t, err)
	assert.Equal(t, 0, result["count"])
}

func TestLoadMemoryRequiresQuery(t *testing.T) {
	result, err := memorytool.LoadMemory().Call(toolContext(t, nil), map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, result["error"], "query is required")
}

func TestLoadMemorySearchErrorIsData(t *testing.T) {
	mem := &fakeMemory{err: errors.New("index offline")}

	result, err := memorytool.LoadMemory().Call(toolContext(t, mem), map[string]any{"query": "units"})
	require.NoError(t, err)
	assert.Equal(t, "index offline", result["error"])
}
