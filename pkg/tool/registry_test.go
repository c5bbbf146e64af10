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

package tool_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/tool"
)

type fakeTool struct {
	name string
	desc string
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return f.desc }
func (f *fakeTool) IsLongRunning() bool { return false }

type fakeCallable struct {
	fakeTool
	schema map[string]any
}

func (f *fakeCallable) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{"ok": true}, nil
}

func (f *fakeCallable) Schema() map[string]any { return f.schema }

type fakeToolset struct {
	name  string
	tools []tool.Tool
	err   error
	calls int
}

func (f *fakeToolset) Name() string { return f.name }

func (f *fakeToolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	f.calls++
	return f.tools, f.err
}

func TestRegistryResolvePrefersCustom(t *testing.T) {
	r := tool.NewRegistry()
	r.RegisterBuiltin(&fakeTool{name: "echo", desc: "builtin echo"})
	r.Register(&fakeTool{name: "echo", desc: "custom echo"})

	got, err := r.Resolve("echo")
	require.NoError(t, err)
	assert.Equal(t, "custom echo", got.Description())
}

func TestRegistryResolveFallsBackToBuiltin(t *testing.T) {
	r := tool.NewRegistry()
	r.RegisterBuiltin(&fakeTool{name: "exit_loop", desc: "exit the loop"})

	got, err := r.Resolve("exit_loop")
	require.NoError(t, err)
	assert.Equal(t, "exit the loop", got.Description())
}

func TestRegistryResolveUnknown(t *testing.T) {
	r := tool.NewRegistry()

	_, err := r.Resolve("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, tool.ErrToolNotFound))
	assert.Contains(t, err.Error(), "missing")
}

func TestRegistryReRegistrationOverwrites(t *testing.T) {
	r := tool.NewRegistry()
	r.Register(&fakeTool{name: "lookup", desc: "first"})
	r.Register(&fakeTool{name: "lookup", desc: "second"})

	got, err := r.Resolve("lookup")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Description())
}

func TestRegistryDiscoverRunsOnce(t *testing.T) {
	ts := &fakeToolset{
		name:  "remote",
		tools: []tool.Tool{&fakeTool{name: "remote_search", desc: "remote"}},
	}

	r := tool.NewRegistry()
	r.RegisterToolset(ts)

	require.NoError(t, r.Discover(nil))
	require.NoError(t, r.Discover(nil))
	assert.Equal(t, 1, ts.calls)

	_, err := r.Resolve("remote_search")
	require.NoError(t, err)
}

func TestRegistryDiscoverSkipsFailingToolset(t *testing.T) {
	broken := &fakeToolset{name: "broken", err: fmt.Errorf("connection refused")}
	healthy := &fakeToolset{
		name:  "healthy",
		tools: []tool.Tool{&fakeTool{name: "list_items", desc: "lists"}},
	}

	r := tool.NewRegistry()
	r.RegisterToolset(broken)
	r.RegisterToolset(healthy)

	require.NoError(t, r.Discover(nil))

	_, err := r.Resolve("list_items")
	require.NoError(t, err)
}

func TestRegistryNamesSortedAndDeduped(t *testing.T) {
	r := tool.NewRegistry()
	r.RegisterBuiltin(&fakeTool{name: "echo"})
	r.RegisterBuiltin(&fakeTool{name: "alpha"})
	r.Register(&fakeTool{name: "echo"})
	r.Register(&fakeTool{name: "zeta"})

	assert.Equal(t, []string{"alpha", "echo", "zeta"}, r.Names())
}

func TestFilteredToolsetAppliesPredicate(t *testing.T) {
	ts := &fakeToolset{
		name: "remote",
		tools: []tool.Tool{
			&fakeTool{name: "search", desc: "searches"},
			&fakeTool{name: "delete", desc: "deletes"},
			&fakeTool{name: "list", desc: "lists"},
		},
	}

	filtered := tool.Filtered(ts, tool.StringPredicate([]string{"search", "list"}))
	assert.Equal(t, "remote", filtered.Name())

	got, err := filtered.Tools(nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "search", got[0].Name())
	assert.Equal(t, "list", got[1].Name())
}

func TestFilteredToolsetPropagatesError(t *testing.T) {
	ts := &fakeToolset{name: "broken", err: fmt.Errorf("connection refused")}

	filtered := tool.Filtered(ts, tool.StringPredicate([]string{"search"}))
	_, err := filtered.Tools(nil)
	assert.Error(t, err)
}

func TestRegistryMetadata(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string"},
		},
	}

	r := tool.NewRegistry()
	r.RegisterBuiltin(&fakeCallable{
		fakeTool: fakeTool{name: "http_request", desc: "makes requests"},
		schema:   schema,
	})
	r.RegisterBuiltin(&fakeTool{name: "escalate", desc: "stops the loop"})

	defs := r.Metadata()
	require.Len(t, defs, 2)

	assert.Equal(t, "escalate", defs[0].Name)
	assert.Nil(t, defs[0].Parameters)

	assert.Equal(t, "http_request", defs[1].Name)
	assert.Equal(t, schema, defs[1].Parameters)
}
