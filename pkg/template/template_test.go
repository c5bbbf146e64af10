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

package template

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/agent"
)

// stateContext is a ReadonlyContext backed by a plain map.
type stateContext struct {
	context.Context
	values map[string]any
}

func newStateContext(values map[string]any) *stateContext {
	return &stateContext{Context: context.Background(), values: values}
}

func (c *stateContext) InvocationID() string        { return "inv-test" }
func (c *stateContext) AgentName() string           { return "test" }
func (c *stateContext) UserContent() *agent.Content { return nil }
func (c *stateContext) UserID() string              { return "user" }
func (c *stateContext) AppName() string             { return "weft" }
func (c *stateContext) SessionID() string           { return "sess" }
func (c *stateContext) Branch() string              { return "" }

func (c *stateContext) ReadonlyState() agent.ReadonlyState { return c }

func (c *stateContext) Get(key string) (any, error) {
	v, ok := c.values[key]
	if !ok {
		return nil, agent.ErrStateKeyNotFound
	}
	return v, nil
}

func (c *stateContext) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for k, v := range c.values {
			if !yield(k, v) {
				return
			}
		}
	}
}

func TestInjectState(t *testing.T) {
	ctx := newStateContext(map[string]any{
		"user_name":   "Ada",
		"app:project": "weft",
	})

	got, err := InjectState(ctx, "Hello {user_name}, project is {app:project}.")
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, project is weft.", got)
}

func TestInjectStateMissingRequiredKey(t *testing.T) {
	ctx := newStateContext(map[string]any{})

	_, err := InjectState(ctx, "Hello {user_name}.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_name")
}

func TestInjectStateOptionalKey(t *testing.T) {
	ctx := newStateContext(map[string]any{})

	got, err := InjectState(ctx, "Hello {user_name?}.")
	require.NoError(t, err)
	assert.Equal(t, "Hello .", got)
}

func TestInjectStateInvalidNameKeptLiteral(t *testing.T) {
	ctx := newStateContext(map[string]any{})

	got, err := InjectState(ctx, `use {"json": true} as payload`)
	require.NoError(t, err)
	assert.Equal(t, `use {"json": true} as payload`, got)
}

func TestInjectStateStringifiesValues(t *testing.T) {
	ctx := newStateContext(map[string]any{"rate": 1.0891, "count": 3})

	got, err := InjectState(ctx, "rate={rate} count={count}")
	require.NoError(t, err)
	assert.Equal(t, "rate=1.0891 count=3", got)
}

func TestResolveValueExactPreservesType(t *testing.T) {
	ctx := newStateContext(map[string]any{
		"rates":   map[string]any{"EUR": 0.92},
		"retries": 3,
	})

	got := ResolveValue(ctx, "{rates}")
	assert.Equal(t, map[string]any{"EUR": 0.92}, got)

	got = ResolveValue(ctx, "{retries}")
	assert.Equal(t, 3, got)
}

func TestResolveValueEmbeddedStringifies(t *testing.T) {
	ctx := newStateContext(map[string]any{"base": "USD", "symbol": "EUR"})

	got := ResolveValue(ctx, "https://open.er-api.com/v6/latest/{base}?symbols={symbol}")
	assert.Equal(t, "https://open.er-api.com/v6/latest/USD?symbols=EUR", got)
}

func TestResolveValueMissingKeyStaysLiteral(t *testing.T) {
	ctx := newStateContext(map[string]any{})

	got := ResolveValue(ctx, "{missing}")
	assert.Equal(t, "{missing}", got)

	got = ResolveValue(ctx, "prefix {missing} suffix")
	assert.Equal(t, "prefix {missing} suffix", got)
}

func TestResolveValueOptionalMissingIsEmpty(t *testing.T) {
	ctx := newStateContext(map[string]any{})

	got := ResolveValue(ctx, "{missing?}")
	assert.Equal(t, "", got)

	got = ResolveValue(ctx, "a{missing?}b")
	assert.Equal(t, "ab", got)
}

func TestResolveConfigRecurses(t *testing.T) {
	ctx := newStateContext(map[string]any{"url": "https://example.com", "limit": 10})

	config := map[string]any{
		"endpoint": "{url}/v1",
		"options":  map[string]any{"limit": "{limit}"},
		"tags":     []any{"{url}", "static"},
		"timeout":  30,
	}
	resolved := ResolveConfig(ctx, config)

	assert.Equal(t, "https://example.com/v1", resolved["endpoint"])
	assert.Equal(t, map[string]any{"limit": 10}, resolved["options"])
	assert.Equal(t, []any{"https://example.com", "static"}, resolved["tags"])
	assert.Equal(t, 30, resolved["timeout"])
}

func TestListPlaceholders(t *testing.T) {
	names := ListPlaceholders("a {x} b {y?} c {x}")
	assert.Equal(t, []string{"x", "y"}, names)
}

func TestHasPlaceholders(t *testing.T) {
	assert.True(t, HasPlaceholders("{x}"))
	assert.False(t, HasPlaceholders("plain text"))
}
