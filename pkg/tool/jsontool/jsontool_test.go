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

package jsontool_test

import (
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/tool"
	"github.com/weftworks/weft/pkg/tool/jsontool"
)

type fakeState struct {
	m map[string]any
}

func (s *fakeState) Get(key string) (any, error) {
	v, ok := s.m[key]
	if !ok {
		return nil, agent.ErrStateKeyNotFound
	}
	return v, nil
}

func (s *fakeState) Set(key string, value any) error {
	s.m[key] = value
	return nil
}

func (s *fakeState) Delete(key string) error {
	delete(s.m, key)
	return nil
}

func (s *fakeState) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for k, v := range s.m {
			if !yield(k, v) {
				return
			}
		}
	}
}

type fakeContext struct {
	tool.Context
	state *fakeState
}

func (c *fakeContext) State() agent.State { return c.state }

func newContext(state map[string]any) *fakeContext {
	return &fakeContext{state: &fakeState{m: state}}
}

func TestExtract(t *testing.T) {
	doc := map[string]any{
		"rates": map[string]any{"EUR": 0.92, "GBP": 0.79},
		"items": []any{
			map[string]any{"name": "first"},
			map[string]any{"name": "second"},
		},
	}

	tests := []struct {
		name    string
		path    string
		want    any
		wantErr string
	}{
		{name: "nested key", path: "rates.EUR", want: 0.92},
		{name: "array index", path: "items.1.name", want: "second"},
		{name: "empty path returns root", path: "", want: doc},
		{name: "missing key", path: "rates.JPY", wantErr: `key "JPY" not found`},
		{name: "bad index", path: "items.two", wantErr: "expected numeric index"},
		{name: "out of range", path: "items.5.name", wantErr: "out of range"},
		{name: "descend into scalar", path: "rates.EUR.cents", wantErr: "cannot descend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := jsontool.Extract(doc, tt.path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractDescendsIntoJSONStrings(t *testing.T) {
	// An HTTP response stored in state keeps its body as a string.
	doc := map[string]any{
		"content": `{"rates":{"EUR":0.92}}`,
	}

	got, err := jsontool.Extract(doc, "content.rates.EUR")
	require.NoError(t, err)
	assert.Equal(t, 0.92, got)
}

func TestJSONPathFromDocument(t *testing.T) {
	jp, err := jsontool.NewJSONPath()
	require.NoError(t, err)

	result, err := jp.Call(newContext(nil), map[string]any{
		"json": `{"rates":{"EUR":0.92}}`,
		"path": "rates.EUR",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.92, result["value"])
	assert.Equal(t, "rates.EUR", result["path"])
}

func TestJSONPathFromState(t *testing.T) {
	jp, err := jsontool.NewJSONPath()
	require.NoError(t, err)

	ctx := newContext(map[string]any{
		"rate_response": map[string]any{
			"content": `{"rates":{"EUR":0.92}}`,
		},
	})

	result, err := jp.Call(ctx, map[string]any{
		"state_key": "rate_response",
		"path":      "content.rates.EUR",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.92, result["value"])
}

func TestJSONPathErrors(t *testing.T) {
	jp, err := jsontool.NewJSONPath()
	require.NoError(t, err)

	result, err := jp.Call(newContext(nil), map[string]any{"path": "a.b"})
	require.NoError(t, err)
	assert.Contains(t, result["error"], "either json or state_key")

	result, err = jp.Call(newContext(nil), map[string]any{
		"json": "{broken",
		"path": "a",
	})
	require.NoError(t, err)
	assert.Contains(t, result["error"], "invalid JSON")

	result, err = jp.Call(newContext(nil), map[string]any{
		"state_key": "missing",
		"path":      "a",
	})
	require.NoError(t, err)
	assert.Contains(t, result["error"], `state key "missing" not found`)
}

func TestReadState(t *testing.T) {
	rs, err := jsontool.NewReadState()
	require.NoError(t, err)

	ctx := newContext(map[string]any{"report": "all good"})

	result, err := rs.Call(ctx, map[string]any{"key": "report"})
	require.NoError(t, err)
	assert.Equal(t, "report", result["key"])
	assert.Equal(t, "all good", result["value"])

	result, err = rs.Call(ctx, map[string]any{"key": "absent"})
	require.NoError(t, err)
	assert.Contains(t, result["error"], `state key "absent" not found`)
}
