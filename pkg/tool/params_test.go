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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/weftworks/weft/pkg/tool"
)

func TestParseJSONMapValid(t *testing.T) {
	got := tool.ParseJSONMap(`{"Authorization":"Bearer abc","retries":3}`, nil)
	assert.Equal(t, "Bearer abc", got["Authorization"])
	assert.Equal(t, float64(3), got["retries"])
}

func TestParseJSONMapRepairsSingleQuotes(t *testing.T) {
	// Models frequently emit Python-style dicts.
	got := tool.ParseJSONMap(`{'region': 'us-east-1'}`, nil)
	assert.Equal(t, "us-east-1", got["region"])
}

func TestParseJSONMapRepairsTrailingComma(t *testing.T) {
	got := tool.ParseJSONMap(`{"a": 1, "b": 2,}`, nil)
	assert.Equal(t, float64(1), got["a"])
	assert.Equal(t, float64(2), got["b"])
}

func TestParseJSONMapFallback(t *testing.T) {
	fallback := map[string]any{"default": true}

	assert.Equal(t, fallback, tool.ParseJSONMap("", fallback))
	assert.Equal(t, fallback, tool.ParseJSONMap("   ", fallback))
	assert.Equal(t, fallback, tool.ParseJSONMap("complete nonsense that cannot be repaired into an object", fallback))
	assert.Equal(t, fallback, tool.ParseJSONMap(`[1,2,3]`, fallback))
}

func TestParseJSONMapNilFallback(t *testing.T) {
	assert.Nil(t, tool.ParseJSONMap("", nil))
}

func TestParseJSONSliceValid(t *testing.T) {
	got := tool.ParseJSONSlice(`["a","b"]`, nil)
	assert.Equal(t, []any{"a", "b"}, got)
}

func TestParseJSONSliceFallback(t *testing.T) {
	fallback := []any{"x"}

	assert.Equal(t, fallback, tool.ParseJSONSlice("", fallback))
	assert.Equal(t, fallback, tool.ParseJSONSlice(`{"not":"a slice"}`, fallback))
}
