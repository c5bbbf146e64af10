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

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := NewBaseRegistry[int]()

	require.NoError(t, r.Register("one", 1))
	require.NoError(t, r.Register("two", 2))

	got, ok := r.Get("one")
	require.True(t, ok)
	assert.Equal(t, 1, got)

	_, ok = r.Get("three")
	assert.False(t, ok)
	assert.Equal(t, 2, r.Count())
}

func TestRegisterRejectsDuplicateAndEmpty(t *testing.T) {
	r := NewBaseRegistry[string]()

	require.NoError(t, r.Register("a", "x"))
	assert.Error(t, r.Register("a", "y"))
	assert.Error(t, r.Register("", "z"))

	got, _ := r.Get("a")
	assert.Equal(t, "x", got)
}

func TestPutOverwrites(t *testing.T) {
	r := NewBaseRegistry[string]()

	require.NoError(t, r.Put("a", "first"))
	require.NoError(t, r.Put("a", "second"))

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "second", got)
	assert.Equal(t, 1, r.Count())
}

func TestNamesSorted(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("zebra", 1))
	require.NoError(t, r.Register("alpha", 2))
	require.NoError(t, r.Register("mid", 3))

	assert.Equal(t, []string{"alpha", "mid", "zebra"}, r.Names())
}

func TestFreezeBlocksMutation(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))

	r.Freeze()
	assert.True(t, r.Frozen())

	assert.Error(t, r.Register("b", 2))
	assert.Error(t, r.Put("a", 9))
	assert.Error(t, r.Remove("a"))

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, got)
}

func TestRemove(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))

	require.NoError(t, r.Remove("a"))
	assert.Error(t, r.Remove("a"))
	assert.Equal(t, 0, r.Count())
}
