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

package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvName(t *testing.T) {
	assert.Equal(t, "PLATFORM_API_KEY", EnvName("api_key"))
	assert.Equal(t, "PLATFORM_API_KEY", EnvName("api-key"))
	assert.Equal(t, "PLATFORM_TOKEN", EnvName("token"))
}

func TestEnvWinsOverStore(t *testing.T) {
	t.Setenv("PLATFORM_DB_PASSWORD", "from-env")

	s := NewStore()
	require.NoError(t, s.Set("db_password", "from-store"))

	got, ok := s.Get("db_password")
	require.True(t, ok)
	assert.Equal(t, "from-env", got)
}

func TestStoreFallback(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set("api_key", "sk-test"))

	got, ok := s.Get("api_key")
	require.True(t, ok)
	assert.Equal(t, "sk-test", got)

	_, ok = s.Get("missing")
	assert.False(t, ok)
	assert.Empty(t, s.GetOrEmpty("missing"))
}

func TestFreezeRejectsWrites(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set("a", "1"))

	s.Freeze()
	assert.True(t, s.Frozen())
	assert.Error(t, s.Set("b", "2"))
	assert.Error(t, s.SetAll(map[string]string{"c": "3"}))

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", got)
}

func TestSetAll(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.SetAll(map[string]string{"x": "1", "y": "2"}))

	got, _ := s.Get("y")
	assert.Equal(t, "2", got)
	assert.Error(t, s.SetAll(map[string]string{"": "bad"}))
}
