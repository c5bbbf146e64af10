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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/config/provider"
)

func TestDecodeAppliesDefaults(t *testing.T) {
	cfg, err := Decode([]byte("workflows_dir: ./flows\n"))
	require.NoError(t, err)

	assert.Equal(t, "./flows", cfg.WorkflowsDir)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ".weft", cfg.DataDir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "openai", cfg.Models.DefaultProvider)
	assert.False(t, cfg.Observability.Enabled)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode([]byte("server:\n  hostname: example.com\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hostname")
}

func TestDecodeExpandsEnvironment(t *testing.T) {
	t.Setenv("WEFT_TEST_DIR", "/srv/flows")

	cfg, err := Decode([]byte("workflows_dir: ${WEFT_TEST_DIR}\ndata_dir: ${WEFT_TEST_MISSING:-/tmp/weft}\n"))
	require.NoError(t, err)

	assert.Equal(t, "/srv/flows", cfg.WorkflowsDir)
	assert.Equal(t, "/tmp/weft", cfg.DataDir)
}

func TestDecodeHonorsEnvOverrides(t *testing.T) {
	t.Setenv("WEFT_SERVER_PORT", "9999")
	t.Setenv("WEFT_LOG_LEVEL", "debug")

	cfg, err := Decode([]byte("server:\n  port: 8081\n"))
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestDecodeMCPServerTable(t *testing.T) {
	cfg, err := Decode([]byte(`
mcp_servers:
  search:
    url: http://localhost:3000/mcp
    filter: [web_search]
    connect_timeout: 10s
  local:
    command: ./mcp-server
    args: ["--stdio"]
`))
	require.NoError(t, err)

	toolsets := cfg.MCPToolsets()
	require.Len(t, toolsets, 2)
	assert.Equal(t, "search", toolsets["search"].Name)
	assert.Equal(t, "http://localhost:3000/mcp", toolsets["search"].URL)
	assert.Equal(t, []string{"web_search"}, toolsets["search"].Filter)
	assert.Equal(t, 10*time.Second, toolsets["search"].ConnectTimeout)
	assert.Equal(t, "./mcp-server", toolsets["local"].Command)
}

func TestValidateRejectsAmbiguousMCPServer(t *testing.T) {
	_, err := Decode([]byte(`
mcp_servers:
  broken:
    url: http://localhost:3000/mcp
    command: ./also-local
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	_, err := Decode([]byte("models:\n  default_provider: cohere\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_provider")
}

func TestValidateRejectsBadTimezone(t *testing.T) {
	_, err := Decode([]byte("timezone: Mars/Olympus\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timezone")
}

func TestServerURLDerivation(t *testing.T) {
	s := ServerConfig{Host: "0.0.0.0", Port: 8080}
	assert.Equal(t, "http://localhost:8080", s.URL())

	s.BaseURL = "https://weft.example.com"
	assert.Equal(t, "https://weft.example.com", s.URL())
}

func TestLoadDotenvSearchesUpward(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("WEFT_DOTENV_PROBE=found\n"), 0o644))

	require.NoError(t, LoadDotenv(nested, ""))
	t.Cleanup(func() { os.Unsetenv("WEFT_DOTENV_PROBE") })

	assert.Equal(t, "found", os.Getenv("WEFT_DOTENV_PROBE"))
}

func TestLoadDotenvDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("WEFT_DOTENV_KEEP=file\n"), 0o644))
	t.Setenv("WEFT_DOTENV_KEEP", "process")

	require.NoError(t, LoadDotenv(dir, ""))
	assert.Equal(t, "process", os.Getenv("WEFT_DOTENV_KEEP"))
}

func TestLoaderLoadsFromFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workflows_dir: ./flows\n"), 0o644))

	p, err := provider.New(provider.Config{Path: path})
	require.NoError(t, err)

	l := NewLoader(p)
	t.Cleanup(func() { l.Close() })

	cfg, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "./flows", cfg.WorkflowsDir)
}

func TestLoaderWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workflows_dir: ./flows\n"), 0o644))

	p, err := provider.New(provider.Config{Path: path})
	require.NoError(t, err)

	l := NewLoader(p)
	t.Cleanup(func() { l.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 1)
	go func() {
		_ = l.Watch(ctx, func(cfg *Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("workflows_dir: ./other\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "./other", cfg.WorkflowsDir)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
