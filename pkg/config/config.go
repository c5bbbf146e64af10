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

// Package config loads the platform configuration.
//
// The platform config is distinct from workflow definitions: it describes
// the process (server address, data directory, model providers, MCP
// servers, secrets), while workflow.yaml files describe what runs on it.
// Sources are pluggable through the provider subpackage; loading applies
// ${VAR} / ${VAR:-default} expansion, merges over defaults, honors
// WEFT_-prefixed environment overrides and rejects unknown keys with
// their paths.
package config

import (
	"fmt"
	"time"

	"github.com/weftworks/weft/pkg/model"
	"github.com/weftworks/weft/pkg/observability"
	"github.com/weftworks/weft/pkg/tool/mcptool"
)

// ServerConfig addresses the serve surface.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// BaseURL is the externally visible URL used in A2A cards. Empty
	// derives http://{host}:{port}.
	BaseURL string `koanf:"base_url"`
}

// URL returns the base URL, deriving it from host and port when not set
// explicitly.
func (s ServerConfig) URL() string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	host := s.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, s.Port)
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures the process-wide logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `koanf:"level"`

	// Format is simple or verbose.
	Format string `koanf:"format"`

	// File appends logs to a file instead of stderr.
	File string `koanf:"file"`
}

// ProviderConfig holds per-provider model client settings. API keys are
// not configured here: they come from the conventional environment
// variable or the secret store.
type ProviderConfig struct {
	BaseURL    string        `koanf:"base_url"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
}

// ModelsConfig routes model identifiers to providers.
type ModelsConfig struct {
	// DefaultProvider handles unprefixed model identifiers.
	DefaultProvider string `koanf:"default_provider"`

	OpenAI    ProviderConfig `koanf:"openai"`
	Anthropic ProviderConfig `koanf:"anthropic"`
	Ollama    ProviderConfig `koanf:"ollama"`
}

// MCPServerConfig declares one entry of the MCP server table that
// "mcp:<server>" tool references resolve through.
type MCPServerConfig struct {
	// URL is the endpoint of a streamable HTTP server.
	URL string `koanf:"url"`

	// Command launches a local server over stdio instead of HTTP.
	Command string            `koanf:"command"`
	Args    []string          `koanf:"args"`
	Env     map[string]string `koanf:"env"`

	// Filter limits which remote tools are exposed. Empty means all.
	Filter []string `koanf:"filter"`

	// ConnectTimeout bounds the boot-time handshake.
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// Config is the platform configuration.
type Config struct {
	Server ServerConfig `koanf:"server"`

	// WorkflowsDir holds one subdirectory per workflow package.
	WorkflowsDir string `koanf:"workflows_dir"`

	// DataDir holds session databases and file artifacts.
	DataDir string `koanf:"data_dir"`

	// Timezone names the wall-clock zone seeded into session state.
	// Empty uses the host zone.
	Timezone string `koanf:"timezone"`

	Logging       LoggingConfig        `koanf:"logging"`
	Observability observability.Config `koanf:"observability"`
	Models        ModelsConfig         `koanf:"models"`

	// MCPServers is the server table for "mcp:<server>" tool references.
	MCPServers map[string]MCPServerConfig `koanf:"mcp_servers"`

	// Secrets seed the platform secret store. Values typically use
	// ${VAR} expansion rather than literals.
	Secrets map[string]string `koanf:"secrets"`
}

// Default returns the configuration used when a key is absent from the
// source.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		WorkflowsDir: "workflows",
		DataDir:      ".weft",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "simple",
		},
		Models: ModelsConfig{
			DefaultProvider: string(model.ProviderOpenAI),
		},
	}
}

// Validate checks the decoded configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.WorkflowsDir == "" {
		return fmt.Errorf("workflows_dir cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	switch p := model.Provider(c.Models.DefaultProvider); p {
	case model.ProviderOpenAI, model.ProviderAnthropic, model.ProviderOllama, model.ProviderTest:
	default:
		return fmt.Errorf("models.default_provider %q is not a known provider", c.Models.DefaultProvider)
	}

	for name, srv := range c.MCPServers {
		if srv.URL == "" && srv.Command == "" {
			return fmt.Errorf("mcp_servers.%s: either url or command is required", name)
		}
		if srv.URL != "" && srv.Command != "" {
			return fmt.Errorf("mcp_servers.%s: url and command are mutually exclusive", name)
		}
	}
	return nil
}

// Location resolves the configured timezone. Empty means the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// MCPToolsets converts the server table into hydrator-ready toolset
// configs, keyed by server name.
func (c *Config) MCPToolsets() map[string]mcptool.Config {
	if len(c.MCPServers) == 0 {
		return nil
	}
	out := make(map[string]mcptool.Config, len(c.MCPServers))
	for name, srv := range c.MCPServers {
		out[name] = mcptool.Config{
			Name:           name,
			URL:            srv.URL,
			Command:        srv.Command,
			Args:           srv.Args,
			Env:            srv.Env,
			Filter:         srv.Filter,
			ConnectTimeout: srv.ConnectTimeout,
		}
	}
	return out
}
