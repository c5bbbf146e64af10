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

// Package mcptool exposes a remote MCP (Model Context Protocol) server's
// tools as a toolset.
//
// The connection is established eagerly at hydration: the server is
// initialized, its tools listed once, and each wrapped as a callable
// tool. An unreachable server is a hydration failure, not a runtime
// surprise. The hydrated workflow owns the connection and closes it at
// shutdown.
package mcptool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	weft "github.com/weftworks/weft"
	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/tool"
)

const (
	protocolVersion = "2024-11-05"

	// defaultConnectTimeout bounds initialize + tools/list at boot.
	defaultConnectTimeout = 30 * time.Second
)

// Config configures one MCP server connection.
type Config struct {
	// Name identifies the toolset ("mcp:<name>" in workflow tool refs).
	Name string

	// URL is the server endpoint for the streamable HTTP transport.
	URL string

	// Command launches a local server over stdio instead of HTTP.
	Command string
	Args    []string
	Env     map[string]string

	// Filter limits which remote tools are exposed. Empty means all.
	Filter []string

	// ConnectTimeout bounds the boot-time handshake. Zero means 30s.
	ConnectTimeout time.Duration
}

// Toolset is a connected MCP server.
type Toolset struct {
	name string

	mu     sync.Mutex
	client *client.Client
	tools  []tool.Tool
}

// Connect dials the server, performs the MCP handshake and lists its
// tools. Call Close when the workflow shuts down.
func Connect(ctx context.Context, cfg Config) (*Toolset, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("mcp toolset name is required")
	}
	if cfg.URL == "" && cfg.Command == "" {
		return nil, fmt.Errorf("mcp toolset %q: either url or command is required", cfg.Name)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	mcpClient, err := dial(cfg)
	if err != nil {
		return nil, fmt.Errorf("mcp toolset %q: %w", cfg.Name, err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp toolset %q: start: %w", cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = protocolVersion
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "weft",
		Version: weft.Version,
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("mcp toolset %q: initialize: %w", cfg.Name, err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("mcp toolset %q: list tools: %w", cfg.Name, err)
	}

	allow := filterSet(cfg.Filter)
	ts := &Toolset{name: cfg.Name, client: mcpClient}
	for _, remote := range listResp.Tools {
		if allow != nil && !allow[remote.Name] {
			continue
		}
		ts.tools = append(ts.tools, &remoteTool{
			toolset:     ts,
			name:        remote.Name,
			description: remote.Description,
			schema:      convertSchema(remote.InputSchema),
		})
	}

	slog.Info("Connected to MCP server",
		"name", cfg.Name,
		"transport", transportName(cfg),
		"tools", len(ts.tools))

	return ts, nil
}

func dial(cfg Config) (*client.Client, error) {
	if cfg.Command != "" {
		return client.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)
	}
	return client.NewStreamableHttpClient(cfg.URL)
}

func transportName(cfg Config) string {
	if cfg.Command != "" {
		return "stdio"
	}
	return "streamable-http"
}

// Name returns the toolset name.
func (ts *Toolset) Name() string { return ts.name }

// Tools returns the tools listed at connect time.
func (ts *Toolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.client == nil {
		return nil, fmt.Errorf("mcp toolset %q is closed", ts.name)
	}
	return ts.tools, nil
}

// WithFilter narrows the toolset to the named tools, sharing the
// underlying connection. Workflows referencing "mcp:server" with a tool
// allowlist get one of these.
func (ts *Toolset) WithFilter(filter []string) tool.Toolset {
	return tool.Filtered(ts, tool.StringPredicate(filter))
}

// Close shuts the connection down. Further calls fail.
func (ts *Toolset) Close() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.client == nil {
		return nil
	}
	err := ts.client.Close()
	ts.client = nil
	ts.tools = nil
	return err
}

// remoteTool is one server-side tool wrapped as tool.CallableTool.
type remoteTool struct {
	toolset     *Toolset
	name        string
	description string
	schema      map[string]any
}

func (t *remoteTool) Name() string        { return t.name }
func (t *remoteTool) Description() string { return t.description }
func (t *remoteTool) IsLongRunning() bool { return false }

func (t *remoteTool) Schema() map[string]any { return t.schema }

// Call forwards to the server. A tool-level failure (IsError on the MCP
// result) comes back as {"error": ...} data; transport failures are Go
// errors.
func (t *remoteTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	t.toolset.mu.Lock()
	mcpClient := t.toolset.client
	t.toolset.mu.Unlock()
	if mcpClient == nil {
		return nil, fmt.Errorf("mcp toolset %q is closed", t.toolset.name)
	}

	var callCtx context.Context = ctx
	if callCtx == nil {
		callCtx = context.Background()
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp tool %s: %w", t.name, err)
	}
	return parseCallResult(resp), nil
}

// parseCallResult flattens the MCP content list into a result map.
func parseCallResult(resp *mcp.CallToolResult) map[string]any {
	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}

	result := make(map[string]any)
	if resp.IsError {
		if len(texts) > 0 {
			result["error"] = texts[0]
		} else {
			result["error"] = "unknown error"
		}
		return result
	}

	switch len(texts) {
	case 0:
		result["result"] = ""
	case 1:
		result["result"] = texts[0]
	default:
		result["results"] = texts
	}
	return result
}

func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	out := map[string]any{"type": "object"}
	if schema.Type != "" {
		out["type"] = schema.Type
	}
	if len(schema.Properties) > 0 {
		out["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		out["required"] = schema.Required
	}
	return out
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func filterSet(filter []string) map[string]bool {
	if len(filter) == 0 {
		return nil
	}
	set := make(map[string]bool, len(filter))
	for _, name := range filter {
		set[name] = true
	}
	return set
}

var (
	_ tool.Toolset      = (*Toolset)(nil)
	_ tool.CallableTool = (*remoteTool)(nil)
)
