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

// Package tool defines interfaces for tools that agents can invoke.
//
// Tools are capabilities that allow agents to perform specific actions,
// such as calling external APIs, manipulating session state, or steering
// workflow control flow.
//
// # Tool Interface Hierarchy
//
//	Tool (base)
//	  ├── CallableTool   - Simple synchronous execution
//	  └── StreamingTool  - Real-time incremental output
//
// Tools report failures as data: a failed call returns a map with an
// "error" key instead of a Go error, so the result lands in session state
// and downstream agents can branch on it. Go errors are reserved for
// infrastructure problems (the tool could not run at all).
//
// # Creating Tools
//
//	// Simple function tool from a typed Go function
//	tool := functiontool.New(cfg, myFunc)
//
//	// MCP toolset (lazy connection)
//	toolset := mcptool.New(mcpConfig)
package tool

import (
	"context"
	"iter"

	"github.com/weftworks/weft/pkg/agent"
)

// Tool defines the base interface for a callable tool.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	// Used by LLMs to decide when to use this tool.
	Description() string

	// IsLongRunning indicates whether this tool is a long-running async operation.
	IsLongRunning() bool
}

// CallableTool extends Tool with synchronous execution capability.
type CallableTool interface {
	Tool

	// Call executes the tool with the given arguments.
	// Returns the result as a map and any error that occurred.
	Call(ctx Context, args map[string]any) (map[string]any, error)

	// Schema returns the JSON schema for the tool's parameters.
	// Returns nil if the tool takes no parameters.
	Schema() map[string]any
}

// StreamingTool extends Tool with incremental output capability.
//
// The streaming output is surfaced to clients as it arrives, allowing
// progress display for slow operations.
type StreamingTool interface {
	Tool

	// CallStreaming executes the tool and yields incremental results.
	// Each yielded Result represents a chunk of output.
	CallStreaming(ctx Context, args map[string]any) iter.Seq2[*Result, error]

	// Schema returns the JSON schema for the tool's parameters.
	Schema() map[string]any
}

// Result represents the output of a tool execution.
// Used by both CallableTool (single result) and StreamingTool (multiple results).
type Result struct {
	// Content is the output content, typically a string or structured data.
	Content any

	// Streaming indicates this is an intermediate chunk, not the final result.
	Streaming bool

	// Error is set if an error occurred during execution.
	Error string

	// Metadata contains optional additional data about this result.
	Metadata map[string]any
}

// Context provides the execution context for a tool.
type Context interface {
	agent.CallbackContext

	// FunctionCallID returns the unique ID of this tool invocation.
	FunctionCallID() string

	// Actions returns the event actions to modify state or steer the workflow.
	Actions() *agent.EventActions

	// SearchMemory searches the agent's memory for relevant information.
	SearchMemory(ctx context.Context, query string) (*agent.MemorySearchResponse, error)
}

// Toolset groups related tools and provides dynamic resolution.
// Toolsets enable lazy loading: tools are resolved only when needed.
type Toolset interface {
	// Name returns the name of this toolset.
	Name() string

	// Tools returns the available tools based on the current context.
	Tools(ctx agent.ReadonlyContext) ([]Tool, error)
}

// Predicate determines whether a tool should be available to the LLM.
type Predicate func(ctx agent.ReadonlyContext, tool Tool) bool

// StringPredicate creates a Predicate that allows only named tools.
func StringPredicate(allowedTools []string) Predicate {
	allowed := make(map[string]bool, len(allowedTools))
	for _, name := range allowedTools {
		allowed[name] = true
	}

	return func(ctx agent.ReadonlyContext, tool Tool) bool {
		return allowed[tool.Name()]
	}
}

// Filtered wraps a toolset so that only tools allowed by the predicate
// are exposed. The underlying toolset (and any connection it holds) is
// shared with the wrapper.
func Filtered(ts Toolset, pred Predicate) Toolset {
	return &filteredToolset{parent: ts, pred: pred}
}

type filteredToolset struct {
	parent Toolset
	pred   Predicate
}

func (f *filteredToolset) Name() string { return f.parent.Name() }

func (f *filteredToolset) Tools(ctx agent.ReadonlyContext) ([]Tool, error) {
	all, err := f.parent.Tools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Tool, 0, len(all))
	for _, t := range all {
		if f.pred(ctx, t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Definition represents a tool definition for LLM function calling.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToDefinition converts a tool to a Definition.
func ToDefinition(t Tool) Definition {
	def := Definition{
		Name:        t.Name(),
		Description: t.Description(),
	}

	if ct, ok := t.(CallableTool); ok {
		def.Parameters = ct.Schema()
	} else if st, ok := t.(StreamingTool); ok {
		def.Parameters = st.Schema()
	}

	return def
}

// ToolCall represents an LLM's request to invoke a tool.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}
