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

// Package openapitool turns an OpenAPI document into callable tools, one
// per operation.
//
// The spec file (JSON or YAML) is read at hydration time; each operation
// becomes a tool named after its operationId whose parameter schema is
// assembled from the operation's path, query and header parameters plus
// the JSON request body. Calls go out through the same outbound-URL
// guard as the http_request tool.
package openapitool

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/tool"
)

// Config controls loading of one OpenAPI document.
type Config struct {
	// Spec is the path to the OpenAPI document (JSON or YAML).
	Spec string

	// Auth applies to every operation of the document.
	Auth Auth

	// BaseURL overrides the document's first server URL.
	BaseURL string

	// Timeout bounds each call. Zero means 30s.
	Timeout time.Duration

	// AllowPrivate disables the private-address guard. Operator opt-in
	// only.
	AllowPrivate bool
}

// document is the subset of OpenAPI 3.x this package reads.
type document struct {
	OpenAPI string                          `yaml:"openapi"`
	Info    docInfo                         `yaml:"info"`
	Servers []docServer                     `yaml:"servers"`
	Paths   map[string]map[string]operation `yaml:"paths"`
}

type docInfo struct {
	Title   string `yaml:"title"`
	Version string `yaml:"version"`
}

type docServer struct {
	URL string `yaml:"url"`
}

type operation struct {
	OperationID string         `yaml:"operationId"`
	Summary     string         `yaml:"summary"`
	Description string         `yaml:"description"`
	Parameters  []parameter    `yaml:"parameters"`
	RequestBody *requestBody   `yaml:"requestBody"`
	Deprecated  bool           `yaml:"deprecated"`
}

type parameter struct {
	Name        string         `yaml:"name"`
	In          string         `yaml:"in"` // path, query, header
	Required    bool           `yaml:"required"`
	Description string         `yaml:"description"`
	Schema      map[string]any `yaml:"schema"`
}

type requestBody struct {
	Required bool                     `yaml:"required"`
	Content  map[string]mediaContent  `yaml:"content"`
}

type mediaContent struct {
	Schema map[string]any `yaml:"schema"`
}

var httpMethods = []string{"get", "put", "post", "delete", "patch", "head", "options"}

// Load parses the document and returns one tool per operation.
// Deprecated operations are skipped.
func Load(cfg Config) ([]tool.CallableTool, error) {
	data, err := os.ReadFile(cfg.Spec)
	if err != nil {
		return nil, fmt.Errorf("read openapi spec: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse openapi spec %s: %w", cfg.Spec, err)
	}
	if len(doc.Paths) == 0 {
		return nil, fmt.Errorf("openapi spec %s declares no paths", cfg.Spec)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" && len(doc.Servers) > 0 {
		baseURL = doc.Servers[0].URL
	}
	if baseURL == "" {
		return nil, fmt.Errorf("openapi spec %s has no servers and no base URL was given", cfg.Spec)
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	applier, err := resolveAuth(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("openapi spec %s: %w", cfg.Spec, err)
	}

	var tools []tool.CallableTool
	seen := make(map[string]bool)
	for _, path := range sortedPaths(doc.Paths) {
		ops := doc.Paths[path]
		for _, method := range httpMethods {
			op, ok := ops[method]
			if !ok || op.Deprecated {
				continue
			}
			t := newOperationTool(baseURL, method, path, op, applier, timeout, cfg.AllowPrivate)
			if seen[t.Name()] {
				return nil, fmt.Errorf("openapi spec %s: duplicate operation name %q", cfg.Spec, t.Name())
			}
			seen[t.Name()] = true
			tools = append(tools, t)
		}
	}
	if len(tools) == 0 {
		return nil, fmt.Errorf("openapi spec %s has no usable operations", cfg.Spec)
	}
	return tools, nil
}

// sortedPaths keeps tool listing order stable; the YAML map loses
// declared order.
func sortedPaths(paths map[string]map[string]operation) []string {
	out := make([]string, 0, len(paths))
	for p := range paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// operationName derives a tool name when operationId is absent:
// "get /users/{id}" becomes "get_users_id".
func operationName(method, path string, op operation) string {
	if op.OperationID != "" {
		return op.OperationID
	}
	cleaned := strings.NewReplacer("{", "", "}", "", "/", "_", "-", "_", ".", "_").Replace(strings.Trim(path, "/"))
	if cleaned == "" {
		cleaned = "root"
	}
	return method + "_" + cleaned
}

// Toolset wraps the loaded tools as a tool.Toolset so model agents can
// consume a whole document at once.
type Toolset struct {
	name  string
	tools []tool.Tool
}

// NewToolset loads the document and exposes it as a named toolset.
func NewToolset(name string, cfg Config) (*Toolset, error) {
	loaded, err := Load(cfg)
	if err != nil {
		return nil, err
	}
	ts := &Toolset{name: name}
	for _, t := range loaded {
		ts.tools = append(ts.tools, t)
	}
	return ts, nil
}

func (ts *Toolset) Name() string { return ts.name }

// Tools returns every operation tool.
func (ts *Toolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	return ts.tools, nil
}

var _ tool.Toolset = (*Toolset)(nil)

// DefaultName derives a toolset name from the spec path.
func DefaultName(specPath string) string {
	base := filepath.Base(specPath)
	return "openapi_" + strings.TrimSuffix(base, filepath.Ext(base))
}
