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

package tool

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/registry"
)

// ErrToolNotFound is returned when a tool name cannot be resolved.
var ErrToolNotFound = errors.New("tool not found")

// Registry holds the tools available to a workflow.
//
// Tools live in two tiers: builtins shipped with the platform and custom
// tools registered by plugins or toolsets. Resolution prefers custom tools
// so deployments can shadow a builtin. Registration silently overwrites an
// existing entry of the same tier.
type Registry struct {
	builtin  *registry.BaseRegistry[Tool]
	custom   *registry.BaseRegistry[Tool]
	toolsets *registry.BaseRegistry[Toolset]

	discoverOnce sync.Once
	discoverErr  error
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		builtin:  registry.NewBaseRegistry[Tool](),
		custom:   registry.NewBaseRegistry[Tool](),
		toolsets: registry.NewBaseRegistry[Toolset](),
	}
}

// RegisterBuiltin adds a platform tool. Re-registration overwrites.
func (r *Registry) RegisterBuiltin(t Tool) {
	if t == nil || t.Name() == "" {
		return
	}
	_ = r.builtin.Put(t.Name(), t)
}

// Register adds a custom tool. Re-registration overwrites.
func (r *Registry) Register(t Tool) {
	if t == nil || t.Name() == "" {
		return
	}
	_ = r.custom.Put(t.Name(), t)
}

// RegisterToolset adds a toolset expanded during Discover.
func (r *Registry) RegisterToolset(ts Toolset) {
	if ts == nil || ts.Name() == "" {
		return
	}
	_ = r.toolsets.Put(ts.Name(), ts)
}

// Discover expands all registered toolsets into custom tools. It runs at
// most once; later calls return the first result. A failing toolset is
// logged and skipped so one unreachable server does not block the rest.
func (r *Registry) Discover(ctx agent.ReadonlyContext) error {
	r.discoverOnce.Do(func() {
		for _, name := range r.toolsets.Names() {
			ts, ok := r.toolsets.Get(name)
			if !ok {
				continue
			}
			tools, err := ts.Tools(ctx)
			if err != nil {
				slog.Warn("Toolset discovery failed", "toolset", name, "error", err)
				continue
			}
			for _, t := range tools {
				r.Register(t)
			}
			slog.Debug("Toolset discovered", "toolset", name, "tools", len(tools))
		}
	})
	return r.discoverErr
}

// Resolve returns the named tool, preferring custom over builtin.
func (r *Registry) Resolve(name string) (Tool, error) {
	if t, ok := r.custom.Get(name); ok {
		return t, nil
	}
	if t, ok := r.builtin.Get(name); ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
}

// Names returns all resolvable tool names, sorted.
func (r *Registry) Names() []string {
	seen := make(map[string]bool)
	var names []string
	for _, name := range r.custom.Names() {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, name := range r.builtin.Names() {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Metadata returns definitions for every resolvable tool, sorted by name.
// A custom tool shadows a builtin with the same name.
func (r *Registry) Metadata() []Definition {
	names := r.Names()
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		t, err := r.Resolve(name)
		if err != nil {
			continue
		}
		defs = append(defs, ToDefinition(t))
	}
	return defs
}
