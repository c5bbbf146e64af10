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

// Package callbacks holds the process-wide registry of named agent hooks.
//
// Workflow definitions reference callbacks by name (callbacks:
// before_model: my_hook); Go code registers the implementations during
// boot and the hydrator resolves the names into the agent configuration.
// The registry freezes once boot completes, after which registration
// fails and lookups are lock-free reads.
//
// Six hook points exist: before_agent, after_agent, before_model,
// after_model, before_tool, after_tool. Each point has its own signature
// and its own namespace, so the same name can be registered at several
// points.
package callbacks

import (
	"fmt"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/model"
	"github.com/weftworks/weft/pkg/registry"
	"github.com/weftworks/weft/pkg/tool"
)

// Hook point names as they appear in workflow definitions.
const (
	HookBeforeAgent = "before_agent"
	HookAfterAgent  = "after_agent"
	HookBeforeModel = "before_model"
	HookAfterModel  = "after_model"
	HookBeforeTool  = "before_tool"
	HookAfterTool   = "after_tool"
)

// HookPoints lists every valid hook point.
var HookPoints = []string{
	HookBeforeAgent, HookAfterAgent,
	HookBeforeModel, HookAfterModel,
	HookBeforeTool, HookAfterTool,
}

// BeforeAgent runs before an agent starts. Returning non-nil content
// skips the agent and emits the content instead.
type BeforeAgent func(ctx agent.CallbackContext) (*agent.Content, error)

// AfterAgent runs after an agent completes. Returning non-nil content
// replaces the agent's final output.
type AfterAgent func(ctx agent.CallbackContext) (*agent.Content, error)

// BeforeModel runs before each model call. Returning a non-nil response
// skips the call.
type BeforeModel func(ctx agent.CallbackContext, req *model.Request) (*model.Response, error)

// AfterModel runs after each model call. Returning a non-nil response
// replaces the model's response.
type AfterModel func(ctx agent.CallbackContext, resp *model.Response, err error) (*model.Response, error)

// BeforeTool runs before each tool execution. Returning a non-nil map
// skips the execution and uses the map as the result.
type BeforeTool func(ctx tool.Context, t tool.Tool, args map[string]any) (map[string]any, error)

// AfterTool runs after each tool execution. Returning a non-nil map
// replaces the tool's result.
type AfterTool func(ctx tool.Context, t tool.Tool, args, result map[string]any, err error) (map[string]any, error)

// Set carries the resolved callbacks of one agent.
type Set struct {
	BeforeAgent []BeforeAgent
	AfterAgent  []AfterAgent
	BeforeModel []BeforeModel
	AfterModel  []AfterModel
	BeforeTool  []BeforeTool
	AfterTool   []AfterTool
}

// Registry stores named callbacks per hook point.
type Registry struct {
	beforeAgent *registry.BaseRegistry[BeforeAgent]
	afterAgent  *registry.BaseRegistry[AfterAgent]
	beforeModel *registry.BaseRegistry[BeforeModel]
	afterModel  *registry.BaseRegistry[AfterModel]
	beforeTool  *registry.BaseRegistry[BeforeTool]
	afterTool   *registry.BaseRegistry[AfterTool]
}

// NewRegistry creates an empty callback registry.
func NewRegistry() *Registry {
	return &Registry{
		beforeAgent: registry.NewBaseRegistry[BeforeAgent](),
		afterAgent:  registry.NewBaseRegistry[AfterAgent](),
		beforeModel: registry.NewBaseRegistry[BeforeModel](),
		afterModel:  registry.NewBaseRegistry[AfterModel](),
		beforeTool:  registry.NewBaseRegistry[BeforeTool](),
		afterTool:   registry.NewBaseRegistry[AfterTool](),
	}
}

// RegisterBeforeAgent registers a before_agent callback under name.
func (r *Registry) RegisterBeforeAgent(name string, cb BeforeAgent) error {
	return r.beforeAgent.Put(name, cb)
}

// RegisterAfterAgent registers an after_agent callback under name.
func (r *Registry) RegisterAfterAgent(name string, cb AfterAgent) error {
	return r.afterAgent.Put(name, cb)
}

// RegisterBeforeModel registers a before_model callback under name.
func (r *Registry) RegisterBeforeModel(name string, cb BeforeModel) error {
	return r.beforeModel.Put(name, cb)
}

// RegisterAfterModel registers an after_model callback under name.
func (r *Registry) RegisterAfterModel(name string, cb AfterModel) error {
	return r.afterModel.Put(name, cb)
}

// RegisterBeforeTool registers a before_tool callback under name.
func (r *Registry) RegisterBeforeTool(name string, cb BeforeTool) error {
	return r.beforeTool.Put(name, cb)
}

// RegisterAfterTool registers an after_tool callback under name.
func (r *Registry) RegisterAfterTool(name string, cb AfterTool) error {
	return r.afterTool.Put(name, cb)
}

// Freeze makes every hook point read-only. Called once boot completes.
func (r *Registry) Freeze() {
	r.beforeAgent.Freeze()
	r.afterAgent.Freeze()
	r.beforeModel.Freeze()
	r.afterModel.Freeze()
	r.beforeTool.Freeze()
	r.afterTool.Freeze()
}

// Resolve maps hook-point -> callback-name pairs into a Set. An unknown
// hook point or an unregistered name is an error: a typo in a workflow
// file must fail the boot, not silently drop a hook.
func (r *Registry) Resolve(named map[string]string) (*Set, error) {
	set := &Set{}
	for point, name := range named {
		switch point {
		case HookBeforeAgent:
			cb, ok := r.beforeAgent.Get(name)
			if !ok {
				return nil, fmt.Errorf("unknown before_agent callback %q", name)
			}
			set.BeforeAgent = append(set.BeforeAgent, cb)
		case HookAfterAgent:
			cb, ok := r.afterAgent.Get(name)
			if !ok {
				return nil, fmt.Errorf("unknown after_agent callback %q", name)
			}
			set.AfterAgent = append(set.AfterAgent, cb)
		case HookBeforeModel:
			cb, ok := r.beforeModel.Get(name)
			if !ok {
				return nil, fmt.Errorf("unknown before_model callback %q", name)
			}
			set.BeforeModel = append(set.BeforeModel, cb)
		case HookAfterModel:
			cb, ok := r.afterModel.Get(name)
			if !ok {
				return nil, fmt.Errorf("unknown after_model callback %q", name)
			}
			set.AfterModel = append(set.AfterModel, cb)
		case HookBeforeTool:
			cb, ok := r.beforeTool.Get(name)
			if !ok {
				return nil, fmt.Errorf("unknown before_tool callback %q", name)
			}
			set.BeforeTool = append(set.BeforeTool, cb)
		case HookAfterTool:
			cb, ok := r.afterTool.Get(name)
			if !ok {
				return nil, fmt.Errorf("unknown after_tool callback %q", name)
			}
			set.AfterTool = append(set.AfterTool, cb)
		default:
			return nil, fmt.Errorf("unknown callback hook point %q", point)
		}
	}
	return set, nil
}

// defaultRegistry is the process-wide registry used by package-level
// registration at process start.
var defaultRegistry = NewRegistry()

// Default returns the process-wide callback registry.
func Default() *Registry {
	return defaultRegistry
}
