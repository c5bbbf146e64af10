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

// Package plugin defines runner plugins: named sets of lifecycle hooks
// observing or steering one invocation.
//
// A plugin instance belongs to exactly one runner and therefore to one
// invocation; per-invocation accumulators (the metrics collector) rely
// on this. The chain travels inside the invocation's context.Context so
// leaf agents reach it without the agent package knowing plugin types.
package plugin

import (
	"context"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/model"
	"github.com/weftworks/weft/pkg/tool"
)

// Plugin receives lifecycle notifications during one invocation.
//
// The Before*/After* methods may modify the flow by returning a non-nil
// value (skip the model call, replace a tool result); purely
// observational plugins return nil everywhere. Embed Base to implement
// only the hooks a plugin cares about.
type Plugin interface {
	// Name identifies the plugin in logs and configuration.
	Name() string

	// BeforeRun fires once before the root agent starts.
	BeforeRun(ctx context.Context, invocationID string)

	// AfterRun fires once after the event stream closes.
	AfterRun(ctx context.Context, invocationID string)

	// OnEvent fires for every non-partial event of the invocation.
	OnEvent(ctx agent.ReadonlyContext, ev *agent.Event)

	// BeforeModel fires before each model call. A non-nil response
	// skips the call.
	BeforeModel(ctx agent.CallbackContext, req *model.Request) (*model.Response, error)

	// AfterModel fires after each model call. A non-nil response
	// replaces the model's.
	AfterModel(ctx agent.CallbackContext, resp *model.Response, err error) (*model.Response, error)

	// BeforeTool fires before each tool execution. A non-nil map skips
	// the execution.
	BeforeTool(ctx tool.Context, t tool.Tool, args map[string]any) (map[string]any, error)

	// AfterTool fires after each tool execution. A non-nil map replaces
	// the result.
	AfterTool(ctx tool.Context, t tool.Tool, args, result map[string]any, err error) (map[string]any, error)
}

// Base is a no-op Plugin for embedding.
type Base struct {
	PluginName string
}

func (b Base) Name() string { return b.PluginName }

func (Base) BeforeRun(context.Context, string) {}
func (Base) AfterRun(context.Context, string)  {}

func (Base) OnEvent(agent.ReadonlyContext, *agent.Event) {}

func (Base) BeforeModel(agent.CallbackContext, *model.Request) (*model.Response, error) {
	return nil, nil
}

func (Base) AfterModel(ctx agent.CallbackContext, resp *model.Response, err error) (*model.Response, error) {
	return nil, nil
}

func (Base) BeforeTool(tool.Context, tool.Tool, map[string]any) (map[string]any, error) {
	return nil, nil
}

func (Base) AfterTool(ctx tool.Context, t tool.Tool, args, result map[string]any, err error) (map[string]any, error) {
	return nil, nil
}

var _ Plugin = Base{}

// Chain fans a notification out to an ordered list of plugins.
//
// For steering hooks the first plugin that returns a non-nil value wins
// and later plugins are not consulted, mirroring the per-agent callback
// semantics.
type Chain struct {
	plugins []Plugin
}

// NewChain creates a chain over the given plugins in order.
func NewChain(plugins ...Plugin) *Chain {
	return &Chain{plugins: plugins}
}

// Plugins returns the chained plugins in order.
func (c *Chain) Plugins() []Plugin {
	if c == nil {
		return nil
	}
	return c.plugins
}

// BeforeRun notifies every plugin.
func (c *Chain) BeforeRun(ctx context.Context, invocationID string) {
	if c == nil {
		return
	}
	for _, p := range c.plugins {
		p.BeforeRun(ctx, invocationID)
	}
}

// AfterRun notifies every plugin.
func (c *Chain) AfterRun(ctx context.Context, invocationID string) {
	if c == nil {
		return
	}
	for _, p := range c.plugins {
		p.AfterRun(ctx, invocationID)
	}
}

// OnEvent notifies every plugin.
func (c *Chain) OnEvent(ctx agent.ReadonlyContext, ev *agent.Event) {
	if c == nil {
		return
	}
	for _, p := range c.plugins {
		p.OnEvent(ctx, ev)
	}
}

// BeforeModel consults plugins in order; the first non-nil response wins.
func (c *Chain) BeforeModel(ctx agent.CallbackContext, req *model.Request) (*model.Response, error) {
	if c == nil {
		return nil, nil
	}
	for _, p := range c.plugins {
		resp, err := p.BeforeModel(ctx, req)
		if err != nil || resp != nil {
			return resp, err
		}
	}
	return nil, nil
}

// AfterModel consults plugins in order; the first non-nil response wins.
func (c *Chain) AfterModel(ctx agent.CallbackContext, resp *model.Response, callErr error) (*model.Response, error) {
	if c == nil {
		return nil, nil
	}
	for _, p := range c.plugins {
		replaced, err := p.AfterModel(ctx, resp, callErr)
		if err != nil || replaced != nil {
			return replaced, err
		}
	}
	return nil, nil
}

// BeforeTool consults plugins in order; the first non-nil result wins.
func (c *Chain) BeforeTool(ctx tool.Context, t tool.Tool, args map[string]any) (map[string]any, error) {
	if c == nil {
		return nil, nil
	}
	for _, p := range c.plugins {
		result, err := p.BeforeTool(ctx, t, args)
		if err != nil || result != nil {
			return result, err
		}
	}
	return nil, nil
}

// AfterTool consults plugins in order; the first non-nil result wins.
func (c *Chain) AfterTool(ctx tool.Context, t tool.Tool, args, result map[string]any, callErr error) (map[string]any, error) {
	if c == nil {
		return nil, nil
	}
	for _, p := range c.plugins {
		replaced, err := p.AfterTool(ctx, t, args, result, callErr)
		if err != nil || replaced != nil {
			return replaced, err
		}
	}
	return nil, nil
}

// chainKey is the context key carrying the invocation's plugin chain.
type chainKey struct{}

// NewContext attaches a chain to ctx.
func NewContext(ctx context.Context, chain *Chain) context.Context {
	return context.WithValue(ctx, chainKey{}, chain)
}

// FromContext returns the chain attached to ctx, or nil.
func FromContext(ctx context.Context) *Chain {
	chain, _ := ctx.Value(chainKey{}).(*Chain)
	return chain
}
