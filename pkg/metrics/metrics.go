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

// Package metrics accumulates per-invocation usage counters.
//
// A Collector is a runner plugin: every runner gets a fresh instance, so
// counters of concurrent invocations never mix. All hooks are purely
// observational; the collector never modifies requests or responses.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/model"
	"github.com/weftworks/weft/pkg/plugin"
	"github.com/weftworks/weft/pkg/tool"
)

// UsageSummary aggregates the cost of one invocation.
type UsageSummary struct {
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	CachedTokens int    `json:"cached_tokens"`
	TotalTokens  int    `json:"total_tokens"`
	DurationMS   int64  `json:"duration_ms"`
	Steps        int    `json:"steps"`
	LLMCalls     int    `json:"llm_calls"`
	ToolCalls    int    `json:"tool_calls"`
	Model        string `json:"model,omitempty"`
}

// Collector is the per-run metrics plugin.
type Collector struct {
	plugin.Base

	mu      sync.Mutex
	start   time.Time
	summary UsageSummary
	done    bool
}

// NewCollector creates a collector for a single invocation.
func NewCollector() *Collector {
	return &Collector{Base: plugin.Base{PluginName: "metrics"}}
}

// BeforeRun stamps the start time.
func (c *Collector) BeforeRun(ctx context.Context, invocationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
}

// AfterRun stamps the end time and logs the completed summary.
func (c *Collector) AfterRun(ctx context.Context, invocationID string) {
	c.mu.Lock()
	if !c.start.IsZero() {
		c.summary.DurationMS = time.Since(c.start).Milliseconds()
	}
	c.done = true
	summary := c.summary
	c.mu.Unlock()

	slog.Info("Run completed",
		"invocation_id", invocationID,
		"duration_ms", summary.DurationMS,
		"steps", summary.Steps,
		"llm_calls", summary.LLMCalls,
		"tool_calls", summary.ToolCalls,
		"total_tokens", summary.TotalTokens,
		"model", summary.Model)
}

// OnEvent counts one step per non-partial event.
func (c *Collector) OnEvent(ctx agent.ReadonlyContext, ev *agent.Event) {
	if ev == nil || ev.Partial {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary.Steps++
}

// AfterModel adds the call's token usage and records the model identifier.
func (c *Collector) AfterModel(ctx agent.CallbackContext, resp *model.Response, err error) (*model.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.summary.LLMCalls++
	if resp != nil {
		if resp.Usage != nil {
			c.summary.InputTokens += resp.Usage.PromptTokens
			c.summary.OutputTokens += resp.Usage.CompletionTokens
			c.summary.CachedTokens += resp.Usage.CachedTokens
			c.summary.TotalTokens += resp.Usage.TotalTokens
		}
		if resp.Model != "" {
			c.summary.Model = resp.Model
		}
	}
	return nil, nil
}

// BeforeTool counts the call and logs the tool name.
func (c *Collector) BeforeTool(ctx tool.Context, t tool.Tool, args map[string]any) (map[string]any, error) {
	c.mu.Lock()
	c.summary.ToolCalls++
	c.mu.Unlock()

	slog.Debug("Tool call", "tool", t.Name(), "agent", ctx.AgentName())
	return nil, nil
}

// Summary returns the accumulated counters. Safe to call at any point;
// before AfterRun the duration is the elapsed time so far.
func (c *Collector) Summary() UsageSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.summary
	if !c.done && !c.start.IsZero() {
		s.DurationMS = time.Since(c.start).Milliseconds()
	}
	return s
}

var _ plugin.Plugin = (*Collector)(nil)
