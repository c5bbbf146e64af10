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

// Package hydrator converts validated workflow definitions into
// ready-to-run agent trees.
//
// Hydration resolves everything a run would otherwise discover too late:
// model IDs against the provider resolver, tool names against the
// registry, callback names against the process-wide callback registry,
// OpenAPI specs into callable toolsets, and MCP server references into
// live connections. A definition that hydrates cannot fail on a missing
// name at invocation time; a definition that cannot hydrate fails the
// platform boot with a workflow.HydrationError.
package hydrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/agent/codeagent"
	"github.com/weftworks/weft/pkg/agent/expragent"
	"github.com/weftworks/weft/pkg/agent/modelagent"
	"github.com/weftworks/weft/pkg/agent/toolagent"
	"github.com/weftworks/weft/pkg/agent/workflowagent"
	"github.com/weftworks/weft/pkg/callbacks"
	"github.com/weftworks/weft/pkg/model"
	"github.com/weftworks/weft/pkg/secrets"
	"github.com/weftworks/weft/pkg/tool"
	"github.com/weftworks/weft/pkg/tool/agenttool"
	"github.com/weftworks/weft/pkg/tool/mcptool"
	"github.com/weftworks/weft/pkg/tool/openapitool"
	"github.com/weftworks/weft/pkg/workflow"
)

// mcpPrefix marks a tool reference that resolves through the MCP server
// table instead of the registry.
const mcpPrefix = "mcp:"

// Options configures a Hydrator.
type Options struct {
	// Models resolves model IDs to provider clients. Required for
	// workflows that declare model agents.
	Models *model.Resolver

	// Tools resolves tool name references. Required for workflows that
	// declare tools or tool agents.
	Tools *tool.Registry

	// Callbacks resolves named callback hooks. Nil means the
	// process-wide default registry.
	Callbacks *callbacks.Registry

	// Secrets backs credential lookups for OpenAPI auth when the named
	// environment variable is unset. Nil means the process-wide store.
	Secrets *secrets.Store

	// MCPServers is the config-declared server table consulted for
	// "mcp:<server>" tool references.
	MCPServers map[string]mcptool.Config
}

// Hydrator materializes agent trees. Safe for concurrent use; all
// per-workflow state lives in the build.
type Hydrator struct {
	models     *model.Resolver
	tools      *tool.Registry
	callbacks  *callbacks.Registry
	secrets    *secrets.Store
	mcpServers map[string]mcptool.Config
}

// New creates a Hydrator.
func New(opts Options) *Hydrator {
	cbs := opts.Callbacks
	if cbs == nil {
		cbs = callbacks.Default()
	}
	store := opts.Secrets
	if store == nil {
		store = secrets.Default()
	}
	return &Hydrator{
		models:     opts.Models,
		tools:      opts.Tools,
		callbacks:  cbs,
		secrets:    store,
		mcpServers: opts.MCPServers,
	}
}

// HydratedWorkflow is a definition bound to its executable root agent
// and the long-lived resources the tree holds open.
type HydratedWorkflow struct {
	// Definition is the validated source definition.
	Definition *workflow.Definition

	// Root is the orchestration root. One runner invocation runs it
	// once per caller message.
	Root agent.Agent

	closers []io.Closer
}

// Close releases resources owned by the tree, currently the MCP
// connections.
func (w *HydratedWorkflow) Close() error {
	var errs []error
	for _, c := range w.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Hydrate builds the agent tree for def. baseDir is the workflow
// package directory; OpenAPI spec paths resolve against its specs/
// subdirectory. The context bounds MCP connection handshakes.
func (h *Hydrator) Hydrate(ctx context.Context, def *workflow.Definition, baseDir string) (*HydratedWorkflow, error) {
	b := &build{
		h:       h,
		ctx:     ctx,
		def:     def,
		baseDir: baseDir,
		built:   make(map[string]agent.Agent),
		mcp:     make(map[string]*mcptool.Toolset),
	}

	root, err := b.run()
	if err != nil {
		b.closeAll()
		return nil, err
	}
	return &HydratedWorkflow{Definition: def, Root: root, closers: b.closers}, nil
}

// build is the per-hydration state: agents built so far, plus the MCP
// connections opened on the way (shared across agents referencing the
// same server).
type build struct {
	h       *Hydrator
	ctx     context.Context
	def     *workflow.Definition
	baseDir string

	built   map[string]agent.Agent
	mcp     map[string]*mcptool.Toolset
	closers []io.Closer
}

func (b *build) run() (agent.Agent, error) {
	// Leaves first: they depend only on registries. Model agents may
	// reference sibling leaves through agent_tools, so leaves build in
	// dependency order too.
	for i := range b.def.Agents {
		a := &b.def.Agents[i]
		if a.IsComposite() {
			continue
		}
		if _, err := b.agent(a.Name, nil); err != nil {
			return nil, err
		}
	}

	// Then composites, which reference already-built children. Nested
	// composites resolve through the same memoized path.
	for i := range b.def.Agents {
		a := &b.def.Agents[i]
		if !a.IsComposite() {
			continue
		}
		if _, err := b.agent(a.Name, nil); err != nil {
			return nil, err
		}
	}

	return b.orchestrate()
}

func (b *build) fail(stage string, err error) error {
	return &workflow.HydrationError{Workflow: b.def.Name, Stage: stage, Err: err}
}

// agent returns the built agent by name, materializing it on first use.
// building tracks the path for cycle detection across agent_tools and
// sub_agents references.
func (b *build) agent(name string, building []string) (agent.Agent, error) {
	if ag, ok := b.built[name]; ok {
		return ag, nil
	}
	for _, n := range building {
		if n == name {
			return nil, b.fail("agents", fmt.Errorf("agent %q references itself through %s", name, strings.Join(building, " -> ")))
		}
	}

	cfg := b.def.Agent(name)
	if cfg == nil {
		return nil, b.fail("agents", fmt.Errorf("agent %q is not declared", name))
	}

	ag, err := b.materialize(cfg, append(building, name))
	if err != nil {
		return nil, err
	}
	b.built[name] = ag
	return ag, nil
}

func (b *build) materialize(cfg *workflow.AgentConfig, building []string) (agent.Agent, error) {
	cbs, err := b.h.callbacks.Resolve(cfg.Callbacks)
	if err != nil {
		return nil, b.fail("callbacks", fmt.Errorf("agent %q: %w", cfg.Name, err))
	}

	switch cfg.Kind {
	case workflow.KindModel:
		return b.modelAgent(cfg, cbs, building)
	case workflow.KindCode:
		ag, err := codeagent.New(codeagent.Config{
			Name:        cfg.Name,
			Description: cfg.Description,
			Function:    cfg.Function,
			InputKeys:   cfg.InputKeys,
			OutputKey:   cfg.OutputKey,
			Callbacks:   cbs,
		})
		if err != nil {
			return nil, b.fail("agents", err)
		}
		return ag, nil
	case workflow.KindExpression:
		ag, err := expragent.New(expragent.Config{
			Name:        cfg.Name,
			Description: cfg.Description,
			Expression:  cfg.Expression,
			InputKeys:   cfg.InputKeys,
			OutputKey:   cfg.OutputKey,
			Callbacks:   cbs,
		})
		if err != nil {
			return nil, b.fail("agents", err)
		}
		return ag, nil
	case workflow.KindTool:
		return b.toolAgent(cfg, cbs)
	case workflow.KindSequential, workflow.KindParallel, workflow.KindLoop:
		return b.composite(cfg, building)
	}
	return nil, b.fail("agents", fmt.Errorf("agent %q: unknown kind %q", cfg.Name, cfg.Kind))
}

func (b *build) modelAgent(cfg *workflow.AgentConfig, cbs *callbacks.Set, building []string) (agent.Agent, error) {
	if b.h.models == nil {
		return nil, b.fail("model", fmt.Errorf("agent %q: no model resolver configured", cfg.Name))
	}
	llm, err := b.h.models.Resolve(cfg.ModelID)
	if err != nil {
		return nil, b.fail("model", fmt.Errorf("agent %q: %w", cfg.Name, err))
	}

	tools, toolsets, err := b.resolveTools(cfg)
	if err != nil {
		return nil, err
	}

	for _, name := range cfg.AgentTools {
		sub, err := b.agent(name, building)
		if err != nil {
			return nil, err
		}
		tools = append(tools, agenttool.New(sub, nil))
	}

	ag, err := modelagent.New(modelagent.Config{
		Name:           cfg.Name,
		Description:    cfg.Description,
		Model:          llm,
		Instruction:    cfg.Instruction,
		GenerateConfig: generateConfig(cfg),
		Tools:          tools,
		Toolsets:       toolsets,
		OutputKey:      cfg.OutputKey,
		OutputSchema:   cfg.OutputSchema,
		InputSchema:    cfg.InputSchema,
		Planner:        b.planner(cfg),
		Callbacks:      cbs,
	})
	if err != nil {
		return nil, b.fail("agents", err)
	}
	return ag, nil
}

// generateConfig carries the sampling knobs over, or nil when none are
// set.
func generateConfig(cfg *workflow.AgentConfig) *model.GenerateConfig {
	if cfg.Temperature == nil && cfg.MaxTokens == nil && cfg.TopP == nil && cfg.TopK == nil {
		return nil
	}
	return &model.GenerateConfig{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
		TopK:        cfg.TopK,
	}
}

// planner maps the declared planner name, honoring the react
// orchestration's override for its root agent.
func (b *build) planner(cfg *workflow.AgentConfig) modelagent.Planner {
	name := cfg.Planner
	o := &b.def.Orchestration
	if o.Mode == workflow.ModeReact && o.Agent == cfg.Name && o.Planner != "" {
		name = o.Planner
	}
	switch name {
	case workflow.PlannerPlanReact:
		return modelagent.PlanReact()
	case workflow.PlannerBuiltIn:
		return modelagent.BuiltIn()
	}
	return nil
}

func (b *build) toolAgent(cfg *workflow.AgentConfig, cbs *callbacks.Set) (agent.Agent, error) {
	resolved, err := b.registryTool(cfg.Tool)
	if err != nil {
		return nil, b.fail("tools", fmt.Errorf("agent %q: %w", cfg.Name, err))
	}
	callable, ok := resolved.(tool.CallableTool)
	if !ok {
		return nil, b.fail("tools", fmt.Errorf("agent %q: tool %q is not callable", cfg.Name, cfg.Tool))
	}
	ag, err := toolagent.New(toolagent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		Tool:        callable,
		ToolConfig:  cfg.ToolConfig,
		OutputKey:   cfg.OutputKey,
		Callbacks:   cbs,
	})
	if err != nil {
		return nil, b.fail("agents", err)
	}
	return ag, nil
}

func (b *build) composite(cfg *workflow.AgentConfig, building []string) (agent.Agent, error) {
	subs := make([]agent.Agent, 0, len(cfg.SubAgents))
	for _, name := range cfg.SubAgents {
		sub, err := b.agent(name, building)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	var (
		ag  agent.Agent
		err error
	)
	switch cfg.Kind {
	case workflow.KindSequential:
		ag, err = workflowagent.NewSequential(workflowagent.SequentialConfig{
			Name:        cfg.Name,
			Description: cfg.Description,
			SubAgents:   subs,
		})
	case workflow.KindParallel:
		ag, err = workflowagent.NewParallel(workflowagent.ParallelConfig{
			Name:        cfg.Name,
			Description: cfg.Description,
			SubAgents:   subs,
		})
	case workflow.KindLoop:
		ag, err = workflowagent.NewLoop(workflowagent.LoopConfig{
			Name:          cfg.Name,
			Description:   cfg.Description,
			SubAgents:     subs,
			MaxIterations: cfg.MaxIterations,
		})
	}
	if err != nil {
		return nil, b.fail("agents", err)
	}
	return ag, nil
}

// resolveTools splits a model agent's references into registry tools,
// MCP toolsets and OpenAPI toolsets.
func (b *build) resolveTools(cfg *workflow.AgentConfig) ([]tool.Tool, []tool.Toolset, error) {
	var (
		tools    []tool.Tool
		toolsets []tool.Toolset
	)

	for _, ref := range cfg.Tools {
		if strings.HasPrefix(ref, mcpPrefix) {
			ts, err := b.mcpToolset(ref)
			if err != nil {
				return nil, nil, b.fail("mcp", fmt.Errorf("agent %q: %w", cfg.Name, err))
			}
			toolsets = append(toolsets, ts)
			continue
		}
		t, err := b.registryTool(ref)
		if err != nil {
			return nil, nil, b.fail("tools", fmt.Errorf("agent %q: %w", cfg.Name, err))
		}
		tools = append(tools, t)
	}

	for _, oc := range cfg.OpenAPITools {
		ts, err := b.openapiToolset(oc)
		if err != nil {
			return nil, nil, b.fail("openapi", fmt.Errorf("agent %q: %w", cfg.Name, err))
		}
		toolsets = append(toolsets, ts)
	}

	return tools, toolsets, nil
}

func (b *build) registryTool(name string) (tool.Tool, error) {
	if b.h.tools == nil {
		return nil, fmt.Errorf("no tool registry configured")
	}
	return b.h.tools.Resolve(name)
}

// mcpToolset resolves "mcp:<server>" or "mcp:<server>:<tool>" through
// the server table, connecting once per server per hydration.
func (b *build) mcpToolset(ref string) (tool.Toolset, error) {
	server, toolName, _ := strings.Cut(strings.TrimPrefix(ref, mcpPrefix), ":")
	if server == "" {
		return nil, fmt.Errorf("tool reference %q names no MCP server", ref)
	}

	ts, ok := b.mcp[server]
	if !ok {
		cfg, declared := b.h.mcpServers[server]
		if !declared {
			return nil, fmt.Errorf("MCP server %q is not declared in the platform configuration", server)
		}
		cfg.Name = server
		var err error
		ts, err = mcptool.Connect(b.ctx, cfg)
		if err != nil {
			return nil, err
		}
		b.mcp[server] = ts
		b.closers = append(b.closers, ts)
	}

	if toolName != "" {
		return ts.WithFilter([]string{toolName}), nil
	}
	return ts, nil
}

func (b *build) openapiToolset(oc workflow.OpenAPIToolConfig) (tool.Toolset, error) {
	specPath := oc.Spec
	if !filepath.IsAbs(specPath) {
		specPath = filepath.Join(b.baseDir, "specs", oc.Spec)
	}
	return openapitool.NewToolset(openapitool.DefaultName(specPath), openapitool.Config{
		Spec: specPath,
		Auth: b.openapiAuth(oc.Auth),
	})
}

// openapiAuth maps the declared auth block, resolving env-named
// credentials eagerly: environment first, then the secret store.
// Missing credentials resolve to empty strings so an unused operation
// never blocks boot.
func (b *build) openapiAuth(cfg *workflow.OpenAPIAuthConfig) openapitool.Auth {
	if cfg == nil {
		return openapitool.Auth{}
	}
	auth := openapitool.Auth{
		Type:   cfg.Type,
		Token:  cfg.Token,
		Key:    cfg.Key,
		Header: cfg.Header,
	}
	if auth.Token == "" && cfg.TokenEnv != "" {
		auth.Token = b.credential(cfg.TokenEnv)
	}
	if auth.Key == "" && cfg.KeyEnv != "" {
		auth.Key = b.credential(cfg.KeyEnv)
	}
	return auth
}

func (b *build) credential(envVar string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	if b.h.secrets != nil {
		return b.h.secrets.GetOrEmpty(envVar)
	}
	return ""
}

// orchestrate wraps the built agents per the declared mode. The wrapper
// carries the workflow's name so event authorship in composite modes
// traces back to the workflow itself.
func (b *build) orchestrate() (agent.Agent, error) {
	o := &b.def.Orchestration

	members := func(names []string) ([]agent.Agent, error) {
		agents := make([]agent.Agent, 0, len(names))
		for _, name := range names {
			ag, err := b.agent(name, nil)
			if err != nil {
				return nil, err
			}
			agents = append(agents, ag)
		}
		return agents, nil
	}

	var (
		root agent.Agent
		err  error
	)
	switch o.Mode {
	case workflow.ModeSequential:
		subs, merr := members(o.Agents)
		if merr != nil {
			return nil, merr
		}
		root, err = workflowagent.NewSequential(workflowagent.SequentialConfig{
			Name:        b.def.Name,
			Description: b.def.Description,
			SubAgents:   subs,
			OnError:     workflowagent.ErrorPolicy(o.OnError),
		})
	case workflow.ModeParallel:
		subs, merr := members(o.Agents)
		if merr != nil {
			return nil, merr
		}
		root, err = workflowagent.NewParallel(workflowagent.ParallelConfig{
			Name:        b.def.Name,
			Description: b.def.Description,
			SubAgents:   subs,
		})
	case workflow.ModeLoop:
		subs, merr := members(o.Agents)
		if merr != nil {
			return nil, merr
		}
		root, err = workflowagent.NewLoop(workflowagent.LoopConfig{
			Name:          b.def.Name,
			Description:   b.def.Description,
			SubAgents:     subs,
			MaxIterations: o.MaxIterations,
		})
	case workflow.ModeDAG:
		nodes := make([]workflowagent.DAGNode, 0, len(o.Nodes))
		for _, n := range o.Nodes {
			ag, merr := b.agent(n.Agent, nil)
			if merr != nil {
				return nil, merr
			}
			nodes = append(nodes, workflowagent.DAGNode{Agent: ag, DependsOn: n.DependsOn})
		}
		root, err = workflowagent.NewDAG(workflowagent.DAGConfig{
			Name:        b.def.Name,
			Description: b.def.Description,
			Nodes:       nodes,
		})
	case workflow.ModeReact:
		// The react root is the named model agent itself, planner
		// override already applied when it was built.
		return b.agent(o.Agent, nil)
	case workflow.ModeLLMRouted:
		router, merr := b.agent(o.Router, nil)
		if merr != nil {
			return nil, merr
		}
		candidates, merr := members(o.Agents)
		if merr != nil {
			return nil, merr
		}
		root, err = workflowagent.NewRouted(workflowagent.RoutedConfig{
			Name:        b.def.Name,
			Description: b.def.Description,
			Router:      router,
			Candidates:  candidates,
		})
	default:
		return nil, b.fail("orchestration", fmt.Errorf("unknown mode %q", o.Mode))
	}
	if err != nil {
		return nil, b.fail("orchestration", err)
	}
	return root, nil
}

func (b *build) closeAll() {
	for _, c := range b.closers {
		_ = c.Close()
	}
}
