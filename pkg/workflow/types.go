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

// Package workflow defines the declarative workflow model: the file
// format, its validation, and the registry of loaded definitions.
//
// A workflow file declares a set of named agents, one orchestration over
// them, the runtime services a run needs, and optionally the A2A
// discovery metadata. Definitions are parsed strictly (unknown keys are
// errors), validated once at load, and immutable afterwards.
package workflow

// Agent kinds.
const (
	KindModel      = "model"
	KindCode       = "code"
	KindExpression = "expression"
	KindTool       = "tool"
	KindSequential = "sequential"
	KindParallel   = "parallel"
	KindLoop       = "loop"
)

// Orchestration modes.
const (
	ModeSequential = "sequential"
	ModeParallel   = "parallel"
	ModeLoop       = "loop"
	ModeDAG        = "dag"
	ModeReact      = "react"
	ModeLLMRouted  = "llm_routed"
)

// Error policies for sequential orchestration.
const (
	OnErrorHalt     = "halt"
	OnErrorContinue = "continue"
)

// Planner names.
const (
	PlannerPlanReact = "plan_react"
	PlannerBuiltIn   = "built_in"
)

// Definition is one parsed and validated workflow file.
type Definition struct {
	// Name uniquely identifies the workflow within the registry.
	Name string `yaml:"name" json:"name" jsonschema:"required"`

	// Description is surfaced in listings and A2A cards.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Runtime selects the services a run of this workflow uses.
	Runtime RuntimeConfig `yaml:"runtime,omitempty" json:"runtime,omitempty"`

	// Agents declares the workflow's agents in order.
	Agents []AgentConfig `yaml:"agents" json:"agents" jsonschema:"required"`

	// Orchestration composes the agents into one executable root.
	Orchestration OrchestrationConfig `yaml:"orchestration" json:"orchestration" jsonschema:"required"`

	// A2A opts the workflow into agent-card discovery.
	A2A *A2AConfig `yaml:"a2a,omitempty" json:"a2a,omitempty"`
}

// AgentConfig declares one agent. Kind selects which of the kind-specific
// fields apply; the validator enforces the combinations.
type AgentConfig struct {
	Name        string `yaml:"name" json:"name" jsonschema:"required"`
	Kind        string `yaml:"kind" json:"kind" jsonschema:"required,enum=model,enum=code,enum=expression,enum=tool,enum=sequential,enum=parallel,enum=loop"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// InputKeys names the state slots a leaf agent reads, in order.
	InputKeys []string `yaml:"input_keys,omitempty" json:"input_keys,omitempty"`

	// OutputKey is the single state key a leaf agent writes on success.
	OutputKey string `yaml:"output_key,omitempty" json:"output_key,omitempty"`

	// Callbacks maps hook points (before_model, after_tool, ...) to
	// names in the process-wide callback registry.
	Callbacks map[string]string `yaml:"callbacks,omitempty" json:"callbacks,omitempty"`

	// Model agent fields.
	ModelID      string              `yaml:"model_id,omitempty" json:"model_id,omitempty"`
	Instruction  string              `yaml:"instruction,omitempty" json:"instruction,omitempty"`
	Temperature  *float64            `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens    *int                `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	TopP         *float64            `yaml:"top_p,omitempty" json:"top_p,omitempty"`
	TopK         *int                `yaml:"top_k,omitempty" json:"top_k,omitempty"`
	Tools        []string            `yaml:"tools,omitempty" json:"tools,omitempty"`
	AgentTools   []string            `yaml:"agent_tools,omitempty" json:"agent_tools,omitempty"`
	OpenAPITools []OpenAPIToolConfig `yaml:"openapi_tools,omitempty" json:"openapi_tools,omitempty"`
	OutputSchema map[string]any      `yaml:"output_schema,omitempty" json:"output_schema,omitempty"`
	InputSchema  map[string]any      `yaml:"input_schema,omitempty" json:"input_schema,omitempty"`
	Planner      string              `yaml:"planner,omitempty" json:"planner,omitempty" jsonschema:"enum=plan_react,enum=built_in"`

	// Code agent field: the registered function's dotted path.
	Function string `yaml:"function,omitempty" json:"function,omitempty"`

	// Expression agent field.
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`

	// Tool agent fields. String values in ToolConfig may contain {key}
	// placeholders resolved against session state at invocation time.
	Tool       string         `yaml:"tool,omitempty" json:"tool,omitempty"`
	ToolConfig map[string]any `yaml:"tool_config,omitempty" json:"tool_config,omitempty"`

	// Composite agent fields.
	SubAgents     []string `yaml:"sub_agents,omitempty" json:"sub_agents,omitempty"`
	MaxIterations int      `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
}

// IsComposite reports whether the agent kind schedules sub-agents.
func (a *AgentConfig) IsComposite() bool {
	switch a.Kind {
	case KindSequential, KindParallel, KindLoop:
		return true
	}
	return false
}

// OpenAPIToolConfig references an OpenAPI spec whose operations become
// callable tools.
type OpenAPIToolConfig struct {
	// Spec is the spec file path, relative to the workflow package's
	// specs/ directory.
	Spec string `yaml:"spec" json:"spec" jsonschema:"required"`

	// Auth configures how requests to the spec's server authenticate.
	Auth *OpenAPIAuthConfig `yaml:"auth,omitempty" json:"auth,omitempty"`
}

// OpenAPIAuthConfig selects an auth scheme for an OpenAPI toolset.
// Values may name environment variables (token_env, key_env); lookups
// fail soft to empty strings so a missing credential surfaces on use,
// not at boot.
type OpenAPIAuthConfig struct {
	Type     string `yaml:"type" json:"type" jsonschema:"enum=none,enum=bearer,enum=apikey,enum=oauth2"`
	Token    string `yaml:"token,omitempty" json:"token,omitempty"`
	TokenEnv string `yaml:"token_env,omitempty" json:"token_env,omitempty"`
	Key      string `yaml:"key,omitempty" json:"key,omitempty"`
	KeyEnv   string `yaml:"key_env,omitempty" json:"key_env,omitempty"`
	Header   string `yaml:"header,omitempty" json:"header,omitempty"`
}

// OrchestrationConfig composes declared agents into the workflow root.
type OrchestrationConfig struct {
	Mode string `yaml:"mode" json:"mode" jsonschema:"required,enum=sequential,enum=parallel,enum=loop,enum=dag,enum=react,enum=llm_routed"`

	// Agents lists member names for sequential, parallel, loop and
	// llm_routed modes.
	Agents []string `yaml:"agents,omitempty" json:"agents,omitempty"`

	// Nodes declares the dependency graph for dag mode.
	Nodes []DAGNode `yaml:"nodes,omitempty" json:"nodes,omitempty"`

	// Agent names the single root for react mode.
	Agent string `yaml:"agent,omitempty" json:"agent,omitempty"`

	// Router names the routing model agent for llm_routed mode.
	Router string `yaml:"router,omitempty" json:"router,omitempty"`

	// Planner overrides the react agent's planner.
	Planner string `yaml:"planner,omitempty" json:"planner,omitempty"`

	// MaxIterations bounds loop mode.
	MaxIterations int `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`

	// OnError selects the sequential error policy: halt (default) stops
	// at the first error event, continue lets downstream agents run and
	// fail on their own missing inputs.
	OnError string `yaml:"on_error,omitempty" json:"on_error,omitempty" jsonschema:"enum=halt,enum=continue"`
}

// DAGNode is one node of a dag orchestration.
type DAGNode struct {
	Agent     string   `yaml:"agent" json:"agent" jsonschema:"required"`
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// RuntimeConfig selects per-workflow services. Read once per run when
// the driver assembles the runner.
type RuntimeConfig struct {
	// SessionService: in_memory (default), sqlite, database.
	SessionService string `yaml:"session_service,omitempty" json:"session_service,omitempty" jsonschema:"enum=in_memory,enum=sqlite,enum=database"`

	// SessionDBPath backs the sqlite service; defaults next to the
	// workflows directory.
	SessionDBPath string `yaml:"session_db_path,omitempty" json:"session_db_path,omitempty"`

	// SessionDBURL backs the database service; required for it.
	SessionDBURL string `yaml:"session_db_url,omitempty" json:"session_db_url,omitempty"`

	// MemoryService: none (default) or in_memory.
	MemoryService string `yaml:"memory_service,omitempty" json:"memory_service,omitempty" jsonschema:"enum=none,enum=in_memory"`

	// ArtifactService: none (default), in_memory or file.
	ArtifactService string `yaml:"artifact_service,omitempty" json:"artifact_service,omitempty" jsonschema:"enum=none,enum=in_memory,enum=file"`

	// ArtifactDir backs the file artifact service.
	ArtifactDir string `yaml:"artifact_dir,omitempty" json:"artifact_dir,omitempty"`

	// Plugins names the plugin factories installed on each runner.
	Plugins []string `yaml:"plugins,omitempty" json:"plugins,omitempty"`

	// PluginConfig carries per-plugin settings keyed by plugin name.
	PluginConfig map[string]map[string]any `yaml:"plugin_config,omitempty" json:"plugin_config,omitempty"`

	// ContextCacheTokens bounds the conversation context the
	// context_filter plugin keeps, in tokens. Zero disables trimming.
	ContextCacheTokens int `yaml:"context_cache_tokens,omitempty" json:"context_cache_tokens,omitempty"`

	// CompactionThreshold is the event count that triggers history
	// compaction in the context_filter plugin. Zero disables it.
	CompactionThreshold int `yaml:"compaction_threshold,omitempty" json:"compaction_threshold,omitempty"`

	// Resumable keeps sessions addressable across calls so callers can
	// continue a conversation by session_id.
	Resumable bool `yaml:"resumable,omitempty" json:"resumable,omitempty"`
}

// A2AConfig opts the workflow into agent-card generation.
type A2AConfig struct {
	Version string     `yaml:"version,omitempty" json:"version,omitempty"`
	Skills  []SkillDef `yaml:"skills,omitempty" json:"skills,omitempty"`
}

// SkillDef describes one declarative capability on the agent card.
type SkillDef struct {
	ID          string   `yaml:"id" json:"id" jsonschema:"required"`
	Name        string   `yaml:"name" json:"name" jsonschema:"required"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Agent returns the declared agent config by name, or nil.
func (d *Definition) Agent(name string) *AgentConfig {
	for i := range d.Agents {
		if d.Agents[i].Name == name {
			return &d.Agents[i]
		}
	}
	return nil
}
