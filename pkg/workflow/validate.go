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

package workflow

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/weftworks/weft/pkg/plugin"
)

// Validate checks a parsed definition: type tags, kind-specific required
// fields, agent-name uniqueness, every cross-reference, and for dag
// orchestration acyclicity via Kahn's algorithm. The first failure is
// returned as a *ValidationError with a field path.
func Validate(def *Definition) error {
	if def.Name == "" {
		return errorf("name", "workflow name is required")
	}
	if len(def.Agents) == 0 {
		return errorf("agents", "workflow must declare at least one agent")
	}

	declared := make(map[string]bool, len(def.Agents))
	for i := range def.Agents {
		a := &def.Agents[i]
		path := fmt.Sprintf("agents[%d]", i)

		if a.Name == "" {
			return errorf(path+".name", "agent name is required")
		}
		if declared[a.Name] {
			return errorf(path+".name", "duplicate agent name %q", a.Name)
		}
		declared[a.Name] = true

		if err := validateAgent(a, path); err != nil {
			return err
		}
	}

	// Cross-references can only be checked once every name is known.
	for i := range def.Agents {
		a := &def.Agents[i]
		path := fmt.Sprintf("agents[%d]", i)

		for j, name := range a.SubAgents {
			if !declared[name] {
				return errorf(fmt.Sprintf("%s.sub_agents[%d]", path, j), "unknown agent %q", name)
			}
			if name == a.Name {
				return errorf(fmt.Sprintf("%s.sub_agents[%d]", path, j), "agent %q cannot contain itself", name)
			}
		}
		for j, name := range a.AgentTools {
			if !declared[name] {
				return errorf(fmt.Sprintf("%s.agent_tools[%d]", path, j), "unknown agent %q", name)
			}
		}
	}

	if err := validateOrchestration(def, declared); err != nil {
		return err
	}
	if err := validateRuntime(&def.Runtime); err != nil {
		return err
	}
	if err := validateA2A(def.A2A); err != nil {
		return err
	}

	warnDuplicateParallelOutputs(def)
	return nil
}

// validateAgent enforces the kind-specific field combinations.
func validateAgent(a *AgentConfig, path string) error {
	switch a.Kind {
	case KindModel:
		if a.ModelID == "" {
			return errorf(path+".model_id", "model agents require model_id")
		}
		if a.Instruction == "" {
			return errorf(path+".instruction", "model agents require instruction")
		}
		if a.OutputKey == "" {
			return errorf(path+".output_key", "leaf agents require output_key")
		}
		switch a.Planner {
		case "", PlannerPlanReact, PlannerBuiltIn:
		default:
			return errorf(path+".planner", "unknown planner %q (want plan_react or built_in)", a.Planner)
		}
		for i, t := range a.OpenAPITools {
			if t.Spec == "" {
				return errorf(fmt.Sprintf("%s.openapi_tools[%d].spec", path, i), "spec path is required")
			}
			if t.Auth != nil {
				switch t.Auth.Type {
				case "", "none", "bearer", "apikey", "oauth2":
				default:
					return errorf(fmt.Sprintf("%s.openapi_tools[%d].auth.type", path, i),
						"unknown auth type %q (want none, bearer, apikey or oauth2)", t.Auth.Type)
				}
			}
		}
	case KindCode:
		if a.Function == "" {
			return errorf(path+".function", "code agents require function")
		}
		if a.OutputKey == "" {
			return errorf(path+".output_key", "leaf agents require output_key")
		}
	case KindExpression:
		if a.Expression == "" {
			return errorf(path+".expression", "expression agents require expression")
		}
		if a.OutputKey == "" {
			return errorf(path+".output_key", "leaf agents require output_key")
		}
	case KindTool:
		if a.Tool == "" {
			return errorf(path+".tool", "tool agents require tool")
		}
		if a.OutputKey == "" {
			return errorf(path+".output_key", "leaf agents require output_key")
		}
	case KindSequential, KindParallel, KindLoop:
		if len(a.SubAgents) == 0 {
			return errorf(path+".sub_agents", "%s agents require non-empty sub_agents", a.Kind)
		}
		if a.Kind == KindLoop && a.MaxIterations < 0 {
			return errorf(path+".max_iterations", "max_iterations cannot be negative")
		}
	case "":
		return errorf(path+".kind", "agent kind is required")
	default:
		return errorf(path+".kind", "unknown agent kind %q", a.Kind)
	}

	for point := range a.Callbacks {
		if !validHookPoint(point) {
			return errorf(path+".callbacks", "unknown hook point %q", point)
		}
	}
	return nil
}

func validHookPoint(point string) bool {
	switch point {
	case "before_agent", "after_agent", "before_model", "after_model", "before_tool", "after_tool":
		return true
	}
	return false
}

func validateOrchestration(def *Definition, declared map[string]bool) error {
	o := &def.Orchestration
	switch o.Mode {
	case ModeSequential, ModeParallel, ModeLoop:
		if len(o.Agents) == 0 {
			return errorf("orchestration.agents", "%s orchestration requires non-empty agents", o.Mode)
		}
		for i, name := range o.Agents {
			if !declared[name] {
				return errorf(fmt.Sprintf("orchestration.agents[%d]", i), "unknown agent %q", name)
			}
		}
		if o.Mode == ModeLoop && o.MaxIterations < 0 {
			return errorf("orchestration.max_iterations", "max_iterations cannot be negative")
		}
	case ModeLLMRouted:
		if o.Router == "" {
			return errorf("orchestration.router", "llm_routed orchestration requires router")
		}
		if !declared[o.Router] {
			return errorf("orchestration.router", "unknown agent %q", o.Router)
		}
		if routerCfg := def.Agent(o.Router); routerCfg != nil && routerCfg.Kind != KindModel {
			return errorf("orchestration.router", "router %q must be a model agent", o.Router)
		}
		if len(o.Agents) == 0 {
			return errorf("orchestration.agents", "llm_routed orchestration requires non-empty agents")
		}
		for i, name := range o.Agents {
			if !declared[name] {
				return errorf(fmt.Sprintf("orchestration.agents[%d]", i), "unknown agent %q", name)
			}
		}
	case ModeReact:
		if o.Agent == "" {
			return errorf("orchestration.agent", "react orchestration requires agent")
		}
		if !declared[o.Agent] {
			return errorf("orchestration.agent", "unknown agent %q", o.Agent)
		}
		if rootCfg := def.Agent(o.Agent); rootCfg != nil && rootCfg.Kind != KindModel {
			return errorf("orchestration.agent", "react agent %q must be a model agent", o.Agent)
		}
		switch o.Planner {
		case "", PlannerPlanReact, PlannerBuiltIn:
		default:
			return errorf("orchestration.planner", "unknown planner %q", o.Planner)
		}
	case ModeDAG:
		if len(o.Nodes) == 0 {
			return errorf("orchestration.nodes", "dag orchestration requires non-empty nodes")
		}
		if err := validateDAG(o.Nodes, declared); err != nil {
			return err
		}
	case "":
		return errorf("orchestration.mode", "orchestration mode is required")
	default:
		return errorf("orchestration.mode", "unknown orchestration mode %q", o.Mode)
	}

	switch o.OnError {
	case "", OnErrorHalt, OnErrorContinue:
	default:
		return errorf("orchestration.on_error", "unknown error policy %q (want halt or continue)", o.OnError)
	}
	return nil
}

// validateDAG checks node uniqueness, dependency references, and
// acyclicity via Kahn's algorithm. A node depending on itself is a
// one-node cycle and reported as such.
func validateDAG(nodes []DAGNode, declared map[string]bool) error {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		path := fmt.Sprintf("orchestration.nodes[%d]", i)
		if n.Agent == "" {
			return errorf(path+".agent", "node agent is required")
		}
		if !declared[n.Agent] {
			return errorf(path+".agent", "unknown agent %q", n.Agent)
		}
		if _, dup := index[n.Agent]; dup {
			return errorf(path+".agent", "duplicate node %q", n.Agent)
		}
		index[n.Agent] = i
	}

	indegree := make(map[string]int, len(nodes))
	successors := make(map[string][]string, len(nodes))
	for i, n := range nodes {
		indegree[n.Agent] += 0
		for j, dep := range n.DependsOn {
			if _, ok := index[dep]; !ok {
				return errorf(fmt.Sprintf("orchestration.nodes[%d].depends_on[%d]", i, j),
					"dependency %q is not a declared node", dep)
			}
			indegree[n.Agent]++
			successors[dep] = append(successors[dep], n.Agent)
		}
	}

	// Kahn: repeatedly remove zero-indegree nodes; leftovers form cycles.
	var ready []string
	for _, n := range nodes {
		if indegree[n.Agent] == 0 {
			ready = append(ready, n.Agent)
		}
	}
	completed := 0
	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		completed++
		for _, succ := range successors[node] {
			indegree[succ]--
			if indegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}
	if completed < len(nodes) {
		var cyclic []string
		for name, deg := range indegree {
			if deg > 0 {
				cyclic = append(cyclic, name)
			}
		}
		sort.Strings(cyclic)
		return errorf("orchestration.nodes", "dependency cycle involving nodes %v", cyclic)
	}
	return nil
}

func validateRuntime(r *RuntimeConfig) error {
	switch r.SessionService {
	case "", "in_memory", "sqlite", "database":
	default:
		return errorf("runtime.session_service", "unknown session service %q (want in_memory, sqlite or database)", r.SessionService)
	}
	if r.SessionService == "database" && r.SessionDBURL == "" {
		return errorf("runtime.session_db_url", "database session service requires session_db_url")
	}
	switch r.MemoryService {
	case "", "none", "in_memory":
	default:
		return errorf("runtime.memory_service", "unknown memory service %q (want none or in_memory)", r.MemoryService)
	}
	switch r.ArtifactService {
	case "", "none", "in_memory", "file":
	default:
		return errorf("runtime.artifact_service", "unknown artifact service %q (want none, in_memory or file)", r.ArtifactService)
	}
	for i, name := range r.Plugins {
		if !plugin.KnownFactory(name) {
			return errorf(fmt.Sprintf("runtime.plugins[%d]", i), "unknown plugin %q", name)
		}
	}
	return nil
}

func validateA2A(a2a *A2AConfig) error {
	if a2a == nil {
		return nil
	}
	for i, skill := range a2a.Skills {
		if skill.ID == "" {
			return errorf(fmt.Sprintf("a2a.skills[%d].id", i), "skill id is required")
		}
		if skill.Name == "" {
			return errorf(fmt.Sprintf("a2a.skills[%d].name", i), "skill name is required")
		}
	}
	return nil
}

// warnDuplicateParallelOutputs flags parallel siblings writing the same
// output_key. The run proceeds with last-writer-wins, but the outcome
// depends on completion order, so authors get a warning at load.
func warnDuplicateParallelOutputs(def *Definition) {
	check := func(owner string, members []string) {
		writers := make(map[string]string)
		for _, name := range members {
			cfg := def.Agent(name)
			if cfg == nil || cfg.OutputKey == "" {
				continue
			}
			if prev, dup := writers[cfg.OutputKey]; dup {
				slog.Warn("Parallel agents write the same output key; last writer wins",
					"workflow", def.Name,
					"parallel", owner,
					"key", cfg.OutputKey,
					"agents", []string{prev, name})
			}
			writers[cfg.OutputKey] = name
		}
	}

	for i := range def.Agents {
		if def.Agents[i].Kind == KindParallel {
			check(def.Agents[i].Name, def.Agents[i].SubAgents)
		}
	}
	if def.Orchestration.Mode == ModeParallel {
		check("orchestration", def.Orchestration.Agents)
	}
}
