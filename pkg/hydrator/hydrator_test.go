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

package hydrator_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/callbacks"
	"github.com/weftworks/weft/pkg/hydrator"
	"github.com/weftworks/weft/pkg/model"
	"github.com/weftworks/weft/pkg/model/modeltest"
	"github.com/weftworks/weft/pkg/tool"
	"github.com/weftworks/weft/pkg/tool/controltool"
	"github.com/weftworks/weft/pkg/workflow"
)

func testResolver() *model.Resolver {
	r := model.NewResolver(model.ProviderTest)
	r.Register(model.ProviderTest, func(name string) (model.LLM, error) {
		return modeltest.New(name, modeltest.TextTurn("done")), nil
	})
	return r
}

func testOptions() hydrator.Options {
	registry := tool.NewRegistry()
	registry.RegisterBuiltin(controltool.ExitLoop())
	registry.RegisterBuiltin(controltool.Escalate())
	return hydrator.Options{
		Models:    testResolver(),
		Tools:     registry,
		Callbacks: callbacks.NewRegistry(),
	}
}

func exprAgent(name, expression string, inputs ...string) workflow.AgentConfig {
	return workflow.AgentConfig{
		Name:       name,
		Kind:       workflow.KindExpression,
		Expression: expression,
		InputKeys:  inputs,
		OutputKey:  name + "_out",
	}
}

func TestHydrateSequentialWorkflow(t *testing.T) {
	def := &workflow.Definition{
		Name: "pipeline",
		Agents: []workflow.AgentConfig{
			exprAgent("double", "n * 2", "n"),
			exprAgent("shift", "double_out + 1", "double_out"),
		},
		Orchestration: workflow.OrchestrationConfig{
			Mode:   workflow.ModeSequential,
			Agents: []string{"double", "shift"},
		},
	}

	h := hydrator.New(testOptions())
	hw, err := h.Hydrate(context.Background(), def, t.TempDir())
	require.NoError(t, err)
	defer hw.Close()

	assert.Equal(t, "pipeline", hw.Root.Name())
	require.Len(t, hw.Root.SubAgents(), 2)
	assert.Equal(t, "double", hw.Root.SubAgents()[0].Name())
	assert.Equal(t, "shift", hw.Root.SubAgents()[1].Name())
}

func TestHydrateModelAgentWithTools(t *testing.T) {
	def := &workflow.Definition{
		Name: "assistant",
		Agents: []workflow.AgentConfig{{
			Name:        "helper",
			Kind:        workflow.KindModel,
			ModelID:     "test/fixed",
			Instruction: "Answer briefly.",
			Tools:       []string{"exit_loop"},
			OutputKey:   "answer",
		}},
		Orchestration: workflow.OrchestrationConfig{
			Mode:  workflow.ModeReact,
			Agent: "helper",
		},
	}

	h := hydrator.New(testOptions())
	hw, err := h.Hydrate(context.Background(), def, t.TempDir())
	require.NoError(t, err)
	defer hw.Close()

	// React mode runs the named agent directly, no wrapper.
	assert.Equal(t, "helper", hw.Root.Name())
}

func TestHydrateDAGOrchestration(t *testing.T) {
	def := &workflow.Definition{
		Name: "graph",
		Agents: []workflow.AgentConfig{
			exprAgent("a", "1"),
			exprAgent("b", "a_out + 1", "a_out"),
			exprAgent("c", "a_out + 2", "a_out"),
		},
		Orchestration: workflow.OrchestrationConfig{
			Mode: workflow.ModeDAG,
			Nodes: []workflow.DAGNode{
				{Agent: "a"},
				{Agent: "b", DependsOn: []string{"a"}},
				{Agent: "c", DependsOn: []string{"a"}},
			},
		},
	}

	h := hydrator.New(testOptions())
	hw, err := h.Hydrate(context.Background(), def, t.TempDir())
	require.NoError(t, err)
	defer hw.Close()

	assert.Equal(t, "graph", hw.Root.Name())
	assert.Len(t, hw.Root.SubAgents(), 3)
}

func TestHydrateCyclicDAGFails(t *testing.T) {
	def := &workflow.Definition{
		Name: "loopy",
		Agents: []workflow.AgentConfig{
			exprAgent("a", "1"),
			exprAgent("b", "2"),
		},
		Orchestration: workflow.OrchestrationConfig{
			Mode: workflow.ModeDAG,
			Nodes: []workflow.DAGNode{
				{Agent: "a", DependsOn: []string{"b"}},
				{Agent: "b", DependsOn: []string{"a"}},
			},
		},
	}

	h := hydrator.New(testOptions())
	_, err := h.Hydrate(context.Background(), def, t.TempDir())
	require.Error(t, err)

	var herr *workflow.HydrationError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "loopy", herr.Workflow)
	assert.Equal(t, "orchestration", herr.Stage)
}

func TestHydrateUnknownToolFails(t *testing.T) {
	def := &workflow.Definition{
		Name: "broken",
		Agents: []workflow.AgentConfig{{
			Name:    "helper",
			Kind:    workflow.KindModel,
			ModelID: "test/fixed",
			Tools:   []string{"no_such_tool"},
		}},
		Orchestration: workflow.OrchestrationConfig{Mode: workflow.ModeReact, Agent: "helper"},
	}

	h := hydrator.New(testOptions())
	_, err := h.Hydrate(context.Background(), def, t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, tool.ErrToolNotFound))
}

func TestHydrateUnknownCallbackFails(t *testing.T) {
	def := &workflow.Definition{
		Name: "broken",
		Agents: []workflow.AgentConfig{{
			Name:       "calc",
			Kind:       workflow.KindExpression,
			Expression: "1 + 1",
			OutputKey:  "out",
			Callbacks:  map[string]string{"before_agent": "ghost"},
		}},
		Orchestration: workflow.OrchestrationConfig{Mode: workflow.ModeSequential, Agents: []string{"calc"}},
	}

	h := hydrator.New(testOptions())
	_, err := h.Hydrate(context.Background(), def, t.TempDir())
	require.Error(t, err)

	var herr *workflow.HydrationError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "callbacks", herr.Stage)
	assert.Contains(t, err.Error(), "ghost")
}

func TestHydrateRegisteredCallback(t *testing.T) {
	opts := testOptions()
	require.NoError(t, opts.Callbacks.RegisterBeforeAgent("audit",
		func(ctx agent.CallbackContext) (*agent.Content, error) { return nil, nil }))

	def := &workflow.Definition{
		Name: "audited",
		Agents: []workflow.AgentConfig{{
			Name:       "calc",
			Kind:       workflow.KindExpression,
			Expression: "1 + 1",
			OutputKey:  "out",
			Callbacks:  map[string]string{"before_agent": "audit"},
		}},
		Orchestration: workflow.OrchestrationConfig{Mode: workflow.ModeSequential, Agents: []string{"calc"}},
	}

	_, err := hydrator.New(opts).Hydrate(context.Background(), def, t.TempDir())
	require.NoError(t, err)
}

func TestHydrateUndeclaredMCPServerFails(t *testing.T) {
	def := &workflow.Definition{
		Name: "remote",
		Agents: []workflow.AgentConfig{{
			Name:    "helper",
			Kind:    workflow.KindModel,
			ModelID: "test/fixed",
			Tools:   []string{"mcp:ghost"},
		}},
		Orchestration: workflow.OrchestrationConfig{Mode: workflow.ModeReact, Agent: "helper"},
	}

	h := hydrator.New(testOptions())
	_, err := h.Hydrate(context.Background(), def, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
	assert.Contains(t, err.Error(), "not declared")
}

func TestHydrateMutualAgentToolsFail(t *testing.T) {
	def := &workflow.Definition{
		Name: "tangled",
		Agents: []workflow.AgentConfig{
			{Name: "a", Kind: workflow.KindModel, ModelID: "test/fixed", AgentTools: []string{"b"}},
			{Name: "b", Kind: workflow.KindModel, ModelID: "test/fixed", AgentTools: []string{"a"}},
		},
		Orchestration: workflow.OrchestrationConfig{Mode: workflow.ModeReact, Agent: "a"},
	}

	h := hydrator.New(testOptions())
	_, err := h.Hydrate(context.Background(), def, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "references itself")
}

func TestHydrateOpenAPIToolsetFromSpecsDir(t *testing.T) {
	baseDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(baseDir, "specs"), 0o755))

	spec := `
openapi: "3.0.0"
info:
  title: Echo
  version: "1.0"
servers:
  - url: https://api.example.com
paths:
  /echo:
    get:
      operationId: echo
      summary: Echo back
`
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "specs", "echo.yaml"), []byte(spec), 0o644))

	def := &workflow.Definition{
		Name: "caller",
		Agents: []workflow.AgentConfig{{
			Name:         "helper",
			Kind:         workflow.KindModel,
			ModelID:      "test/fixed",
			OpenAPITools: []workflow.OpenAPIToolConfig{{Spec: "echo.yaml"}},
		}},
		Orchestration: workflow.OrchestrationConfig{Mode: workflow.ModeReact, Agent: "helper"},
	}

	h := hydrator.New(testOptions())
	hw, err := h.Hydrate(context.Background(), def, t.TempDir())
	_ = hw
	require.Error(t, err) // spec lives under baseDir, not the hydrate dir

	hw, err = h.Hydrate(context.Background(), def, baseDir)
	require.NoError(t, err)
	defer hw.Close()
}

func TestHydrateLLMRouted(t *testing.T) {
	def := &workflow.Definition{
		Name: "triage",
		Agents: []workflow.AgentConfig{
			{Name: "router", Kind: workflow.KindModel, ModelID: "test/fixed", Instruction: "Pick one."},
			exprAgent("billing", "1"),
			exprAgent("shipping", "2"),
		},
		Orchestration: workflow.OrchestrationConfig{
			Mode:   workflow.ModeLLMRouted,
			Router: "router",
			Agents: []string{"billing", "shipping"},
		},
	}

	h := hydrator.New(testOptions())
	hw, err := h.Hydrate(context.Background(), def, t.TempDir())
	require.NoError(t, err)
	defer hw.Close()

	// Router plus both candidates hang off the wrapper.
	assert.Len(t, hw.Root.SubAgents(), 3)
}
