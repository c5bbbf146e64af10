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

package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/workflow"
)

func TestParseFullDefinition(t *testing.T) {
	def, err := workflow.Parse([]byte(`
name: support
description: Classifies and answers support requests.
runtime:
  session_service: sqlite
  memory_service: in_memory
agents:
  - name: classify
    kind: model
    model_id: openai/gpt-4o-mini
    instruction: "Classify the request: {request}"
    output_key: category
  - name: respond
    kind: model
    model_id: openai/gpt-4o-mini
    instruction: "Answer a {category} request."
    output_key: reply
orchestration:
  mode: sequential
  agents: [classify, respond]
a2a:
  skills:
    - id: answer
      name: Answer support requests
`))
	require.NoError(t, err)

	assert.Equal(t, "support", def.Name)
	assert.Len(t, def.Agents, 2)
	assert.Equal(t, "sqlite", def.Runtime.SessionService)
	assert.Equal(t, workflow.ModeSequential, def.Orchestration.Mode)
	require.NotNil(t, def.A2A)
	assert.Equal(t, "answer", def.A2A.Skills[0].ID)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := workflow.Parse([]byte(`
name: typo
agents:
  - name: calc
    kind: expression
    expresion: "1 + 1"
    output_key: out
orchestration:
  mode: sequential
  agents: [calc]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expresion")
}

func TestParseRejectsEmptyDocument(t *testing.T) {
	_, err := workflow.Parse([]byte(""))
	require.Error(t, err)

	var verr *workflow.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestParseExpandsEnvReferences(t *testing.T) {
	t.Setenv("PIPELINE_MODEL", "openai/gpt-4o")

	def, err := workflow.Parse([]byte(`
name: env
agents:
  - name: helper
    kind: model
    model_id: ${PIPELINE_MODEL}
    instruction: "Mode ${PIPELINE_MODE:-batch}."
    output_key: out
orchestration:
  mode: react
  agent: helper
`))
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", def.Agents[0].ModelID)
	assert.Equal(t, "Mode batch.", def.Agents[0].Instruction)
}

func validDef() *workflow.Definition {
	return &workflow.Definition{
		Name: "ok",
		Agents: []workflow.AgentConfig{{
			Name:       "calc",
			Kind:       workflow.KindExpression,
			Expression: "1 + 1",
			OutputKey:  "out",
		}},
		Orchestration: workflow.OrchestrationConfig{
			Mode:   workflow.ModeSequential,
			Agents: []string{"calc"},
		},
	}
}

func TestValidateAcceptsMinimalDefinition(t *testing.T) {
	require.NoError(t, workflow.Validate(validDef()))
}

func TestValidateFieldErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*workflow.Definition)
		path    string
		message string
	}{
		{
			name:   "missing workflow name",
			mutate: func(d *workflow.Definition) { d.Name = "" },
			path:   "name",
		},
		{
			name:   "no agents",
			mutate: func(d *workflow.Definition) { d.Agents = nil },
			path:   "agents",
		},
		{
			name: "duplicate agent names",
			mutate: func(d *workflow.Definition) {
				d.Agents = append(d.Agents, d.Agents[0])
			},
			message: "duplicate agent name",
		},
		{
			name:    "model agent without model_id",
			mutate:  func(d *workflow.Definition) { d.Agents[0] = workflow.AgentConfig{Name: "calc", Kind: workflow.KindModel, Instruction: "x", OutputKey: "out"} },
			path:    "agents[0].model_id",
			message: "model_id",
		},
		{
			name:   "leaf without output_key",
			mutate: func(d *workflow.Definition) { d.Agents[0].OutputKey = "" },
			path:   "agents[0].output_key",
		},
		{
			name:    "unknown agent kind",
			mutate:  func(d *workflow.Definition) { d.Agents[0].Kind = "quantum" },
			message: "unknown agent kind",
		},
		{
			name:    "unknown hook point",
			mutate:  func(d *workflow.Definition) { d.Agents[0].Callbacks = map[string]string{"during_agent": "x"} },
			message: "unknown hook point",
		},
		{
			name:    "orchestration references ghost agent",
			mutate:  func(d *workflow.Definition) { d.Orchestration.Agents = []string{"ghost"} },
			message: `unknown agent "ghost"`,
		},
		{
			name:    "react root must be model",
			mutate:  func(d *workflow.Definition) { d.Orchestration = workflow.OrchestrationConfig{Mode: workflow.ModeReact, Agent: "calc"} },
			message: "must be a model agent",
		},
		{
			name:    "unknown error policy",
			mutate:  func(d *workflow.Definition) { d.Orchestration.OnError = "retry" },
			message: "unknown error policy",
		},
		{
			name:    "database service needs url",
			mutate:  func(d *workflow.Definition) { d.Runtime.SessionService = "database" },
			message: "session_db_url",
		},
		{
			name:    "unknown plugin",
			mutate:  func(d *workflow.Definition) { d.Runtime.Plugins = []string{"telepathy"} },
			message: `unknown plugin "telepathy"`,
		},
		{
			name:    "skill without id",
			mutate:  func(d *workflow.Definition) { d.A2A = &workflow.A2AConfig{Skills: []workflow.SkillDef{{Name: "x"}}} },
			message: "skill id is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDef()
			tt.mutate(def)

			err := workflow.Validate(def)
			require.Error(t, err)

			var verr *workflow.ValidationError
			require.ErrorAs(t, err, &verr)
			if tt.path != "" {
				assert.Equal(t, tt.path, verr.Path)
			}
			if tt.message != "" {
				assert.Contains(t, verr.Message, tt.message)
			}
		})
	}
}

func dagDef(nodes ...workflow.DAGNode) *workflow.Definition {
	def := validDef()
	def.Agents = nil
	for _, n := range nodes {
		def.Agents = append(def.Agents, workflow.AgentConfig{
			Name:       n.Agent,
			Kind:       workflow.KindExpression,
			Expression: "1",
			OutputKey:  n.Agent + "_out",
		})
	}
	def.Orchestration = workflow.OrchestrationConfig{Mode: workflow.ModeDAG, Nodes: nodes}
	return def
}

func TestValidateDAGAcceptsDiamond(t *testing.T) {
	def := dagDef(
		workflow.DAGNode{Agent: "a"},
		workflow.DAGNode{Agent: "b", DependsOn: []string{"a"}},
		workflow.DAGNode{Agent: "c", DependsOn: []string{"a"}},
		workflow.DAGNode{Agent: "d", DependsOn: []string{"b", "c"}},
	)
	require.NoError(t, workflow.Validate(def))
}

func TestValidateDAGRejectsCycle(t *testing.T) {
	def := dagDef(
		workflow.DAGNode{Agent: "a", DependsOn: []string{"b"}},
		workflow.DAGNode{Agent: "b", DependsOn: []string{"a"}},
	)

	err := workflow.Validate(def)
	require.Error(t, err)

	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "cycle")
	assert.Contains(t, verr.Message, "a")
	assert.Contains(t, verr.Message, "b")
}

func TestValidateDAGRejectsSelfDependency(t *testing.T) {
	def := dagDef(workflow.DAGNode{Agent: "a", DependsOn: []string{"a"}})

	err := workflow.Validate(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidateDAGRejectsUnknownDependency(t *testing.T) {
	def := dagDef(
		workflow.DAGNode{Agent: "a", DependsOn: []string{"phantom"}},
	)

	err := workflow.Validate(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phantom")
}
