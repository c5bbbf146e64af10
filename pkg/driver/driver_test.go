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

package driver_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/callbacks"
	"github.com/weftworks/weft/pkg/driver"
	"github.com/weftworks/weft/pkg/hydrator"
	"github.com/weftworks/weft/pkg/model"
	"github.com/weftworks/weft/pkg/model/modeltest"
	"github.com/weftworks/weft/pkg/tool"
	"github.com/weftworks/weft/pkg/workflow"
)

func hydrate(t *testing.T, def *workflow.Definition) *hydrator.HydratedWorkflow {
	t.Helper()

	resolver := model.NewResolver(model.ProviderTest)
	resolver.Register(model.ProviderTest, func(name string) (model.LLM, error) {
		return modeltest.New(name,
			modeltest.TextTurn("done"),
			modeltest.TextTurn("done"),
			modeltest.TextTurn("done")), nil
	})

	h := hydrator.New(hydrator.Options{
		Models:    resolver,
		Tools:     tool.NewRegistry(),
		Callbacks: callbacks.NewRegistry(),
	})
	hw, err := h.Hydrate(context.Background(), def, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { hw.Close() })
	return hw
}

func modelWorkflow(name string) *workflow.Definition {
	return &workflow.Definition{
		Name: name,
		Agents: []workflow.AgentConfig{{
			Name:        "helper",
			Kind:        workflow.KindModel,
			ModelID:     "test/fixed",
			Instruction: "Answer briefly.",
			OutputKey:   "answer",
		}},
		Orchestration: workflow.OrchestrationConfig{Mode: workflow.ModeReact, Agent: "helper"},
	}
}

func TestRunReturnsFinalContent(t *testing.T) {
	hw := hydrate(t, modelWorkflow("assistant"))
	d := driver.New(driver.Options{DataDir: t.TempDir()})
	defer d.Close()

	result, err := d.Run(context.Background(), hw, "u1", "", "hello")
	require.NoError(t, err)
	assert.Equal(t, "done", result.Content)
	assert.Equal(t, "helper", result.Author)
	assert.NotEmpty(t, result.SessionID)
}

func TestRunReusesSession(t *testing.T) {
	hw := hydrate(t, modelWorkflow("assistant"))
	d := driver.New(driver.Options{DataDir: t.TempDir()})
	defer d.Close()
	ctx := context.Background()

	first, err := d.Run(ctx, hw, "u1", "", "hello")
	require.NoError(t, err)

	second, err := d.Run(ctx, hw, "u1", first.SessionID, "again")
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
}

func TestRunStreamingYieldsEvents(t *testing.T) {
	hw := hydrate(t, modelWorkflow("assistant"))
	d := driver.New(driver.Options{DataDir: t.TempDir()})
	defer d.Close()

	stream, err := d.RunStreaming(context.Background(), hw, "u1", "", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, stream.SessionID)

	var sawFinal bool
	for ev, err := range stream.Events {
		require.NoError(t, err)
		if ev != nil && !ev.Partial && ev.TextContent() == "done" {
			sawFinal = true
		}
	}
	assert.True(t, sawFinal)
}

func TestExpressionWorkflowSeesWallClockState(t *testing.T) {
	def := &workflow.Definition{
		Name: "clock",
		Agents: []workflow.AgentConfig{{
			Name:       "today",
			Kind:       workflow.KindExpression,
			Expression: "current_date",
			InputKeys:  []string{"current_date"},
			OutputKey:  "today_out",
		}},
		Orchestration: workflow.OrchestrationConfig{
			Mode:   workflow.ModeSequential,
			Agents: []string{"today"},
		},
	}
	hw := hydrate(t, def)
	d := driver.New(driver.Options{DataDir: t.TempDir()})
	defer d.Close()

	result, err := d.Run(context.Background(), hw, "u1", "", "run")
	require.NoError(t, err)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, result.Content)
}

func TestUnknownMemoryServiceRejected(t *testing.T) {
	def := modelWorkflow("assistant")
	def.Runtime.MemoryService = "vector"
	hw := hydrate(t, def)
	d := driver.New(driver.Options{DataDir: t.TempDir()})
	defer d.Close()

	_, err := d.Run(context.Background(), hw, "u1", "", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory_service")
}

func TestSQLiteSessionServiceCreatesDatabase(t *testing.T) {
	dataDir := t.TempDir()
	def := modelWorkflow("persistent")
	def.Runtime.SessionService = "sqlite"
	hw := hydrate(t, def)
	d := driver.New(driver.Options{DataDir: dataDir})
	defer d.Close()

	_, err := d.Run(context.Background(), hw, "u1", "", "hello")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dataDir, "persistent.db"))
	assert.NoError(t, err)
}
