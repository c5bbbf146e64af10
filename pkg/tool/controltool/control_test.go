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

package controltool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/agent"
)

type fakeToolContext struct {
	agent.CallbackContext
	actions *agent.EventActions
}

func (f *fakeToolContext) FunctionCallID() string {
	return "call_test"
}

func (f *fakeToolContext) Actions() *agent.EventActions {
	return f.actions
}

func (f *fakeToolContext) SearchMemory(ctx context.Context, query string) (*agent.MemorySearchResponse, error) {
	return &agent.MemorySearchResponse{}, nil
}

func TestExitLoopSetsEscalate(t *testing.T) {
	tctx := &fakeToolContext{actions: &agent.EventActions{}}

	result, err := ExitLoop().Call(tctx, map[string]any{})
	require.NoError(t, err)

	assert.True(t, tctx.actions.Escalate)
	assert.True(t, tctx.actions.SkipSummarization)
	assert.Equal(t, "completed", result["status"])
}

func TestEscalateRecordsReason(t *testing.T) {
	tctx := &fakeToolContext{actions: &agent.EventActions{}}

	result, err := Escalate().Call(tctx, map[string]any{"reason": "needs human review"})
	require.NoError(t, err)

	assert.True(t, tctx.actions.Escalate)
	assert.Equal(t, "needs human review", result["reason"])
	assert.Equal(t, true, result["escalated"])
}

func TestEscalateDefaultReason(t *testing.T) {
	tctx := &fakeToolContext{actions: &agent.EventActions{}}

	result, err := Escalate().Call(tctx, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "No reason provided", result["reason"])
}

func TestTransferToSetsTarget(t *testing.T) {
	tctx := &fakeToolContext{actions: &agent.EventActions{}}

	tr := TransferTo("researcher", "")
	assert.Equal(t, "transfer_to_researcher", tr.Name())
	assert.Contains(t, tr.Description(), "researcher")

	result, err := tr.Call(tctx, map[string]any{"request": "find rates"})
	require.NoError(t, err)

	assert.Equal(t, "researcher", tctx.actions.TransferToAgent)
	assert.Equal(t, "researcher", result["transferred_to"])
	assert.Equal(t, "find rates", result["request"])
}
