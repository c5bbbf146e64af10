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

package agent

import (
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	event := NewEvent("inv-1")

	require.NotNil(t, event)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "inv-1", event.InvocationID)
	assert.NotNil(t, event.Actions.StateDelta)
	assert.False(t, event.Timestamp.IsZero())
}

func TestNewEventUniqueIDs(t *testing.T) {
	a := NewEvent("inv-1")
	b := NewEvent("inv-1")
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNewErrorEvent(t *testing.T) {
	event := NewErrorEvent("inv-1", "rate_tracker", "agent_error", "boom")

	assert.Equal(t, "rate_tracker", event.Author)
	assert.Equal(t, "agent_error", event.ErrorCode)
	assert.Equal(t, "boom", event.ErrorMessage)
	assert.True(t, event.IsError())
	assert.True(t, event.TurnComplete)
	assert.Empty(t, event.Actions.StateDelta)
	assert.Equal(t, "boom", event.TextContent())
}

func TestIsFinalResponse(t *testing.T) {
	event := NewEvent("inv-1")
	event.Message = NewTextContent("done", a2a.MessageRoleAgent).ToMessage()
	assert.True(t, event.IsFinalResponse())

	partial := NewEvent("inv-1")
	partial.Partial = true
	assert.False(t, partial.IsFinalResponse())

	skipped := NewEvent("inv-1")
	skipped.Actions.SkipSummarization = true
	assert.True(t, skipped.IsFinalResponse())
}

func TestHasToolCallsAndResults(t *testing.T) {
	event := NewEvent("inv-1")
	event.Message = &a2a.Message{Parts: []a2a.Part{
		a2a.DataPart{Data: map[string]any{"type": "tool_use", "name": "http_request"}},
	}}
	assert.True(t, event.HasToolCalls())
	assert.False(t, event.HasToolResults())
	assert.False(t, event.IsFinalResponse())

	result := NewEvent("inv-1")
	result.Message = &a2a.Message{Parts: []a2a.Part{
		a2a.DataPart{Data: map[string]any{"type": "tool_result", "name": "http_request"}},
	}}
	assert.True(t, result.HasToolResults())
	assert.False(t, result.HasToolCalls())
}

func TestTextContentConcatenatesParts(t *testing.T) {
	content := NewTextContent("hello", a2a.MessageRoleAgent)
	content.AddText(" world")

	event := NewEvent("inv-1")
	event.Message = content.ToMessage()

	assert.Equal(t, "hello world", event.TextContent())
}

func TestTextContentEmptyMessage(t *testing.T) {
	event := NewEvent("inv-1")
	assert.Equal(t, "", event.TextContent())
}
