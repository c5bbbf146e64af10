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
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"
)

// Event author constants.
const (
	// AuthorUser marks events carrying human input.
	AuthorUser = "user"

	// AuthorSystem marks system-generated events such as scheduler errors.
	AuthorSystem = "system"
)

// Event is an observation emitted by an agent. Events are yielded by
// Agent.Run and are the unit of inter-agent and outward-facing visibility.
type Event struct {
	// ID is the unique identifier for this event.
	ID string

	// Timestamp when the event was created.
	Timestamp time.Time

	// InvocationID links this event to its invocation.
	InvocationID string

	// Branch isolates conversation history for concurrent agents.
	// Format: "parent/child/grandchild".
	Branch string

	// Author is the name of the agent that produced this event,
	// or AuthorUser / AuthorSystem.
	Author string

	// Message carries the event content (text and data parts).
	Message *a2a.Message

	// Actions captures side effects (state delta, loop exit, transfers).
	Actions EventActions

	// Partial marks a streaming chunk rather than a complete event.
	// Partial events are never persisted to the session.
	Partial bool

	// TurnComplete marks the final event of a turn.
	TurnComplete bool

	// ErrorCode is a machine-readable failure identifier
	// (e.g. "agent_error", "scheduling_error").
	ErrorCode string

	// ErrorMessage is a human-readable failure description.
	ErrorMessage string

	// CustomMetadata carries application-specific data.
	CustomMetadata map[string]any
}

// NewEvent creates an event with a generated ID and current timestamp.
func NewEvent(invocationID string) *Event {
	return &Event{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		InvocationID: invocationID,
		Actions:      EventActions{StateDelta: make(map[string]any)},
	}
}

// NewErrorEvent creates an event describing a failed agent execution.
// The state delta is left empty: a failed agent never touches state.
func NewErrorEvent(invocationID, author, code, message string) *Event {
	ev := NewEvent(invocationID)
	ev.Author = author
	ev.ErrorCode = code
	ev.ErrorMessage = message
	ev.Message = NewTextContent(message, a2a.MessageRoleAgent).ToMessage()
	ev.TurnComplete = true
	return ev
}

// EventActions represents side effects attached to an event.
type EventActions struct {
	// StateDelta contains key-value changes applied to session state.
	StateDelta map[string]any

	// ArtifactDelta tracks artifact updates (filename -> version).
	ArtifactDelta map[string]int64

	// SkipSummarization prevents model summarization of tool responses.
	SkipSummarization bool

	// TransferToAgent requests control transfer to another agent.
	TransferToAgent string

	// Escalate requests loop termination or escalation to the parent.
	// Set by the exit_loop and escalate control tools.
	Escalate bool
}

// IsError reports whether this event describes a failed execution.
func (e *Event) IsError() bool {
	return e.ErrorCode != "" || e.ErrorMessage != ""
}

// IsFinalResponse reports whether this event completes an agent turn.
// Partial chunks and events still carrying tool activity are not final.
func (e *Event) IsFinalResponse() bool {
	if e.Actions.SkipSummarization {
		return true
	}
	if e.Partial {
		return false
	}
	return !e.HasToolCalls() && !e.HasToolResults()
}

// HasToolCalls reports whether the event requests tool executions.
func (e *Event) HasToolCalls() bool {
	return hasPartOfType(e.Message, "tool_use")
}

// HasToolResults reports whether the event carries tool results.
func (e *Event) HasToolResults() bool {
	return hasPartOfType(e.Message, "tool_result")
}

// hasPartOfType checks for a DataPart with the given "type" value.
func hasPartOfType(msg *a2a.Message, partType string) bool {
	if msg == nil {
		return false
	}
	for _, part := range msg.Parts {
		if dp, ok := part.(a2a.DataPart); ok {
			if typeVal, hasType := dp.Data["type"].(string); hasType && typeVal == partType {
				return true
			}
		}
	}
	return false
}

// TextContent extracts the concatenated text of the event's message.
func (e *Event) TextContent() string {
	if e.Message == nil {
		return ""
	}
	var text string
	for _, part := range e.Message.Parts {
		if tp, ok := part.(a2a.TextPart); ok {
			text += tp.Text
		}
	}
	return text
}

// Content is a convenience type for building message content.
type Content struct {
	Parts []a2a.Part
	Role  a2a.MessageRole
}

// NewTextContent creates content with a single text part.
func NewTextContent(text string, role a2a.MessageRole) *Content {
	return &Content{
		Parts: []a2a.Part{a2a.TextPart{Text: text}},
		Role:  role,
	}
}

// ToMessage converts Content to an a2a.Message.
func (c *Content) ToMessage() *a2a.Message {
	if c == nil {
		return nil
	}
	return a2a.NewMessage(c.Role, c.Parts...)
}

// AddPart appends a part to the content.
func (c *Content) AddPart(part a2a.Part) {
	c.Parts = append(c.Parts, part)
}

// AddText appends a text part to the content.
func (c *Content) AddText(text string) {
	c.Parts = append(c.Parts, a2a.TextPart{Text: text})
}

// Text returns the concatenated text parts of the content.
func (c *Content) Text() string {
	if c == nil {
		return ""
	}
	var text string
	for _, part := range c.Parts {
		if tp, ok := part.(a2a.TextPart); ok {
			text += tp.Text
		}
	}
	return text
}
