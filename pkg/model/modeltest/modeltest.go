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

// Package modeltest provides a scripted model.LLM for tests.
//
// Each GenerateContent call consumes one scripted turn and records the
// request for later assertions. Streamed turns replay through the shared
// StreamingAggregator so tests exercise the same partial/aggregated
// response shape that real providers produce.
package modeltest

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/weftworks/weft/pkg/model"
	"github.com/weftworks/weft/pkg/tool"
)

// Turn is one scripted model reply.
type Turn struct {
	Response *model.Response
	Err      error
}

// TextTurn scripts a plain text reply with fixed usage numbers.
func TextTurn(text string) Turn {
	return Turn{Response: &model.Response{
		Content: &model.Content{
			Parts: []a2a.Part{a2a.TextPart{Text: text}},
			Role:  a2a.MessageRoleAgent,
		},
		TurnComplete: true,
		FinishReason: model.FinishReasonStop,
		Usage: &model.Usage{
			PromptTokens:     10,
			CompletionTokens: 5,
			TotalTokens:      15,
		},
	}}
}

// ToolCallTurn scripts a reply that requests the given tool calls.
func ToolCallTurn(calls ...tool.ToolCall) Turn {
	return Turn{Response: &model.Response{
		TurnComplete: true,
		ToolCalls:    calls,
		FinishReason: model.FinishReasonToolCalls,
		Usage: &model.Usage{
			PromptTokens:     10,
			CompletionTokens: 5,
			TotalTokens:      15,
		},
	}}
}

// ErrorTurn scripts a failing call.
func ErrorTurn(err error) Turn {
	return Turn{Err: err}
}

// ResponseTurn scripts an exact response, for tests that need full control
// over usage or finish reason.
func ResponseTurn(resp *model.Response) Turn {
	return Turn{Response: resp}
}

// LLM is a scripted model.LLM.
type LLM struct {
	name string

	mu       sync.Mutex
	turns    []Turn
	requests []*model.Request
	calls    int
	closed   bool
}

// New creates a scripted model that replays turns in order. Calls beyond
// the script fail with an error naming the call number.
func New(name string, turns ...Turn) *LLM {
	if name == "" {
		name = "scripted-model"
	}
	return &LLM{name: name, turns: turns}
}

// Enqueue appends turns to the script.
func (m *LLM) Enqueue(turns ...Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turns...)
}

// Name returns the scripted model identifier.
func (m *LLM) Name() string {
	return m.name
}

// Provider returns model.ProviderTest.
func (m *LLM) Provider() model.Provider {
	return model.ProviderTest
}

// GenerateContent consumes the next scripted turn.
func (m *LLM) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}

		m.mu.Lock()
		m.requests = append(m.requests, req)
		m.calls++
		call := m.calls
		if len(m.turns) == 0 {
			m.mu.Unlock()
			yield(nil, fmt.Errorf("modeltest: no scripted turn for call %d to %q", call, m.name))
			return
		}
		turn := m.turns[0]
		m.turns = m.turns[1:]
		m.mu.Unlock()

		if turn.Err != nil {
			yield(nil, turn.Err)
			return
		}

		if !stream {
			yield(turn.Response, nil)
			return
		}

		agg := model.NewStreamingAggregator()
		if text := turn.Response.TextContent(); text != "" {
			for resp, err := range agg.ProcessTextDelta(text) {
				if !yield(resp, err) {
					return
				}
			}
		}
		for _, tc := range turn.Response.ToolCalls {
			for resp, err := range agg.ProcessToolCall(tc) {
				if !yield(resp, err) {
					return
				}
			}
		}
		agg.SetUsage(turn.Response.Usage)
		agg.SetFinishReason(turn.Response.FinishReason)
		if final := agg.Close(); final != nil {
			yield(final, nil)
		}
	}
}

// Close marks the model closed.
func (m *LLM) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Requests returns the recorded requests in call order.
func (m *LLM) Requests() []*model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of GenerateContent calls so far.
func (m *LLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Remaining returns the number of unconsumed turns.
func (m *LLM) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

// Closed reports whether Close was called.
func (m *LLM) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Ensure LLM implements model.LLM
var _ model.LLM = (*LLM)(nil)
