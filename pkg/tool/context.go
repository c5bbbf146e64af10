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

package tool

import (
	"context"

	"github.com/weftworks/weft/pkg/agent"
)

// toolContext is the default Context implementation handed to tools.
type toolContext struct {
	agent.CallbackContext
	functionCallID string
	actions        *agent.EventActions
	invCtx         agent.InvocationContext
}

// NewContext creates a Context for one tool invocation. State writes made
// through the context land in the session and in the returned actions'
// state delta, so the caller can merge them into its pending event.
func NewContext(ictx agent.InvocationContext, functionCallID string) Context {
	actions := &agent.EventActions{StateDelta: make(map[string]any)}
	return &toolContext{
		CallbackContext: agent.NewCallbackContext(ictx, actions),
		functionCallID:  functionCallID,
		actions:         actions,
		invCtx:          ictx,
	}
}

func (c *toolContext) FunctionCallID() string {
	return c.functionCallID
}

func (c *toolContext) Actions() *agent.EventActions {
	return c.actions
}

func (c *toolContext) SearchMemory(ctx context.Context, query string) (*agent.MemorySearchResponse, error) {
	memory := c.invCtx.Memory()
	if memory == nil {
		return &agent.MemorySearchResponse{}, nil
	}
	return memory.Search(ctx, query)
}

// InvocationContext returns the invocation the tool call belongs to.
// Agent-as-tool wrappers use it to derive child invocation contexts.
func (c *toolContext) InvocationContext() agent.InvocationContext {
	return c.invCtx
}

var _ Context = (*toolContext)(nil)
