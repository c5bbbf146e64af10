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

import "iter"

// callbackContext wraps an InvocationContext so state writes made inside
// callbacks are captured in an EventActions state delta as well as applied
// to the session.
type callbackContext struct {
	InvocationContext
	state *callbackState
}

// NewCallbackContext creates a CallbackContext that records state mutations
// into actions.StateDelta.
func NewCallbackContext(ictx InvocationContext, actions *EventActions) CallbackContext {
	return &callbackContext{
		InvocationContext: ictx,
		state: &callbackState{
			backing: ictx.State(),
			actions: actions,
		},
	}
}

func (c *callbackContext) State() State                 { return c.state }
func (c *callbackContext) ReadonlyState() ReadonlyState { return c.state }

// callbackState applies writes to the backing session state and mirrors
// them into the pending event's state delta.
type callbackState struct {
	backing State
	actions *EventActions
}

func (s *callbackState) Get(key string) (any, error) {
	return s.backing.Get(key)
}

func (s *callbackState) Set(key string, value any) error {
	if err := s.backing.Set(key, value); err != nil {
		return err
	}
	if s.actions != nil {
		if s.actions.StateDelta == nil {
			s.actions.StateDelta = make(map[string]any)
		}
		s.actions.StateDelta[key] = value
	}
	return nil
}

func (s *callbackState) Delete(key string) error {
	return s.backing.Delete(key)
}

func (s *callbackState) All() iter.Seq2[string, any] {
	return s.backing.All()
}

var _ State = (*callbackState)(nil)
