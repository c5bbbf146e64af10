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

// Package agent defines the core agent contract for weft workflows.
//
// # Agent Interface
//
// The Agent interface is the fundamental abstraction for every executable
// unit in a workflow tree:
//
//	type Agent interface {
//	    Name() string
//	    Description() string
//	    Run(InvocationContext) iter.Seq2[*Event, error]
//	    SubAgents() []Agent
//	}
//
// Leaf agents (model, code, expression, tool) perform work and write their
// output key into session state; composite agents (sequential, parallel,
// loop, dag, routed) schedule children and never mutate state directly.
//
// # Event Contract
//
// A leaf agent executed once emits exactly one non-partial event: on success
// the event's Actions.StateDelta carries {output_key: value} and the same
// mapping has been applied to session state; on failure the event carries an
// error message and an empty StateDelta, leaving state untouched. Execution
// failures never cross Run as Go errors; only transport-level problems do.
//
// # Context Hierarchy
//
//   - InvocationContext: full access during agent execution
//   - CallbackContext: state modification for callbacks
//   - ReadonlyContext: read-only access for tools and templates
//
// # Creating Agents
//
// Use New with a Config holding the run function:
//
//	ag, err := agent.New(agent.Config{
//	    Name:        "collector",
//	    Description: "Collects exchange rates",
//	    Run:         myRunFunc,
//	})
//
// The concrete leaf and composite kinds live in the subpackages modelagent,
// codeagent, expragent, toolagent and workflowagent.
package agent
