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

// Package workflowagent provides the composite agents that schedule
// sub-agents: sequential, parallel, loop, dag and llm-routed.
//
// Composite agents never write session state themselves. They derive
// child invocation contexts, relay the children's events to the caller,
// and decide which child runs next. A child's error event is data, not
// a Go error: composites react to it (halt the pipeline, stop
// scheduling waves) but never turn it into a stream failure.
//
// # SequentialAgent
//
// Runs sub-agents once, in declared order, with a configurable error
// policy (halt on first error event, or continue and let downstream
// agents fail on their own missing inputs):
//
//	agent, _ := workflowagent.NewSequential(workflowagent.SequentialConfig{
//	    Name:      "pipeline",
//	    SubAgents: []agent.Agent{parse, fetch, report},
//	})
//
// # ParallelAgent
//
// Launches all sub-agents concurrently and relays their events in
// completion order. Siblings share session state; writers must target
// disjoint output keys.
//
// # LoopAgent
//
// Repeats its sub-agents as a unit until MaxIterations or until a child
// escalates (the exit_loop control tool).
//
// # DAGAgent
//
// Executes a dependency graph in topological waves: all ready nodes run
// concurrently, the wave is awaited as a whole, and completions unlock
// successors. An empty ready set with unfinished nodes is a deadlock
// and fails the run.
//
// # RoutedAgent
//
// Asks a router model agent to pick one candidate by name, then runs
// exactly that candidate.
package workflowagent
