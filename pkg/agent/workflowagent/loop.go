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

package workflowagent

import (
	"iter"

	"github.com/weftworks/weft/pkg/agent"
)

// LoopConfig defines the configuration for a LoopAgent.
type LoopConfig struct {
	// Name is the agent name.
	Name string

	// Description describes what the agent does.
	Description string

	// SubAgents are the agents to run in each iteration.
	SubAgents []agent.Agent

	// MaxIterations bounds the loop. Zero means the loop body never
	// runs; the loop always terminates at this bound even when no
	// sub-agent ever escalates.
	MaxIterations int
}

// NewLoop creates a LoopAgent.
//
// Iterations execute serially: each runs the sub-agents in declared
// order, and state written in earlier iterations is visible to later
// ones. The loop ends when MaxIterations is reached or when any
// sub-agent escalates, typically by calling the exit_loop tool.
func NewLoop(cfg LoopConfig) (agent.Agent, error) {
	maxIterations := cfg.MaxIterations

	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		SubAgents:   cfg.SubAgents,
		Run: func(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
			return runLoop(ctx, maxIterations)
		},
	})
}

func runLoop(ctx agent.InvocationContext, maxIterations int) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		for iteration := 0; iteration < maxIterations; iteration++ {
			if ctx.Err() != nil || ctx.Ended() {
				return
			}

			for _, subAgent := range ctx.Agent().SubAgents() {
				subCtx := agent.NewChildContext(ctx, subAgent)

				exit := false
				for event, err := range subAgent.Run(subCtx) {
					if !yield(event, err) {
						return
					}
					if err != nil {
						return
					}
					if event != nil && event.Actions.Escalate {
						exit = true
					}
				}
				if exit {
					return
				}
			}
		}
	}
}
