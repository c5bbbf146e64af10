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
	"log/slog"

	"github.com/weftworks/weft/pkg/agent"
)

// ErrorPolicy decides what a sequential composite does when a sub-agent
// emits an error event.
type ErrorPolicy string

const (
	// ErrorPolicyHalt stops the pipeline at the first error event.
	// Later sub-agents do not run. This is the default.
	ErrorPolicyHalt ErrorPolicy = "halt"

	// ErrorPolicyContinue keeps running later sub-agents; each observes
	// the missing state key and fails (or copes) on its own terms.
	ErrorPolicyContinue ErrorPolicy = "continue"
)

// SequentialConfig defines the configuration for a SequentialAgent.
type SequentialConfig struct {
	// Name is the agent name.
	Name string

	// Description describes what the agent does.
	Description string

	// SubAgents are the agents to run in sequence.
	SubAgents []agent.Agent

	// OnError selects the error policy; empty means halt.
	OnError ErrorPolicy
}

// NewSequential creates a SequentialAgent.
//
// Sub-agents run once each, in declared order. Each observes the
// session state its predecessors left behind. A child escalation stops
// the pipeline regardless of policy.
func NewSequential(cfg SequentialConfig) (agent.Agent, error) {
	policy := cfg.OnError
	if policy == "" {
		policy = ErrorPolicyHalt
	}

	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		SubAgents:   cfg.SubAgents,
		Run: func(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
			return runSequential(ctx, policy)
		},
	})
}

func runSequential(ctx agent.InvocationContext, policy ErrorPolicy) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		for _, subAgent := range ctx.Agent().SubAgents() {
			if ctx.Err() != nil || ctx.Ended() {
				return
			}

			subCtx := agent.NewChildContext(ctx, subAgent)
			halt := false

			for event, err := range subAgent.Run(subCtx) {
				if !yield(event, err) {
					return
				}
				if err != nil {
					return
				}
				if event == nil {
					continue
				}
				if event.Actions.Escalate {
					return
				}
				if event.IsError() && policy == ErrorPolicyHalt {
					halt = true
				}
			}

			if halt {
				slog.Debug("Sequential pipeline halted on error event",
					"composite", ctx.Agent().Name(),
					"agent", subAgent.Name())
				return
			}
		}
	}
}
