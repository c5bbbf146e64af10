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
	"fmt"
	"iter"
)

// Agent is an executable unit in a workflow tree.
type Agent interface {
	// Name returns the agent's unique name within its workflow.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// Run executes the agent, yielding events until completion.
	Run(InvocationContext) iter.Seq2[*Event, error]

	// SubAgents returns the agent's children, empty for leaf agents.
	SubAgents() []Agent
}

// RunFunc is the execution body of an agent.
type RunFunc func(InvocationContext) iter.Seq2[*Event, error]

// Config defines a base agent.
type Config struct {
	// Name is the agent name; required.
	Name string

	// Description describes what the agent does.
	Description string

	// SubAgents are the agent's children, if any.
	SubAgents []Agent

	// Run is the execution body; required.
	Run RunFunc
}

// baseAgent is the common Agent implementation. The concrete agent kinds
// wrap it with their own run functions.
type baseAgent struct {
	name        string
	description string
	subAgents   []Agent
	run         RunFunc
}

// New creates an agent from a Config.
func New(cfg Config) (Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if cfg.Run == nil {
		return nil, fmt.Errorf("agent %q: run function is required", cfg.Name)
	}

	return &baseAgent{
		name:        cfg.Name,
		description: cfg.Description,
		subAgents:   cfg.SubAgents,
		run:         cfg.Run,
	}, nil
}

func (a *baseAgent) Name() string        { return a.name }
func (a *baseAgent) Description() string { return a.description }
func (a *baseAgent) SubAgents() []Agent  { return a.subAgents }

func (a *baseAgent) Run(ctx InvocationContext) iter.Seq2[*Event, error] {
	return a.run(ctx)
}

var _ Agent = (*baseAgent)(nil)
