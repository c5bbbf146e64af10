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
	"fmt"
	"iter"

	"golang.org/x/sync/errgroup"

	"github.com/weftworks/weft/pkg/agent"
)

// ParallelConfig defines the configuration for a ParallelAgent.
type ParallelConfig struct {
	// Name is the agent name.
	Name string

	// Description describes what the agent does.
	Description string

	// SubAgents are the agents to run in parallel.
	SubAgents []agent.Agent
}

// NewParallel creates a ParallelAgent.
//
// All sub-agents launch concurrently and the composite returns once
// every one of them has completed. Events are relayed in completion
// order, which is nondeterministic across siblings. Siblings share the
// session's state map, so they must write disjoint output keys; when
// they do not, the last writer wins.
func NewParallel(cfg ParallelConfig) (agent.Agent, error) {
	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		SubAgents:   cfg.SubAgents,
		Run: func(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
			return runParallel(ctx)
		},
	})
}

// result holds an event or error from a sub-agent.
type result struct {
	event *agent.Event
	err   error
}

func runParallel(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		var (
			errGroup, errGroupCtx = errgroup.WithContext(ctx)
			doneChan              = make(chan bool)
			resultsChan           = make(chan result)
		)

		for _, subAgent := range ctx.Agent().SubAgents() {
			subCtx := agent.NewInvocationContext(errGroupCtx, agent.InvocationContextParams{
				Agent:        subAgent,
				Session:      ctx.Session(),
				Artifacts:    ctx.Artifacts(),
				Memory:       ctx.Memory(),
				UserContent:  ctx.UserContent(),
				RunConfig:    ctx.RunConfig(),
				Branch:       childBranch(ctx, subAgent),
				InvocationID: ctx.InvocationID(),
			})

			errGroup.Go(func() error {
				if err := relaySubAgent(subCtx, subAgent, resultsChan, doneChan); err != nil {
					return fmt.Errorf("run sub-agent %q: %w", subAgent.Name(), err)
				}
				return nil
			})
		}

		go func() {
			_ = errGroup.Wait()
			close(resultsChan)
		}()

		// Relay results in completion order.
		defer close(doneChan)
		for res := range resultsChan {
			if !yield(res.event, res.err) {
				return
			}
		}
	}
}

// relaySubAgent forwards one child's events into the shared results
// channel, unwinding cleanly when the consumer stops or the context is
// cancelled.
func relaySubAgent(ctx agent.InvocationContext, ag agent.Agent, results chan<- result, done <-chan bool) error {
	for event, err := range ag.Run(ctx) {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			select {
			case <-done:
			case results <- result{err: ctx.Err()}:
			}
			return ctx.Err()
		case results <- result{event: event, err: err}:
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// childBranch extends the invocation branch with the composite and
// child names.
func childBranch(ctx agent.InvocationContext, child agent.Agent) string {
	branch := ctx.Agent().Name() + "/" + child.Name()
	if ctx.Branch() != "" {
		branch = ctx.Branch() + "/" + branch
	}
	return branch
}
