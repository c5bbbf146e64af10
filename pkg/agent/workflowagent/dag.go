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
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/weftworks/weft/pkg/agent"
)

// DAGNode pairs an agent with the names of the nodes it depends on.
type DAGNode struct {
	Agent     agent.Agent
	DependsOn []string
}

// DAGConfig defines the configuration for a DAGAgent.
type DAGConfig struct {
	// Name is the agent name.
	Name string

	// Description describes what the agent does.
	Description string

	// Nodes declares the graph. Dependencies reference node agent
	// names; the graph must be acyclic.
	Nodes []DAGNode
}

// dagPlan is the precomputed schedule shared by all runs.
type dagPlan struct {
	order      []string            // declared node order, used for launch tie-breaks
	agents     map[string]agent.Agent
	indegree   map[string]int
	successors map[string][]string
}

// NewDAG creates a DAGAgent.
//
// The graph executes in topological waves: every node whose
// dependencies are satisfied launches concurrently, the whole wave is
// awaited, and each completion unlocks its successors. Events stream to
// the caller in completion order within a wave; wave boundaries
// preserve happens-before, so a dependent node starts only after its
// dependencies' events are out.
//
// Acyclicity is verified here with Kahn's algorithm so a bad graph
// fails at hydration, not mid-run.
func NewDAG(cfg DAGConfig) (agent.Agent, error) {
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("dag agent %q: at least one node is required", cfg.Name)
	}

	plan := &dagPlan{
		agents:     make(map[string]agent.Agent, len(cfg.Nodes)),
		indegree:   make(map[string]int, len(cfg.Nodes)),
		successors: make(map[string][]string, len(cfg.Nodes)),
	}
	subAgents := make([]agent.Agent, 0, len(cfg.Nodes))

	for _, node := range cfg.Nodes {
		if node.Agent == nil {
			return nil, fmt.Errorf("dag agent %q: node without agent", cfg.Name)
		}
		name := node.Agent.Name()
		if _, dup := plan.agents[name]; dup {
			return nil, fmt.Errorf("dag agent %q: duplicate node %q", cfg.Name, name)
		}
		plan.agents[name] = node.Agent
		plan.order = append(plan.order, name)
		plan.indegree[name] = 0
		subAgents = append(subAgents, node.Agent)
	}
	for _, node := range cfg.Nodes {
		name := node.Agent.Name()
		for _, dep := range node.DependsOn {
			if _, ok := plan.agents[dep]; !ok {
				return nil, fmt.Errorf("dag agent %q: node %q depends on unknown node %q", cfg.Name, name, dep)
			}
			plan.indegree[name]++
			plan.successors[dep] = append(plan.successors[dep], name)
		}
	}
	if err := plan.verifyAcyclic(); err != nil {
		return nil, fmt.Errorf("dag agent %q: %w", cfg.Name, err)
	}

	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		SubAgents:   subAgents,
		Run: func(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
			return plan.run(ctx)
		},
	})
}

// verifyAcyclic runs Kahn's algorithm over a scratch copy of the
// in-degree map.
func (p *dagPlan) verifyAcyclic() error {
	indegree := make(map[string]int, len(p.indegree))
	for name, deg := range p.indegree {
		indegree[name] = deg
	}

	var ready []string
	for _, name := range p.order {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}
	completed := 0
	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		completed++
		for _, succ := range p.successors[node] {
			indegree[succ]--
			if indegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}
	if completed < len(p.order) {
		var cyclic []string
		for name, deg := range indegree {
			if deg > 0 {
				cyclic = append(cyclic, name)
			}
		}
		sort.Strings(cyclic)
		return fmt.Errorf("dependency cycle involving nodes %v", cyclic)
	}
	return nil
}

// nodeResult tags a child's event or error with the producing node.
type nodeResult struct {
	node  string
	event *agent.Event
	err   error
}

func (p *dagPlan) run(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		indegree := make(map[string]int, len(p.indegree))
		for name, deg := range p.indegree {
			indegree[name] = deg
		}

		var ready []string
		for _, name := range p.order {
			if indegree[name] == 0 {
				ready = append(ready, name)
			}
		}

		completed := make(map[string]bool, len(p.order))

		for len(completed) < len(p.order) {
			if ctx.Err() != nil || ctx.Ended() {
				return
			}

			if len(ready) == 0 {
				// No node can make progress: deadlock. Report the
				// stuck nodes and fail the run.
				var stuck []string
				for _, name := range p.order {
					if !completed[name] {
						stuck = append(stuck, name)
					}
				}
				ev := agent.NewErrorEvent(ctx.InvocationID(), ctx.Agent().Name(),
					"scheduling_error",
					fmt.Sprintf("dag deadlocked: nodes %s are stuck waiting on unfinished dependencies",
						strings.Join(stuck, ", ")))
				yield(ev, nil)
				return
			}

			wave := ready
			ready = nil
			failed := p.runWave(ctx, wave, yield)

			for _, name := range wave {
				completed[name] = true
				for _, succ := range p.successors[name] {
					indegree[succ]--
					if indegree[succ] == 0 {
						ready = append(ready, succ)
					}
				}
			}

			if len(failed) > 0 {
				// The wave ran to completion, so partial state writes
				// from its successful nodes stay visible; no further
				// waves start.
				sort.Strings(failed)
				ev := agent.NewErrorEvent(ctx.InvocationID(), ctx.Agent().Name(),
					"agent_error",
					fmt.Sprintf("dag halted: node(s) %s failed", strings.Join(failed, ", ")))
				yield(ev, nil)
				return
			}
		}
	}
}

// runWave launches every node of the wave concurrently, relays events
// in completion order, and returns the names of nodes that emitted
// error events. Returns only when the whole wave has finished.
func (p *dagPlan) runWave(ctx agent.InvocationContext, wave []string, yield func(*agent.Event, error) bool) []string {
	var (
		errGroup, errGroupCtx = errgroup.WithContext(ctx)
		resultsChan           = make(chan nodeResult)
	)

	slog.Debug("DAG wave starting", "composite", ctx.Agent().Name(), "nodes", wave)

	// Launch in declared order; arrival order remains nondeterministic.
	for _, name := range wave {
		nodeAgent := p.agents[name]
		subCtx := agent.NewInvocationContext(errGroupCtx, agent.InvocationContextParams{
			Agent:        nodeAgent,
			Session:      ctx.Session(),
			Artifacts:    ctx.Artifacts(),
			Memory:       ctx.Memory(),
			UserContent:  ctx.UserContent(),
			RunConfig:    ctx.RunConfig(),
			Branch:       childBranch(ctx, nodeAgent),
			InvocationID: ctx.InvocationID(),
		})

		errGroup.Go(func() error {
			for event, err := range nodeAgent.Run(subCtx) {
				select {
				case <-errGroupCtx.Done():
					return errGroupCtx.Err()
				case resultsChan <- nodeResult{node: name, event: event, err: err}:
					if err != nil {
						return err
					}
				}
			}
			return nil
		})
	}

	go func() {
		_ = errGroup.Wait()
		close(resultsChan)
	}()

	var failed []string
	for res := range resultsChan {
		if res.event != nil && res.event.IsError() {
			failed = append(failed, res.node)
		}
		if !yield(res.event, res.err) {
			// Caller stopped consuming; drain so the goroutines can
			// finish their sends and the group can wind down.
			for range resultsChan {
			}
			return failed
		}
	}
	return failed
}
