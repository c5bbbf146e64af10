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

package workflowagent_test

import (
	"context"
	"iter"
	"slices"
	"sync"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/agent/workflowagent"
	"github.com/weftworks/weft/pkg/session"
)

// recorder tracks leaf completions across a composite run.
type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.names)
}

func (r *recorder) index(name string) int {
	return slices.Index(r.all(), name)
}

func finalEvent(ctx agent.InvocationContext, text string) *agent.Event {
	ev := agent.NewEvent(ctx.InvocationID())
	ev.Author = ctx.AgentName()
	ev.Branch = ctx.Branch()
	ev.Message = agent.NewTextContent(text, a2a.MessageRoleAgent).ToMessage()
	ev.TurnComplete = true
	return ev
}

// leaf builds a minimal agent whose run body is the given function.
func leaf(t *testing.T, name string, run func(agent.InvocationContext, func(*agent.Event, error) bool)) agent.Agent {
	t.Helper()
	ag, err := agent.New(agent.Config{
		Name: name,
		Run: func(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
			return func(yield func(*agent.Event, error) bool) {
				run(ctx, yield)
			}
		},
	})
	require.NoError(t, err)
	return ag
}

// writer records its completion and emits one final text event.
func writer(t *testing.T, name string, rec *recorder) agent.Agent {
	return leaf(t, name, func(ctx agent.InvocationContext, yield func(*agent.Event, error) bool) {
		rec.add(name)
		yield(finalEvent(ctx, name), nil)
	})
}

// failing emits one error event.
func failing(t *testing.T, name string, rec *recorder) agent.Agent {
	return leaf(t, name, func(ctx agent.InvocationContext, yield func(*agent.Event, error) bool) {
		rec.add(name)
		yield(agent.NewErrorEvent(ctx.InvocationID(), name, "test_error", "induced failure"), nil)
	})
}

// escalating records its completion and raises the escalate flag after
// running n times.
func escalating(t *testing.T, name string, rec *recorder, after int) agent.Agent {
	runs := 0
	return leaf(t, name, func(ctx agent.InvocationContext, yield func(*agent.Event, error) bool) {
		rec.add(name)
		runs++
		ev := finalEvent(ctx, name)
		if runs >= after {
			ev.Actions.Escalate = true
		}
		yield(ev, nil)
	})
}

// runComposite drives one composite against a fresh in-memory session and
// collects the non-partial events.
func runComposite(t *testing.T, root agent.Agent) []*agent.Event {
	t.Helper()

	svc := session.InMemoryService()
	resp, err := svc.Create(context.Background(), &session.CreateRequest{
		AppName: "test", UserID: "u1", SessionID: "s1",
	})
	require.NoError(t, err)

	ctx := agent.NewInvocationContext(context.Background(), agent.InvocationContextParams{
		Agent:       root,
		Session:     resp.Session,
		UserContent: agent.NewTextContent("go", a2a.MessageRoleUser),
		RunConfig:   &agent.RunConfig{},
	})

	var events []*agent.Event
	for ev, err := range root.Run(ctx) {
		require.NoError(t, err)
		if ev != nil && !ev.Partial {
			events = append(events, ev)
		}
	}
	return events
}

func authors(events []*agent.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Author)
	}
	return out
}

func TestSequentialRunsInOrder(t *testing.T) {
	rec := &recorder{}
	root, err := workflowagent.NewSequential(workflowagent.SequentialConfig{
		Name:      "pipeline",
		SubAgents: []agent.Agent{writer(t, "one", rec), writer(t, "two", rec), writer(t, "three", rec)},
	})
	require.NoError(t, err)

	events := runComposite(t, root)
	assert.Equal(t, []string{"one", "two", "three"}, rec.all())
	assert.Equal(t, []string{"one", "two", "three"}, authors(events))
}

func TestSequentialHaltsOnErrorByDefault(t *testing.T) {
	rec := &recorder{}
	root, err := workflowagent.NewSequential(workflowagent.SequentialConfig{
		Name:      "pipeline",
		SubAgents: []agent.Agent{failing(t, "broken", rec), writer(t, "after", rec)},
	})
	require.NoError(t, err)

	runComposite(t, root)
	assert.Equal(t, []string{"broken"}, rec.all())
}

func TestSequentialContinuePolicyRunsDownstream(t *testing.T) {
	rec := &recorder{}
	root, err := workflowagent.NewSequential(workflowagent.SequentialConfig{
		Name:      "pipeline",
		SubAgents: []agent.Agent{failing(t, "broken", rec), writer(t, "after", rec)},
		OnError:   workflowagent.ErrorPolicyContinue,
	})
	require.NoError(t, err)

	runComposite(t, root)
	assert.Equal(t, []string{"broken", "after"}, rec.all())
}

func TestSequentialStopsOnEscalate(t *testing.T) {
	rec := &recorder{}
	root, err := workflowagent.NewSequential(workflowagent.SequentialConfig{
		Name:      "pipeline",
		SubAgents: []agent.Agent{escalating(t, "quitter", rec, 1), writer(t, "after", rec)},
	})
	require.NoError(t, err)

	runComposite(t, root)
	assert.Equal(t, []string{"quitter"}, rec.all())
}

func TestParallelRunsAllSiblings(t *testing.T) {
	rec := &recorder{}
	root, err := workflowagent.NewParallel(workflowagent.ParallelConfig{
		Name:      "fanout",
		SubAgents: []agent.Agent{writer(t, "a", rec), writer(t, "b", rec), writer(t, "c", rec)},
	})
	require.NoError(t, err)

	events := runComposite(t, root)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, rec.all())
	assert.Len(t, events, 3)

	// Each sibling runs on its own branch under the composite.
	branches := make(map[string]bool)
	for _, ev := range events {
		branches[ev.Branch] = true
	}
	assert.Len(t, branches, 3)
}

func TestLoopHonorsMaxIterations(t *testing.T) {
	rec := &recorder{}
	root, err := workflowagent.NewLoop(workflowagent.LoopConfig{
		Name:          "refine",
		SubAgents:     []agent.Agent{writer(t, "body", rec)},
		MaxIterations: 3,
	})
	require.NoError(t, err)

	runComposite(t, root)
	assert.Equal(t, []string{"body", "body", "body"}, rec.all())
}

func TestLoopStopsOnEscalate(t *testing.T) {
	rec := &recorder{}
	root, err := workflowagent.NewLoop(workflowagent.LoopConfig{
		Name:          "refine",
		SubAgents:     []agent.Agent{escalating(t, "body", rec, 2)},
		MaxIterations: 10,
	})
	require.NoError(t, err)

	runComposite(t, root)
	assert.Equal(t, []string{"body", "body"}, rec.all())
}

func TestLoopZeroIterationsNeverRuns(t *testing.T) {
	rec := &recorder{}
	root, err := workflowagent.NewLoop(workflowagent.LoopConfig{
		Name:      "refine",
		SubAgents: []agent.Agent{writer(t, "body", rec)},
	})
	require.NoError(t, err)

	events := runComposite(t, root)
	assert.Empty(t, rec.all())
	assert.Empty(t, events)
}

func TestDAGDiamondOrdering(t *testing.T) {
	rec := &recorder{}
	root, err := workflowagent.NewDAG(workflowagent.DAGConfig{
		Name: "diamond",
		Nodes: []workflowagent.DAGNode{
			{Agent: writer(t, "a", rec)},
			{Agent: writer(t, "b", rec), DependsOn: []string{"a"}},
			{Agent: writer(t, "c", rec), DependsOn: []string{"a"}},
			{Agent: writer(t, "d", rec), DependsOn: []string{"b", "c"}},
		},
	})
	require.NoError(t, err)

	runComposite(t, root)

	require.Len(t, rec.all(), 4)
	assert.Less(t, rec.index("a"), rec.index("b"))
	assert.Less(t, rec.index("a"), rec.index("c"))
	assert.Less(t, rec.index("b"), rec.index("d"))
	assert.Less(t, rec.index("c"), rec.index("d"))
}

func TestDAGRejectsCycleAtConstruction(t *testing.T) {
	rec := &recorder{}
	_, err := workflowagent.NewDAG(workflowagent.DAGConfig{
		Name: "loopy",
		Nodes: []workflowagent.DAGNode{
			{Agent: writer(t, "a", rec), DependsOn: []string{"b"}},
			{Agent: writer(t, "b", rec), DependsOn: []string{"a"}},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestDAGRejectsUnknownDependency(t *testing.T) {
	rec := &recorder{}
	_, err := workflowagent.NewDAG(workflowagent.DAGConfig{
		Name: "dangling",
		Nodes: []workflowagent.DAGNode{
			{Agent: writer(t, "a", rec), DependsOn: []string{"phantom"}},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phantom")
}

func TestRoutedRunsSelectedCandidate(t *testing.T) {
	rec := &recorder{}
	router := leaf(t, "router", func(ctx agent.InvocationContext, yield func(*agent.Event, error) bool) {
		yield(finalEvent(ctx, "I think billing should handle this."), nil)
	})
	root, err := workflowagent.NewRouted(workflowagent.RoutedConfig{
		Name:       "switch",
		Router:     router,
		Candidates: []agent.Agent{writer(t, "billing", rec), writer(t, "shipping", rec)},
	})
	require.NoError(t, err)

	runComposite(t, root)
	assert.Equal(t, []string{"billing"}, rec.all())
}

func TestRoutedUnmatchedAnswerIsError(t *testing.T) {
	rec := &recorder{}
	router := leaf(t, "router", func(ctx agent.InvocationContext, yield func(*agent.Event, error) bool) {
		yield(finalEvent(ctx, "nobody can help"), nil)
	})
	root, err := workflowagent.NewRouted(workflowagent.RoutedConfig{
		Name:       "switch",
		Router:     router,
		Candidates: []agent.Agent{writer(t, "billing", rec)},
	})
	require.NoError(t, err)

	events := runComposite(t, root)
	assert.Empty(t, rec.all())

	last := events[len(events)-1]
	assert.True(t, last.IsError())
	assert.Equal(t, "routing_error", last.ErrorCode)
}
