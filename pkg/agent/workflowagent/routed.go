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
	"strings"

	"github.com/weftworks/weft/pkg/agent"
)

// RoutedConfig defines the configuration for a RoutedAgent.
type RoutedConfig struct {
	// Name is the agent name.
	Name string

	// Description describes what the agent does.
	Description string

	// Router is the model agent that picks a candidate. Its final
	// text is matched against candidate names.
	Router agent.Agent

	// Candidates are the agents the router chooses between.
	Candidates []agent.Agent
}

// NewRouted creates a RoutedAgent.
//
// The router runs first and its final text names the candidate to run.
// Matching is forgiving about model chatter: exact name match wins,
// then case-insensitive, then a candidate name appearing as a token of
// the router's answer. Exactly one candidate runs; an unmatched answer
// is a routing error event and no candidate runs.
func NewRouted(cfg RoutedConfig) (agent.Agent, error) {
	if cfg.Router == nil {
		return nil, fmt.Errorf("routed agent %q: router is required", cfg.Name)
	}
	if len(cfg.Candidates) == 0 {
		return nil, fmt.Errorf("routed agent %q: at least one candidate is required", cfg.Name)
	}

	router := cfg.Router
	candidates := cfg.Candidates
	subAgents := append([]agent.Agent{router}, candidates...)

	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		SubAgents:   subAgents,
		Run: func(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
			return runRouted(ctx, router, candidates)
		},
	})
}

func runRouted(ctx agent.InvocationContext, router agent.Agent, candidates []agent.Agent) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		routerCtx := agent.NewChildContext(ctx, router)

		decision := ""
		for event, err := range router.Run(routerCtx) {
			if !yield(event, err) {
				return
			}
			if err != nil {
				return
			}
			if event == nil {
				continue
			}
			if event.IsError() {
				return
			}
			if text := event.TextContent(); text != "" && !event.Partial {
				decision = text
			}
		}

		selected := matchCandidate(decision, candidates)
		if selected == nil {
			ev := agent.NewErrorEvent(ctx.InvocationID(), ctx.Agent().Name(),
				"routing_error",
				fmt.Sprintf("router answer %q does not name a known agent", strings.TrimSpace(decision)))
			yield(ev, nil)
			return
		}

		slog.Debug("Router selected agent",
			"composite", ctx.Agent().Name(),
			"agent", selected.Name())

		if ctx.Err() != nil || ctx.Ended() {
			return
		}

		subCtx := agent.NewChildContext(ctx, selected)
		for event, err := range selected.Run(subCtx) {
			if !yield(event, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// matchCandidate resolves the router's free-text answer to one
// candidate: exact match, then case-insensitive, then the candidate
// name as a standalone token of the answer.
func matchCandidate(decision string, candidates []agent.Agent) agent.Agent {
	answer := strings.TrimSpace(strings.Trim(strings.TrimSpace(decision), "\"'`"))
	if answer == "" {
		return nil
	}

	for _, c := range candidates {
		if c.Name() == answer {
			return c
		}
	}
	for _, c := range candidates {
		if strings.EqualFold(c.Name(), answer) {
			return c
		}
	}

	tokens := strings.FieldsFunc(strings.ToLower(answer), func(r rune) bool {
		return r != '_' && r != '-' && !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	for _, c := range candidates {
		name := strings.ToLower(c.Name())
		for _, tok := range tokens {
			if tok == name {
				return c
			}
		}
	}
	return nil
}
