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

// Package runner executes one workflow invocation against a session.
//
// A runner is built per invocation and never shared: it owns the plugin
// chain (including the per-run metrics collector), resolves or creates
// the session, persists non-partial events, and cleans up when the event
// stream closes. The driver package assembles runners from a workflow's
// runtime configuration.
package runner

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/artifact"
	"github.com/weftworks/weft/pkg/memory"
	"github.com/weftworks/weft/pkg/plugin"
	"github.com/weftworks/weft/pkg/session"
)

// Config assembles one runner.
type Config struct {
	// AppName scopes sessions, artifacts and memory. By convention the
	// workflow name.
	AppName string

	// Agent is the hydrated workflow root.
	Agent agent.Agent

	// SessionService persists sessions and events.
	SessionService session.Service

	// ArtifactService stores run artifacts. Nil means disabled.
	ArtifactService artifact.Service

	// MemoryService receives the session transcript when the run
	// completes. Nil means disabled.
	MemoryService memory.Service

	// Plugins observe and steer the invocation, in order.
	Plugins []plugin.Plugin

	// InitialState seeds newly created sessions.
	InitialState map[string]any
}

// Runner drives one invocation of an agent tree.
type Runner struct {
	appName         string
	root            agent.Agent
	sessionService  session.Service
	artifactService artifact.Service
	memoryService   memory.Service
	chain           *plugin.Chain
	initialState    map[string]any
}

// New validates the tree and builds a runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Agent == nil {
		return nil, fmt.Errorf("root agent is required")
	}
	if cfg.SessionService == nil {
		return nil, fmt.Errorf("session service is required")
	}
	if err := checkUniqueNames(cfg.Agent, map[string]bool{}); err != nil {
		return nil, err
	}

	arts := cfg.ArtifactService
	if arts == nil {
		arts = artifact.Disabled()
	}
	mem := cfg.MemoryService
	if mem == nil {
		mem = memory.Disabled()
	}

	return &Runner{
		appName:         cfg.AppName,
		root:            cfg.Agent,
		sessionService:  cfg.SessionService,
		artifactService: arts,
		memoryService:   mem,
		chain:           plugin.NewChain(cfg.Plugins...),
		initialState:    cfg.InitialState,
	}, nil
}

// Run executes the root agent for one caller message, yielding events as
// they arrive. Non-partial events are persisted to the session before
// they reach the caller.
func (r *Runner) Run(ctx context.Context, userID, sessionID string, content *agent.Content, cfg agent.RunConfig) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		sess, err := r.getOrCreateSession(ctx, userID, sessionID)
		if err != nil {
			yield(nil, err)
			return
		}

		// The chain travels in the context so leaf agents can consult it
		// without the agent package importing plugin types.
		ctx = plugin.NewContext(ctx, r.chain)

		invCtx := agent.NewInvocationContext(ctx, agent.InvocationContextParams{
			Agent:       r.root,
			Session:     sess,
			Artifacts:   r.scopedArtifacts(userID, sess.ID()),
			Memory:      memory.For(r.memoryService, r.appName, userID),
			UserContent: content,
			RunConfig:   &cfg,
		})

		r.chain.BeforeRun(ctx, invCtx.InvocationID())
		defer r.chain.AfterRun(ctx, invCtx.InvocationID())

		// Cleanup in reverse order once the stream closes: feed the
		// finished transcript to memory, then drop temp: keys.
		defer clearTempState(sess)
		defer r.addToMemory(ctx, sess)

		if err := r.appendUserMessage(ctx, sess, content, invCtx.InvocationID()); err != nil {
			yield(nil, err)
			return
		}

		for event, err := range r.root.Run(invCtx) {
			if err != nil {
				if !yield(event, err) {
					return
				}
				continue
			}
			if event == nil {
				continue
			}

			if !event.Partial {
				if err := r.sessionService.AppendEvent(ctx, sess, event); err != nil {
					yield(nil, fmt.Errorf("persist event: %w", err))
					return
				}
				r.chain.OnEvent(invCtx, event)
			}

			if !yield(event, nil) {
				return
			}
		}
	}
}

// Agent returns the root agent.
func (r *Runner) Agent() agent.Agent {
	return r.root
}

// AppName returns the scoping app name.
func (r *Runner) AppName() string {
	return r.appName
}

func (r *Runner) scopedArtifacts(userID, sessionID string) agent.Artifacts {
	return artifact.For(r.artifactService, artifact.Key{
		AppName:   r.appName,
		UserID:    userID,
		SessionID: sessionID,
	})
}

func (r *Runner) getOrCreateSession(ctx context.Context, userID, sessionID string) (session.Session, error) {
	if sessionID != "" {
		resp, err := r.sessionService.Get(ctx, &session.GetRequest{
			AppName:   r.appName,
			UserID:    userID,
			SessionID: sessionID,
		})
		if err == nil && resp != nil {
			return resp.Session, nil
		}
	}

	createResp, err := r.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   r.appName,
		UserID:    userID,
		SessionID: sessionID,
		State:     cloneState(r.initialState),
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return createResp.Session, nil
}

func (r *Runner) appendUserMessage(ctx context.Context, sess session.Session, content *agent.Content, invocationID string) error {
	if content == nil {
		return nil
	}
	event := agent.NewEvent(invocationID)
	event.Author = agent.AuthorUser
	event.Message = content.ToMessage()
	return r.sessionService.AppendEvent(ctx, sess, event)
}

func (r *Runner) addToMemory(ctx context.Context, sess session.Session) {
	if err := r.memoryService.AddSession(ctx, sess); err != nil {
		slog.Warn("Failed to add session to memory",
			"session_id", sess.ID(),
			"error", err)
	}
}

// clearTempState drops temp: keys once the invocation is over.
func clearTempState(sess session.Session) {
	if clearable, ok := sess.State().(agent.TempClearable); ok {
		clearable.ClearTempKeys()
	}
}

func cloneState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}

func checkUniqueNames(ag agent.Agent, seen map[string]bool) error {
	if ag == nil {
		return nil
	}
	if seen[ag.Name()] {
		return fmt.Errorf("duplicate agent name in tree: %s", ag.Name())
	}
	seen[ag.Name()] = true
	for _, sub := range ag.SubAgents() {
		if err := checkUniqueNames(sub, seen); err != nil {
			return err
		}
	}
	return nil
}
