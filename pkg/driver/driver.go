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

// Package driver runs hydrated workflows against caller messages.
//
// The driver sits between the outer surfaces (CLI, HTTP server) and the
// runner: it selects the session, memory and artifact services a
// workflow's runtime block asks for, seeds new sessions with wall-clock
// state, and assembles a fresh runner with a fresh metrics collector for
// every invocation. Services are shared across invocations of the same
// workflow; runners never are.
package driver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"

	// SQL drivers for the sqlite and database session services.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/artifact"
	"github.com/weftworks/weft/pkg/hydrator"
	"github.com/weftworks/weft/pkg/memory"
	"github.com/weftworks/weft/pkg/metrics"
	"github.com/weftworks/weft/pkg/plugin"
	"github.com/weftworks/weft/pkg/runner"
	"github.com/weftworks/weft/pkg/session"
	"github.com/weftworks/weft/pkg/workflow"
)

// Options configures a Driver.
type Options struct {
	// Timezone resolves the wall-clock state keys. Nil means the
	// process's local zone.
	Timezone *time.Location

	// DataDir holds sqlite session files and file artifacts when the
	// workflow does not name its own paths. Defaults to ".weft".
	DataDir string
}

// Driver executes workflows. Safe for concurrent use.
type Driver struct {
	tz      *time.Location
	dataDir string

	mu       sync.Mutex
	services map[string]*workflowServices
}

// New creates a Driver.
func New(opts Options) *Driver {
	tz := opts.Timezone
	if tz == nil {
		tz = time.Local
	}
	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = ".weft"
	}
	return &Driver{
		tz:       tz,
		dataDir:  dataDir,
		services: make(map[string]*workflowServices),
	}
}

// Close releases database handles held by workflow services.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for _, svc := range d.services {
		if svc.db != nil {
			if err := svc.db.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	d.services = make(map[string]*workflowServices)
	return errors.Join(errs...)
}

// RunResult is the assembled outcome of one invocation.
type RunResult struct {
	// Content is the final response text.
	Content string `json:"content"`

	// Author is the agent that produced the final response.
	Author string `json:"author,omitempty"`

	// Usage aggregates the invocation's cost.
	Usage metrics.UsageSummary `json:"usage"`

	// SessionID addresses the conversation for follow-up calls.
	SessionID string `json:"session_id"`
}

// Run executes the workflow to completion and returns the assembled
// result. An empty sessionID starts a fresh session.
func (d *Driver) Run(ctx context.Context, hw *hydrator.HydratedWorkflow, userID, sessionID, message string) (*RunResult, error) {
	stream, err := d.stream(ctx, hw, userID, sessionID, message, agent.StreamingModeNone)
	if err != nil {
		return nil, err
	}

	var last *agent.Event
	for ev, err := range stream.Events {
		if err != nil {
			return nil, err
		}
		if ev == nil || ev.Partial {
			continue
		}
		if ev.TextContent() != "" || ev.IsError() {
			last = ev
		}
	}

	result := &RunResult{
		SessionID: stream.SessionID,
		Usage:     stream.Usage(),
	}
	if last != nil {
		result.Content = last.TextContent()
		result.Author = last.Author
	}
	return result, nil
}

// Stream is a live invocation: iterate Events to drive it, then read
// Usage once the iteration ends.
type Stream struct {
	// SessionID addresses the session the run uses, resolved before the
	// first event.
	SessionID string

	// Events yields the invocation's events in order.
	Events iter.Seq2[*agent.Event, error]

	collector *metrics.Collector
}

// Usage returns the invocation's aggregated cost. Stable only after the
// event iteration has ended.
func (s *Stream) Usage() metrics.UsageSummary {
	return s.collector.Summary()
}

// RunStreaming executes the workflow, yielding events as they arrive.
func (d *Driver) RunStreaming(ctx context.Context, hw *hydrator.HydratedWorkflow, userID, sessionID, message string) (*Stream, error) {
	return d.stream(ctx, hw, userID, sessionID, message, agent.StreamingModeSSE)
}

func (d *Driver) stream(ctx context.Context, hw *hydrator.HydratedWorkflow, userID, sessionID, message string, mode agent.StreamingMode) (*Stream, error) {
	r, collector, err := d.BuildRunner(hw)
	if err != nil {
		return nil, err
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	content := agent.NewTextContent(message, a2a.MessageRoleUser)

	return &Stream{
		SessionID: sessionID,
		Events:    r.Run(ctx, userID, sessionID, content, agent.RunConfig{StreamingMode: mode}),
		collector: collector,
	}, nil
}

// BuildRunner assembles a fresh runner for one invocation of the
// workflow. The runner owns a fresh metrics collector; the underlying
// services are shared per workflow.
func (d *Driver) BuildRunner(hw *hydrator.HydratedWorkflow) (*runner.Runner, *metrics.Collector, error) {
	svc, err := d.workflowServices(hw.Definition)
	if err != nil {
		return nil, nil, err
	}

	rt := &hw.Definition.Runtime
	collector := metrics.NewCollector()
	plugins := append(plugin.Build(rt.Plugins, pluginConfig(rt)), collector)

	r, err := runner.New(runner.Config{
		AppName:         hw.Definition.Name,
		Agent:           hw.Root,
		SessionService:  svc.sessions,
		ArtifactService: svc.artifacts,
		MemoryService:   svc.memory,
		Plugins:         plugins,
		InitialState:    d.initialState(),
	})
	if err != nil {
		return nil, nil, err
	}
	return r, collector, nil
}

// initialState seeds every new session with wall-clock keys so leaf
// agents and instruction templates can reference the current date.
func (d *Driver) initialState() map[string]any {
	now := time.Now().In(d.tz)
	return map[string]any{
		"current_date":     now.Format("2006-01-02"),
		"current_datetime": now.Format(time.RFC3339),
		"timezone":         d.tz.String(),
	}
}

// pluginConfig folds runtime-level shorthand settings into the plugin
// configuration map.
func pluginConfig(rt *workflow.RuntimeConfig) map[string]map[string]any {
	cfg := rt.PluginConfig
	if rt.ContextCacheTokens > 0 || rt.CompactionThreshold > 0 {
		merged := make(map[string]map[string]any, len(cfg)+1)
		for k, v := range cfg {
			merged[k] = v
		}
		filter := make(map[string]any, len(merged["context_filter"])+2)
		for k, v := range merged["context_filter"] {
			filter[k] = v
		}
		if rt.ContextCacheTokens > 0 {
			filter["max_tokens"] = rt.ContextCacheTokens
		}
		if rt.CompactionThreshold > 0 {
			filter["compaction_threshold"] = rt.CompactionThreshold
		}
		merged["context_filter"] = filter
		cfg = merged
	}
	return cfg
}

// workflowServices holds the per-workflow shared services.
type workflowServices struct {
	sessions  session.Service
	memory    memory.Service
	artifacts artifact.Service
	db        *sql.DB
}

func (d *Driver) workflowServices(def *workflow.Definition) (*workflowServices, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if svc, ok := d.services[def.Name]; ok {
		return svc, nil
	}

	svc := &workflowServices{}
	rt := &def.Runtime

	var err error
	svc.sessions, svc.db, err = d.sessionService(def.Name, rt)
	if err != nil {
		return nil, err
	}

	switch rt.MemoryService {
	case "", "none":
	case "in_memory":
		svc.memory = memory.InMemory()
	default:
		return nil, fmt.Errorf("workflow %q: unknown memory_service %q", def.Name, rt.MemoryService)
	}

	switch rt.ArtifactService {
	case "", "none":
	case "in_memory":
		svc.artifacts = artifact.InMemory()
	case "file":
		dir := rt.ArtifactDir
		if dir == "" {
			dir = filepath.Join(d.dataDir, "artifacts", def.Name)
		}
		svc.artifacts, err = artifact.NewFileService(dir)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: %w", def.Name, err)
		}
	default:
		return nil, fmt.Errorf("workflow %q: unknown artifact_service %q", def.Name, rt.ArtifactService)
	}

	d.services[def.Name] = svc
	return svc, nil
}

func (d *Driver) sessionService(name string, rt *workflow.RuntimeConfig) (session.Service, *sql.DB, error) {
	switch rt.SessionService {
	case "", "in_memory":
		return session.InMemoryService(), nil, nil

	case "sqlite":
		path := rt.SessionDBPath
		if path == "" {
			path = filepath.Join(d.dataDir, name+".db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("workflow %q: create session db dir: %w", name, err)
		}
		db, err := sql.Open("sqlite3", path)
		if err != nil {
			return nil, nil, fmt.Errorf("workflow %q: open session db: %w", name, err)
		}
		svc, err := session.NewSQLService(db, "sqlite")
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("workflow %q: %w", name, err)
		}
		return svc, db, nil

	case "database":
		driverName, dsn, dialect, err := parseDatabaseURL(rt.SessionDBURL)
		if err != nil {
			return nil, nil, fmt.Errorf("workflow %q: %w", name, err)
		}
		db, err := sql.Open(driverName, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("workflow %q: open session db: %w", name, err)
		}
		svc, err := session.NewSQLService(db, dialect)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("workflow %q: %w", name, err)
		}
		return svc, db, nil
	}
	return nil, nil, fmt.Errorf("workflow %q: unknown session_service %q", name, rt.SessionService)
}

// parseDatabaseURL maps a session_db_url to a registered SQL driver.
// Postgres URLs pass through unchanged; mysql DSNs drop the scheme
// because the driver expects its own format.
func parseDatabaseURL(dbURL string) (driverName, dsn, dialect string, err error) {
	if dbURL == "" {
		return "", "", "", fmt.Errorf("session_db_url is required for the database session service")
	}
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", "", "", fmt.Errorf("parse session_db_url: %w", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return "postgres", dbURL, "postgres", nil
	case "mysql":
		return "mysql", strings.TrimPrefix(dbURL, "mysql://"), "mysql", nil
	case "sqlite", "sqlite3":
		return "sqlite3", strings.TrimPrefix(strings.TrimPrefix(dbURL, u.Scheme+"://"), "/"), "sqlite", nil
	}
	return "", "", "", fmt.Errorf("unsupported session_db_url scheme %q", u.Scheme)
}
