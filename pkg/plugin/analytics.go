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

package plugin

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/weftworks/weft/pkg/agent"
)

// bigQueryAnalyticsPlugin spools one JSONL record per invocation for
// later batch load into the configured BigQuery table. The factory
// requires dataset and table; without them no plugin is produced.
type bigQueryAnalyticsPlugin struct {
	Base

	dataset  string
	table    string
	spoolDir string

	mu     sync.Mutex
	start  time.Time
	events int
	errors int
}

func newBigQueryAnalytics(cfg map[string]any) Plugin {
	dataset := cfgString(cfg, "dataset", "")
	table := cfgString(cfg, "table", "")
	if dataset == "" || table == "" {
		return nil
	}
	return &bigQueryAnalyticsPlugin{
		Base:     Base{PluginName: "bigquery_analytics"},
		dataset:  dataset,
		table:    table,
		spoolDir: cfgString(cfg, "spool_dir", filepath.Join(os.TempDir(), "weft-analytics")),
	}
}

func (p *bigQueryAnalyticsPlugin) BeforeRun(ctx context.Context, invocationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.start = time.Now()
}

func (p *bigQueryAnalyticsPlugin) OnEvent(ctx agent.ReadonlyContext, ev *agent.Event) {
	if ev == nil || ev.Partial {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events++
	if ev.IsError() {
		p.errors++
	}
}

func (p *bigQueryAnalyticsPlugin) AfterRun(ctx context.Context, invocationID string) {
	p.mu.Lock()
	record := map[string]any{
		"dataset":       p.dataset,
		"table":         p.table,
		"invocation_id": invocationID,
		"started_at":    p.start.UTC().Format(time.RFC3339Nano),
		"finished_at":   time.Now().UTC().Format(time.RFC3339Nano),
		"events":        p.events,
		"errors":        p.errors,
	}
	p.mu.Unlock()

	if err := p.append(record); err != nil {
		slog.Warn("Failed to spool analytics record", "error", err)
	}
}

func (p *bigQueryAnalyticsPlugin) append(record map[string]any) error {
	if err := os.MkdirAll(p.spoolDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(p.spoolDir, p.dataset+"."+p.table+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}
