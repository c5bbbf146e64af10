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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/weftworks/weft/pkg/observability"
	"github.com/weftworks/weft/pkg/server"
	"github.com/weftworks/weft/pkg/workflow"
)

// ServeCmd serves the workflows directory over HTTP.
type ServeCmd struct {
	Port         int    `help:"Listen port override."`
	WorkflowsDir string `help:"Workflows directory override." env:"WEFT_WORKFLOWS_DIR"`
	Watch        bool   `help:"Reload workflow packages as their files change."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, loader, err := loadConfig(ctx, cli)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.WorkflowsDir != "" {
		cfg.WorkflowsDir = c.WorkflowsDir
	}

	cleanup, err := initLogger(cli, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := boot(cli, cfg, loader)
	if err != nil {
		return err
	}
	defer p.Close()

	registry, err := workflow.LoadDir(cfg.WorkflowsDir)
	if err != nil {
		return err
	}

	observer, err := observability.New(cfg.Observability)
	if err != nil {
		return err
	}
	defer func() { _ = observer.Shutdown(context.Background()) }()

	srv := server.New(server.Options{
		Addr:     cfg.Server.Addr(),
		BaseURL:  cfg.Server.URL(),
		Driver:   p.driver,
		Registry: registry,
		Tools:    p.tools,
		Observer: observer,
	})

	// Hydrate everything up front: a workflow that cannot hydrate fails
	// the boot, not its first request.
	for _, entry := range registry.Entries() {
		hw, err := p.hydrator.Hydrate(ctx, entry.Definition, entry.Dir)
		if err != nil {
			return err
		}
		defer hw.Close()
		srv.SetWorkflow(entry.Definition.Name, hw)
	}

	if c.Watch {
		go c.watch(ctx, p, registry, srv, cfg.WorkflowsDir)
	}

	fmt.Printf("weft serving %d workflow(s) on %s\n", len(registry.Names()), cfg.Server.URL())
	for _, name := range registry.Names() {
		fmt.Printf("  - %s/v1/workflows/%s/run\n", cfg.Server.URL(), name)
	}

	return srv.Start(ctx)
}

// watch rehydrates workflows as their definitions change. A change that
// fails to hydrate keeps the previous hydrated instance serving.
func (c *ServeCmd) watch(ctx context.Context, p *platform, registry *workflow.Registry, srv *server.Server, dir string) {
	onChange := func(entry *workflow.Entry) {
		hw, err := p.hydrator.Hydrate(ctx, entry.Definition, entry.Dir)
		if err != nil {
			slog.Warn("Workflow rehydration failed, keeping previous instance",
				"workflow", entry.Definition.Name,
				"error", err)
			return
		}
		if old := srv.SetWorkflow(entry.Definition.Name, hw); old != nil {
			_ = old.Close()
		}
	}
	onRemove := func(name string) {
		if old := srv.DropWorkflow(name); old != nil {
			_ = old.Close()
		}
	}

	if err := registry.Watch(ctx, dir, onChange, onRemove); err != nil && ctx.Err() == nil {
		slog.Error("Workflow watch failed", "error", err)
	}
}
