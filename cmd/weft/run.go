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
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/weftworks/weft/pkg/workflow"
)

// RunCmd runs one workflow to completion.
type RunCmd struct {
	Workflow string `arg:"" help:"Workflow name under the workflows dir, or a path to a workflow package."`
	Message  string `arg:"" help:"The user message to run."`

	SessionID    string `help:"Continue an existing session."`
	UserID       string `help:"Caller identity recorded on the session." default:"cli"`
	WorkflowsDir string `help:"Workflows directory override." env:"WEFT_WORKFLOWS_DIR"`
	Stream       bool   `help:"Print events as they arrive instead of the final result."`
	JSON         bool   `name:"json" help:"Print the full result as JSON."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, loader, err := loadConfig(ctx, cli)
	if err != nil {
		return err
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

	entry, err := resolveWorkflow(cfg.WorkflowsDir, c.Workflow)
	if err != nil {
		return err
	}

	hw, err := p.hydrator.Hydrate(ctx, entry.Definition, entry.Dir)
	if err != nil {
		return err
	}
	defer hw.Close()

	if c.Stream {
		stream, err := p.driver.RunStreaming(ctx, hw, c.UserID, c.SessionID, c.Message)
		if err != nil {
			return err
		}
		for ev, err := range stream.Events {
			if err != nil {
				return err
			}
			if ev == nil {
				continue
			}
			if ev.IsError() {
				fmt.Fprintf(os.Stderr, "[%s] error: %s\n", ev.Author, ev.ErrorMessage)
				continue
			}
			if text := ev.TextContent(); text != "" {
				if ev.Partial {
					fmt.Print(text)
				} else {
					fmt.Printf("\n[%s] %s\n", ev.Author, text)
				}
			}
		}
		usage := stream.Usage()
		fmt.Fprintf(os.Stderr, "\nsession=%s tokens=%d llm_calls=%d tool_calls=%d\n",
			stream.SessionID, usage.TotalTokens, usage.LLMCalls, usage.ToolCalls)
		return nil
	}

	result, err := p.driver.Run(ctx, hw, c.UserID, c.SessionID, c.Message)
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Println(result.Content)
	return nil
}

// resolveWorkflow loads a workflow by name from the workflows dir, or
// directly from a package path containing workflow.yaml.
func resolveWorkflow(workflowsDir, ref string) (*workflow.Entry, error) {
	candidates := []string{
		filepath.Join(workflowsDir, ref),
		ref,
	}
	for _, dir := range candidates {
		path := filepath.Join(dir, workflow.FileName)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return workflow.LoadEntry(path)
	}
	return nil, fmt.Errorf("workflow %q not found under %s", ref, workflowsDir)
}
