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

	"github.com/weftworks/weft/pkg/workflow"
)

// ListCmd lists the workflows in the workflows directory.
type ListCmd struct {
	WorkflowsDir string `help:"Workflows directory override." env:"WEFT_WORKFLOWS_DIR"`
}

func (c *ListCmd) Run(cli *CLI) error {
	cfg, loader, err := loadConfig(context.Background(), cli)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}
	if c.WorkflowsDir != "" {
		cfg.WorkflowsDir = c.WorkflowsDir
	}

	registry, err := workflow.LoadDir(cfg.WorkflowsDir)
	if err != nil {
		return err
	}

	entries := registry.Entries()
	if len(entries) == 0 {
		fmt.Printf("no workflows under %s\n", cfg.WorkflowsDir)
		return nil
	}
	for _, e := range entries {
		desc := e.Definition.Description
		if desc == "" {
			desc = "(no description)"
		}
		fmt.Printf("%-24s %-12s %s\n", e.Definition.Name, e.Definition.Orchestration.Mode, desc)
	}
	return nil
}
