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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/weftworks/weft/pkg/workflow"
)

// InitCmd scaffolds a runnable workflow package.
type InitCmd struct {
	Name string `arg:"" help:"Name of the new workflow."`

	WorkflowsDir string `help:"Workflows directory to create the package under." default:"workflows" env:"WEFT_WORKFLOWS_DIR"`
}

const starterTemplate = `name: {{name}}
description: A two-step pipeline that drafts and then polishes an answer.

agents:
  - name: draft
    kind: model
    model_id: openai/gpt-4o-mini
    instruction: |
      Draft a direct answer to the user's request.
    output_key: draft

  - name: polish
    kind: model
    model_id: openai/gpt-4o-mini
    instruction: |
      Improve the draft below without changing its meaning:

      {draft}
    output_key: answer

orchestration:
  mode: sequential
  agents: [draft, polish]
`

func (c *InitCmd) Run(cli *CLI) error {
	if strings.ContainsAny(c.Name, "/\\ ") {
		return fmt.Errorf("workflow name %q must not contain spaces or path separators", c.Name)
	}

	dir := filepath.Join(c.WorkflowsDir, c.Name)
	path := filepath.Join(dir, workflow.FileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	if err := os.MkdirAll(filepath.Join(dir, "specs"), 0o755); err != nil {
		return err
	}

	content := strings.ReplaceAll(starterTemplate, "{{name}}", c.Name)
	if _, err := workflow.Parse([]byte(content)); err != nil {
		return fmt.Errorf("starter template is invalid: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return err
	}

	fmt.Printf("created %s\n", path)
	fmt.Printf("run it with: weft run %s \"hello\"\n", c.Name)
	return nil
}
