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

	"github.com/weftworks/weft/pkg/workflow"
)

// ValidateCmd validates workflow definitions without running them.
type ValidateCmd struct {
	Path string `arg:"" optional:"" help:"A workflow.yaml, a package dir, or a workflows dir. Defaults to the configured workflows dir." type:"path"`

	WorkflowsDir string `help:"Workflows directory override." env:"WEFT_WORKFLOWS_DIR"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	path := c.Path
	if path == "" {
		path = c.WorkflowsDir
		if path == "" {
			path = "workflows"
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return validateFile(path)
	}

	// A package dir holds workflow.yaml directly; a workflows dir holds
	// package dirs.
	if _, err := os.Stat(filepath.Join(path, workflow.FileName)); err == nil {
		return validateFile(filepath.Join(path, workflow.FileName))
	}

	registry, err := workflow.LoadDir(path)
	if err != nil {
		return err
	}
	for _, name := range registry.Names() {
		fmt.Printf("ok: %s\n", name)
	}
	if len(registry.Names()) == 0 {
		fmt.Println("no workflows found")
	}
	return nil
}

func validateFile(path string) error {
	def, err := workflow.ParseFile(path)
	if err != nil {
		return err
	}
	fmt.Printf("ok: %s\n", def.Name)
	return nil
}
