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

package workflow_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/workflow"
)

func definitionYAML(name, expression string) string {
	return fmt.Sprintf(`
name: %s
agents:
  - name: calc
    kind: expression
    expression: "%s"
    output_key: result
orchestration:
  mode: sequential
  agents: [calc]
`, name, expression)
}

func writePackage(t *testing.T, root, pkg, yaml string) string {
	t.Helper()
	dir := filepath.Join(root, pkg)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, workflow.FileName)
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadDir(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "alpha", definitionYAML("alpha", "1 + 1"))
	writePackage(t, root, "beta", definitionYAML("beta", "2 + 2"))

	// Stray files and empty dirs are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	registry, err := workflow.LoadDir(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, registry.Names())

	entry, ok := registry.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "alpha"), entry.Dir)
}

func TestLoadDirRejectsDuplicateNames(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "one", definitionYAML("same", "1"))
	writePackage(t, root, "two", definitionYAML("same", "2"))

	_, err := workflow.LoadDir(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "same")
}

func TestLoadDirRejectsInvalidDefinition(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "bad", `
name: bad
agents:
  - name: calc
    kind: expression
    expression: "1"
    output_key: out
orchestration:
  mode: sequential
  agents: [ghost]
`)

	_, err := workflow.LoadDir(root)
	require.Error(t, err)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	root := t.TempDir()
	path := writePackage(t, root, "alpha", definitionYAML("alpha", "1 + 1"))

	registry, err := workflow.LoadDir(root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *workflow.Entry, 1)
	go func() {
		_ = registry.Watch(ctx, root, func(e *workflow.Entry) {
			select {
			case reloaded <- e:
			default:
			}
		}, nil)
	}()

	// Give the watcher a moment to install before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(definitionYAML("alpha", "40 + 2")), 0o644))

	select {
	case e := <-reloaded:
		assert.Equal(t, "40 + 2", e.Definition.Agents[0].Expression)
	case <-time.After(5 * time.Second):
		t.Fatal("reload notification never arrived")
	}

	entry, ok := registry.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "40 + 2", entry.Definition.Agents[0].Expression)
}

func TestWatchKeepsPreviousOnBrokenEdit(t *testing.T) {
	root := t.TempDir()
	path := writePackage(t, root, "alpha", definitionYAML("alpha", "1 + 1"))

	registry, err := workflow.LoadDir(root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = registry.Watch(ctx, root, nil, nil) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("name: [not: valid"), 0o644))
	time.Sleep(500 * time.Millisecond)

	entry, ok := registry.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "1 + 1", entry.Definition.Agents[0].Expression)
}
