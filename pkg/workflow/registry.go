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

package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileName is the definition file every workflow package carries.
const FileName = "workflow.yaml"

// Entry is one loaded workflow package: the validated definition plus
// the directory it came from, which anchors relative spec paths during
// hydration.
type Entry struct {
	Definition *Definition

	// Dir is the workflow package directory.
	Dir string

	// Path is the definition file inside Dir.
	Path string
}

// Registry indexes loaded workflow definitions by name. Safe for
// concurrent use; Replace supports live reloads.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Add indexes an entry. Two packages declaring the same workflow name
// is a configuration error, not a shadowing opportunity.
func (r *Registry) Add(e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := e.Definition.Name
	if existing, ok := r.entries[name]; ok {
		return fmt.Errorf("workflow %q declared in both %s and %s", name, existing.Path, e.Path)
	}
	r.entries[name] = e
	return nil
}

// Replace swaps the entry for an already-known workflow name, or adds
// it when new. Used by the watcher after a successful reload.
func (r *Registry) Replace(e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.Definition.Name] = e
}

// Remove drops a workflow by name.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// Get returns the entry for a workflow name.
func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Names returns the loaded workflow names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns the loaded entries in name order.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]*Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, r.entries[name])
	}
	return entries
}

// LoadEntry parses and validates one definition file.
func LoadEntry(path string) (*Entry, error) {
	def, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return &Entry{
		Definition: def,
		Dir:        filepath.Dir(path),
		Path:       path,
	}, nil
}

// LoadDir loads every workflow package under dir. A package is a
// subdirectory carrying a workflow.yaml; other files (specs/, fixtures)
// are the package's own business. Any package that fails to parse or
// validate fails the whole load: a platform must not boot with a
// silently missing workflow.
func LoadDir(dir string) (*Registry, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read workflows dir: %w", err)
	}

	registry := NewRegistry()
	for _, item := range items {
		if !item.IsDir() {
			continue
		}
		path := filepath.Join(dir, item.Name(), FileName)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		entry, err := LoadEntry(path)
		if err != nil {
			return nil, err
		}
		if err := registry.Add(entry); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
