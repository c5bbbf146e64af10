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
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads workflow packages under dir as their definition files
// change, until the context is canceled.
//
// Reloads swap on success only: an edit that fails to parse or validate
// logs a warning and leaves the last good definition serving. onChange,
// when non-nil, fires after each successful swap so callers can
// rehydrate; onRemove fires when a definition file disappears. Both run
// on the watch goroutine.
func (r *Registry) Watch(ctx context.Context, dir string, onChange func(*Entry), onRemove func(name string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	items, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.IsDir() {
			// Best effort: a package dir that vanishes mid-walk is
			// handled by the event loop.
			_ = watcher.Add(filepath.Join(dir, item.Name()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			r.handleEvent(watcher, ev, onChange, onRemove)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Workflow watcher error", "error", err)
		}
	}
}

func (r *Registry) handleEvent(watcher *fsnotify.Watcher, ev fsnotify.Event, onChange func(*Entry), onRemove func(string)) {
	// A new package directory appears: watch it; its workflow.yaml
	// arrives as a separate event.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = watcher.Add(ev.Name)
			return
		}
	}

	if filepath.Base(ev.Name) != FileName {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create):
		entry, err := LoadEntry(ev.Name)
		if err != nil {
			slog.Warn("Workflow reload failed, keeping previous definition",
				"path", ev.Name,
				"error", err)
			return
		}
		if existing, ok := r.Get(entry.Definition.Name); ok && existing.Path != entry.Path {
			slog.Warn("Workflow name already claimed by another package, ignoring",
				"name", entry.Definition.Name,
				"path", ev.Name,
				"existing", existing.Path)
			return
		}
		r.Replace(entry)
		slog.Info("Workflow reloaded", "name", entry.Definition.Name, "path", ev.Name)
		if onChange != nil {
			onChange(entry)
		}

	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		if name, ok := r.nameForPath(ev.Name); ok {
			r.Remove(name)
			slog.Info("Workflow removed", "name", name, "path", ev.Name)
			if onRemove != nil {
				onRemove(name)
			}
		}
	}
}

func (r *Registry) nameForPath(path string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, e := range r.entries {
		if e.Path == path {
			return name, true
		}
	}
	return "", false
}
