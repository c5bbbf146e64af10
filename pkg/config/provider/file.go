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

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/knadh/koanf/providers/file"
)

// File loads configuration from a local file and watches it for
// changes.
type File struct {
	path string
	f    *file.File

	mu       sync.Mutex
	watching bool
}

// NewFile creates a file provider.
func NewFile(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	return &File{path: abs, f: file.Provider(abs)}, nil
}

func (p *File) Type() Type {
	return TypeFile
}

func (p *File) Load(ctx context.Context) ([]byte, error) {
	data, err := p.f.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", p.path, err)
	}
	return data, nil
}

func (p *File) Watch(ctx context.Context) (<-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watching {
		return nil, fmt.Errorf("config file %s is already being watched", p.path)
	}

	ch := make(chan struct{}, 1)
	err := p.f.Watch(func(event interface{}, err error) {
		if err != nil {
			slog.Warn("Config file watch error", "path", p.path, "error", err)
			return
		}
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("watch config file %s: %w", p.path, err)
	}
	p.watching = true

	go func() {
		<-ctx.Done()
		_ = p.f.Unwatch()
	}()
	return ch, nil
}

func (p *File) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watching {
		p.watching = false
		return p.f.Unwatch()
	}
	return nil
}

var _ Provider = (*File)(nil)
