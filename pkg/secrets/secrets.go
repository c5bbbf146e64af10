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

// Package secrets provides the process-wide secret store.
//
// The store has a two-phase lifecycle: writable while the platform boots,
// frozen thereafter. Lookups consult the environment first using the
// PLATFORM_{NAME} convention (name upper-cased, dashes mapped to
// underscores), then the frozen in-process map.
package secrets

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// EnvPrefix is the environment-variable prefix consulted before the store.
const EnvPrefix = "PLATFORM_"

// Store is a name -> secret mapping with a freeze-after-boot lifecycle.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
	frozen bool
}

// NewStore returns an empty, writable store.
func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

// Set records a secret. Fails once the store is frozen.
func (s *Store) Set(name, value string) error {
	if name == "" {
		return fmt.Errorf("secret name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return fmt.Errorf("secret store is frozen")
	}
	s.values[name] = value
	return nil
}

// SetAll records a batch of secrets. Fails once the store is frozen.
func (s *Store) SetAll(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return fmt.Errorf("secret store is frozen")
	}
	for name, value := range values {
		if name == "" {
			return fmt.Errorf("secret name cannot be empty")
		}
		s.values[name] = value
	}
	return nil
}

// Freeze makes the store read-only. Idempotent.
func (s *Store) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
}

// Frozen reports whether the store has been frozen.
func (s *Store) Frozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}

// Get resolves a secret by name. The environment variable
// PLATFORM_{NAME_UPPER} wins over the in-process value.
func (s *Store) Get(name string) (string, bool) {
	if v, ok := os.LookupEnv(EnvName(name)); ok {
		return v, true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[name]
	return v, ok
}

// GetOrEmpty resolves a secret, returning "" when absent. Used where the
// failure should surface at use time rather than at boot.
func (s *Store) GetOrEmpty(name string) string {
	v, _ := s.Get(name)
	return v
}

// EnvName maps a secret name to its environment-variable form.
func EnvName(name string) string {
	upper := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	return EnvPrefix + upper
}

var (
	defaultStore *Store
	defaultOnce  sync.Once
)

// Default returns the process-wide store.
func Default() *Store {
	defaultOnce.Do(func() {
		defaultStore = NewStore()
	})
	return defaultStore
}
