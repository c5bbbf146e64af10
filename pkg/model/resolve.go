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

package model

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/weftworks/weft/pkg/secrets"
)

// ParseID splits a provider-prefixed model identifier such as
// "anthropic/claude-sonnet-4" into provider and model name. Identifiers
// without a recognized provider prefix return ProviderUnknown and the
// full identifier unchanged; the resolver routes those to its default
// provider. The model name may itself contain slashes, as Ollama
// library paths do.
func ParseID(id string) (Provider, string) {
	head, rest, found := strings.Cut(id, "/")
	if !found {
		return ProviderUnknown, id
	}
	switch p := Provider(head); p {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderTest:
		return p, rest
	}
	return ProviderUnknown, id
}

// Factory constructs an LLM client for one provider.
type Factory func(modelName string) (LLM, error)

// Resolver materializes LLM clients from model identifiers.
//
// Providers register a factory during boot. Resolution caches clients by
// identifier so agents naming the same model share one client and its
// connection pool. Register is not safe to call after Resolve.
type Resolver struct {
	mu        sync.Mutex
	factories map[Provider]Factory
	def       Provider
	cache     map[string]LLM
}

// NewResolver creates a resolver that routes unprefixed identifiers to
// defaultProvider.
func NewResolver(defaultProvider Provider) *Resolver {
	return &Resolver{
		factories: make(map[Provider]Factory),
		def:       defaultProvider,
		cache:     make(map[string]LLM),
	}
}

// Register installs the factory for a provider, replacing any previous one.
func (r *Resolver) Register(p Provider, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[p] = f
}

// Resolve returns the LLM for a model identifier, constructing it on
// first use.
func (r *Resolver) Resolve(id string) (LLM, error) {
	if id == "" {
		return nil, errors.New("model identifier cannot be empty")
	}

	p, name := ParseID(id)
	if p == ProviderUnknown {
		if strings.Contains(id, "/") {
			return nil, fmt.Errorf("unknown model provider in %q", id)
		}
		p, name = r.def, id
	}

	key := string(p) + "/" + name

	r.mu.Lock()
	defer r.mu.Unlock()

	if llm, ok := r.cache[key]; ok {
		return llm, nil
	}

	f, ok := r.factories[p]
	if !ok {
		return nil, fmt.Errorf("no factory registered for model provider %q", p)
	}

	llm, err := f(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s model %q: %w", p, name, err)
	}
	r.cache[key] = llm
	return llm, nil
}

// Close closes every cached client. The resolver is unusable afterwards.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for key, llm := range r.cache {
		if err := llm.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	r.cache = make(map[string]LLM)
	return errors.Join(errs...)
}

// APIKey resolves a provider credential. The conventional environment
// variable wins; the platform secret store is the fallback, where the
// PLATFORM_{NAME} convention applies. Returns "" when neither is set so
// the failure surfaces on first request rather than at boot.
func APIKey(envVar string, store *secrets.Store) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	if store == nil {
		store = secrets.Default()
	}
	return store.GetOrEmpty(envVar)
}
