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

// Package provider abstracts where the platform configuration comes
// from.
//
// A provider yields raw YAML bytes and can signal when the source
// changes. File sources watch the filesystem; consul, etcd and
// zookeeper sources watch a single key through their native watch
// primitives.
package provider

import (
	"context"
	"fmt"
)

// Type identifies the config source kind.
type Type string

const (
	TypeFile      Type = "file"
	TypeConsul    Type = "consul"
	TypeEtcd      Type = "etcd"
	TypeZookeeper Type = "zookeeper"
)

// ParseType converts a CLI/env string to a Type. Empty means file.
func ParseType(s string) (Type, error) {
	switch s {
	case "file", "":
		return TypeFile, nil
	case "consul":
		return TypeConsul, nil
	case "etcd":
		return TypeEtcd, nil
	case "zookeeper", "zk":
		return TypeZookeeper, nil
	}
	return "", fmt.Errorf("unknown config provider type: %s", s)
}

// Provider is one config source. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Type reports the source kind.
	Type() Type

	// Load reads the raw config bytes.
	Load(ctx context.Context) ([]byte, error)

	// Watch signals on the returned channel whenever the source
	// changes, until the context is canceled. Providers that cannot
	// watch return a nil channel.
	Watch(ctx context.Context) (<-chan struct{}, error)

	// Close releases connections held by the provider.
	Close() error
}

// Config selects and addresses a source.
type Config struct {
	// Type of the source. Empty means file.
	Type Type

	// Path is the file path, or the key path for remote sources.
	Path string

	// Endpoints address remote sources. Defaults to each system's
	// conventional local endpoint.
	Endpoints []string
}

// New constructs the provider for a source config.
func New(cfg Config) (Provider, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	switch cfg.Type {
	case TypeFile, "":
		return NewFile(cfg.Path)
	case TypeConsul:
		return NewConsul(cfg.Endpoints, cfg.Path)
	case TypeEtcd:
		return NewEtcd(cfg.Endpoints, cfg.Path)
	case TypeZookeeper:
		return NewZookeeper(cfg.Endpoints, cfg.Path)
	}
	return nil, fmt.Errorf("unknown config provider type: %s", cfg.Type)
}
