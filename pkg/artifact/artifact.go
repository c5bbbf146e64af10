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

// Package artifact stores versioned binary/text blobs produced during
// runs.
//
// Artifacts are scoped to (app, user, session) and versioned: every save
// appends a new version, loads default to the latest. Names with the
// "user:" prefix are shared across the user's sessions. Three services
// exist: disabled (every call errors), in-memory, and a file-backed one
// that persists parts as JSON under a root directory.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/weftworks/weft/pkg/agent"
)

// userPrefix marks artifact names shared across a user's sessions.
const userPrefix = "user:"

// Key scopes artifact operations.
type Key struct {
	AppName   string
	UserID    string
	SessionID string
}

// scopeID collapses the key for one artifact name: user-prefixed names
// ignore the session.
func (k Key) scopeID(name string) string {
	if strings.HasPrefix(name, userPrefix) {
		return k.AppName + "\x00" + k.UserID
	}
	return k.AppName + "\x00" + k.UserID + "\x00" + k.SessionID
}

// Service stores artifacts for all scopes. Implementations must be safe
// for concurrent use.
type Service interface {
	// Save appends a new version and returns its number (0-based).
	Save(ctx context.Context, key Key, name string, part a2a.Part) (int64, error)

	// Load returns the named artifact. Version -1 means latest.
	Load(ctx context.Context, key Key, name string, version int64) (*agent.ArtifactLoadResponse, error)

	// List returns the latest version of every artifact in scope.
	List(ctx context.Context, key Key) ([]agent.ArtifactInfo, error)
}

// For binds a service to one invocation's scope as agent.Artifacts.
func For(svc Service, key Key) agent.Artifacts {
	return &scoped{svc: svc, key: key}
}

type scoped struct {
	svc Service
	key Key
}

func (s *scoped) Save(ctx context.Context, name string, part a2a.Part) (*agent.ArtifactSaveResponse, error) {
	version, err := s.svc.Save(ctx, s.key, name, part)
	if err != nil {
		return nil, err
	}
	return &agent.ArtifactSaveResponse{Name: name, Version: version}, nil
}

func (s *scoped) List(ctx context.Context) (*agent.ArtifactListResponse, error) {
	infos, err := s.svc.List(ctx, s.key)
	if err != nil {
		return nil, err
	}
	return &agent.ArtifactListResponse{Artifacts: infos}, nil
}

func (s *scoped) Load(ctx context.Context, name string) (*agent.ArtifactLoadResponse, error) {
	return s.svc.Load(ctx, s.key, name, -1)
}

func (s *scoped) LoadVersion(ctx context.Context, name string, version int) (*agent.ArtifactLoadResponse, error) {
	return s.svc.Load(ctx, s.key, name, int64(version))
}

var _ agent.Artifacts = (*scoped)(nil)

// Disabled returns the service used when artifact_service is "none":
// every operation fails with a clear message so a workflow that uses
// artifacts without enabling a store gets a actionable error event.
func Disabled() Service {
	return disabledService{}
}

type disabledService struct{}

func (disabledService) Save(context.Context, Key, string, a2a.Part) (int64, error) {
	return 0, errDisabled
}

func (disabledService) Load(context.Context, Key, string, int64) (*agent.ArtifactLoadResponse, error) {
	return nil, errDisabled
}

func (disabledService) List(context.Context, Key) ([]agent.ArtifactInfo, error) {
	return nil, errDisabled
}

var errDisabled = fmt.Errorf("artifact service is disabled; set runtime.artifact_service to in_memory or file")

// encodePart serializes a part for persistent stores.
func encodePart(part a2a.Part) ([]byte, error) {
	return json.Marshal(part)
}

// decodePart reverses encodePart, dispatching on the "kind" field.
func decodePart(raw []byte) (a2a.Part, error) {
	var peek struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return nil, fmt.Errorf("peek part kind: %w", err)
	}

	switch peek.Kind {
	case "text":
		var part a2a.TextPart
		if err := json.Unmarshal(raw, &part); err != nil {
			return nil, err
		}
		return part, nil
	case "file":
		var part a2a.FilePart
		if err := json.Unmarshal(raw, &part); err != nil {
			return nil, err
		}
		return part, nil
	case "data":
		var part a2a.DataPart
		if err := json.Unmarshal(raw, &part); err != nil {
			return nil, err
		}
		return part, nil
	default:
		return nil, fmt.Errorf("unknown part kind %q", peek.Kind)
	}
}
