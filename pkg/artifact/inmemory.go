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

package artifact

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/weftworks/weft/pkg/agent"
)

// InMemory returns an artifact service holding everything in process
// memory. Versions live for the lifetime of the service.
func InMemory() Service {
	return &memoryService{scopes: make(map[string]map[string][]a2a.Part)}
}

type memoryService struct {
	mu     sync.RWMutex
	scopes map[string]map[string][]a2a.Part // scope -> name -> versions
}

func (s *memoryService) Save(ctx context.Context, key Key, name string, part a2a.Part) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("artifact name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	scope := key.scopeID(name)
	byName := s.scopes[scope]
	if byName == nil {
		byName = make(map[string][]a2a.Part)
		s.scopes[scope] = byName
	}
	byName[name] = append(byName[name], part)
	return int64(len(byName[name]) - 1), nil
}

func (s *memoryService) Load(ctx context.Context, key Key, name string, version int64) (*agent.ArtifactLoadResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.scopes[key.scopeID(name)][name]
	if len(versions) == 0 {
		return nil, fmt.Errorf("artifact %q not found", name)
	}
	if version < 0 {
		version = int64(len(versions) - 1)
	}
	if version >= int64(len(versions)) {
		return nil, fmt.Errorf("artifact %q has no version %d", name, version)
	}
	return &agent.ArtifactLoadResponse{
		Name:    name,
		Version: version,
		Part:    versions[version],
	}, nil
}

func (s *memoryService) List(ctx context.Context, key Key) ([]agent.ArtifactInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Session scope plus the user-shared scope.
	sessionScope := key.scopeID("")
	userScope := key.scopeID(userPrefix)

	var infos []agent.ArtifactInfo
	for name, versions := range s.scopes[sessionScope] {
		infos = append(infos, agent.ArtifactInfo{Name: name, Version: int64(len(versions) - 1)})
	}
	if userScope != sessionScope {
		for name, versions := range s.scopes[userScope] {
			infos = append(infos, agent.ArtifactInfo{Name: name, Version: int64(len(versions) - 1)})
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

var _ Service = (*memoryService)(nil)
