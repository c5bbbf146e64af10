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
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/weftworks/weft/pkg/agent"
)

// FileService persists artifacts as JSON-encoded parts under a root
// directory:
//
//	<root>/<app>/<user>/<session>/<name>/<version>.json
//
// User-shared artifacts ("user:" names) replace the session segment with
// "_user". Path segments are URL-escaped so artifact names cannot walk
// out of the root.
type FileService struct {
	root string

	mu sync.Mutex
}

// NewFileService creates the root directory if needed.
func NewFileService(root string) (*FileService, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact_dir is required for the file artifact service")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FileService{root: root}, nil
}

func (s *FileService) dirFor(key Key, name string) string {
	session := key.SessionID
	if strings.HasPrefix(name, userPrefix) {
		session = "_user"
	}
	return filepath.Join(s.root,
		url.PathEscape(key.AppName),
		url.PathEscape(key.UserID),
		url.PathEscape(session),
		url.PathEscape(name))
}

func (s *FileService) Save(ctx context.Context, key Key, name string, part a2a.Part) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("artifact name is required")
	}

	encoded, err := encodePart(part)
	if err != nil {
		return 0, fmt.Errorf("encode artifact %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.dirFor(key, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create artifact dir: %w", err)
	}

	versions, err := listVersions(dir)
	if err != nil {
		return 0, err
	}
	next := int64(0)
	if len(versions) > 0 {
		next = versions[len(versions)-1] + 1
	}

	path := filepath.Join(dir, fmt.Sprintf("%d.json", next))
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return 0, fmt.Errorf("write artifact %q: %w", name, err)
	}
	return next, nil
}

func (s *FileService) Load(ctx context.Context, key Key, name string, version int64) (*agent.ArtifactLoadResponse, error) {
	dir := s.dirFor(key, name)
	versions, err := listVersions(dir)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("artifact %q not found", name)
	}
	if version < 0 {
		version = versions[len(versions)-1]
	}

	raw, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("%d.json", version)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact %q has no version %d", name, version)
		}
		return nil, fmt.Errorf("read artifact %q: %w", name, err)
	}

	part, err := decodePart(raw)
	if err != nil {
		return nil, fmt.Errorf("decode artifact %q: %w", name, err)
	}
	return &agent.ArtifactLoadResponse{Name: name, Version: version, Part: part}, nil
}

func (s *FileService) List(ctx context.Context, key Key) ([]agent.ArtifactInfo, error) {
	var infos []agent.ArtifactInfo

	for _, session := range []string{key.SessionID, "_user"} {
		dir := filepath.Join(s.root,
			url.PathEscape(key.AppName),
			url.PathEscape(key.UserID),
			url.PathEscape(session))

		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list artifacts: %w", err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			name, err := url.PathUnescape(entry.Name())
			if err != nil {
				continue
			}
			versions, err := listVersions(filepath.Join(dir, entry.Name()))
			if err != nil || len(versions) == 0 {
				continue
			}
			infos = append(infos, agent.ArtifactInfo{
				Name:    name,
				Version: versions[len(versions)-1],
			})
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// listVersions returns the stored version numbers in ascending order.
func listVersions(dir string) ([]int64, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list artifact versions: %w", err)
	}

	var versions []int64
	for _, entry := range entries {
		base, ok := strings.CutSuffix(entry.Name(), ".json")
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(base, 10, 64)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}

var _ Service = (*FileService)(nil)
