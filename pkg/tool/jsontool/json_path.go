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

// Package jsontool provides built-in tools for inspecting JSON values and
// session state: json_path extracts values by dotted path, read_state reads
// a raw state entry.
package jsontool

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/weftworks/weft/pkg/tool"
	"github.com/weftworks/weft/pkg/tool/functiontool"
)

// JSONPathArgs defines the parameters for the json_path tool. Exactly one
// of JSON or StateKey selects the document to extract from.
type JSONPathArgs struct {
	JSON     string `json:"json,omitempty" jsonschema:"description=JSON document to extract from"`
	StateKey string `json:"state_key,omitempty" jsonschema:"description=Session state key holding the value to extract from"`
	Path     string `json:"path" jsonschema:"required,description=Dotted path such as rates.EUR or items.0.name"`
}

// NewJSONPath creates the json_path tool.
//
// Extraction failures come back as {"error": ...} results so a workflow can
// branch on a missing path instead of aborting.
func NewJSONPath() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        "json_path",
			Description: "Extract a value from a JSON document or a session state entry using a dotted path like rates.EUR or items.0.name.",
		},
		func(ctx tool.Context, args JSONPathArgs) (map[string]any, error) {
			var root any
			switch {
			case args.StateKey != "":
				v, err := ctx.State().Get(args.StateKey)
				if err != nil {
					return map[string]any{"error": fmt.Sprintf("state key %q not found", args.StateKey)}, nil
				}
				root = normalize(v)
			case args.JSON != "":
				if err := json.Unmarshal([]byte(args.JSON), &root); err != nil {
					return map[string]any{"error": fmt.Sprintf("invalid JSON: %v", err)}, nil
				}
			default:
				return map[string]any{"error": "either json or state_key is required"}, nil
			}

			value, err := Extract(root, args.Path)
			if err != nil {
				return map[string]any{"error": err.Error()}, nil
			}
			return map[string]any{"value": value, "path": args.Path}, nil
		},
	)
}

// Extract walks a dotted path through maps, slices and embedded JSON
// strings. String nodes are parsed as JSON when the path descends into
// them, so a path can reach through an HTTP response body stored as text.
func Extract(root any, path string) (any, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return root, nil
	}

	node := root
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		if s, ok := node.(string); ok {
			var parsed any
			if err := json.Unmarshal([]byte(s), &parsed); err != nil {
				return nil, fmt.Errorf("cannot descend into string value at %q", strings.Join(segments[:i], "."))
			}
			node = parsed
		}

		switch v := node.(type) {
		case map[string]any:
			child, ok := v[seg]
			if !ok {
				return nil, fmt.Errorf("key %q not found at %q", seg, strings.Join(segments[:i+1], "."))
			}
			node = child
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, fmt.Errorf("expected numeric index at %q, got %q", strings.Join(segments[:i+1], "."), seg)
			}
			if idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("index %d out of range at %q (length %d)", idx, strings.Join(segments[:i+1], "."), len(v))
			}
			node = v[idx]
		default:
			return nil, fmt.Errorf("cannot descend into %T at %q", node, strings.Join(segments[:i+1], "."))
		}
	}

	return node, nil
}

// normalize converts arbitrary state values to plain JSON shapes so the
// path walker only deals with maps, slices and primitives.
func normalize(v any) any {
	switch v.(type) {
	case nil, string, bool, float64, int, int64, map[string]any, []any:
		return v
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
