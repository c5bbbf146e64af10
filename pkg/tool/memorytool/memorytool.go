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

// Package memorytool provides the load_memory builtin, which searches
// the workflow's memory service for past conversation transcripts.
package memorytool

import (
	"context"

	"github.com/weftworks/weft/pkg/tool"
)

// LoadMemory creates the load_memory tool. Workflows without a memory
// service get empty results rather than an error.
func LoadMemory() tool.CallableTool {
	return &loadMemoryTool{}
}

type loadMemoryTool struct{}

func (t *loadMemoryTool) Name() string {
	return "load_memory"
}

func (t *loadMemoryTool) Description() string {
	return "Searches past conversations for information relevant to a query."
}

func (t *loadMemoryTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "What to look for in past conversations",
			},
		},
		"required": []string{"query"},
	}
}

func (t *loadMemoryTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return map[string]any{"error": "query is required"}, nil
	}

	resp, err := ctx.SearchMemory(context.Background(), query)
	if err != nil {
		return map[string]any{"error": err.Error()}, nil
	}

	memories := make([]map[string]any, 0, len(resp.Results))
	for _, r := range resp.Results {
		memories = append(memories, map[string]any{
			"content": r.Content,
			"score":   r.Score,
		})
	}
	return map[string]any{
		"query":    query,
		"memories": memories,
		"count":    len(memories),
	}, nil
}

func (t *loadMemoryTool) IsLongRunning() bool {
	return false
}

var _ tool.CallableTool = (*loadMemoryTool)(nil)
