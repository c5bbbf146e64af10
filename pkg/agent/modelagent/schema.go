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

package modelagent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// parseStructuredOutput decodes the model's text as the structured value
// promised by the agent's output schema. Models that were asked for JSON
// still produce slightly broken JSON often enough (markdown fences,
// single quotes, trailing commas) that a repair pass runs before giving
// up. Required top-level properties from the schema are then checked on
// the decoded object.
func parseStructuredOutput(text string, schema map[string]any) (any, error) {
	raw := stripCodeFence(strings.TrimSpace(text))
	if raw == "" {
		return nil, fmt.Errorf("empty model output where structured output was required")
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return nil, fmt.Errorf("output is not valid JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &value); err != nil {
			return nil, fmt.Errorf("output is not valid JSON even after repair: %w", err)
		}
	}

	if err := checkRequiredProperties(value, schema); err != nil {
		return nil, err
	}
	return value, nil
}

// checkRequiredProperties verifies the schema's top-level required list.
// Full JSON-Schema validation is the provider's job (the schema is sent
// with the request); this is the last line of defense for providers that
// ignore it.
func checkRequiredProperties(value any, schema map[string]any) error {
	required, ok := schema["required"]
	if !ok {
		return nil
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("structured output must be a JSON object, got %T", value)
	}

	var missing []string
	switch req := required.(type) {
	case []string:
		for _, name := range req {
			if _, present := obj[name]; !present {
				missing = append(missing, name)
			}
		}
	case []any:
		for _, entry := range req {
			name, ok := entry.(string)
			if !ok {
				continue
			}
			if _, present := obj[name]; !present {
				missing = append(missing, name)
			}
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("structured output missing required properties: %s", strings.Join(missing, ", "))
	}
	return nil
}

// stripCodeFence removes a surrounding markdown code fence, if any.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := strings.TrimPrefix(s, "```")
	if idx := strings.Index(body, "\n"); idx >= 0 {
		// Drop the language hint line ("```json").
		body = body[idx+1:]
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}
