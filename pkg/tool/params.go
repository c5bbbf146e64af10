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

package tool

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseJSONMap parses a JSON-encoded object argument. Model-produced JSON
// is frequently slightly malformed (single quotes, trailing commas,
// unquoted keys), so a repair pass runs before giving up. On any failure
// the caller's fallback is returned; tools never fail on bad parameter
// encoding.
func ParseJSONMap(raw string, fallback map[string]any) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return fallback
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return fallback
	}
	return out
}

// ParseJSONSlice parses a JSON-encoded array argument with the same
// repair-then-fallback behavior as ParseJSONMap.
func ParseJSONSlice(raw string, fallback []any) []any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	var out []any
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return fallback
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return fallback
	}
	return out
}
