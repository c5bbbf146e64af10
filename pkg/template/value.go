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

package template

import (
	"strings"

	"github.com/weftworks/weft/pkg/agent"
)

// ResolveConfig resolves placeholders in a tool configuration map.
// Resolution never fails: unresolvable placeholders stay literal so the
// tool can report its own error on malformed input.
func ResolveConfig(ctx agent.ReadonlyContext, config map[string]any) map[string]any {
	if config == nil {
		return nil
	}
	resolved := make(map[string]any, len(config))
	for key, value := range config {
		resolved[key] = ResolveValue(ctx, value)
	}
	return resolved
}

// ResolveValue resolves placeholders in a single configuration value.
//
// A string that is exactly one placeholder resolves to the typed state
// value, so numbers and maps survive substitution intact. Placeholders
// embedded in longer strings substitute their string form. A missing key
// leaves the placeholder literal in place; a missing optional key ({key?})
// resolves to the empty string. Maps and slices resolve recursively.
func ResolveValue(ctx agent.ReadonlyContext, value any) any {
	switch v := value.(type) {
	case string:
		return resolveString(ctx, v)
	case map[string]any:
		return ResolveConfig(ctx, v)
	case []any:
		resolved := make([]any, len(v))
		for i, item := range v {
			resolved[i] = ResolveValue(ctx, item)
		}
		return resolved
	default:
		return value
	}
}

func resolveString(ctx agent.ReadonlyContext, s string) any {
	matches := placeholderRegex.FindAllStringIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	// A value that is exactly one placeholder keeps the state value's type.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		if value, ok := lookupTyped(ctx, s); ok {
			return value
		}
		if isOptionalPlaceholder(s) {
			return ""
		}
		return s
	}

	var result strings.Builder
	lastIndex := 0
	for _, matchIndexes := range matches {
		startIndex, endIndex := matchIndexes[0], matchIndexes[1]
		result.WriteString(s[lastIndex:startIndex])

		matchStr := s[startIndex:endIndex]
		if value, ok := lookupTyped(ctx, matchStr); ok {
			result.WriteString(Stringify(value))
		} else if isOptionalPlaceholder(matchStr) {
			// Optional and missing, substitute nothing.
		} else {
			result.WriteString(matchStr)
		}

		lastIndex = endIndex
	}
	result.WriteString(s[lastIndex:])
	return result.String()
}

// lookupTyped resolves a single placeholder to its raw state value.
func lookupTyped(ctx agent.ReadonlyContext, match string) (any, bool) {
	varName := strings.TrimSpace(strings.Trim(match, "{}"))
	varName = strings.TrimSuffix(varName, "?")

	if after, ok := strings.CutPrefix(varName, "artifact."); ok {
		text, err := resolveArtifact(ctx, after, true)
		if err != nil || text == "" {
			return nil, false
		}
		return text, true
	}

	if !isValidStateName(varName) {
		return nil, false
	}

	state := ctx.ReadonlyState()
	if state == nil {
		return nil, false
	}
	value, err := state.Get(varName)
	if err != nil {
		return nil, false
	}
	return value, true
}

func isOptionalPlaceholder(match string) bool {
	return strings.HasSuffix(strings.TrimSpace(strings.Trim(match, "{}")), "?")
}
