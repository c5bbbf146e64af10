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

// Package template resolves state placeholders in instructions and tool
// configurations.
//
// Placeholders use single-brace syntax and resolve at runtime:
//
//	{variable}           - resolves from session state
//	{app:variable}       - resolves from app-scoped state
//	{user:variable}      - resolves from user-scoped state
//	{temp:variable}      - resolves from temp-scoped state
//	{artifact.filename}  - resolves artifact text content
//	{variable?}          - optional (empty string if not found)
//
// Instructions treat a missing required key as an error. Tool configuration
// values never error: a missing key leaves the placeholder literal in place,
// and a value that is exactly one placeholder resolves to the typed state
// value rather than its string form.
package template

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/weftworks/weft/pkg/agent"
)

// State key prefixes shared with the session package.
const (
	PrefixApp  = "app:"
	PrefixUser = "user:"
	PrefixTemp = "temp:"
)

// placeholderRegex matches {variable}, {artifact.name}, {variable?}, etc.
// Matches one or more opening braces, content without braces, one or more closing braces.
var placeholderRegex = regexp.MustCompile(`{+[^{}]*}+`)

// Template represents an instruction template with placeholders.
type Template struct {
	raw string
}

// New creates a new template.
func New(template string) *Template {
	return &Template{raw: template}
}

// Raw returns the raw template string.
func (t *Template) Raw() string {
	return t.raw
}

// Render resolves all placeholders in the template using the context.
func (t *Template) Render(ctx agent.ReadonlyContext) (string, error) {
	return InjectState(ctx, t.raw)
}

// InjectState populates placeholder values in an instruction from context.
// A required placeholder that cannot be resolved returns an error. Invalid
// placeholder names (not matching identifier rules) are left as-is.
func InjectState(ctx agent.ReadonlyContext, template string) (string, error) {
	if template == "" {
		return "", nil
	}

	var result strings.Builder
	lastIndex := 0
	matches := placeholderRegex.FindAllStringIndex(template, -1)

	for _, matchIndexes := range matches {
		startIndex, endIndex := matchIndexes[0], matchIndexes[1]

		result.WriteString(template[lastIndex:startIndex])

		matchStr := template[startIndex:endIndex]
		replacement, err := replaceMatch(ctx, matchStr)
		if err != nil {
			return "", err
		}
		result.WriteString(replacement)

		lastIndex = endIndex
	}

	result.WriteString(template[lastIndex:])
	return result.String(), nil
}

// replaceMatch resolves a single placeholder match.
func replaceMatch(ctx agent.ReadonlyContext, match string) (string, error) {
	varName := strings.TrimSpace(strings.Trim(match, "{}"))

	optional := false
	if strings.HasSuffix(varName, "?") {
		optional = true
		varName = strings.TrimSuffix(varName, "?")
	}

	// Artifact references: {artifact.filename}
	if after, ok := strings.CutPrefix(varName, "artifact."); ok {
		return resolveArtifact(ctx, after, optional)
	}

	if !isValidStateName(varName) {
		// Not a valid identifier, keep the literal text.
		return match, nil
	}

	return resolveState(ctx, varName, optional)
}

// resolveArtifact loads artifact content by filename.
func resolveArtifact(ctx agent.ReadonlyContext, filename string, optional bool) (string, error) {
	if filename == "" {
		if optional {
			return "", nil
		}
		return "", fmt.Errorf("empty artifact filename")
	}

	cbCtx, ok := ctx.(agent.CallbackContext)
	if !ok {
		if optional {
			return "", nil
		}
		return "", fmt.Errorf("artifacts not available in readonly context")
	}

	artifacts := cbCtx.Artifacts()
	if artifacts == nil {
		if optional {
			return "", nil
		}
		return "", fmt.Errorf("artifact service not available")
	}

	resp, err := artifacts.Load(ctx, filename)
	if err != nil {
		if optional {
			return "", nil
		}
		return "", fmt.Errorf("failed to load artifact %q: %w", filename, err)
	}

	return extractTextFromPart(resp.Part), nil
}

// extractTextFromPart extracts text content from an a2a.Part.
func extractTextFromPart(part a2a.Part) string {
	switch p := part.(type) {
	case a2a.TextPart:
		return p.Text
	case *a2a.TextPart:
		return p.Text
	}
	return ""
}

// resolveState resolves a variable from session state.
func resolveState(ctx agent.ReadonlyContext, varName string, optional bool) (string, error) {
	state := ctx.ReadonlyState()
	if state == nil {
		if optional {
			return "", nil
		}
		return "", fmt.Errorf("session state not available")
	}

	value, err := state.Get(varName)
	if err != nil {
		if optional {
			return "", nil
		}
		return "", fmt.Errorf("state key %q: %w", varName, err)
	}

	if value == nil {
		return "", nil
	}

	return Stringify(value), nil
}

// Stringify renders a state value the way it is substituted into text.
func Stringify(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

// isValidStateName checks if the variable name is a valid state name.
// Valid names are identifiers or prefixed identifiers (app:name, user:name, temp:name).
func isValidStateName(varName string) bool {
	parts := strings.Split(varName, ":")
	if len(parts) == 1 {
		return isIdentifier(varName)
	}

	if len(parts) == 2 {
		prefix := parts[0] + ":"
		validPrefixes := []string{PrefixApp, PrefixUser, PrefixTemp}
		if slices.Contains(validPrefixes, prefix) {
			return isIdentifier(parts[1])
		}
	}
	return false
}

// isIdentifier checks if a string is a valid identifier.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
		} else {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
				return false
			}
		}
	}
	return true
}

// HasPlaceholders returns true if the template contains any placeholders.
func HasPlaceholders(template string) bool {
	return placeholderRegex.MatchString(template)
}

// ListPlaceholders returns all placeholder names found in the template.
func ListPlaceholders(template string) []string {
	matches := placeholderRegex.FindAllString(template, -1)
	var names []string
	seen := make(map[string]bool)

	for _, match := range matches {
		name := strings.TrimSpace(strings.Trim(match, "{}"))
		name = strings.TrimSuffix(name, "?")
		if !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	return names
}
