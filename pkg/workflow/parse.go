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

package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
)

// envVarPattern matches ${VAR} and ${VAR:-default} references.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// Parse decodes a workflow definition from YAML and validates it.
// Decoding is strict: unknown keys fail with their location. ${VAR}
// references are expanded from the environment before decoding so
// credentials never appear in the file itself.
func Parse(data []byte) (*Definition, error) {
	data = expandEnv(data)

	def := &Definition{}
	dec := newStrictDecoder(bytes.NewReader(data))
	if err := dec.Decode(def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ValidationError{Message: "empty workflow definition"}
		}
		return nil, fmt.Errorf("parse workflow definition: %w", err)
	}

	if err := Validate(def); err != nil {
		return nil, err
	}
	return def, nil
}

// ParseFile reads and parses one workflow.yaml.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow definition: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// expandEnv substitutes ${VAR} and ${VAR:-default} with environment
// values. An unset variable without a default expands to the empty
// string so the failure surfaces where the value is used.
func expandEnv(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		groups := envVarPattern.FindSubmatch(match)
		if v, ok := os.LookupEnv(string(groups[1])); ok {
			return []byte(v)
		}
		return groups[3]
	})
}
