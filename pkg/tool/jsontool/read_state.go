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

package jsontool

import (
	"fmt"

	"github.com/weftworks/weft/pkg/tool"
	"github.com/weftworks/weft/pkg/tool/functiontool"
)

// ReadStateArgs defines the parameters for the read_state tool.
type ReadStateArgs struct {
	Key string `json:"key" jsonschema:"required,description=Session state key to read"`
}

// NewReadState creates the read_state tool, a debugging passthrough that
// returns a session state entry unchanged.
func NewReadState() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        "read_state",
			Description: "Read a session state value by key. Useful for inspecting what earlier workflow steps produced.",
		},
		func(ctx tool.Context, args ReadStateArgs) (map[string]any, error) {
			value, err := ctx.State().Get(args.Key)
			if err != nil {
				return map[string]any{"error": fmt.Sprintf("state key %q not found", args.Key)}, nil
			}
			return map[string]any{"key": args.Key, "value": value}, nil
		},
	)
}
