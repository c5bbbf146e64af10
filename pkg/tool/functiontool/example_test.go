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

package functiontool_test

import (
	"fmt"
	"strings"

	"github.com/weftworks/weft/pkg/tool"
	"github.com/weftworks/weft/pkg/tool/functiontool"
)

// Example_basic registers a typed function as a model-callable tool.
func Example_basic() {
	type GetWeatherArgs struct {
		City  string `json:"city" jsonschema:"required,description=City name"`
		Units string `json:"units,omitempty" jsonschema:"description=Temperature units,default=celsius,enum=celsius|fahrenheit"`
	}

	weatherTool, err := functiontool.New(
		functiontool.Config{
			Name:        "get_weather",
			Description: "Get current weather for a city",
		},
		func(ctx tool.Context, args GetWeatherArgs) (map[string]any, error) {
			return map[string]any{
				"city":      args.City,
				"temp":      22,
				"condition": "sunny",
				"units":     args.Units,
			}, nil
		},
	)

	if err != nil {
		panic(err)
	}

	fmt.Printf("Tool Name: %s\n", weatherTool.Name())
	fmt.Printf("Is Long Running: %v\n", weatherTool.IsLongRunning())
	// Output:
	// Tool Name: get_weather
	// Is Long Running: false
}

// Example_withValidation rejects unsafe arguments before the function runs.
func Example_withValidation() {
	type FetchArgs struct {
		URL string `json:"url" jsonschema:"required,description=URL to fetch"`
	}

	fetchTool, err := functiontool.NewWithValidation(
		functiontool.Config{
			Name:        "fetch_page",
			Description: "Fetch a web page",
		},
		func(ctx tool.Context, args FetchArgs) (map[string]any, error) {
			return map[string]any{"url": args.URL, "status": 200}, nil
		},
		func(args FetchArgs) error {
			if !strings.HasPrefix(args.URL, "https://") {
				return fmt.Errorf("only https URLs are allowed")
			}
			return nil
		},
	)

	if err != nil {
		panic(err)
	}

	fmt.Printf("Tool: %s\n", fetchTool.Name())
	// Output:
	// Tool: fetch_page
}
