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

// Package weft is a declarative workflow orchestration platform for
// model-backed agents.
//
// Workflows are YAML documents: a tree of agents (model, code,
// expression, tool, and the sequential/parallel/loop composites) wired
// together by an orchestration mode and communicating through shared
// session state. The definition is validated and hydrated once at boot;
// each invocation then runs the tree against a session, emitting an
// ordered event stream.
//
// # Quick start
//
// Install the CLI:
//
//	go install github.com/weftworks/weft/cmd/weft@latest
//
// Define a workflow:
//
//	name: support
//	agents:
//	  - name: classify
//	    kind: model
//	    model_id: openai/gpt-4o-mini
//	    instruction: "Classify the request as billing, shipping or other."
//	    output_key: category
//	  - name: respond
//	    kind: model
//	    model_id: openai/gpt-4o-mini
//	    instruction: "Write a reply for a {category} request."
//	    output_key: reply
//	orchestration:
//	  mode: sequential
//	  agents: [classify, respond]
//
// Run it:
//
//	weft run support "my invoice is wrong"
//
// # Using as a Go library
//
// Import the packages directly:
//
//	import (
//	    "github.com/weftworks/weft/pkg/driver"
//	    "github.com/weftworks/weft/pkg/workflow"
//	    "github.com/weftworks/weft/pkg/model"
//	)
//
// Register providers and functions before hydrating, then drive runs
// through pkg/driver.
package weft
