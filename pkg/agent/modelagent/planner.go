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
	"strings"

	"github.com/weftworks/weft/pkg/model"
)

// Planner shapes how a model agent reasons before answering.
type Planner interface {
	// Name identifies the planner ("plan_react", "built_in").
	Name() string

	// Instruction returns text appended to the system instruction, or
	// empty when the planner works through provider configuration.
	Instruction() string

	// ApplyConfig adjusts generation settings for the planner.
	ApplyConfig(cfg *model.GenerateConfig)

	// ExtractAnswer pulls the user-facing answer out of the model's
	// final text, stripping any planner scaffolding.
	ExtractAnswer(text string) string
}

const (
	planningTag    = "/*PLANNING*/"
	actionTag      = "/*ACTION*/"
	reasoningTag   = "/*REASONING*/"
	replanningTag  = "/*REPLANNING*/"
	finalAnswerTag = "/*FINAL_ANSWER*/"
)

// PlanReact returns the plan-then-act planner: the model is instructed
// to write an explicit plan, interleave actions with reasoning, and tag
// its final answer. Only the tagged answer is recorded as output.
func PlanReact() Planner {
	return planReactPlanner{}
}

type planReactPlanner struct{}

func (planReactPlanner) Name() string { return "plan_react" }

func (planReactPlanner) Instruction() string {
	return strings.Join([]string{
		"Answer by planning first, then acting.",
		"Start with " + planningTag + " and lay out the steps needed to fulfill the request.",
		"Before each tool use, write " + actionTag + " and state which tool you are calling and why.",
		"After tool results, write " + reasoningTag + " and interpret what you learned; use " + replanningTag + " if the plan must change.",
		"When the task is complete, write " + finalAnswerTag + " followed by the answer. Everything after " + finalAnswerTag + " is shown to the user; everything before it is working notes.",
	}, "\n")
}

func (planReactPlanner) ApplyConfig(cfg *model.GenerateConfig) {}

func (planReactPlanner) ExtractAnswer(text string) string {
	if idx := strings.LastIndex(text, finalAnswerTag); idx >= 0 {
		return strings.TrimSpace(text[idx+len(finalAnswerTag):])
	}
	return text
}

// BuiltIn returns the planner that defers to the provider's native
// reasoning mode. Nothing is added to the prompt; the generation config
// asks the provider to think before answering.
func BuiltIn() Planner {
	return builtInPlanner{}
}

type builtInPlanner struct{}

func (builtInPlanner) Name() string        { return "built_in" }
func (builtInPlanner) Instruction() string { return "" }

func (builtInPlanner) ApplyConfig(cfg *model.GenerateConfig) {
	if cfg.Metadata == nil {
		cfg.Metadata = make(map[string]string)
	}
	cfg.Metadata["thinking"] = "enabled"
}

func (builtInPlanner) ExtractAnswer(text string) string { return text }
