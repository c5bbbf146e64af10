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
	"fmt"
	"strings"
)

// ValidationError reports a definition that fails a shape or
// cross-reference check. Path locates the offending field in the
// definition file, e.g. "orchestration.nodes[2].depends_on[0]".
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// errorf builds a field-scoped validation error.
func errorf(path, format string, args ...any) *ValidationError {
	return &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)}
}

// HydrationError reports a definition that validated but could not be
// materialized into an agent tree: unknown tool, unknown function path,
// unknown callback, forbidden expression construct, unreadable spec.
// Hydration errors fail the platform boot.
type HydrationError struct {
	Workflow string
	Stage    string
	Err      error
}

func (e *HydrationError) Error() string {
	return fmt.Sprintf("hydrate workflow %q (%s): %v", e.Workflow, e.Stage, e.Err)
}

func (e *HydrationError) Unwrap() error {
	return e.Err
}

// SchedulingError reports a runtime DAG deadlock: no node is ready but
// uncompleted nodes remain. It fails the current run and leaves the
// platform healthy.
type SchedulingError struct {
	Workflow string
	Stuck    []string
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("workflow %q deadlocked: nodes %s are stuck waiting on unfinished dependencies",
		e.Workflow, strings.Join(e.Stuck, ", "))
}
