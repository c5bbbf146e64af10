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

// Declared creates a tool that exists only as a catalog entry. It
// carries no executable body: model-native capabilities such as
// google_search are declared to the provider and executed on its side,
// so the platform only needs the name to resolve and the description to
// advertise.
func Declared(name, description string) Tool {
	return &declaredTool{name: name, description: description}
}

type declaredTool struct {
	name        string
	description string
}

func (t *declaredTool) Name() string        { return t.name }
func (t *declaredTool) Description() string { return t.description }
func (t *declaredTool) IsLongRunning() bool { return false }

var _ Tool = (*declaredTool)(nil)
