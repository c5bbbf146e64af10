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

package plugin

import (
	"sort"

	"github.com/spf13/cast"
)

// Factory constructs one plugin instance per runner. A factory whose
// required configuration is missing returns nil and the plugin is
// silently skipped; this lets deployments list optional plugins
// unconditionally.
type Factory func(cfg map[string]any) Plugin

// factories is the fixed set of named plugin factories. The set is
// closed: workflow validation rejects names outside it.
var factories = map[string]Factory{
	"logging":                 newLogging,
	"debug_logging":           newDebugLogging,
	"reflect_and_retry":       newReflectAndRetry,
	"context_filter":          newContextFilter,
	"save_files_as_artifacts": newSaveFilesAsArtifacts,
	"multimodal_tool_results": newMultimodalToolResults,
	"bigquery_analytics":      newBigQueryAnalytics,
}

// KnownFactory reports whether name is a valid plugin factory.
func KnownFactory(name string) bool {
	_, ok := factories[name]
	return ok
}

// FactoryNames returns the valid plugin names, sorted.
func FactoryNames() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build instantiates the named plugins in order. Factories that produce
// nil (missing configuration) are skipped.
func Build(names []string, config map[string]map[string]any) []Plugin {
	var plugins []Plugin
	for _, name := range names {
		factory, ok := factories[name]
		if !ok {
			continue
		}
		if p := factory(config[name]); p != nil {
			plugins = append(plugins, p)
		}
	}
	return plugins
}

// cfgString reads a string option with a default.
func cfgString(cfg map[string]any, key, def string) string {
	if cfg == nil {
		return def
	}
	if v, ok := cfg[key]; ok {
		return cast.ToString(v)
	}
	return def
}

// cfgInt reads an integer option with a default.
func cfgInt(cfg map[string]any, key string, def int) int {
	if cfg == nil {
		return def
	}
	if v, ok := cfg[key]; ok {
		return cast.ToInt(v)
	}
	return def
}
