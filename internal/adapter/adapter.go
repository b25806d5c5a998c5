// Copyright 2026 The PetalFlow Authors
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

// Package adapter provides the cross-cutting run adapters (progress
// display, run tracking, tracing, metrics) and the factory that builds
// them from resolved run configuration. Adapters observe runs through
// lifecycle hooks and never influence execution results: a misconfigured
// adapter is logged and skipped, not a reason to abort the run.
package adapter

import (
	"log/slog"
	"sort"

	"github.com/petalflow/petalflow/internal/config"
	"github.com/petalflow/petalflow/pkg/graph"
)

// Capability names accepted under with_adapter.
const (
	CapProgress = "progress"
	CapTracker  = "tracker"
	CapTracing  = "tracing"
	CapMetrics  = "metrics"
)

// builder constructs one adapter from its merged settings map.
type builder func(settings map[string]any, logger *slog.Logger) (graph.Hook, error)

var builders = map[string]builder{
	CapProgress: newProgress,
	CapTracker:  newTracker,
	CapTracing:  newTracing,
	CapMetrics:  newMetrics,
}

// Build returns the hooks for every adapter enabled in the resolved run.
// Unknown capability names and adapters whose construction fails are
// logged and skipped.
func Build(resolved config.Resolved, logger *slog.Logger) []graph.Hook {
	if logger == nil {
		logger = slog.Default()
	}

	var hooks []graph.Hook
	for _, name := range enabledCapabilities(resolved.Run.WithAdapter) {
		build, ok := builders[name]
		if !ok {
			logger.Warn("skipping unknown adapter", "adapter", name)
			continue
		}
		hook, err := build(resolved.AdapterSettings[name], logger)
		if err != nil {
			logger.Warn("skipping misconfigured adapter",
				"adapter", name, "error", err)
			continue
		}
		hooks = append(hooks, hook)
	}
	return hooks
}

// enabledCapabilities returns the enabled adapter names in a stable order
// so hook firing order does not change between runs.
func enabledCapabilities(toggles map[string]bool) []string {
	ordered := []string{CapProgress, CapTracker, CapTracing, CapMetrics}

	var names []string
	seen := map[string]bool{}
	for _, name := range ordered {
		if toggles[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	var unknown []string
	for name, on := range toggles {
		if on && !seen[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return append(names, unknown...)
}
