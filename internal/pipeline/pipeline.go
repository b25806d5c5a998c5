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

// Package pipeline holds the in-process registry of pipeline definitions
// and the callback registry used for on_success / on_failure hooks.
// Definitions are code (node functions wired into a graph); the YAML side
// of a pipeline only configures how a registered definition runs.
package pipeline

import (
	"sort"
	"sync"

	"github.com/petalflow/petalflow/pkg/errors"
	"github.com/petalflow/petalflow/pkg/graph"
)

// Pipeline is a named computation graph definition.
type Pipeline struct {
	Name  string
	Nodes []graph.Node
}

// Registry maps pipeline names to their definitions. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	pipelines map[string]Pipeline
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{pipelines: map[string]Pipeline{}}
}

// Register adds or replaces a pipeline definition. Registering an unnamed
// or empty pipeline is a configuration error.
func (r *Registry) Register(p Pipeline) error {
	if p.Name == "" {
		return &errors.ConfigError{Key: "pipeline.name", Reason: "pipeline name is required"}
	}
	if len(p.Nodes) == 0 {
		return &errors.ConfigError{Key: "pipeline." + p.Name, Reason: "pipeline has no nodes"}
	}
	seen := map[string]bool{}
	for _, node := range p.Nodes {
		if node.Name == "" {
			return &errors.ConfigError{Key: "pipeline." + p.Name, Reason: "node without a name"}
		}
		if node.Fn == nil {
			return &errors.ConfigError{Key: "pipeline." + p.Name, Reason: "node " + node.Name + " has no function"}
		}
		if seen[node.Name] {
			return &errors.ConfigError{Key: "pipeline." + p.Name, Reason: "duplicate node " + node.Name}
		}
		seen[node.Name] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipelines[p.Name] = p
	return nil
}

// Get returns the named pipeline definition.
func (r *Registry) Get(name string) (Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[name]
	if !ok {
		return Pipeline{}, &errors.NotFoundError{Resource: "pipeline", ID: name}
	}
	return p, nil
}

// Names returns the registered pipeline names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pipelines))
	for name := range r.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
