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

package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/petalflow/petalflow/pkg/errors"
)

// driver is the reference Driver implementation: topological execution of
// the ancestor set of the requested final variables, level by level, with
// each level's nodes dispatched through the execution strategy.
type driver struct {
	pipeline string
	nodes    map[string]Node
	executor Executor
	hooks    []Hook
	config   map[string]any
}

// Option configures a driver.
type Option func(*driver)

// WithHooks attaches lifecycle hooks to the driver.
func WithHooks(hooks ...Hook) Option {
	return func(d *driver) {
		d.hooks = append(d.hooks, hooks...)
	}
}

// WithConfig supplies a static configuration map visible to nodes as
// low-precedence inputs; run inputs with the same name win.
func WithConfig(config map[string]any) Option {
	return func(d *driver) {
		d.config = config
	}
}

// NewDriver builds a Driver over the given nodes using the given execution
// strategy. Node names must be unique.
func NewDriver(pipeline string, nodes []Node, executor Executor, opts ...Option) (Driver, error) {
	byName := make(map[string]Node, len(nodes))
	for _, node := range nodes {
		if _, dup := byName[node.Name]; dup {
			return nil, fmt.Errorf("duplicate node %q in pipeline %s", node.Name, pipeline)
		}
		byName[node.Name] = node
	}

	d := &driver{
		pipeline: pipeline,
		nodes:    byName,
		executor: executor,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Execute implements Driver.
func (d *driver) Execute(ctx context.Context, finalVars []string, inputs map[string]any) (map[string]any, error) {
	start := time.Now()

	// Seed values: static config first, run inputs on top.
	values := &valueStore{values: map[string]any{}}
	for name, value := range d.config {
		values.set(name, value)
	}
	for name, value := range inputs {
		values.set(name, value)
	}

	needed, err := d.requiredNodes(finalVars, values)
	if err != nil {
		return nil, err
	}

	levels, err := d.level(needed, values)
	if err != nil {
		return nil, err
	}

	info := RunInfo{
		Pipeline:  d.pipeline,
		FinalVars: finalVars,
		Inputs:    inputs,
		NodeCount: len(needed),
	}
	for _, hook := range d.hooks {
		hook.OnRunStart(ctx, info)
	}

	execErr := d.runLevels(ctx, levels, values)

	outputs := map[string]any{}
	if execErr == nil {
		for _, name := range finalVars {
			value, ok := values.get(name)
			if !ok {
				execErr = &errors.ExecutionError{
					Pipeline: d.pipeline,
					Message:  fmt.Sprintf("final variable %q was not produced", name),
				}
				break
			}
			outputs[name] = value
		}
	}

	result := RunResult{
		Pipeline: d.pipeline,
		Outputs:  outputs,
		Duration: time.Since(start),
		Err:      execErr,
	}
	for _, hook := range d.hooks {
		hook.OnRunEnd(ctx, result)
	}

	if execErr != nil {
		return nil, execErr
	}
	return outputs, nil
}

// requiredNodes returns the ancestor closure of the final variables,
// excluding names already satisfied by inputs or config.
func (d *driver) requiredNodes(finalVars []string, values *valueStore) (map[string]Node, error) {
	needed := map[string]Node{}
	var visit func(name string, trail []string) error
	visit = func(name string, trail []string) error {
		if _, done := needed[name]; done {
			return nil
		}
		node, ok := d.nodes[name]
		if !ok {
			if _, provided := values.get(name); provided {
				return nil
			}
			origin := "requested"
			if len(trail) > 0 {
				origin = fmt.Sprintf("required by %s", trail[len(trail)-1])
			}
			return &errors.ExecutionError{
				Pipeline: d.pipeline,
				Message:  fmt.Sprintf("no node or input named %q (%s)", name, origin),
			}
		}
		needed[name] = node
		for _, dep := range node.Deps {
			if err := visit(dep, append(trail, name)); err != nil {
				return err
			}
		}
		return nil
	}

	for _, name := range finalVars {
		if _, provided := values.get(name); provided {
			continue
		}
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return needed, nil
}

// level groups the needed nodes into dependency levels: every node in a
// level depends only on values produced by earlier levels or on inputs.
func (d *driver) level(needed map[string]Node, values *valueStore) ([][]Node, error) {
	resolved := map[string]bool{}
	remaining := make(map[string]Node, len(needed))
	for name, node := range needed {
		remaining[name] = node
	}

	var levels [][]Node
	for len(remaining) > 0 {
		var level []Node
		for _, node := range remaining {
			ready := true
			for _, dep := range node.Deps {
				if _, provided := values.get(dep); provided {
					continue
				}
				if !resolved[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, node)
			}
		}
		if len(level) == 0 {
			return nil, &errors.ExecutionError{
				Pipeline: d.pipeline,
				Message:  "dependency cycle detected",
			}
		}
		for _, node := range level {
			resolved[node.Name] = true
			delete(remaining, node.Name)
		}
		sortNodes(level)
		levels = append(levels, level)
	}
	return levels, nil
}

// runLevels executes each level through the strategy, stopping at the
// first failed level.
func (d *driver) runLevels(ctx context.Context, levels [][]Node, values *valueStore) error {
	for _, level := range levels {
		tasks := make([]Task, 0, len(level))
		for _, node := range level {
			node := node
			tasks = append(tasks, Task{
				Name: node.Name,
				Run: func(ctx context.Context) error {
					return d.runNode(ctx, node, values)
				},
			})
		}
		if err := d.executor.Execute(ctx, tasks); err != nil {
			return err
		}
	}
	return nil
}

func (d *driver) runNode(ctx context.Context, node Node, values *valueStore) error {
	start := time.Now()

	nodeInputs := make(map[string]any, len(node.Deps))
	for _, dep := range node.Deps {
		value, ok := values.get(dep)
		if !ok {
			return &errors.ExecutionError{
				Pipeline: d.pipeline,
				Node:     node.Name,
				Message:  fmt.Sprintf("dependency %q has no value", dep),
			}
		}
		nodeInputs[dep] = value
	}

	value, err := node.Fn(ctx, nodeInputs)
	duration := time.Since(start)

	if err == nil {
		values.set(node.Name, value)
	}

	result := NodeResult{
		Pipeline: d.pipeline,
		Node:     node.Name,
		Duration: duration,
		Err:      err,
	}
	for _, hook := range d.hooks {
		hook.OnNodeDone(ctx, result)
	}

	if err != nil {
		return &errors.ExecutionError{
			Pipeline: d.pipeline,
			Node:     node.Name,
			Message:  err.Error(),
			Cause:    err,
		}
	}
	return nil
}

// valueStore holds produced values. Nodes in one level may run
// concurrently, so access is guarded.
type valueStore struct {
	mu     sync.RWMutex
	values map[string]any
}

func (s *valueStore) get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[name]
	return value, ok
}

func (s *valueStore) set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

func sortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
}
