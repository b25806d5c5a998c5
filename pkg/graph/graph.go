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

// Package graph defines the contract between the orchestration core and
// the graph-execution engine: nodes, execution strategies, lifecycle hooks,
// and the Driver interface. It also ships a reference driver that resolves
// dependencies topologically and runs independent nodes through the
// configured execution strategy.
package graph

import (
	"context"
	"time"
)

// NodeFunc computes one named value from its resolved dependencies.
type NodeFunc func(ctx context.Context, inputs map[string]any) (any, error)

// Node is one vertex of the computation graph. Dependencies refer to other
// node names or to run inputs.
type Node struct {
	Name string
	Deps []string
	Fn   NodeFunc

	// Tags carry free-form metadata consumed by hooks (e.g. tracking).
	Tags map[string]string
}

// Task is one unit of work handed to an execution strategy. Tasks passed
// to a single Execute call are independent and may run concurrently.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Executor is the execution strategy contract. Implementations decide how
// a batch of independent tasks runs: inline, across a goroutine pool, or
// elsewhere.
type Executor interface {
	// Name returns the strategy tag ("synchronous", "threadpool", ...).
	Name() string

	// Execute runs a batch of independent tasks and returns the first
	// error encountered. Implementations must not start new tasks after
	// the context is cancelled.
	Execute(ctx context.Context, tasks []Task) error

	// Close releases any pooled resources. It is called unconditionally
	// when a run finishes, including on the failure path.
	Close() error
}

// RunInfo describes a run to lifecycle hooks before execution starts.
type RunInfo struct {
	Pipeline  string
	FinalVars []string
	Inputs    map[string]any
	NodeCount int
}

// NodeResult describes one completed node to lifecycle hooks.
type NodeResult struct {
	Pipeline string
	Node     string
	Duration time.Duration
	Err      error
}

// RunResult describes a finished run to lifecycle hooks.
type RunResult struct {
	Pipeline string
	Outputs  map[string]any
	Duration time.Duration
	Err      error
}

// Hook observes run lifecycle events. Hooks are optional cross-cutting
// behaviors; they must not influence execution results.
type Hook interface {
	OnRunStart(ctx context.Context, info RunInfo)
	OnNodeDone(ctx context.Context, result NodeResult)
	OnRunEnd(ctx context.Context, result RunResult)
}

// Driver executes a computation graph: it resolves which nodes are needed
// for the requested final variables, runs them, and returns the requested
// values by name.
type Driver interface {
	Execute(ctx context.Context, finalVars []string, inputs map[string]any) (map[string]any, error)
}
