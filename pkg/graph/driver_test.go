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
	"strings"
	"sync"
	"testing"

	"github.com/petalflow/petalflow/pkg/errors"
)

// inline is a minimal synchronous Executor for driver tests.
type inline struct{}

func (inline) Name() string { return "inline" }
func (inline) Close() error { return nil }
func (inline) Execute(ctx context.Context, tasks []Task) error {
	for _, task := range tasks {
		if err := task.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

func constant(v any) NodeFunc {
	return func(context.Context, map[string]any) (any, error) {
		return v, nil
	}
}

func sum(deps ...string) NodeFunc {
	return func(_ context.Context, inputs map[string]any) (any, error) {
		total := 0
		for _, dep := range deps {
			total += inputs[dep].(int)
		}
		return total, nil
	}
}

func TestDriverExecutesDependencies(t *testing.T) {
	nodes := []Node{
		{Name: "a", Fn: constant(1)},
		{Name: "b", Deps: []string{"a"}, Fn: sum("a")},
		{Name: "c", Deps: []string{"a", "b"}, Fn: sum("a", "b")},
	}
	d, err := NewDriver("test", nodes, inline{})
	if err != nil {
		t.Fatal(err)
	}

	out, err := d.Execute(context.Background(), []string{"c"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out["c"] != 2 {
		t.Errorf("c = %v, want 2", out["c"])
	}
	if _, present := out["a"]; present {
		t.Error("only requested final vars should be returned")
	}
}

func TestDriverInputsSatisfyDeps(t *testing.T) {
	nodes := []Node{
		{Name: "double", Deps: []string{"x"}, Fn: func(_ context.Context, in map[string]any) (any, error) {
			return in["x"].(int) * 2, nil
		}},
	}
	d, err := NewDriver("test", nodes, inline{})
	if err != nil {
		t.Fatal(err)
	}

	out, err := d.Execute(context.Background(), []string{"double"}, map[string]any{"x": 21})
	if err != nil {
		t.Fatal(err)
	}
	if out["double"] != 42 {
		t.Errorf("double = %v", out["double"])
	}
}

func TestDriverConfigLosesToInputs(t *testing.T) {
	nodes := []Node{
		{Name: "echo", Deps: []string{"v"}, Fn: func(_ context.Context, in map[string]any) (any, error) {
			return in["v"], nil
		}},
	}
	d, err := NewDriver("test", nodes, inline{}, WithConfig(map[string]any{"v": "from-config"}))
	if err != nil {
		t.Fatal(err)
	}

	out, err := d.Execute(context.Background(), []string{"echo"}, map[string]any{"v": "from-input"})
	if err != nil {
		t.Fatal(err)
	}
	if out["echo"] != "from-input" {
		t.Errorf("echo = %v, inputs must shadow config", out["echo"])
	}
}

func TestDriverMissingDependency(t *testing.T) {
	nodes := []Node{
		{Name: "b", Deps: []string{"ghost"}, Fn: sum("ghost")},
	}
	d, err := NewDriver("test", nodes, inline{})
	if err != nil {
		t.Fatal(err)
	}

	_, err = d.Execute(context.Background(), []string{"b"}, nil)
	if err == nil {
		t.Fatal("expected error for missing dependency")
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("error should name the missing dependency: %v", err)
	}
}

func TestDriverCycle(t *testing.T) {
	nodes := []Node{
		{Name: "a", Deps: []string{"b"}, Fn: sum("b")},
		{Name: "b", Deps: []string{"a"}, Fn: sum("a")},
	}
	d, err := NewDriver("test", nodes, inline{})
	if err != nil {
		t.Fatal(err)
	}

	_, err = d.Execute(context.Background(), []string{"a"}, nil)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("error = %v", err)
	}
}

func TestDriverNodeFailureWrapped(t *testing.T) {
	nodes := []Node{
		{Name: "bad", Fn: func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("kaput")
		}},
	}
	d, err := NewDriver("sales", nodes, inline{})
	if err != nil {
		t.Fatal(err)
	}

	_, err = d.Execute(context.Background(), []string{"bad"}, nil)
	var execErr *errors.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("want ExecutionError, got %T", err)
	}
	if execErr.Pipeline != "sales" || execErr.Node != "bad" {
		t.Errorf("error = %+v", execErr)
	}
}

// recordingHook collects lifecycle events.
type recordingHook struct {
	mu     sync.Mutex
	starts int
	nodes  []string
	ends   int
	endErr error
}

func (h *recordingHook) OnRunStart(context.Context, RunInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts++
}

func (h *recordingHook) OnNodeDone(_ context.Context, r NodeResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nodes = append(h.nodes, r.Node)
}

func (h *recordingHook) OnRunEnd(_ context.Context, r RunResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ends++
	h.endErr = r.Err
}

func TestDriverHookLifecycle(t *testing.T) {
	hook := &recordingHook{}
	nodes := []Node{
		{Name: "a", Fn: constant(1)},
		{Name: "b", Deps: []string{"a"}, Fn: sum("a")},
	}
	d, err := NewDriver("test", nodes, inline{}, WithHooks(hook))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := d.Execute(context.Background(), []string{"b"}, nil); err != nil {
		t.Fatal(err)
	}
	if hook.starts != 1 || hook.ends != 1 {
		t.Errorf("starts=%d ends=%d", hook.starts, hook.ends)
	}
	if len(hook.nodes) != 2 {
		t.Errorf("nodes = %v", hook.nodes)
	}
	if hook.endErr != nil {
		t.Errorf("endErr = %v", hook.endErr)
	}
}

func TestDriverOnlyRunsAncestors(t *testing.T) {
	ran := map[string]bool{}
	mark := func(name string, deps ...string) Node {
		return Node{Name: name, Deps: deps, Fn: func(context.Context, map[string]any) (any, error) {
			ran[name] = true
			return name, nil
		}}
	}
	nodes := []Node{mark("a"), mark("b", "a"), mark("unrelated")}
	d, err := NewDriver("test", nodes, inline{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := d.Execute(context.Background(), []string{"b"}, nil); err != nil {
		t.Fatal(err)
	}
	if ran["unrelated"] {
		t.Error("nodes outside the ancestor set must not run")
	}
}
