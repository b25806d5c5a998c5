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

package config

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/petalflow/petalflow/pkg/errors"
	"github.com/petalflow/petalflow/pkg/filesystem"
)

func newTestStore(t *testing.T, pipelineYAML string) *Store {
	t.Helper()
	ctx := context.Background()
	h := filesystem.NewMemory("test")
	if err := h.WriteFile(ctx, ProjectFile, []byte("name: test\n")); err != nil {
		t.Fatal(err)
	}
	if pipelineYAML != "" {
		if err := h.WriteFile(ctx, "pipelines/sales.yaml", []byte(pipelineYAML)); err != nil {
			t.Fatal(err)
		}
	}
	return NewStore(h, nil)
}

func newTestResolver(store *Store, env map[string]string) *Resolver {
	r := NewResolver(store, &Settings{})
	r.lookup = lookupFrom(env)
	r.environ = func() []string {
		var out []string
		for k, v := range env {
			out = append(out, k+"="+v)
		}
		return out
	}
	return r
}

func TestResolveDefaultsOnly(t *testing.T) {
	store := newTestStore(t, "name: sales\n")
	r := newTestResolver(store, nil)

	resolved, err := r.Resolve(context.Background(), "sales", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Run.Executor.Type != "synchronous" {
		t.Errorf("default executor = %q", resolved.Run.Executor.Type)
	}
	if resolved.Run.Retry.Delay.Std() != time.Second {
		t.Errorf("default retry delay = %v", resolved.Run.Retry.Delay)
	}
	if resolved.Run.LogLevel != "info" {
		t.Errorf("default log level = %q", resolved.Run.LogLevel)
	}
}

func TestResolveFileLayer(t *testing.T) {
	store := newTestStore(t, `
name: sales
run:
  inputs:
    x: 1
  final_vars: [revenue, margin]
  executor:
    type: threadpool
    max_workers: 4
  retry:
    max_retries: 3
    delay: 2s
    jitter_factor: 0.1
`)
	r := newTestResolver(store, nil)

	resolved, err := r.Resolve(context.Background(), "sales", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Run.Executor.Type != "threadpool" || resolved.Run.Executor.MaxWorkers != 4 {
		t.Errorf("executor = %+v", resolved.Run.Executor)
	}
	if !reflect.DeepEqual(resolved.Run.FinalVars, []string{"revenue", "margin"}) {
		t.Errorf("final_vars = %v", resolved.Run.FinalVars)
	}
	if resolved.Run.Retry.MaxRetries != 3 || resolved.Run.Retry.Delay.Std() != 2*time.Second {
		t.Errorf("retry = %+v", resolved.Run.Retry)
	}
}

func TestResolveCallTimeOverridesWin(t *testing.T) {
	store := newTestStore(t, `
name: sales
run:
  inputs:
    x: 1
`)
	r := newTestResolver(store, nil)

	resolved, err := r.Resolve(context.Background(), "sales", map[string]any{
		"inputs": map[string]any{"x": 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Run.Inputs["x"] != 2 {
		t.Errorf("inputs.x = %v, want call-time override 2", resolved.Run.Inputs["x"])
	}
}

func TestResolveOverridesMergePerField(t *testing.T) {
	store := newTestStore(t, `
name: sales
run:
  inputs:
    x: 1
    y: 10
`)
	r := newTestResolver(store, nil)

	resolved, err := r.Resolve(context.Background(), "sales", map[string]any{
		"inputs": map[string]any{"y": 20},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Per-field merge: x survives, y is overridden.
	if resolved.Run.Inputs["x"] != 1 || resolved.Run.Inputs["y"] != 20 {
		t.Errorf("inputs = %v", resolved.Run.Inputs)
	}
}

func TestResolveGenericEnvTier(t *testing.T) {
	store := newTestStore(t, `
name: sales
run:
  executor:
    type: threadpool
`)
	r := newTestResolver(store, nil)
	executor := "processpool"
	retries := 5
	r.settings = &Settings{ExecutorType: &executor, MaxRetries: &retries}

	resolved, err := r.Resolve(context.Background(), "sales", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Run.Executor.Type != "processpool" {
		t.Errorf("generic env tier should override file: %q", resolved.Run.Executor.Type)
	}
	if resolved.Run.Retry.MaxRetries != 5 {
		t.Errorf("retry.max_retries = %d", resolved.Run.Retry.MaxRetries)
	}
}

func TestResolveStructuredEnvBeatsGeneric(t *testing.T) {
	store := newTestStore(t, "name: sales\n")
	env := map[string]string{
		"PETALFLOW__RUN__EXECUTOR__TYPE":        "threadpool",
		"PETALFLOW__RUN__EXECUTOR__MAX_WORKERS": "16",
	}
	r := newTestResolver(store, env)
	generic := "processpool"
	r.settings = &Settings{ExecutorType: &generic}

	resolved, err := r.Resolve(context.Background(), "sales", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Run.Executor.Type != "threadpool" {
		t.Errorf("structured tier must beat generic tier: %q", resolved.Run.Executor.Type)
	}
	if resolved.Run.Executor.MaxWorkers != 16 {
		t.Errorf("max_workers = %d", resolved.Run.Executor.MaxWorkers)
	}
}

func TestResolveStructuredEnvBadJSON(t *testing.T) {
	store := newTestStore(t, "name: sales\n")
	env := map[string]string{
		"PETALFLOW__RUN__INPUTS": `{not json`,
	}
	r := newTestResolver(store, env)

	_, err := r.Resolve(context.Background(), "sales", nil)
	if err == nil {
		t.Fatal("expected coercion error")
	}
	if !errors.IsConfig(err) {
		t.Errorf("want ConfigError, got %T", err)
	}
}

func TestResolveInterpolationFailureIsFatal(t *testing.T) {
	store := newTestStore(t, `
name: sales
adapter:
  tracker:
    token: ${API_KEY:?missing}
`)
	r := newTestResolver(store, nil)

	_, err := r.Resolve(context.Background(), "sales", nil)
	if err == nil {
		t.Fatal("expected interpolation failure")
	}
	var configErr *errors.ConfigError
	if !errors.As(err, &configErr) {
		t.Fatalf("want ConfigError, got %T", err)
	}
	if configErr.Reason != "missing" {
		t.Errorf("Reason = %q", configErr.Reason)
	}
}

func TestResolveUnknownPipeline(t *testing.T) {
	store := newTestStore(t, "")
	r := newTestResolver(store, nil)

	_, err := r.Resolve(context.Background(), "nope", nil)
	if err == nil {
		t.Fatal("expected error for unknown pipeline")
	}
	if !errors.IsConfig(err) {
		t.Errorf("want ConfigError, got %T", err)
	}
}

func TestResolveCoercionFailure(t *testing.T) {
	store := newTestStore(t, `
name: sales
run:
  executor:
    max_workers: lots
`)
	r := newTestResolver(store, nil)

	_, err := r.Resolve(context.Background(), "sales", nil)
	if err == nil {
		t.Fatal("expected coercion error")
	}
	if !errors.IsConfig(err) {
		t.Errorf("want ConfigError, got %T", err)
	}
}

func TestResolveDeterministic(t *testing.T) {
	store := newTestStore(t, `
name: sales
run:
  inputs: {x: 1, y: 2}
  final_vars: [a, b, c]
`)
	r := newTestResolver(store, nil)

	first, err := r.Resolve(context.Background(), "sales", map[string]any{"log_level": "debug"})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := r.Resolve(context.Background(), "sales", map[string]any{"log_level": "debug"})
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("resolution is not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestResolveAdapterSettingsMerge(t *testing.T) {
	ctx := context.Background()
	h := filesystem.NewMemory("test")
	project := `
name: test
adapter:
  tracker:
    endpoint: https://track.example.com
    token: project-token
`
	pipeline := `
name: sales
adapter:
  tracker:
    token: pipeline-token
`
	if err := h.WriteFile(ctx, ProjectFile, []byte(project)); err != nil {
		t.Fatal(err)
	}
	if err := h.WriteFile(ctx, "pipelines/sales.yaml", []byte(pipeline)); err != nil {
		t.Fatal(err)
	}
	r := newTestResolver(NewStore(h, nil), nil)

	resolved, err := r.Resolve(ctx, "sales", nil)
	if err != nil {
		t.Fatal(err)
	}
	tracker := resolved.AdapterSettings["tracker"]
	if tracker["endpoint"] != "https://track.example.com" {
		t.Errorf("project-level endpoint lost: %v", tracker)
	}
	if tracker["token"] != "pipeline-token" {
		t.Errorf("pipeline-level token should win: %v", tracker)
	}
}

func TestSettingsFromEnv(t *testing.T) {
	t.Run("bad integer fails", func(t *testing.T) {
		_, err := settingsFrom(lookupFrom(map[string]string{EnvMaxWorkers: "many"}))
		if err == nil {
			t.Fatal("expected error")
		}
		if !errors.IsConfig(err) {
			t.Errorf("want ConfigError, got %T", err)
		}
	})

	t.Run("full snapshot", func(t *testing.T) {
		s, err := settingsFrom(lookupFrom(map[string]string{
			EnvLogLevel:     "debug",
			EnvExecutor:     "threadpool",
			EnvMaxWorkers:   "8",
			EnvMaxRetries:   "2",
			EnvRetryDelay:   "500ms",
			EnvJitterFactor: "0.2",
		}))
		if err != nil {
			t.Fatal(err)
		}
		if *s.LogLevel != "debug" || *s.ExecutorType != "threadpool" {
			t.Errorf("snapshot = %+v", s)
		}
		if *s.MaxWorkers != 8 || *s.MaxRetries != 2 {
			t.Errorf("snapshot = %+v", s)
		}
		if *s.RetryDelay != 500*time.Millisecond || *s.JitterFactor != 0.2 {
			t.Errorf("snapshot = %+v", s)
		}
	})

	t.Run("unset leaves nils", func(t *testing.T) {
		s, err := settingsFrom(lookupFrom(nil))
		if err != nil {
			t.Fatal(err)
		}
		if s.LogLevel != nil || s.MaxWorkers != nil {
			t.Errorf("snapshot should be empty: %+v", s)
		}
	})
}
