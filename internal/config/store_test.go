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

	"github.com/petalflow/petalflow/pkg/errors"
	"github.com/petalflow/petalflow/pkg/filesystem"
)

func TestStoreProjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(filesystem.NewMemory("t"), nil)

	project := &ProjectConfig{
		Name:     "demo",
		JobQueue: JobQueueConfig{Type: "sqlite", Path: "jobs.db"},
	}
	if err := store.SaveProject(ctx, project); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Project(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Name != "demo" || loaded.JobQueue.Type != "sqlite" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestStoreProjectMissing(t *testing.T) {
	store := NewStore(filesystem.NewMemory("t"), nil)
	_, err := store.Project(context.Background())
	if err == nil {
		t.Fatal("expected error for missing project config")
	}
	if !errors.IsConfig(err) {
		t.Errorf("want ConfigError, got %T", err)
	}
}

func TestStoreNewPipeline(t *testing.T) {
	ctx := context.Background()
	store := NewStore(filesystem.NewMemory("t"), nil)

	cfg, err := store.NewPipeline(ctx, "sales")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Run.Executor.Type != "synchronous" {
		t.Errorf("new pipeline should carry defaults: %+v", cfg.Run)
	}

	// Creating the same pipeline twice is an error.
	if _, err := store.NewPipeline(ctx, "sales"); err == nil {
		t.Error("expected error for duplicate pipeline")
	}

	names, err := store.ListPipelines(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"sales"}) {
		t.Errorf("ListPipelines() = %v", names)
	}
}

func TestStoreCachedDocIsCopied(t *testing.T) {
	ctx := context.Background()
	h := filesystem.NewMemory("t")
	if err := h.WriteFile(ctx, "pipelines/p.yaml", []byte("name: p\nparams:\n  a: 1\n")); err != nil {
		t.Fatal(err)
	}
	store := NewStore(h, nil)

	first, err := store.PipelineDoc(ctx, "p")
	if err != nil {
		t.Fatal(err)
	}
	// Mutating the returned document must not leak into the cache.
	first["params"].(map[string]any)["a"] = 99

	second, err := store.PipelineDoc(ctx, "p")
	if err != nil {
		t.Fatal(err)
	}
	if second["params"].(map[string]any)["a"] != 1 {
		t.Error("cached document was mutated through a returned copy")
	}
}

func TestStoreInvalidateReloads(t *testing.T) {
	ctx := context.Background()
	h := filesystem.NewMemory("t")
	if err := h.WriteFile(ctx, "pipelines/p.yaml", []byte("name: p\nparams: {v: 1}\n")); err != nil {
		t.Fatal(err)
	}
	store := NewStore(h, nil)

	if _, err := store.PipelineDoc(ctx, "p"); err != nil {
		t.Fatal(err)
	}
	if err := h.WriteFile(ctx, "pipelines/p.yaml", []byte("name: p\nparams: {v: 2}\n")); err != nil {
		t.Fatal(err)
	}

	// Still served from cache.
	doc, err := store.PipelineDoc(ctx, "p")
	if err != nil {
		t.Fatal(err)
	}
	if doc["params"].(map[string]any)["v"] != 1 {
		t.Errorf("expected cached value, got %v", doc["params"])
	}

	store.Invalidate()
	doc, err = store.PipelineDoc(ctx, "p")
	if err != nil {
		t.Fatal(err)
	}
	if doc["params"].(map[string]any)["v"] != 2 {
		t.Errorf("expected reloaded value, got %v", doc["params"])
	}
}

func TestStoreWatchUnsupportedOnRemote(t *testing.T) {
	store := NewStore(filesystem.NewMemory("t"), nil)
	err := store.Watch(context.Background())
	if !errors.IsUnsupported(err) {
		t.Errorf("want UnsupportedError, got %v", err)
	}
}

func TestStoreTypedPipelineDurations(t *testing.T) {
	ctx := context.Background()
	h := filesystem.NewMemory("t")
	doc := `
name: nightly
run:
  retry:
    max_retries: 2
    delay: 30s
schedule:
  enabled: true
  interval: 5m
`
	if err := h.WriteFile(ctx, "pipelines/nightly.yaml", []byte(doc)); err != nil {
		t.Fatal(err)
	}
	store := NewStore(h, nil)

	cfg, err := store.Pipeline(ctx, "nightly")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Run.Retry.Delay.Std().Seconds() != 30 {
		t.Errorf("delay = %v", cfg.Run.Retry.Delay)
	}
	if cfg.Schedule.Interval.Std().Minutes() != 5 {
		t.Errorf("interval = %v", cfg.Schedule.Interval)
	}
}
