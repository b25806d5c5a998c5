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

// Package commands implements the petalflow CLI command tree.
package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/petalflow/petalflow/internal/config"
	"github.com/petalflow/petalflow/internal/jobqueue"
	"github.com/petalflow/petalflow/internal/log"
	"github.com/petalflow/petalflow/internal/manager"
	"github.com/petalflow/petalflow/internal/output"
	"github.com/petalflow/petalflow/internal/pipeline"
	"github.com/petalflow/petalflow/pkg/filesystem"
)

// App carries the state shared across commands: global flags plus the
// pipeline definitions compiled into this binary.
type App struct {
	// ProjectDir is the project root (--project). Defaults to the
	// current directory.
	ProjectDir string

	// JSON selects the JSON output envelope (--json).
	JSON bool

	// Registry and Callbacks hold the pipeline code registered by the
	// embedding binary.
	Registry  *pipeline.Registry
	Callbacks *pipeline.Callbacks

	logger *slog.Logger
}

// NewApp builds the command state around the given pipeline definitions.
func NewApp(registry *pipeline.Registry, callbacks *pipeline.Callbacks) *App {
	if registry == nil {
		registry = pipeline.NewRegistry()
	}
	if callbacks == nil {
		callbacks = pipeline.NewCallbacks()
	}
	return &App{
		ProjectDir: ".",
		Registry:   registry,
		Callbacks:  callbacks,
		logger:     log.New(log.FromEnv()),
	}
}

func (a *App) formatter() output.Formatter {
	return output.New(nil, a.JSON)
}

// store opens the project's configuration store.
func (a *App) store() (*config.Store, error) {
	handle, err := filesystem.GetHandle(a.ProjectDir, filesystem.Options{})
	if err != nil {
		return nil, err
	}
	return config.NewStore(handle, a.logger), nil
}

// manager assembles the full façade: store, resolver, runner, and job
// queue gateway, configured from the project file.
func (a *App) manager(ctx context.Context) (*manager.PipelineManager, error) {
	store, err := a.store()
	if err != nil {
		return nil, err
	}
	return a.managerWith(ctx, store)
}

func (a *App) managerWith(ctx context.Context, store *config.Store) (*manager.PipelineManager, error) {
	project, err := store.Project(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := config.SettingsFromEnv()
	if err != nil {
		return nil, err
	}

	return manager.New(manager.Options{
		Store:     store,
		Resolver:  config.NewResolver(store, settings),
		Registry:  a.Registry,
		Callbacks: a.Callbacks,
		Gateway:   jobqueue.NewGateway(project.JobQueue),
		Logger:    a.logger,
	}), nil
}

// fail renders the error through the formatter and returns it so the
// process still exits non-zero.
func fail(f output.Formatter, command string, err error) error {
	_ = f.Failure(command, err)
	return err
}

// parseAssignments turns k=v flag values into a map, coercing each value
// the way structured environment overrides are coerced: valid JSON is
// decoded, anything else stays a string.
func parseAssignments(pairs []string) map[string]any {
	if len(pairs) == 0 {
		return nil
	}
	out := map[string]any{}
	for _, pair := range pairs {
		key, raw, found := strings.Cut(pair, "=")
		if !found {
			out[pair] = true
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			out[key] = decoded
		} else {
			out[key] = raw
		}
	}
	return out
}
