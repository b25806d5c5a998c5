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
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/petalflow/petalflow/internal/log"
	"github.com/petalflow/petalflow/pkg/errors"
	"github.com/petalflow/petalflow/pkg/filesystem"
)

const (
	// ProjectFile is the project configuration file name.
	ProjectFile = "petalflow.yaml"

	// PipelinesDir is the directory holding per-pipeline configuration.
	PipelinesDir = "pipelines"
)

// Store loads, caches, and persists project and pipeline configuration
// through a filesystem handle. Cached objects are read-only; reloads fully
// replace them so concurrent readers never observe a half-updated
// structure.
type Store struct {
	fs     filesystem.Handle
	logger *slog.Logger

	mu        sync.RWMutex
	project   *ProjectConfig
	pipelines map[string]map[string]any

	watcher *fsnotify.Watcher
}

// NewStore creates a store over the given filesystem handle.
func NewStore(h filesystem.Handle, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		fs:        h,
		logger:    log.WithComponent(logger, "config"),
		pipelines: make(map[string]map[string]any),
	}
}

func pipelinePath(name string) string {
	return path.Join(PipelinesDir, name+".yaml")
}

// Project returns the project configuration, loading it on first use.
func (s *Store) Project(ctx context.Context) (*ProjectConfig, error) {
	s.mu.RLock()
	cached := s.project
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	data, err := s.fs.ReadFile(ctx, ProjectFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &errors.ConfigError{
				Key:    ProjectFile,
				Reason: "project configuration not found; run init first",
				Cause:  err,
			}
		}
		return nil, &errors.ConfigError{Key: ProjectFile, Reason: "cannot read project configuration", Cause: err}
	}

	project := &ProjectConfig{}
	if err := yaml.Unmarshal(data, project); err != nil {
		return nil, &errors.ConfigError{Key: ProjectFile, Reason: "malformed project configuration", Cause: err}
	}

	s.mu.Lock()
	s.project = project
	s.mu.Unlock()
	return project, nil
}

// SaveProject persists the project configuration and replaces the cached
// copy.
func (s *Store) SaveProject(ctx context.Context, project *ProjectConfig) error {
	data, err := yaml.Marshal(project)
	if err != nil {
		return &errors.ConfigError{Key: ProjectFile, Reason: "cannot encode project configuration", Cause: err}
	}
	if err := s.fs.WriteFile(ctx, ProjectFile, data); err != nil {
		return err
	}

	s.mu.Lock()
	s.project = project
	s.mu.Unlock()
	return nil
}

// PipelineDoc returns the raw pipeline configuration document, loading and
// caching it on first use. The returned map is a deep copy; callers may
// mutate it freely.
func (s *Store) PipelineDoc(ctx context.Context, name string) (map[string]any, error) {
	s.mu.RLock()
	cached, ok := s.pipelines[name]
	s.mu.RUnlock()
	if ok {
		return deepCopy(cached), nil
	}

	data, err := s.fs.ReadFile(ctx, pipelinePath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &errors.ConfigError{
				Key:    pipelinePath(name),
				Reason: fmt.Sprintf("unknown pipeline %q", name),
				Cause:  err,
			}
		}
		return nil, &errors.ConfigError{Key: pipelinePath(name), Reason: "cannot read pipeline configuration", Cause: err}
	}

	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &errors.ConfigError{Key: pipelinePath(name), Reason: "malformed pipeline configuration", Cause: err}
	}

	s.mu.Lock()
	s.pipelines[name] = doc
	s.mu.Unlock()
	return deepCopy(doc), nil
}

// Pipeline returns the typed pipeline configuration.
func (s *Store) Pipeline(ctx context.Context, name string) (*PipelineConfig, error) {
	data, err := s.fs.ReadFile(ctx, pipelinePath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &errors.ConfigError{
				Key:    pipelinePath(name),
				Reason: fmt.Sprintf("unknown pipeline %q", name),
				Cause:  err,
			}
		}
		return nil, &errors.ConfigError{Key: pipelinePath(name), Reason: "cannot read pipeline configuration", Cause: err}
	}

	cfg := &PipelineConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &errors.ConfigError{Key: pipelinePath(name), Reason: "malformed pipeline configuration", Cause: err}
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	return cfg, nil
}

// SavePipeline persists a pipeline configuration and invalidates the
// cached document.
func (s *Store) SavePipeline(ctx context.Context, cfg *PipelineConfig) error {
	if cfg.Name == "" {
		return &errors.ConfigError{Key: "name", Reason: "pipeline name is required"}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return &errors.ConfigError{Key: pipelinePath(cfg.Name), Reason: "cannot encode pipeline configuration", Cause: err}
	}
	if err := s.fs.WriteFile(ctx, pipelinePath(cfg.Name), data); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.pipelines, cfg.Name)
	s.mu.Unlock()
	return nil
}

// NewPipeline creates a pipeline configuration with defaults. Creating a
// pipeline that already exists is an error.
func (s *Store) NewPipeline(ctx context.Context, name string) (*PipelineConfig, error) {
	exists, err := s.fs.Exists(ctx, pipelinePath(name))
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &errors.ConfigError{
			Key:    pipelinePath(name),
			Reason: fmt.Sprintf("pipeline %q already exists", name),
		}
	}

	cfg := &PipelineConfig{
		Name: name,
		Run:  DefaultRunConfig(),
	}
	if err := s.SavePipeline(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListPipelines returns the names of all configured pipelines, sorted.
func (s *Store) ListPipelines(ctx context.Context) ([]string, error) {
	files, err := s.fs.List(ctx, PipelinesDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, file := range files {
		base := path.Base(file)
		if strings.HasSuffix(base, ".yaml") {
			names = append(names, strings.TrimSuffix(base, ".yaml"))
		}
	}
	return names, nil
}

// Invalidate drops all cached configuration. The next access reloads from
// the filesystem; cached objects are replaced wholesale, never mutated.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.project = nil
	s.pipelines = make(map[string]map[string]any)
	s.mu.Unlock()
}

// Watch invalidates cached configuration whenever a file under the project
// root changes. Only local handles can be watched; other backends report
// an unsupported operation.
func (s *Store) Watch(ctx context.Context) error {
	if s.fs.Scheme() != "file" {
		return &errors.UnsupportedError{Backend: s.fs.Scheme(), Op: "watch"}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.fs.Root()); err != nil {
		watcher.Close()
		return err
	}
	// The pipelines dir may not exist yet; watching it is best-effort.
	_ = watcher.Add(path.Join(s.fs.Root(), PipelinesDir))

	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					s.logger.Debug("config changed, invalidating cache", slog.String("file", event.Name))
					s.Invalidate()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("config watcher error", slog.Any("error", err))
			}
		}
	}()
	return nil
}

// deepCopy copies a configuration document so cached state stays
// read-only.
func deepCopy(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for key, value := range src {
		out[key] = deepCopyValue(value)
	}
	return out
}

func deepCopyValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		return deepCopy(value)
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return value
	}
}
