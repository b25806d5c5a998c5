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

// Package manager wires the orchestration core together: it resolves run
// configuration, executes pipelines through the runner, and fronts the
// job queue for deferred and scheduled execution.
package manager

import (
	"context"
	"log/slog"

	"github.com/petalflow/petalflow/internal/config"
	"github.com/petalflow/petalflow/internal/jobqueue"
	"github.com/petalflow/petalflow/internal/pipeline"
	"github.com/petalflow/petalflow/internal/runner"
	"github.com/petalflow/petalflow/pkg/errors"
)

// PipelineManager is the façade the CLI talks to.
type PipelineManager struct {
	store    *config.Store
	resolver *config.Resolver
	runner   *runner.PipelineRunner
	gateway  *jobqueue.Gateway
	logger   *slog.Logger
}

// Options collects the manager's collaborators.
type Options struct {
	Store     *config.Store
	Resolver  *config.Resolver
	Registry  *pipeline.Registry
	Callbacks *pipeline.Callbacks
	Gateway   *jobqueue.Gateway
	Logger    *slog.Logger
}

// New builds a manager.
func New(opts Options) *PipelineManager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineManager{
		store:    opts.Store,
		resolver: opts.Resolver,
		runner:   runner.New(opts.Registry, opts.Callbacks, logger),
		gateway:  opts.Gateway,
		logger:   logger,
	}
}

// RunOptions are the call-time overrides a caller can pass to Run,
// AddJob, or Schedule. Only set fields override the resolved
// configuration.
type RunOptions struct {
	Inputs      map[string]any
	FinalVars   []string
	Executor    string
	MaxWorkers  int
	MaxRetries  *int
	LogLevel    string
	WithAdapter map[string]bool
}

// overrides renders the options as a call-time override map, the highest
// precedence configuration layer.
func (o RunOptions) overrides() map[string]any {
	out := map[string]any{}
	if len(o.Inputs) > 0 {
		out["inputs"] = o.Inputs
	}
	if len(o.FinalVars) > 0 {
		out["final_vars"] = o.FinalVars
	}
	if o.Executor != "" {
		executor := map[string]any{"type": o.Executor}
		if o.MaxWorkers > 0 {
			executor["max_workers"] = o.MaxWorkers
		}
		out["executor"] = executor
	}
	if o.MaxRetries != nil {
		out["retry"] = map[string]any{"max_retries": *o.MaxRetries}
	}
	if o.LogLevel != "" {
		out["log_level"] = o.LogLevel
	}
	if len(o.WithAdapter) > 0 {
		adapters := map[string]any{}
		for name, enabled := range o.WithAdapter {
			adapters[name] = enabled
		}
		out["with_adapter"] = adapters
	}
	return out
}

// Run resolves and executes a pipeline immediately.
func (m *PipelineManager) Run(ctx context.Context, pipelineName string, opts RunOptions) (map[string]any, error) {
	resolved, err := m.resolver.Resolve(ctx, pipelineName, opts.overrides())
	if err != nil {
		return nil, err
	}
	return m.runner.Run(ctx, *resolved)
}

// AddJob queues a pipeline for deferred execution and returns the job
// record. Resolution happens at execution time; only the override map is
// captured now.
func (m *PipelineManager) AddJob(ctx context.Context, pipelineName string, opts RunOptions) (jobqueue.Job, error) {
	// Fail unknown pipelines at submit time, not in the worker.
	if _, err := m.store.Pipeline(ctx, pipelineName); err != nil {
		return jobqueue.Job{}, err
	}

	backend, err := m.gateway.Backend()
	if err != nil {
		return jobqueue.Job{}, err
	}
	job := jobqueue.NewJob(pipelineName, opts.overrides())
	if err := backend.AddJob(ctx, job); err != nil {
		return jobqueue.Job{}, err
	}
	m.logger.Info("job queued", "job_id", job.ID, "pipeline", pipelineName)
	return job, nil
}

// Schedule registers recurring execution of a pipeline. The trigger
// comes from the spec (CLI flags or the pipeline's schedule section).
func (m *PipelineManager) Schedule(ctx context.Context, pipelineName string, spec config.ScheduleSpec, opts RunOptions) (jobqueue.Schedule, error) {
	if _, err := m.store.Pipeline(ctx, pipelineName); err != nil {
		return jobqueue.Schedule{}, err
	}

	trigger, err := jobqueue.TriggerFrom(spec)
	if err != nil {
		return jobqueue.Schedule{}, err
	}
	schedule, err := jobqueue.NewSchedule(pipelineName, trigger, opts.overrides())
	if err != nil {
		return jobqueue.Schedule{}, err
	}

	backend, err := m.gateway.Backend()
	if err != nil {
		return jobqueue.Schedule{}, err
	}
	if err := backend.AddSchedule(ctx, schedule); err != nil {
		return jobqueue.Schedule{}, err
	}
	m.logger.Info("schedule created",
		"schedule_id", schedule.ID, "pipeline", pipelineName, "trigger", trigger.Describe())
	return schedule, nil
}

// SchedulePipeline registers the schedule defined in the pipeline's own
// configuration. Pipelines without an enabled schedule section are a
// configuration error.
func (m *PipelineManager) SchedulePipeline(ctx context.Context, pipelineName string, opts RunOptions) (jobqueue.Schedule, error) {
	cfg, err := m.store.Pipeline(ctx, pipelineName)
	if err != nil {
		return jobqueue.Schedule{}, err
	}
	if !cfg.Schedule.Enabled {
		return jobqueue.Schedule{}, &errors.ConfigError{
			Key:    "pipeline." + pipelineName + ".schedule",
			Reason: "pipeline has no enabled schedule",
		}
	}
	return m.Schedule(ctx, pipelineName, cfg.Schedule, opts)
}

// Jobs, Job, CancelJob, CancelJobs, DeleteJob, and DeleteJobs expose job
// administration on the configured backend.

func (m *PipelineManager) Jobs(ctx context.Context) ([]jobqueue.Job, error) {
	backend, err := m.gateway.Backend()
	if err != nil {
		return nil, err
	}
	return backend.Jobs(ctx)
}

func (m *PipelineManager) Job(ctx context.Context, id string) (jobqueue.Job, error) {
	backend, err := m.gateway.Backend()
	if err != nil {
		return jobqueue.Job{}, err
	}
	return backend.Job(ctx, id)
}

func (m *PipelineManager) CancelJob(ctx context.Context, id string) (bool, error) {
	backend, err := m.gateway.Backend()
	if err != nil {
		return false, err
	}
	return backend.CancelJob(ctx, id)
}

func (m *PipelineManager) CancelJobs(ctx context.Context) (int, error) {
	backend, err := m.gateway.Backend()
	if err != nil {
		return 0, err
	}
	return backend.CancelJobs(ctx)
}

func (m *PipelineManager) DeleteJob(ctx context.Context, id string) error {
	backend, err := m.gateway.Backend()
	if err != nil {
		return err
	}
	return backend.DeleteJob(ctx, id)
}

func (m *PipelineManager) DeleteJobs(ctx context.Context) (int, error) {
	backend, err := m.gateway.Backend()
	if err != nil {
		return 0, err
	}
	return backend.DeleteJobs(ctx)
}

// Schedule administration mirrors job administration.

func (m *PipelineManager) Schedules(ctx context.Context) ([]jobqueue.Schedule, error) {
	backend, err := m.gateway.Backend()
	if err != nil {
		return nil, err
	}
	return backend.Schedules(ctx)
}

func (m *PipelineManager) GetSchedule(ctx context.Context, id string) (jobqueue.Schedule, error) {
	backend, err := m.gateway.Backend()
	if err != nil {
		return jobqueue.Schedule{}, err
	}
	return backend.Schedule(ctx, id)
}

func (m *PipelineManager) PauseSchedule(ctx context.Context, id string) error {
	backend, err := m.gateway.Backend()
	if err != nil {
		return err
	}
	return backend.PauseSchedule(ctx, id)
}

func (m *PipelineManager) ResumeSchedule(ctx context.Context, id string) error {
	backend, err := m.gateway.Backend()
	if err != nil {
		return err
	}
	return backend.ResumeSchedule(ctx, id)
}

func (m *PipelineManager) CancelSchedule(ctx context.Context, id string) (bool, error) {
	backend, err := m.gateway.Backend()
	if err != nil {
		return false, err
	}
	return backend.CancelSchedule(ctx, id)
}

func (m *PipelineManager) CancelSchedules(ctx context.Context) (int, error) {
	backend, err := m.gateway.Backend()
	if err != nil {
		return 0, err
	}
	return backend.CancelSchedules(ctx)
}

func (m *PipelineManager) DeleteSchedule(ctx context.Context, id string) error {
	backend, err := m.gateway.Backend()
	if err != nil {
		return err
	}
	return backend.DeleteSchedule(ctx, id)
}

func (m *PipelineManager) DeleteSchedules(ctx context.Context) (int, error) {
	backend, err := m.gateway.Backend()
	if err != nil {
		return 0, err
	}
	return backend.DeleteSchedules(ctx)
}
