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

// Package runner turns a resolved run configuration into an actual
// pipeline execution: it loads the pipeline definition, builds the
// execution strategy and adapters, drives the graph with the configured
// retry policy, and fires completion callbacks.
package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/petalflow/petalflow/internal/adapter"
	"github.com/petalflow/petalflow/internal/config"
	"github.com/petalflow/petalflow/internal/executor"
	"github.com/petalflow/petalflow/internal/log"
	"github.com/petalflow/petalflow/internal/pipeline"
	"github.com/petalflow/petalflow/pkg/errors"
	"github.com/petalflow/petalflow/pkg/graph"
)

// PipelineRunner executes resolved runs against a pipeline registry.
type PipelineRunner struct {
	registry  *pipeline.Registry
	callbacks *pipeline.Callbacks
	logger    *slog.Logger
}

// New builds a runner. callbacks may be nil when no completion callbacks
// are registered.
func New(registry *pipeline.Registry, callbacks *pipeline.Callbacks, logger *slog.Logger) *PipelineRunner {
	if callbacks == nil {
		callbacks = pipeline.NewCallbacks()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineRunner{registry: registry, callbacks: callbacks, logger: logger}
}

// Run executes one resolved run and returns the requested final
// variables. Failures exhaust the retry policy before surfacing; the
// surfaced error chains the original failure and carries the attempt
// count and total elapsed time.
func (r *PipelineRunner) Run(ctx context.Context, resolved config.Resolved) (map[string]any, error) {
	def, err := r.registry.Get(resolved.Pipeline)
	if err != nil {
		return nil, err
	}

	run := resolved.Run
	if err := r.validateCallbacks(run); err != nil {
		return nil, err
	}
	policy, err := compileRetry(run.Retry)
	if err != nil {
		return nil, err
	}

	logger := log.WithPipeline(r.runLogger(run), resolved.Pipeline)

	exec := executor.From(run.Executor, logger)
	defer func() {
		if closeErr := exec.Close(); closeErr != nil {
			logger.Warn("executor close failed", "error", closeErr)
		}
	}()

	hooks := adapter.Build(resolved, logger)
	driver, err := graph.NewDriver(def.Name, def.Nodes, exec,
		graph.WithHooks(hooks...),
		graph.WithConfig(resolved.Params))
	if err != nil {
		return nil, err
	}

	logger.Info("run starting",
		log.ExecutorKey, exec.Name(),
		"final_vars", run.FinalVars,
		"max_retries", run.Retry.MaxRetries)

	start := time.Now()
	outputs, runErr := r.execute(ctx, driver, resolved, policy, logger)
	elapsed := time.Since(start)

	if runErr != nil {
		logger.Error("run failed", "error", runErr, log.DurationKey, elapsed)
		r.fire(ctx, run.OnFailure, resolved.Pipeline, nil, runErr, logger)
		return nil, runErr
	}

	logger.Info("run completed", log.DurationKey, elapsed)
	r.fire(ctx, run.OnSuccess, resolved.Pipeline, outputs, nil, logger)
	return outputs, nil
}

// execute drives the graph, retrying per policy. attempt is 1-based.
func (r *PipelineRunner) execute(
	ctx context.Context,
	driver graph.Driver,
	resolved config.Resolved,
	policy *retryPolicy,
	logger *slog.Logger,
) (map[string]any, error) {
	start := time.Now()
	var lastErr error

	for attempt := 1; ; attempt++ {
		outputs, err := driver.Execute(ctx, resolved.Run.FinalVars, resolved.Run.Inputs)
		if err == nil {
			return outputs, nil
		}
		lastErr = err

		retry, condErr := policy.shouldRetry(resolved.Pipeline, attempt, err)
		if condErr != nil {
			return nil, condErr
		}
		if !retry || ctx.Err() != nil {
			return nil, &errors.ExecutionError{
				Pipeline: resolved.Pipeline,
				Message:  "run failed",
				Attempts: attempt,
				Elapsed:  time.Since(start),
				Cause:    lastErr,
			}
		}

		delay := policy.backoff()
		logger.Warn("attempt failed, retrying",
			"attempt", attempt, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &errors.ExecutionError{
				Pipeline: resolved.Pipeline,
				Message:  "run cancelled while waiting to retry",
				Attempts: attempt,
				Elapsed:  time.Since(start),
				Cause:    lastErr,
			}
		}
	}
}

func (r *PipelineRunner) validateCallbacks(run config.RunConfig) error {
	var names []string
	if run.OnSuccess != "" {
		names = append(names, run.OnSuccess)
	}
	if run.OnFailure != "" {
		names = append(names, run.OnFailure)
	}
	return r.callbacks.Validate(names)
}

// fire invokes a completion callback. Callback panics are contained so a
// notification bug cannot change the run outcome.
func (r *PipelineRunner) fire(ctx context.Context, name, pipelineName string, outputs map[string]any, runErr error, logger *slog.Logger) {
	if name == "" {
		return
	}
	fn, err := r.callbacks.Get(name)
	if err != nil {
		logger.Warn("completion callback missing", "callback", name)
		return
	}
	defer func() {
		if p := recover(); p != nil {
			logger.Error("completion callback panicked", "callback", name, "panic", p)
		}
	}()
	fn(ctx, pipelineName, outputs, runErr)
}

// runLogger applies the run's log level override. Unknown level strings
// parse to info, so a typo degrades rather than failing the run.
func (r *PipelineRunner) runLogger(run config.RunConfig) *slog.Logger {
	if run.LogLevel == "" {
		return r.logger
	}
	cfg := log.FromEnv()
	cfg.Level = run.LogLevel
	return log.New(cfg)
}
