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

// Package config implements configuration loading, merging, and resolution
// for pipeline runs. Two categories of configuration exist: project-wide
// settings (petalflow.yaml) and per-pipeline settings (pipelines/<name>.yaml).
// A run resolves one final RunConfig by layering, lowest to highest:
// built-in defaults, file configuration (after environment interpolation),
// generic environment overlays, structured environment overlays, and
// call-time overrides.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that accepts "2s"-style strings (and bare
// numbers, read as seconds) in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	default:
		return fmt.Errorf("cannot parse %v as duration", raw)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ProjectConfig is the project-wide configuration, one per project.
type ProjectConfig struct {
	// Name is the project name.
	Name string `yaml:"name"`

	// JobQueue selects and configures the background job/schedule backend.
	JobQueue JobQueueConfig `yaml:"job_queue,omitempty"`

	// Filesystem carries backend credentials for remote storage.
	Filesystem FilesystemConfig `yaml:"filesystem,omitempty"`

	// Adapter holds project-wide adapter settings (credentials, endpoints,
	// default tags), keyed by capability name.
	Adapter map[string]map[string]any `yaml:"adapter,omitempty"`
}

// JobQueueConfig selects the job-queue backend.
type JobQueueConfig struct {
	// Type is the backend type: "memory" or "sqlite". Default: memory.
	Type string `yaml:"type,omitempty"`

	// Path is the database file path for the sqlite backend.
	Path string `yaml:"path,omitempty"`

	// Workers is the number of worker goroutines the memory backend runs.
	Workers int `yaml:"workers,omitempty"`

	// PollInterval is how often the sqlite worker polls for due work.
	PollInterval Duration `yaml:"poll_interval,omitempty"`
}

// FilesystemConfig carries remote storage credentials.
type FilesystemConfig struct {
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Region    string `yaml:"region,omitempty"`
	UseSSL    bool   `yaml:"use_ssl,omitempty"`
	CacheDir  string `yaml:"cache_dir,omitempty"`
}

// PipelineConfig is the per-pipeline configuration.
type PipelineConfig struct {
	// Name is the pipeline name.
	Name string `yaml:"name"`

	// Run holds the run defaults for this pipeline.
	Run RunConfig `yaml:"run,omitempty"`

	// Adapter holds pipeline-level adapter settings, merged over the
	// project-level section with pipeline values taking precedence.
	Adapter map[string]map[string]any `yaml:"adapter,omitempty"`

	// Schedule configures recurring execution of this pipeline.
	Schedule ScheduleSpec `yaml:"schedule,omitempty"`

	// Params is a free-form map consumed by pipeline code.
	Params map[string]any `yaml:"params,omitempty"`
}

// RunConfig is the fully resolved, per-invocation set of execution
// parameters. It is ephemeral: constructed per run, never persisted.
type RunConfig struct {
	// Inputs are the named input values supplied to the graph.
	Inputs map[string]any `yaml:"inputs,omitempty"`

	// FinalVars are the requested output variable names, in order.
	FinalVars []string `yaml:"final_vars,omitempty"`

	// Executor selects the execution strategy.
	Executor ExecutorSpec `yaml:"executor,omitempty"`

	// WithAdapter toggles cross-cutting adapters by capability name
	// (tracker, progress, tracing, metrics).
	WithAdapter map[string]bool `yaml:"with_adapter,omitempty"`

	// Retry configures the retry policy for execution errors.
	Retry RetrySpec `yaml:"retry,omitempty"`

	// LogLevel overrides the log level for this run.
	LogLevel string `yaml:"log_level,omitempty"`

	// OnSuccess and OnFailure name registered callbacks invoked with the
	// result mapping or the terminal error.
	OnSuccess string `yaml:"on_success,omitempty"`
	OnFailure string `yaml:"on_failure,omitempty"`
}

// ExecutorSpec is a declarative executor selection, discriminated by Type.
type ExecutorSpec struct {
	// Type is the strategy tag: synchronous, threadpool, processpool, or a
	// distributed-* tag. Unknown tags degrade to synchronous at run time.
	Type string `yaml:"type,omitempty"`

	// MaxWorkers bounds threadpool concurrency.
	MaxWorkers int `yaml:"max_workers,omitempty"`

	// NumCPUs bounds processpool concurrency.
	NumCPUs int `yaml:"num_cpus,omitempty"`
}

// RetrySpec configures the retry policy applied to execution errors.
type RetrySpec struct {
	// MaxRetries is the number of retry attempts after the first failure.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// Delay is the base wait between attempts.
	Delay Duration `yaml:"delay,omitempty"`

	// JitterFactor scales the random spread around Delay: the actual wait
	// is delay * (1 ± jitter_factor).
	JitterFactor float64 `yaml:"jitter_factor,omitempty"`

	// Condition is an optional expression evaluated against the failed
	// attempt (variables: error, attempt, pipeline). When set, only
	// failures for which it returns true are retried.
	Condition string `yaml:"condition,omitempty"`
}

// ScheduleSpec configures recurring execution. Exactly one of Cron,
// Interval, or Date is set when Enabled is true.
type ScheduleSpec struct {
	Enabled  bool      `yaml:"enabled,omitempty"`
	Cron     string    `yaml:"cron,omitempty"`
	Interval Duration  `yaml:"interval,omitempty"`
	Date     time.Time `yaml:"date,omitempty"`
}

// Resolved is the output of Resolver.Resolve: the final RunConfig plus the
// merged adapter settings and free-form params the run needs.
type Resolved struct {
	Pipeline string
	Run      RunConfig

	// AdapterSettings is the per-capability settings map, project-level
	// merged under pipeline-level.
	AdapterSettings map[string]map[string]any

	// Params is the pipeline's free-form parameter map.
	Params map[string]any
}

// DefaultRunConfig returns the built-in field defaults, the lowest
// precedence layer of resolution.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Inputs:      map[string]any{},
		WithAdapter: map[string]bool{},
		Executor: ExecutorSpec{
			Type: "synchronous",
		},
		Retry: RetrySpec{
			MaxRetries:   0,
			Delay:        Duration(time.Second),
			JitterFactor: 0,
		},
		LogLevel: "info",
	}
}
