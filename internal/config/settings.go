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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cast"

	"github.com/petalflow/petalflow/pkg/errors"
)

// Generic single-purpose environment variables. Each one overlays exactly
// one RunConfig field during resolution.
const (
	EnvLogLevel     = "PETALFLOW_LOG_LEVEL"
	EnvExecutor     = "PETALFLOW_EXECUTOR"
	EnvMaxWorkers   = "PETALFLOW_MAX_WORKERS"
	EnvNumCPUs      = "PETALFLOW_NUM_CPUS"
	EnvMaxRetries   = "PETALFLOW_MAX_RETRIES"
	EnvRetryDelay   = "PETALFLOW_RETRY_DELAY"
	EnvJitterFactor = "PETALFLOW_JITTER_FACTOR"
)

// Settings is an immutable snapshot of the generic environment overlay
// tier, constructed once at startup and passed by reference into the
// resolver. A nil pointer field means the variable was not set.
type Settings struct {
	LogLevel     *string
	ExecutorType *string
	MaxWorkers   *int
	NumCPUs      *int
	MaxRetries   *int
	RetryDelay   *time.Duration
	JitterFactor *float64
}

// SettingsFromEnv snapshots the generic environment tier. Unparsable
// values fail with a ConfigError rather than being silently ignored.
func SettingsFromEnv() (*Settings, error) {
	return settingsFrom(os.LookupEnv)
}

func settingsFrom(lookup LookupFunc) (*Settings, error) {
	s := &Settings{}

	if v, ok := lookup(EnvLogLevel); ok {
		s.LogLevel = &v
	}
	if v, ok := lookup(EnvExecutor); ok {
		s.ExecutorType = &v
	}
	if v, ok := lookup(EnvMaxWorkers); ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			return nil, envError(EnvMaxWorkers, v, "integer")
		}
		s.MaxWorkers = &n
	}
	if v, ok := lookup(EnvNumCPUs); ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			return nil, envError(EnvNumCPUs, v, "integer")
		}
		s.NumCPUs = &n
	}
	if v, ok := lookup(EnvMaxRetries); ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			return nil, envError(EnvMaxRetries, v, "integer")
		}
		s.MaxRetries = &n
	}
	if v, ok := lookup(EnvRetryDelay); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, envError(EnvRetryDelay, v, "duration")
		}
		s.RetryDelay = &d
	}
	if v, ok := lookup(EnvJitterFactor); ok {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, envError(EnvJitterFactor, v, "float")
		}
		s.JitterFactor = &f
	}

	return s, nil
}

func envError(name, value, want string) error {
	return &errors.ConfigError{
		Key:    name,
		Reason: fmt.Sprintf("cannot parse %q as %s", value, want),
	}
}

// apply overlays the snapshot onto a run-config map. Only variables that
// were set in the environment are applied.
func (s *Settings) apply(run map[string]any) {
	if s == nil {
		return
	}
	if s.LogLevel != nil {
		run["log_level"] = *s.LogLevel
	}
	if s.ExecutorType != nil {
		setNested(run, []string{"executor", "type"}, *s.ExecutorType)
	}
	if s.MaxWorkers != nil {
		setNested(run, []string{"executor", "max_workers"}, *s.MaxWorkers)
	}
	if s.NumCPUs != nil {
		setNested(run, []string{"executor", "num_cpus"}, *s.NumCPUs)
	}
	if s.MaxRetries != nil {
		setNested(run, []string{"retry", "max_retries"}, *s.MaxRetries)
	}
	if s.RetryDelay != nil {
		setNested(run, []string{"retry", "delay"}, s.RetryDelay.String())
	}
	if s.JitterFactor != nil {
		setNested(run, []string{"retry", "jitter_factor"}, *s.JitterFactor)
	}
}

// setNested writes a value at a nested path, creating intermediate maps.
func setNested(target map[string]any, path []string, value any) {
	for _, segment := range path[:len(path)-1] {
		next, ok := target[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			target[segment] = next
		}
		target = next
	}
	target[path[len(path)-1]] = value
}
