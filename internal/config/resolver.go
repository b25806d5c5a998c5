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
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/petalflow/petalflow/pkg/errors"
)

// StructuredEnvPrefix marks environment variables that address a nested
// configuration path directly: PETALFLOW__run__executor__type=threadpool
// sets run.executor.type. Path segments are matched case-insensitively.
const StructuredEnvPrefix = "PETALFLOW__"

// Resolver produces one final, internally consistent run specification for
// a named pipeline. Precedence, lowest to highest, merged per field:
// built-in defaults, file configuration (after interpolation), generic
// environment overlays, structured environment overlays, call-time
// overrides. Structured overlays sit strictly above the generic tier.
type Resolver struct {
	store    *Store
	settings *Settings

	// lookup and environ default to the process environment; tests
	// substitute their own.
	lookup  LookupFunc
	environ func() []string
}

// NewResolver creates a resolver over the given store and settings
// snapshot.
func NewResolver(store *Store, settings *Settings) *Resolver {
	return &Resolver{
		store:    store,
		settings: settings,
		lookup:   os.LookupEnv,
		environ:  os.Environ,
	}
}

// Resolve merges all configuration layers for the named pipeline and the
// given call-time overrides into a Resolved run specification. Malformed
// files, failed interpolation, and failed coercion all fail here, before
// any execution begins.
func (r *Resolver) Resolve(ctx context.Context, pipeline string, overrides map[string]any) (*Resolved, error) {
	// Layer 1: built-in defaults.
	run := defaultRunMap()

	// Layer 2: file configuration, interpolated.
	doc, err := r.store.PipelineDoc(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	interpolated, err := Interpolate(doc, r.lookup)
	if err != nil {
		return nil, err
	}
	doc = interpolated.(map[string]any)
	if fileRun, ok := doc["run"].(map[string]any); ok {
		mergeMaps(run, fileRun)
	}

	// Layer 3: generic single-purpose environment variables.
	r.settings.apply(run)

	// Layer 4: structured path variables, strictly above the generic tier.
	if err := r.applyStructured(doc, run); err != nil {
		return nil, err
	}

	// Layer 5: call-time overrides always win.
	mergeMaps(run, overrides)

	runConfig, err := decodeRunConfig(run)
	if err != nil {
		return nil, err
	}

	project, err := r.store.Project(ctx)
	if err != nil {
		return nil, err
	}

	resolved := &Resolved{
		Pipeline:        pipeline,
		Run:             runConfig,
		AdapterSettings: mergeAdapterSettings(project.Adapter, adapterSection(doc)),
	}
	if params, ok := doc["params"].(map[string]any); ok {
		resolved.Params = params
	}
	return resolved, nil
}

// applyStructured scans the environment for PETALFLOW__ path variables and
// applies them to the document. Values are strictly coerced; composite
// values must be valid JSON.
func (r *Resolver) applyStructured(doc, run map[string]any) error {
	for _, entry := range r.environ() {
		name, rawValue, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, StructuredEnvPrefix) {
			continue
		}

		path := strings.Split(strings.ToLower(strings.TrimPrefix(name, StructuredEnvPrefix)), "__")
		if len(path) == 0 || path[0] == "" {
			continue
		}

		value, err := coerceStructured(name, rawValue)
		if err != nil {
			return err
		}

		if path[0] == "run" {
			if len(path) == 1 {
				return &errors.ConfigError{
					Key:    name,
					Reason: "path must address a field inside run",
				}
			}
			setNested(run, path[1:], value)
			continue
		}
		setNested(doc, path, value)
	}
	return nil
}

// coerceStructured converts a structured-overlay value to a typed value.
// Booleans come from true/false/1/0, numbers via numeric parse, composite
// values via JSON. A value that starts like JSON but fails to parse is a
// configuration error.
func coerceStructured(name, raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		parsed := retype(trimmed)
		if _, isString := parsed.(string); isString {
			return nil, &errors.ConfigError{
				Key:    name,
				Reason: fmt.Sprintf("cannot parse %q as JSON", raw),
			}
		}
		return parsed, nil
	}
	return retype(trimmed), nil
}

// decodeRunConfig converts the merged map into a typed RunConfig. Any
// field that cannot be coerced to its declared type is a configuration
// error naming the offending key.
func decodeRunConfig(run map[string]any) (RunConfig, error) {
	out := DefaultRunConfig()

	for key, value := range run {
		var err error
		switch key {
		case "inputs":
			out.Inputs, err = cast.ToStringMapE(value)
		case "final_vars":
			out.FinalVars, err = cast.ToStringSliceE(value)
		case "executor":
			out.Executor, err = decodeExecutor(value)
		case "with_adapter":
			out.WithAdapter, err = cast.ToStringMapBoolE(value)
		case "retry":
			out.Retry, err = decodeRetry(value)
		case "log_level":
			out.LogLevel, err = cast.ToStringE(value)
		case "on_success":
			out.OnSuccess, err = cast.ToStringE(value)
		case "on_failure":
			out.OnFailure, err = cast.ToStringE(value)
		default:
			err = fmt.Errorf("unknown field")
		}
		if err != nil {
			return RunConfig{}, &errors.ConfigError{
				Key:    "run." + key,
				Reason: err.Error(),
			}
		}
	}
	return out, nil
}

func decodeExecutor(value any) (ExecutorSpec, error) {
	spec := ExecutorSpec{Type: "synchronous"}
	fields, err := cast.ToStringMapE(value)
	if err != nil {
		return spec, fmt.Errorf("executor: %w", err)
	}
	for key, v := range fields {
		switch key {
		case "type":
			spec.Type, err = cast.ToStringE(v)
		case "max_workers":
			spec.MaxWorkers, err = cast.ToIntE(v)
		case "num_cpus":
			spec.NumCPUs, err = cast.ToIntE(v)
		default:
			err = fmt.Errorf("unknown field")
		}
		if err != nil {
			return spec, fmt.Errorf("executor.%s: %w", key, err)
		}
	}
	return spec, nil
}

func decodeRetry(value any) (RetrySpec, error) {
	spec := DefaultRunConfig().Retry
	fields, err := cast.ToStringMapE(value)
	if err != nil {
		return spec, fmt.Errorf("retry: %w", err)
	}
	for key, v := range fields {
		switch key {
		case "max_retries":
			spec.MaxRetries, err = cast.ToIntE(v)
		case "delay":
			var d time.Duration
			d, err = toDuration(v)
			spec.Delay = Duration(d)
		case "jitter_factor":
			spec.JitterFactor, err = cast.ToFloat64E(v)
		case "condition":
			spec.Condition, err = cast.ToStringE(v)
		default:
			err = fmt.Errorf("unknown field")
		}
		if err != nil {
			return spec, fmt.Errorf("retry.%s: %w", key, err)
		}
	}
	return spec, nil
}

// toDuration accepts duration strings ("2s") and bare numbers (seconds).
func toDuration(value any) (time.Duration, error) {
	switch v := value.(type) {
	case time.Duration:
		return v, nil
	case Duration:
		return v.Std(), nil
	case string:
		return time.ParseDuration(v)
	case int, int64, float64:
		seconds, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, err
		}
		return time.Duration(seconds * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("cannot parse %v as duration", value)
	}
}

// mergeMaps merges src into dst per field: nested maps merge recursively,
// everything else is replaced. Later layers win on a per-field basis, not
// by wholesale record replacement.
func mergeMaps(dst, src map[string]any) {
	for key, value := range src {
		srcMap, srcIsMap := value.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			mergeMaps(dstMap, srcMap)
			continue
		}
		dst[key] = value
	}
}

// mergeAdapterSettings merges project-level adapter sections under
// pipeline-level sections, pipeline values taking precedence.
func mergeAdapterSettings(project, pipeline map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any)
	for capability, settings := range project {
		section := map[string]any{}
		mergeMaps(section, settings)
		out[capability] = section
	}
	for capability, settings := range pipeline {
		section, ok := out[capability]
		if !ok {
			section = map[string]any{}
			out[capability] = section
		}
		mergeMaps(section, settings)
	}
	return out
}

func adapterSection(doc map[string]any) map[string]map[string]any {
	raw, ok := doc["adapter"].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]map[string]any, len(raw))
	for capability, value := range raw {
		if section, ok := value.(map[string]any); ok {
			out[capability] = section
		}
	}
	return out
}

// defaultRunMap is DefaultRunConfig in map form, so the defaults can take
// part in per-field merging like every other layer.
func defaultRunMap() map[string]any {
	return map[string]any{
		"inputs":       map[string]any{},
		"final_vars":   []any{},
		"executor":     map[string]any{"type": "synchronous"},
		"with_adapter": map[string]any{},
		"retry": map[string]any{
			"max_retries":   0,
			"delay":         "1s",
			"jitter_factor": 0.0,
		},
		"log_level": "info",
	}
}
