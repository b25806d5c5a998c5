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

package runner

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petalflow/petalflow/internal/config"
	"github.com/petalflow/petalflow/internal/pipeline"
	"github.com/petalflow/petalflow/pkg/errors"
	"github.com/petalflow/petalflow/pkg/graph"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T, nodes ...graph.Node) *pipeline.Registry {
	t.Helper()
	r := pipeline.NewRegistry()
	require.NoError(t, r.Register(pipeline.Pipeline{Name: "etl", Nodes: nodes}))
	return r
}

func resolvedFor(finalVars ...string) config.Resolved {
	run := config.DefaultRunConfig()
	run.FinalVars = finalVars
	return config.Resolved{Pipeline: "etl", Run: run}
}

func TestRunReturnsFinalVars(t *testing.T) {
	registry := testRegistry(t,
		graph.Node{Name: "count", Fn: func(context.Context, map[string]any) (any, error) {
			return 7, nil
		}},
	)
	r := New(registry, nil, quietLogger())

	out, err := r.Run(context.Background(), resolvedFor("count"))
	require.NoError(t, err)
	assert.Equal(t, 7, out["count"])
}

func TestRunUnknownPipeline(t *testing.T) {
	r := New(pipeline.NewRegistry(), nil, quietLogger())

	_, err := r.Run(context.Background(), resolvedFor("x"))
	assert.True(t, errors.IsNotFound(err))
}

func TestRunParamsVisibleToNodes(t *testing.T) {
	registry := testRegistry(t,
		graph.Node{Name: "greet", Deps: []string{"name"}, Fn: func(_ context.Context, in map[string]any) (any, error) {
			return "hello " + in["name"].(string), nil
		}},
	)
	r := New(registry, nil, quietLogger())

	resolved := resolvedFor("greet")
	resolved.Params = map[string]any{"name": "world"}

	out, err := r.Run(context.Background(), resolved)
	require.NoError(t, err)
	assert.Equal(t, "hello world", out["greet"])
}

func TestRunRetriesUntilSuccess(t *testing.T) {
	var attempts atomic.Int64
	registry := testRegistry(t,
		graph.Node{Name: "flaky", Fn: func(context.Context, map[string]any) (any, error) {
			if attempts.Add(1) < 3 {
				return nil, errors.New("transient")
			}
			return "ok", nil
		}},
	)
	r := New(registry, nil, quietLogger())

	resolved := resolvedFor("flaky")
	resolved.Run.Retry = config.RetrySpec{
		MaxRetries: 5,
		Delay:      config.Duration(time.Millisecond),
	}

	out, err := r.Run(context.Background(), resolved)
	require.NoError(t, err)
	assert.Equal(t, "ok", out["flaky"])
	assert.Equal(t, int64(3), attempts.Load())
}

func TestRunExhaustedRetriesChainOriginal(t *testing.T) {
	var attempts atomic.Int64
	registry := testRegistry(t,
		graph.Node{Name: "doomed", Fn: func(context.Context, map[string]any) (any, error) {
			attempts.Add(1)
			return nil, errors.New("persistent failure")
		}},
	)
	r := New(registry, nil, quietLogger())

	resolved := resolvedFor("doomed")
	resolved.Run.Retry = config.RetrySpec{
		MaxRetries: 2,
		Delay:      config.Duration(time.Millisecond),
	}

	_, err := r.Run(context.Background(), resolved)
	require.Error(t, err)
	assert.Equal(t, int64(3), attempts.Load(), "initial attempt plus two retries")

	var execErr *errors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 3, execErr.Attempts)
	assert.Contains(t, err.Error(), "persistent failure")
}

func TestRunRetryConditionStopsRetry(t *testing.T) {
	var attempts atomic.Int64
	registry := testRegistry(t,
		graph.Node{Name: "fatal", Fn: func(context.Context, map[string]any) (any, error) {
			attempts.Add(1)
			return nil, errors.New("schema mismatch")
		}},
	)
	r := New(registry, nil, quietLogger())

	resolved := resolvedFor("fatal")
	resolved.Run.Retry = config.RetrySpec{
		MaxRetries: 5,
		Delay:      config.Duration(time.Millisecond),
		Condition:  `not (error contains "schema")`,
	}

	_, err := r.Run(context.Background(), resolved)
	require.Error(t, err)
	assert.Equal(t, int64(1), attempts.Load(), "condition said no")
}

func TestRunRetryConditionSeesAttempt(t *testing.T) {
	var attempts atomic.Int64
	registry := testRegistry(t,
		graph.Node{Name: "n", Fn: func(context.Context, map[string]any) (any, error) {
			attempts.Add(1)
			return nil, errors.New("always")
		}},
	)
	r := New(registry, nil, quietLogger())

	resolved := resolvedFor("n")
	resolved.Run.Retry = config.RetrySpec{
		MaxRetries: 10,
		Delay:      config.Duration(time.Millisecond),
		Condition:  "attempt < 2",
	}

	_, err := r.Run(context.Background(), resolved)
	require.Error(t, err)
	assert.Equal(t, int64(2), attempts.Load())
}

func TestRunBadRetryConditionIsConfigError(t *testing.T) {
	registry := testRegistry(t,
		graph.Node{Name: "n", Fn: func(context.Context, map[string]any) (any, error) {
			return 1, nil
		}},
	)
	r := New(registry, nil, quietLogger())

	resolved := resolvedFor("n")
	resolved.Run.Retry.Condition = "this is not (("

	_, err := r.Run(context.Background(), resolved)
	assert.True(t, errors.IsConfig(err))
}

func TestRunCallbacks(t *testing.T) {
	registry := pipeline.NewRegistry()
	require.NoError(t, registry.Register(pipeline.Pipeline{Name: "etl", Nodes: []graph.Node{
		{Name: "good", Fn: func(context.Context, map[string]any) (any, error) { return 1, nil }},
		{Name: "bad", Fn: func(context.Context, map[string]any) (any, error) { return nil, errors.New("x") }},
	}}))

	callbacks := pipeline.NewCallbacks()
	var succeeded, failed atomic.Int64
	require.NoError(t, callbacks.Register("cheer", func(_ context.Context, _ string, outputs map[string]any, runErr error) {
		succeeded.Add(1)
	}))
	require.NoError(t, callbacks.Register("mourn", func(_ context.Context, _ string, _ map[string]any, runErr error) {
		if runErr != nil {
			failed.Add(1)
		}
	}))

	r := New(registry, callbacks, quietLogger())

	resolved := resolvedFor("good")
	resolved.Run.OnSuccess = "cheer"
	resolved.Run.OnFailure = "mourn"
	_, err := r.Run(context.Background(), resolved)
	require.NoError(t, err)

	resolved = resolvedFor("bad")
	resolved.Run.OnSuccess = "cheer"
	resolved.Run.OnFailure = "mourn"
	_, err = r.Run(context.Background(), resolved)
	require.Error(t, err)

	assert.Equal(t, int64(1), succeeded.Load())
	assert.Equal(t, int64(1), failed.Load())
}

func TestRunUnregisteredCallbackFailsBeforeExecution(t *testing.T) {
	var ran atomic.Int64
	registry := testRegistry(t,
		graph.Node{Name: "n", Fn: func(context.Context, map[string]any) (any, error) {
			ran.Add(1)
			return 1, nil
		}},
	)
	r := New(registry, nil, quietLogger())

	resolved := resolvedFor("n")
	resolved.Run.OnSuccess = "ghost"

	_, err := r.Run(context.Background(), resolved)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, int64(0), ran.Load())
}

func TestRunCallbackPanicContained(t *testing.T) {
	registry := testRegistry(t,
		graph.Node{Name: "n", Fn: func(context.Context, map[string]any) (any, error) {
			return 1, nil
		}},
	)
	callbacks := pipeline.NewCallbacks()
	require.NoError(t, callbacks.Register("bomb", func(context.Context, string, map[string]any, error) {
		panic("callback bug")
	}))

	r := New(registry, callbacks, quietLogger())
	resolved := resolvedFor("n")
	resolved.Run.OnSuccess = "bomb"

	out, err := r.Run(context.Background(), resolved)
	require.NoError(t, err)
	assert.Equal(t, 1, out["n"])
}
