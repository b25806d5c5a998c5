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

package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petalflow/petalflow/internal/config"
	"github.com/petalflow/petalflow/pkg/errors"
	"github.com/petalflow/petalflow/pkg/graph"
)

func TestBuildSkipsUnknownAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	resolved := config.Resolved{
		Run: config.RunConfig{
			WithAdapter: map[string]bool{"progress": true, "teleport": true},
		},
		AdapterSettings: map[string]map[string]any{
			"progress": {"quiet": true},
		},
	}
	hooks := Build(resolved, logger)

	assert.Len(t, hooks, 1)
	assert.Contains(t, buf.String(), "unknown adapter")
	assert.Contains(t, buf.String(), "teleport")
}

func TestBuildSkipsMisconfiguredAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	// Tracker without an endpoint cannot be built; the run must still
	// get its remaining adapters.
	resolved := config.Resolved{
		Run: config.RunConfig{
			WithAdapter: map[string]bool{"tracker": true, "progress": true},
		},
		AdapterSettings: map[string]map[string]any{
			"progress": {"quiet": true},
		},
	}
	hooks := Build(resolved, logger)

	assert.Len(t, hooks, 1)
	assert.Contains(t, buf.String(), "misconfigured adapter")
	assert.Contains(t, buf.String(), "tracker")
}

func TestBuildDisabledTogglesProduceNothing(t *testing.T) {
	resolved := config.Resolved{
		Run: config.RunConfig{
			WithAdapter: map[string]bool{"progress": false},
		},
	}
	assert.Empty(t, Build(resolved, slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestProgressOutput(t *testing.T) {
	hook, err := newProgress(nil, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	hook.(*progress).out = &buf

	ctx := context.Background()
	hook.OnRunStart(ctx, graph.RunInfo{Pipeline: "etl", NodeCount: 2})
	hook.OnNodeDone(ctx, graph.NodeResult{Pipeline: "etl", Node: "extract", Duration: 3 * time.Millisecond})
	hook.OnNodeDone(ctx, graph.NodeResult{Pipeline: "etl", Node: "load", Err: errors.New("nope")})
	hook.OnRunEnd(ctx, graph.RunResult{Pipeline: "etl", Err: errors.New("nope"), Duration: 10 * time.Millisecond})

	out := buf.String()
	assert.Contains(t, out, "etl (2 nodes)")
	assert.Contains(t, out, "[1/2] extract")
	assert.Contains(t, out, "[2/2] load")
	assert.Contains(t, out, "failed")
}

func TestTrackerPostsEvents(t *testing.T) {
	var mu sync.Mutex
	var events []trackerEvent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event trackerEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	hook, err := newTracker(map[string]any{
		"endpoint":          server.URL,
		"token":             "sekrit",
		"events_per_second": 1000,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ctx := context.Background()
	hook.OnRunStart(ctx, graph.RunInfo{Pipeline: "etl", NodeCount: 1})
	hook.OnNodeDone(ctx, graph.NodeResult{Pipeline: "etl", Node: "extract", Duration: time.Millisecond})
	hook.OnRunEnd(ctx, graph.RunResult{Pipeline: "etl", Duration: 2 * time.Millisecond})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)
	assert.Equal(t, "run_start", events[0].Event)
	assert.Equal(t, "node_done", events[1].Event)
	assert.Equal(t, "extract", events[1].Node)
	assert.Equal(t, "run_end", events[2].Event)
}

func TestTrackerRejectsBadEndpoint(t *testing.T) {
	_, err := newTracker(map[string]any{"endpoint": "not a url"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestTrackerRateLimitDropsExcess(t *testing.T) {
	var mu sync.Mutex
	received := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		received++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	hook, err := newTracker(map[string]any{
		"endpoint":          server.URL,
		"events_per_second": 0.001,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		hook.OnNodeDone(ctx, graph.NodeResult{Pipeline: "etl", Node: "n"})
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, received, "burst of one, everything else dropped")
}

func TestMetricsRecordsOutcomes(t *testing.T) {
	hook, err := newMetrics(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ctx := context.Background()
	hook.OnNodeDone(ctx, graph.NodeResult{Pipeline: "etl", Node: "extract"})
	hook.OnNodeDone(ctx, graph.NodeResult{Pipeline: "etl", Node: "load", Err: errors.New("x")})
	hook.OnRunEnd(ctx, graph.RunResult{Pipeline: "etl", Duration: time.Millisecond})

	m := hook.(*metrics)
	assert.InDelta(t, 1, counterValue(t, m.nodes, "etl", "extract", "success"), 0.01)
	assert.InDelta(t, 1, counterValue(t, m.nodes, "etl", "load", "failure"), 0.01)
	assert.InDelta(t, 1, counterValue(t, m.runs, "etl", "success"), 0.01)

	// A second build must hand back the same shared registry entries.
	again, err := newMetrics(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Same(t, hook, again)
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	counter, err := vec.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)
	return testutil.ToFloat64(counter)
}
