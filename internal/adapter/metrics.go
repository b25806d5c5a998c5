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
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cast"

	"github.com/petalflow/petalflow/pkg/graph"
)

// metrics records run and node outcomes to a Prometheus registry and,
// when an address is configured, serves it over HTTP for scraping. The
// registry is process-wide so long-lived workers accumulate counts
// across runs.
type metrics struct {
	runs      *prometheus.CounterVec
	nodes     *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

var (
	metricsOnce     sync.Once
	sharedMetrics   *metrics
	metricsServeErr sync.Once
)

func newMetrics(settings map[string]any, logger *slog.Logger) (graph.Hook, error) {
	metricsOnce.Do(func() {
		m := &metrics{
			runs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "petalflow",
				Name:      "runs_total",
				Help:      "Completed pipeline runs by outcome.",
			}, []string{"pipeline", "outcome"}),
			nodes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "petalflow",
				Name:      "nodes_total",
				Help:      "Completed nodes by outcome.",
			}, []string{"pipeline", "node", "outcome"}),
			durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "petalflow",
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of pipeline runs.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			}, []string{"pipeline"}),
		}
		prometheus.MustRegister(m.runs, m.nodes, m.durations)
		sharedMetrics = m
	})

	if addr := cast.ToString(settings["listen"]); addr != "" {
		metricsServeErr.Do(func() {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				if err := http.ListenAndServe(addr, mux); err != nil {
					logger.Warn("metrics endpoint stopped", "addr", addr, "error", err)
				}
			}()
		})
	}
	return sharedMetrics, nil
}

func (m *metrics) OnRunStart(context.Context, graph.RunInfo) {}

func (m *metrics) OnNodeDone(_ context.Context, result graph.NodeResult) {
	m.nodes.WithLabelValues(result.Pipeline, result.Node, outcome(result.Err)).Inc()
}

func (m *metrics) OnRunEnd(_ context.Context, result graph.RunResult) {
	m.runs.WithLabelValues(result.Pipeline, outcome(result.Err)).Inc()
	m.durations.WithLabelValues(result.Pipeline).Observe(result.Duration.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
