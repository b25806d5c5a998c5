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
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/time/rate"

	"github.com/petalflow/petalflow/pkg/errors"
	"github.com/petalflow/petalflow/pkg/graph"
)

// tracker posts run lifecycle events to an external tracking endpoint.
// Events are rate limited and best-effort; a failed post is logged, never
// surfaced to the run.
type tracker struct {
	endpoint string
	token    string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

type trackerEvent struct {
	Event    string         `json:"event"`
	Pipeline string         `json:"pipeline"`
	Node     string         `json:"node,omitempty"`
	Duration float64        `json:"duration_seconds,omitempty"`
	Error    string         `json:"error,omitempty"`
	Tags     map[string]any `json:"tags,omitempty"`
	At       time.Time      `json:"at"`
}

func newTracker(settings map[string]any, logger *slog.Logger) (graph.Hook, error) {
	endpoint := cast.ToString(settings["endpoint"])
	if endpoint == "" {
		return nil, &errors.ConfigError{
			Key:    "adapter.tracker.endpoint",
			Reason: "tracker adapter requires an endpoint",
		}
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, &errors.ConfigError{
			Key:    "adapter.tracker.endpoint",
			Reason: "not a valid URL",
			Cause:  err,
		}
	}

	eventsPerSecond := 10.0
	if settings["events_per_second"] != nil {
		eventsPerSecond = cast.ToFloat64(settings["events_per_second"])
	}

	timeout := 5 * time.Second
	if settings["timeout"] != nil {
		parsed, err := time.ParseDuration(cast.ToString(settings["timeout"]))
		if err != nil {
			return nil, &errors.ConfigError{
				Key:    "adapter.tracker.timeout",
				Reason: "not a valid duration",
				Cause:  err,
			}
		}
		timeout = parsed
	}

	// Burst matches the per-second budget so a short run can emit its
	// full event set; sustained overload is still shed.
	burst := int(eventsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &tracker{
		endpoint: endpoint,
		token:    cast.ToString(settings["token"]),
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(eventsPerSecond), burst),
		logger:   logger,
	}, nil
}

func (t *tracker) OnRunStart(ctx context.Context, info graph.RunInfo) {
	t.post(ctx, trackerEvent{
		Event:    "run_start",
		Pipeline: info.Pipeline,
		Tags:     map[string]any{"node_count": info.NodeCount},
		At:       time.Now().UTC(),
	})
}

func (t *tracker) OnNodeDone(ctx context.Context, result graph.NodeResult) {
	event := trackerEvent{
		Event:    "node_done",
		Pipeline: result.Pipeline,
		Node:     result.Node,
		Duration: result.Duration.Seconds(),
		At:       time.Now().UTC(),
	}
	if result.Err != nil {
		event.Error = result.Err.Error()
	}
	t.post(ctx, event)
}

func (t *tracker) OnRunEnd(ctx context.Context, result graph.RunResult) {
	event := trackerEvent{
		Event:    "run_end",
		Pipeline: result.Pipeline,
		Duration: result.Duration.Seconds(),
		At:       time.Now().UTC(),
	}
	if result.Err != nil {
		event.Error = result.Err.Error()
	}
	t.post(ctx, event)
}

func (t *tracker) post(ctx context.Context, event trackerEvent) {
	if !t.limiter.Allow() {
		t.logger.Debug("tracker event dropped by rate limit",
			"event", event.Event, "pipeline", event.Pipeline)
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		t.logger.Warn("tracker event not serializable", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		t.logger.Warn("tracker request failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Warn("tracker post failed", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		t.logger.Warn("tracker rejected event",
			"event", event.Event, "status", resp.StatusCode)
	}
}
