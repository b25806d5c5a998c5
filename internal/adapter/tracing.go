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
	"os"
	"sync"

	"github.com/spf13/cast"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/petalflow/petalflow/pkg/errors"
	"github.com/petalflow/petalflow/pkg/graph"
)

// tracing emits one span per run with a span event per completed node.
// Adapters are built fresh for every run, so per-run span state lives on
// the struct.
type tracing struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	logger   *slog.Logger

	mu   sync.Mutex
	span trace.Span
}

func newTracing(settings map[string]any, logger *slog.Logger) (graph.Hook, error) {
	var opts []stdouttrace.Option
	if settings["pretty"] == nil || cast.ToBool(settings["pretty"]) {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	opts = append(opts, stdouttrace.WithWriter(os.Stderr))

	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "building trace exporter")
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	return &tracing{
		provider: provider,
		tracer:   provider.Tracer("petalflow"),
		logger:   logger,
	}, nil
}

func (t *tracing) OnRunStart(ctx context.Context, info graph.RunInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, t.span = t.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("pipeline", info.Pipeline),
			attribute.Int("node_count", info.NodeCount),
			attribute.StringSlice("final_vars", info.FinalVars),
		))
}

func (t *tracing) OnNodeDone(_ context.Context, result graph.NodeResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.span == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("node", result.Node),
		attribute.Float64("duration_seconds", result.Duration.Seconds()),
	}
	if result.Err != nil {
		attrs = append(attrs, attribute.String("error", result.Err.Error()))
	}
	t.span.AddEvent("node.done", trace.WithAttributes(attrs...))
}

func (t *tracing) OnRunEnd(ctx context.Context, result graph.RunResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.span != nil {
		if result.Err != nil {
			t.span.RecordError(result.Err)
			t.span.SetStatus(codes.Error, result.Err.Error())
		} else {
			t.span.SetStatus(codes.Ok, "")
		}
		t.span.End()
		t.span = nil
	}

	if err := t.provider.Shutdown(ctx); err != nil {
		t.logger.Warn("trace export incomplete", "error", err)
	}
}
