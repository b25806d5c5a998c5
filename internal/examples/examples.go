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

// Package examples registers the built-in demonstration pipelines that
// ship with the petalflow binary. They exercise the full run path out of
// the box: dependency resolution, parameter overrides, and callbacks.
package examples

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cast"

	"github.com/petalflow/petalflow/internal/pipeline"
	"github.com/petalflow/petalflow/pkg/errors"
	"github.com/petalflow/petalflow/pkg/filesystem"
	"github.com/petalflow/petalflow/pkg/graph"
)

// Register installs the built-in pipelines and callbacks. It is called
// once at startup by the petalflow binary; embedding applications can
// call it too, or register their own pipelines instead.
func Register(registry *pipeline.Registry, callbacks *pipeline.Callbacks) error {
	pipelines := []pipeline.Pipeline{
		salesReport(),
		wordStats(),
	}
	for _, p := range pipelines {
		if err := registry.Register(p); err != nil {
			return err
		}
	}
	if err := callbacks.Register("print_summary", printSummary); err != nil {
		return err
	}
	return callbacks.Register("print_failure", printFailure)
}

// salesReport reads an orders table from disk and derives revenue
// figures from it. The orders_path input points at a directory holding
// an orders.csv with at least an "amount" column.
func salesReport() pipeline.Pipeline {
	return pipeline.Pipeline{
		Name: "sales_report",
		Nodes: []graph.Node{
			{
				Name: "orders",
				Deps: []string{"orders_path"},
				Fn: func(ctx context.Context, inputs map[string]any) (any, error) {
					dir := cast.ToString(inputs["orders_path"])
					h, err := filesystem.GetHandle(dir, filesystem.Options{})
					if err != nil {
						return nil, err
					}
					return filesystem.ReadTable(ctx, h, "orders.csv")
				},
			},
			{
				Name: "revenue",
				Deps: []string{"orders"},
				Fn: func(ctx context.Context, inputs map[string]any) (any, error) {
					records, ok := inputs["orders"].([]filesystem.Record)
					if !ok {
						return nil, &errors.ConfigError{Key: "orders", Reason: "expected a table of records"}
					}
					var total float64
					for _, rec := range records {
						amount, err := cast.ToFloat64E(rec["amount"])
						if err != nil {
							return nil, fmt.Errorf("bad amount %q: %w", rec["amount"], err)
						}
						total += amount
					}
					return total, nil
				},
			},
			{
				Name: "order_count",
				Deps: []string{"orders"},
				Fn: func(ctx context.Context, inputs map[string]any) (any, error) {
					records, _ := inputs["orders"].([]filesystem.Record)
					return len(records), nil
				},
			},
			{
				Name: "average_order",
				Deps: []string{"revenue", "order_count"},
				Fn: func(ctx context.Context, inputs map[string]any) (any, error) {
					count := cast.ToInt(inputs["order_count"])
					if count == 0 {
						return 0.0, nil
					}
					return cast.ToFloat64(inputs["revenue"]) / float64(count), nil
				},
			},
		},
	}
}

// wordStats computes simple statistics over an inline text input. It has
// no filesystem dependencies, which makes it handy for smoke-testing a
// fresh project.
func wordStats() pipeline.Pipeline {
	return pipeline.Pipeline{
		Name: "word_stats",
		Nodes: []graph.Node{
			{
				Name: "words",
				Deps: []string{"text"},
				Fn: func(ctx context.Context, inputs map[string]any) (any, error) {
					return splitWords(cast.ToString(inputs["text"])), nil
				},
			},
			{
				Name: "word_count",
				Deps: []string{"words"},
				Fn: func(ctx context.Context, inputs map[string]any) (any, error) {
					words, _ := inputs["words"].([]string)
					return len(words), nil
				},
			},
			{
				Name: "unique_words",
				Deps: []string{"words"},
				Fn: func(ctx context.Context, inputs map[string]any) (any, error) {
					words, _ := inputs["words"].([]string)
					seen := make(map[string]struct{}, len(words))
					for _, w := range words {
						seen[w] = struct{}{}
					}
					return len(seen), nil
				},
			},
			{
				Name: "longest_word",
				Deps: []string{"words"},
				Fn: func(ctx context.Context, inputs map[string]any) (any, error) {
					words, _ := inputs["words"].([]string)
					longest := ""
					for _, w := range words {
						if len(w) > len(longest) {
							longest = w
						}
					}
					return longest, nil
				},
			},
		},
	}
}

func splitWords(text string) []string {
	var words []string
	word := make([]rune, 0, 16)
	flush := func() {
		if len(word) > 0 {
			words = append(words, string(word))
			word = word[:0]
		}
	}
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			flush()
			continue
		}
		word = append(word, r)
	}
	flush()
	return words
}

func printSummary(ctx context.Context, name string, outputs map[string]any, runErr error) {
	if runErr != nil {
		return
	}
	fmt.Fprintf(os.Stderr, "pipeline %s finished with %d output(s)\n", name, len(outputs))
}

func printFailure(ctx context.Context, name string, outputs map[string]any, runErr error) {
	if runErr == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "pipeline %s failed: %v\n", name, runErr)
}

// WriteSampleData writes a small orders.csv under dir so the sales_report
// pipeline has something to chew on. Used by project scaffolding.
func WriteSampleData(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	csv := "id,customer,amount\n1,acme,120.50\n2,globex,75.00\n3,initech,240.25\n"
	return os.WriteFile(filepath.Join(dir, "orders.csv"), []byte(csv), 0o644)
}
