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

package executor

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/petalflow/petalflow/pkg/graph"
)

// threadpool runs each batch of independent tasks concurrently, bounded
// by a worker limit. Goroutines are spawned per batch; there is no
// standing pool to tear down.
type threadpool struct {
	limit int
}

// NewThreadpool returns a bounded concurrent strategy. A non-positive
// maxWorkers defaults to the number of CPUs.
func NewThreadpool(maxWorkers int) graph.Executor {
	return &threadpool{limit: poolSize(maxWorkers)}
}

func (p *threadpool) Name() string { return TagThreadpool }

func (p *threadpool) Execute(ctx context.Context, tasks []graph.Task) error {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(p.limit)
	for _, task := range tasks {
		task := task
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return task.Run(ctx)
		})
	}
	return group.Wait()
}

func (p *threadpool) Close() error { return nil }
