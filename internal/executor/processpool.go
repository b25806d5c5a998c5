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
	"sync"

	"github.com/petalflow/petalflow/pkg/graph"
)

// processpool keeps a standing pool of workers alive for the lifetime of
// the run and feeds batches through a shared work channel. Unlike the
// threadpool strategy it pays its startup cost once, which matters for
// pipelines that dispatch many small levels.
type processpool struct {
	work chan poolItem

	closeOnce sync.Once
	done      chan struct{}
	workers   sync.WaitGroup
}

type poolItem struct {
	ctx context.Context
	run func(ctx context.Context) error
	res chan<- error
}

// NewProcesspool returns a pooled strategy with numCPUs standing workers.
// A non-positive count defaults to the number of CPUs.
func NewProcesspool(numCPUs int) graph.Executor {
	p := &processpool{
		work: make(chan poolItem),
		done: make(chan struct{}),
	}
	for i := 0; i < poolSize(numCPUs); i++ {
		p.workers.Add(1)
		go p.worker()
	}
	return p
}

func (p *processpool) worker() {
	defer p.workers.Done()
	for {
		select {
		case item := <-p.work:
			item.res <- item.run(item.ctx)
		case <-p.done:
			return
		}
	}
}

func (p *processpool) Name() string { return TagProcesspool }

func (p *processpool) Execute(ctx context.Context, tasks []graph.Task) error {
	results := make(chan error, len(tasks))

	submitted := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		item := poolItem{ctx: ctx, run: task.Run, res: results}
		select {
		case p.work <- item:
			submitted++
		case <-ctx.Done():
			// Stop submitting; drain what is already in flight.
		case <-p.done:
		}
	}

	var first error
	for i := 0; i < submitted; i++ {
		if err := <-results; err != nil && first == nil {
			first = err
		}
	}
	if first == nil {
		first = ctx.Err()
	}
	return first
}

// Close stops the standing workers. Safe to call more than once.
func (p *processpool) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	p.workers.Wait()
	return nil
}
