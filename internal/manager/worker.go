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

package manager

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/petalflow/petalflow/internal/jobqueue"
	"github.com/petalflow/petalflow/internal/log"
	"github.com/petalflow/petalflow/pkg/errors"
)

// defaultScheduleTick is how often the worker checks for due schedules.
const defaultScheduleTick = time.Second

// claimRetryDelay is how long a job loop waits after a failed claim.
const claimRetryDelay = time.Second

// Worker pulls jobs from the queue and executes them, and fires due
// schedules. Work runs until the context ends.
func (m *PipelineManager) Worker(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	backend, err := m.gateway.Backend()
	if err != nil {
		return err
	}

	m.logger.Info("worker starting",
		log.BackendKey, backend.Name(), "workers", workers)

	group, ctx := errgroup.WithContext(ctx)

	// Schedule loop: spawn jobs for due schedules.
	group.Go(func() error {
		ticker := time.NewTicker(defaultScheduleTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				spawned, err := backend.DueSchedules(ctx, time.Now().UTC())
				if err != nil {
					m.logger.Error("schedule sweep failed", "error", err)
					continue
				}
				for _, job := range spawned {
					m.logger.Info("schedule fired",
						log.ScheduleIDKey, job.ScheduleID,
						log.JobIDKey, job.ID,
						log.PipelineKey, job.Pipeline)
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	// Job loops: claim and execute.
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			for {
				job, err := backend.NextJob(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					m.logger.Error("claiming job failed", "error", err)
					// Back off so a persistent backend failure does not
					// spin the loop.
					select {
					case <-time.After(claimRetryDelay):
					case <-ctx.Done():
						return ctx.Err()
					}
					continue
				}
				m.runJob(ctx, job)
			}
		})
	}

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runJob executes one claimed job and records its outcome. A cancelled
// job stays cancelled; FinishJob refuses terminal transitions.
func (m *PipelineManager) runJob(ctx context.Context, job jobqueue.Job) {
	logger := log.WithJob(m.logger, job.ID, job.Pipeline)
	logger.Info("job starting")

	start := time.Now()
	_, runErr := func() (map[string]any, error) {
		resolved, err := m.resolver.Resolve(ctx, job.Pipeline, job.Overrides)
		if err != nil {
			return nil, err
		}
		return m.runner.Run(ctx, *resolved)
	}()
	elapsed := time.Since(start)

	backend, err := m.gateway.Backend()
	if err != nil {
		logger.Error("recording job outcome failed", "error", err)
		return
	}
	if err := backend.FinishJob(ctx, job.ID, runErr); err != nil {
		logger.Error("recording job outcome failed", "error", err)
	}

	if runErr != nil {
		logger.Error("job failed", "error", runErr, log.DurationKey, elapsed)
		return
	}
	logger.Info("job completed", log.DurationKey, elapsed)
}
