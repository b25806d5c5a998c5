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

package jobqueue

import (
	"context"
	"time"
)

// JobStore persists and administers job records.
type JobStore interface {
	// AddJob enqueues a pending job. It returns as soon as the job is
	// durably recorded; execution happens elsewhere.
	AddJob(ctx context.Context, job Job) error

	// Job returns one job by id.
	Job(ctx context.Context, id string) (Job, error)

	// Jobs returns every job, newest first.
	Jobs(ctx context.Context) ([]Job, error)

	// CancelJob cancels a pending or running job. Cancelling a job that
	// is already terminal, or an unknown id, is a no-op; the returned
	// flag reports whether this call changed the state.
	CancelJob(ctx context.Context, id string) (bool, error)

	// CancelJobs cancels every non-terminal job and returns the count.
	CancelJobs(ctx context.Context) (int, error)

	// DeleteJob removes a job record.
	DeleteJob(ctx context.Context, id string) error

	// DeleteJobs removes every job record and returns the count.
	DeleteJobs(ctx context.Context) (int, error)
}

// ScheduleStore persists and administers schedules.
type ScheduleStore interface {
	AddSchedule(ctx context.Context, schedule Schedule) error
	Schedule(ctx context.Context, id string) (Schedule, error)
	Schedules(ctx context.Context) ([]Schedule, error)

	// PauseSchedule stops an active schedule from firing until resumed.
	PauseSchedule(ctx context.Context, id string) error

	// ResumeSchedule reactivates a paused schedule and recomputes its
	// next fire time from now.
	ResumeSchedule(ctx context.Context, id string) error

	// CancelSchedule permanently stops a schedule. Idempotent, like
	// CancelJob.
	CancelSchedule(ctx context.Context, id string) (bool, error)

	CancelSchedules(ctx context.Context) (int, error)
	DeleteSchedule(ctx context.Context, id string) error
	DeleteSchedules(ctx context.Context) (int, error)
}

// Dispatcher is the worker-facing side of a backend.
type Dispatcher interface {
	// NextJob blocks until a pending job is claimed for execution or
	// the context ends. The claimed job is marked running.
	NextJob(ctx context.Context) (Job, error)

	// FinishJob records a job outcome. A nil jobErr completes the job,
	// anything else fails it. Finishing a cancelled job is a no-op.
	FinishJob(ctx context.Context, id string, jobErr error) error

	// DueSchedules returns active schedules due at now, spawning their
	// jobs and advancing each schedule's next fire time. One-shot
	// schedules move to the completed state.
	DueSchedules(ctx context.Context, now time.Time) ([]Job, error)
}

// Backend is a complete job queue implementation.
type Backend interface {
	JobStore
	ScheduleStore
	Dispatcher

	// Name returns the backend type tag ("memory", "sqlite").
	Name() string

	Close() error
}
