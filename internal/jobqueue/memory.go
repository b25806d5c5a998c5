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
	"sort"
	"sync"
	"time"

	"github.com/petalflow/petalflow/pkg/errors"
)

// Compile-time interface assertions.
var (
	_ JobStore      = (*Memory)(nil)
	_ ScheduleStore = (*Memory)(nil)
	_ Dispatcher    = (*Memory)(nil)
	_ Backend       = (*Memory)(nil)
)

// Memory is the in-process backend. Jobs and schedules live only as long
// as the process; it suits single-process use and tests.
type Memory struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	pending   []string
	schedules map[string]*Schedule
	closed    bool

	// signal wakes one blocked NextJob call when work arrives.
	signal chan struct{}
}

// NewMemory returns an empty in-process backend.
func NewMemory() *Memory {
	return &Memory{
		jobs:      map[string]*Job{},
		schedules: map[string]*Schedule{},
		signal:    make(chan struct{}, 1),
	}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) backendErr(op, message string) error {
	return &errors.BackendError{Backend: m.Name(), Op: op, Message: message}
}

func (m *Memory) AddJob(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return m.backendErr("add_job", "backend is closed")
	}
	if _, exists := m.jobs[job.ID]; exists {
		return m.backendErr("add_job", "job id already exists")
	}
	stored := job
	m.jobs[job.ID] = &stored
	if stored.State == JobPending {
		m.pending = append(m.pending, stored.ID)
		m.wake()
	}
	return nil
}

func (m *Memory) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *Memory) Job(_ context.Context, id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, &errors.NotFoundError{Resource: "job", ID: id}
	}
	return *job, nil
}

func (m *Memory) Jobs(_ context.Context) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CancelJob(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		// Cancel is idempotent: an unknown id is treated the same as an
		// already-finished job.
		return false, nil
	}
	return m.cancelLocked(job), nil
}

// cancelLocked cancels one job if it is not already terminal.
func (m *Memory) cancelLocked(job *Job) bool {
	if job.State.Terminal() {
		return false
	}
	job.State = JobCancelled
	job.FinishedAt = time.Now().UTC()
	m.removePending(job.ID)
	return true
}

func (m *Memory) removePending(id string) {
	for i, pending := range m.pending {
		if pending == id {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}

func (m *Memory) CancelJobs(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancelled := 0
	for _, job := range m.jobs {
		if m.cancelLocked(job) {
			cancelled++
		}
	}
	return cancelled, nil
}

func (m *Memory) DeleteJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return &errors.NotFoundError{Resource: "job", ID: id}
	}
	delete(m.jobs, id)
	m.removePending(id)
	return nil
}

func (m *Memory) DeleteJobs(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := len(m.jobs)
	m.jobs = map[string]*Job{}
	m.pending = nil
	return count, nil
}

func (m *Memory) NextJob(ctx context.Context) (Job, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return Job{}, m.backendErr("next_job", "backend is closed")
		}
		if len(m.pending) > 0 {
			id := m.pending[0]
			m.pending = m.pending[1:]
			job := m.jobs[id]
			job.State = JobRunning
			job.StartedAt = time.Now().UTC()
			claimed := *job
			m.mu.Unlock()
			return claimed, nil
		}
		m.mu.Unlock()

		select {
		case <-m.signal:
		case <-ctx.Done():
			return Job{}, ctx.Err()
		}
	}
}

func (m *Memory) FinishJob(_ context.Context, id string, jobErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return &errors.NotFoundError{Resource: "job", ID: id}
	}
	if job.State.Terminal() {
		return nil
	}
	job.FinishedAt = time.Now().UTC()
	if jobErr != nil {
		job.State = JobFailed
		job.Error = jobErr.Error()
	} else {
		job.State = JobCompleted
	}
	return nil
}

func (m *Memory) AddSchedule(_ context.Context, schedule Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return m.backendErr("add_schedule", "backend is closed")
	}
	if _, exists := m.schedules[schedule.ID]; exists {
		return m.backendErr("add_schedule", "schedule id already exists")
	}
	stored := schedule
	m.schedules[schedule.ID] = &stored
	return nil
}

func (m *Memory) Schedule(_ context.Context, id string) (Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	schedule, ok := m.schedules[id]
	if !ok {
		return Schedule{}, &errors.NotFoundError{Resource: "schedule", ID: id}
	}
	return *schedule, nil
}

func (m *Memory) Schedules(_ context.Context) ([]Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Schedule, 0, len(m.schedules))
	for _, schedule := range m.schedules {
		out = append(out, *schedule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) PauseSchedule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	schedule, ok := m.schedules[id]
	if !ok {
		return &errors.NotFoundError{Resource: "schedule", ID: id}
	}
	if schedule.State.Terminal() {
		return m.backendErr("pause_schedule", "schedule is "+string(schedule.State))
	}
	schedule.State = SchedulePaused
	return nil
}

func (m *Memory) ResumeSchedule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	schedule, ok := m.schedules[id]
	if !ok {
		return &errors.NotFoundError{Resource: "schedule", ID: id}
	}
	if schedule.State.Terminal() {
		return m.backendErr("resume_schedule", "schedule is "+string(schedule.State))
	}
	next, err := schedule.Trigger.Next(time.Now().UTC())
	if err != nil {
		return err
	}
	if next.IsZero() {
		schedule.State = ScheduleCompleted
		return nil
	}
	schedule.State = ScheduleActive
	schedule.NextRun = next
	return nil
}

func (m *Memory) CancelSchedule(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	schedule, ok := m.schedules[id]
	if !ok {
		return false, nil
	}
	if schedule.State.Terminal() {
		return false, nil
	}
	schedule.State = ScheduleCancelled
	return true, nil
}

func (m *Memory) CancelSchedules(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancelled := 0
	for _, schedule := range m.schedules {
		if !schedule.State.Terminal() {
			schedule.State = ScheduleCancelled
			cancelled++
		}
	}
	return cancelled, nil
}

func (m *Memory) DeleteSchedule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[id]; !ok {
		return &errors.NotFoundError{Resource: "schedule", ID: id}
	}
	delete(m.schedules, id)
	return nil
}

func (m *Memory) DeleteSchedules(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := len(m.schedules)
	m.schedules = map[string]*Schedule{}
	return count, nil
}

func (m *Memory) DueSchedules(_ context.Context, now time.Time) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var spawned []Job
	for _, schedule := range m.schedules {
		if schedule.State != ScheduleActive || schedule.NextRun.IsZero() || schedule.NextRun.After(now) {
			continue
		}

		job := NewJob(schedule.Pipeline, schedule.Overrides)
		job.ScheduleID = schedule.ID
		stored := job
		m.jobs[job.ID] = &stored
		m.pending = append(m.pending, job.ID)
		spawned = append(spawned, job)

		schedule.LastRun = now
		schedule.Runs++
		next, err := schedule.Trigger.Next(now)
		if err != nil {
			return spawned, err
		}
		if next.IsZero() {
			schedule.State = ScheduleCompleted
			schedule.NextRun = time.Time{}
		} else {
			schedule.NextRun = next
		}
	}
	if len(spawned) > 0 {
		m.wake()
	}
	return spawned, nil
}
