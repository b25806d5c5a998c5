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

// Package jobqueue provides deferred and recurring pipeline execution:
// job records, schedules with cron, interval, and date triggers, and the
// pluggable backends that persist them.
package jobqueue

import (
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of a queued job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether the state is final. Cancelling a job in a
// terminal state is a no-op, not an error.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Job is one deferred pipeline execution.
type Job struct {
	ID       string `json:"id"`
	Pipeline string `json:"pipeline"`

	// Overrides are the call-time configuration overrides captured when
	// the job was submitted, applied at execution time.
	Overrides map[string]any `json:"overrides,omitempty"`

	State JobState `json:"state"`
	Error string   `json:"error,omitempty"`

	// ScheduleID links jobs spawned by a schedule back to it.
	ScheduleID string `json:"schedule_id,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// NewJob builds a pending job for the given pipeline.
func NewJob(pipeline string, overrides map[string]any) Job {
	return Job{
		ID:        uuid.NewString(),
		Pipeline:  pipeline,
		Overrides: overrides,
		State:     JobPending,
		CreatedAt: time.Now().UTC(),
	}
}

// ScheduleState is the lifecycle state of a schedule.
type ScheduleState string

const (
	ScheduleActive    ScheduleState = "active"
	SchedulePaused    ScheduleState = "paused"
	ScheduleCancelled ScheduleState = "cancelled"
	ScheduleCompleted ScheduleState = "completed"
)

// Terminal reports whether the schedule will never fire again.
func (s ScheduleState) Terminal() bool {
	return s == ScheduleCancelled || s == ScheduleCompleted
}

// Schedule fires jobs for a pipeline on a trigger.
type Schedule struct {
	ID       string `json:"id"`
	Pipeline string `json:"pipeline"`

	// Overrides are applied to every job the schedule spawns.
	Overrides map[string]any `json:"overrides,omitempty"`

	Trigger Trigger       `json:"trigger"`
	State   ScheduleState `json:"state"`

	CreatedAt time.Time `json:"created_at"`
	NextRun   time.Time `json:"next_run,omitzero"`
	LastRun   time.Time `json:"last_run,omitzero"`
	Runs      int       `json:"runs"`
}

// NewSchedule builds an active schedule with its first fire time
// computed from now.
func NewSchedule(pipeline string, trigger Trigger, overrides map[string]any) (Schedule, error) {
	now := time.Now().UTC()
	next, err := trigger.Next(now)
	if err != nil {
		return Schedule{}, err
	}
	return Schedule{
		ID:        uuid.NewString(),
		Pipeline:  pipeline,
		Overrides: overrides,
		Trigger:   trigger,
		State:     ScheduleActive,
		CreatedAt: now,
		NextRun:   next,
	}, nil
}
