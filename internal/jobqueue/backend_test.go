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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petalflow/petalflow/internal/config"
	"github.com/petalflow/petalflow/pkg/errors"
)

// withBackends runs one conformance test against every backend.
func withBackends(t *testing.T, test func(t *testing.T, backend Backend)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		backend := NewMemory()
		defer backend.Close()
		test(t, backend)
	})

	t.Run("sqlite", func(t *testing.T) {
		backend, err := NewSQLite(filepath.Join(t.TempDir(), "queue.db"), 10*time.Millisecond)
		require.NoError(t, err)
		defer backend.Close()
		test(t, backend)
	})
}

func TestAddJobReturnsPromptly(t *testing.T) {
	withBackends(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()

		// AddJob records the job and returns; nothing dequeues it.
		done := make(chan error, 1)
		job := NewJob("etl", map[string]any{"run": map[string]any{"log_level": "debug"}})
		go func() { done <- backend.AddJob(ctx, job) }()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("AddJob blocked")
		}

		stored, err := backend.Job(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, JobPending, stored.State)
		assert.Equal(t, "etl", stored.Pipeline)
		assert.Equal(t, "debug", stored.Overrides["run"].(map[string]any)["log_level"])
	})
}

func TestNextJobClaimsInOrder(t *testing.T) {
	withBackends(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()

		first := NewJob("a", nil)
		require.NoError(t, backend.AddJob(ctx, first))
		time.Sleep(2 * time.Millisecond)
		second := NewJob("b", nil)
		require.NoError(t, backend.AddJob(ctx, second))

		claimed, err := backend.NextJob(ctx)
		require.NoError(t, err)
		assert.Equal(t, first.ID, claimed.ID)
		assert.Equal(t, JobRunning, claimed.State)

		claimed, err = backend.NextJob(ctx)
		require.NoError(t, err)
		assert.Equal(t, second.ID, claimed.ID)
	})
}

func TestNextJobBlocksUntilWork(t *testing.T) {
	withBackends(t, func(t *testing.T, backend Backend) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		claimed := make(chan Job, 1)
		go func() {
			job, err := backend.NextJob(ctx)
			if err == nil {
				claimed <- job
			}
		}()

		select {
		case <-claimed:
			t.Fatal("claimed a job from an empty queue")
		case <-time.After(50 * time.Millisecond):
		}

		job := NewJob("late", nil)
		require.NoError(t, backend.AddJob(context.Background(), job))

		select {
		case got := <-claimed:
			assert.Equal(t, job.ID, got.ID)
		case <-time.After(2 * time.Second):
			t.Fatal("NextJob never woke up")
		}
	})
}

func TestFinishJob(t *testing.T) {
	withBackends(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()

		job := NewJob("etl", nil)
		require.NoError(t, backend.AddJob(ctx, job))
		_, err := backend.NextJob(ctx)
		require.NoError(t, err)

		require.NoError(t, backend.FinishJob(ctx, job.ID, nil))
		stored, err := backend.Job(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, JobCompleted, stored.State)
		assert.False(t, stored.FinishedAt.IsZero())

		failing := NewJob("etl", nil)
		require.NoError(t, backend.AddJob(ctx, failing))
		_, err = backend.NextJob(ctx)
		require.NoError(t, err)
		require.NoError(t, backend.FinishJob(ctx, failing.ID, errors.New("node exploded")))

		stored, err = backend.Job(ctx, failing.ID)
		require.NoError(t, err)
		assert.Equal(t, JobFailed, stored.State)
		assert.Contains(t, stored.Error, "node exploded")
	})
}

func TestCancelJobIsIdempotent(t *testing.T) {
	withBackends(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()

		job := NewJob("etl", nil)
		require.NoError(t, backend.AddJob(ctx, job))

		changed, err := backend.CancelJob(ctx, job.ID)
		require.NoError(t, err)
		assert.True(t, changed)

		// A second cancel is a quiet no-op.
		changed, err = backend.CancelJob(ctx, job.ID)
		require.NoError(t, err)
		assert.False(t, changed)

		stored, err := backend.Job(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, JobCancelled, stored.State)

		// An unknown id is also a quiet no-op.
		changed, err = backend.CancelJob(ctx, "no-such-job")
		require.NoError(t, err)
		assert.False(t, changed)
	})
}

func TestCancelledJobIsNotClaimed(t *testing.T) {
	withBackends(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()

		doomed := NewJob("a", nil)
		require.NoError(t, backend.AddJob(ctx, doomed))
		time.Sleep(2 * time.Millisecond)
		survivor := NewJob("b", nil)
		require.NoError(t, backend.AddJob(ctx, survivor))

		_, err := backend.CancelJob(ctx, doomed.ID)
		require.NoError(t, err)

		claimed, err := backend.NextJob(ctx)
		require.NoError(t, err)
		assert.Equal(t, survivor.ID, claimed.ID)
	})
}

func TestCancelAndDeleteAllJobs(t *testing.T) {
	withBackends(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			require.NoError(t, backend.AddJob(ctx, NewJob("etl", nil)))
		}
		_, err := backend.NextJob(ctx)
		require.NoError(t, err)

		cancelled, err := backend.CancelJobs(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, cancelled, "pending and running jobs both cancel")

		deleted, err := backend.DeleteJobs(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, deleted)

		jobs, err := backend.Jobs(ctx)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})
}

func TestScheduleLifecycle(t *testing.T) {
	withBackends(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()

		trigger, err := TriggerFrom(config.ScheduleSpec{Interval: config.Duration(time.Hour)})
		require.NoError(t, err)
		schedule, err := NewSchedule("etl", trigger, map[string]any{"k": "v"})
		require.NoError(t, err)
		require.NoError(t, backend.AddSchedule(ctx, schedule))

		stored, err := backend.Schedule(ctx, schedule.ID)
		require.NoError(t, err)
		assert.Equal(t, ScheduleActive, stored.State)
		assert.Equal(t, TriggerInterval, stored.Trigger.Kind)
		assert.Equal(t, time.Hour, stored.Trigger.Interval)
		assert.False(t, stored.NextRun.IsZero())

		require.NoError(t, backend.PauseSchedule(ctx, schedule.ID))
		stored, err = backend.Schedule(ctx, schedule.ID)
		require.NoError(t, err)
		assert.Equal(t, SchedulePaused, stored.State)

		require.NoError(t, backend.ResumeSchedule(ctx, schedule.ID))
		stored, err = backend.Schedule(ctx, schedule.ID)
		require.NoError(t, err)
		assert.Equal(t, ScheduleActive, stored.State)

		changed, err := backend.CancelSchedule(ctx, schedule.ID)
		require.NoError(t, err)
		assert.True(t, changed)
		changed, err = backend.CancelSchedule(ctx, schedule.ID)
		require.NoError(t, err)
		assert.False(t, changed)
		changed, err = backend.CancelSchedule(ctx, "no-such-schedule")
		require.NoError(t, err)
		assert.False(t, changed)

		// Terminal schedules cannot be paused or resumed.
		assert.Error(t, backend.PauseSchedule(ctx, schedule.ID))
		assert.Error(t, backend.ResumeSchedule(ctx, schedule.ID))

		require.NoError(t, backend.DeleteSchedule(ctx, schedule.ID))
		_, err = backend.Schedule(ctx, schedule.ID)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestDueSchedulesSpawnJobs(t *testing.T) {
	withBackends(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()

		trigger, err := TriggerFrom(config.ScheduleSpec{Interval: config.Duration(time.Minute)})
		require.NoError(t, err)
		schedule, err := NewSchedule("nightly", trigger, map[string]any{"k": "v"})
		require.NoError(t, err)
		require.NoError(t, backend.AddSchedule(ctx, schedule))

		// Not due yet.
		spawned, err := backend.DueSchedules(ctx, time.Now().UTC())
		require.NoError(t, err)
		assert.Empty(t, spawned)

		// Jump past the fire time.
		future := time.Now().UTC().Add(2 * time.Minute)
		spawned, err = backend.DueSchedules(ctx, future)
		require.NoError(t, err)
		require.Len(t, spawned, 1)
		assert.Equal(t, "nightly", spawned[0].Pipeline)
		assert.Equal(t, schedule.ID, spawned[0].ScheduleID)
		assert.Equal(t, "v", spawned[0].Overrides["k"])

		stored, err := backend.Schedule(ctx, schedule.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.Runs)
		assert.True(t, stored.NextRun.After(future))

		// The spawned job is claimable.
		claimed, err := backend.NextJob(ctx)
		require.NoError(t, err)
		assert.Equal(t, spawned[0].ID, claimed.ID)
	})
}

func TestDueSchedulesSkipsPaused(t *testing.T) {
	withBackends(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()

		trigger, err := TriggerFrom(config.ScheduleSpec{Interval: config.Duration(time.Minute)})
		require.NoError(t, err)
		schedule, err := NewSchedule("nightly", trigger, nil)
		require.NoError(t, err)
		require.NoError(t, backend.AddSchedule(ctx, schedule))
		require.NoError(t, backend.PauseSchedule(ctx, schedule.ID))

		spawned, err := backend.DueSchedules(ctx, time.Now().UTC().Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, spawned)
	})
}

func TestOneShotScheduleCompletes(t *testing.T) {
	withBackends(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()

		when := time.Now().UTC().Add(time.Minute)
		trigger, err := TriggerFrom(config.ScheduleSpec{Date: when})
		require.NoError(t, err)
		schedule, err := NewSchedule("once", trigger, nil)
		require.NoError(t, err)
		require.NoError(t, backend.AddSchedule(ctx, schedule))

		spawned, err := backend.DueSchedules(ctx, when.Add(time.Second))
		require.NoError(t, err)
		require.Len(t, spawned, 1)

		stored, err := backend.Schedule(ctx, schedule.ID)
		require.NoError(t, err)
		assert.Equal(t, ScheduleCompleted, stored.State)

		// Completed schedules never fire again.
		spawned, err = backend.DueSchedules(ctx, when.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, spawned)
	})
}

func TestGatewaySelectsBackend(t *testing.T) {
	gateway := NewGateway(config.JobQueueConfig{Type: "memory"})
	defer gateway.Close()

	backend, err := gateway.Backend()
	require.NoError(t, err)
	assert.Equal(t, "memory", backend.Name())

	// Repeated calls reuse the open backend.
	again, err := gateway.Backend()
	require.NoError(t, err)
	assert.Same(t, backend, again)
}

func TestGatewaySQLiteRequiresPath(t *testing.T) {
	gateway := NewGateway(config.JobQueueConfig{Type: "sqlite"})
	_, err := gateway.Backend()
	assert.True(t, errors.IsConfig(err))
}

func TestGatewayUnknownBackend(t *testing.T) {
	gateway := NewGateway(config.JobQueueConfig{Type: "postgres"})
	_, err := gateway.Backend()
	assert.True(t, errors.IsUnsupported(err))
}
