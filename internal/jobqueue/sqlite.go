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
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petalflow/petalflow/pkg/errors"
)

// Compile-time interface assertions.
var (
	_ JobStore      = (*SQLite)(nil)
	_ ScheduleStore = (*SQLite)(nil)
	_ Dispatcher    = (*SQLite)(nil)
	_ Backend       = (*SQLite)(nil)
)

// SQLite is the durable single-node backend. Jobs and schedules survive
// process restarts and can be shared between a submitting CLI and a
// separate worker process.
type SQLite struct {
	db   *sql.DB
	poll time.Duration
}

// NewSQLite opens (and if needed creates) the database at path. poll sets
// how often NextJob checks for newly queued work; zero means one second.
func NewSQLite(path string, poll time.Duration) (*SQLite, error) {
	if poll <= 0 {
		poll = time.Second
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &errors.BackendError{Backend: "sqlite", Op: "open", Message: "opening database", Cause: err}
	}
	// SQLite serializes writes; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &errors.BackendError{Backend: "sqlite", Op: "open", Message: "connecting to database", Cause: err}
	}

	b := &SQLite{db: db, poll: poll}
	if err := b.configure(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLite) Name() string { return "sqlite" }

func (b *SQLite) Close() error { return b.db.Close() }

func (b *SQLite) configure(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := b.db.ExecContext(ctx, pragma); err != nil {
			return &errors.BackendError{Backend: "sqlite", Op: "configure", Message: pragma, Cause: err}
		}
	}
	return nil
}

func (b *SQLite) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			pipeline TEXT NOT NULL,
			overrides TEXT,
			state TEXT NOT NULL,
			error TEXT,
			schedule_id TEXT,
			created_at TEXT NOT NULL,
			started_at TEXT,
			finished_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			pipeline TEXT NOT NULL,
			overrides TEXT,
			trigger TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TEXT NOT NULL,
			next_run TEXT,
			last_run TEXT,
			runs INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_state ON schedules(state)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_next_run ON schedules(next_run)`,
	}
	for _, migration := range migrations {
		if _, err := b.db.ExecContext(ctx, migration); err != nil {
			return &errors.BackendError{Backend: "sqlite", Op: "migrate", Message: "applying migration", Cause: err}
		}
	}
	return nil
}

func (b *SQLite) opErr(op string, err error) error {
	return &errors.BackendError{Backend: "sqlite", Op: op, Message: "query failed", Cause: err}
}

func encodeTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (b *SQLite) AddJob(ctx context.Context, job Job) error {
	overrides, err := encodeJSON(job.Overrides)
	if err != nil {
		return b.opErr("add_job", err)
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO jobs (id, pipeline, overrides, state, error, schedule_id, created_at, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Pipeline, overrides, string(job.State), job.Error, job.ScheduleID,
		encodeTime(job.CreatedAt), encodeTime(job.StartedAt), encodeTime(job.FinishedAt))
	if err != nil {
		return b.opErr("add_job", err)
	}
	return nil
}

const jobColumns = `id, pipeline, overrides, state, error, schedule_id, created_at, started_at, finished_at`

func scanJob(row interface{ Scan(...any) error }) (Job, error) {
	var job Job
	var overrides, jobError, scheduleID sql.NullString
	var createdAt, startedAt, finishedAt sql.NullString
	var state string

	err := row.Scan(&job.ID, &job.Pipeline, &overrides, &state, &jobError, &scheduleID,
		&createdAt, &startedAt, &finishedAt)
	if err != nil {
		return Job{}, err
	}

	job.State = JobState(state)
	job.Error = jobError.String
	job.ScheduleID = scheduleID.String
	job.CreatedAt = decodeTime(createdAt)
	job.StartedAt = decodeTime(startedAt)
	job.FinishedAt = decodeTime(finishedAt)
	if overrides.Valid && overrides.String != "" {
		if err := json.Unmarshal([]byte(overrides.String), &job.Overrides); err != nil {
			return Job{}, err
		}
	}
	return job, nil
}

func (b *SQLite) Job(ctx context.Context, id string) (Job, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return Job{}, &errors.NotFoundError{Resource: "job", ID: id}
	}
	if err != nil {
		return Job{}, b.opErr("get_job", err)
	}
	return job, nil
}

func (b *SQLite) Jobs(ctx context.Context) ([]Job, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, b.opErr("list_jobs", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, b.opErr("list_jobs", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, b.opErr("list_jobs", err)
	}
	return jobs, nil
}

var terminalStates = `('completed', 'failed', 'cancelled')`

func (b *SQLite) CancelJob(ctx context.Context, id string) (bool, error) {
	result, err := b.db.ExecContext(ctx,
		`UPDATE jobs SET state = 'cancelled', finished_at = ? WHERE id = ? AND state NOT IN `+terminalStates,
		encodeTime(time.Now()), id)
	if err != nil {
		return false, b.opErr("cancel_job", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return false, b.opErr("cancel_job", err)
	}
	if changed == 0 {
		// Cancel is idempotent: already-terminal and unknown ids are both
		// no-ops.
		return false, nil
	}
	return true, nil
}

func (b *SQLite) CancelJobs(ctx context.Context) (int, error) {
	result, err := b.db.ExecContext(ctx,
		`UPDATE jobs SET state = 'cancelled', finished_at = ? WHERE state NOT IN `+terminalStates,
		encodeTime(time.Now()))
	if err != nil {
		return 0, b.opErr("cancel_jobs", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return 0, b.opErr("cancel_jobs", err)
	}
	return int(changed), nil
}

func (b *SQLite) DeleteJob(ctx context.Context, id string) error {
	result, err := b.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return b.opErr("delete_job", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return b.opErr("delete_job", err)
	}
	if changed == 0 {
		return &errors.NotFoundError{Resource: "job", ID: id}
	}
	return nil
}

func (b *SQLite) DeleteJobs(ctx context.Context) (int, error) {
	result, err := b.db.ExecContext(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, b.opErr("delete_jobs", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return 0, b.opErr("delete_jobs", err)
	}
	return int(changed), nil
}

// NextJob polls for a pending job. The claim is a single conditional
// UPDATE so two workers sharing the database cannot claim the same job.
func (b *SQLite) NextJob(ctx context.Context) (Job, error) {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		job, claimed, err := b.claim(ctx)
		if err != nil {
			return Job{}, err
		}
		if claimed {
			return job, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return Job{}, ctx.Err()
		}
	}
}

func (b *SQLite) claim(ctx context.Context) (Job, bool, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT id FROM jobs WHERE state = 'pending' ORDER BY created_at ASC LIMIT 1`)
	var id string
	if err := row.Scan(&id); err == sql.ErrNoRows {
		return Job{}, false, nil
	} else if err != nil {
		return Job{}, false, b.opErr("next_job", err)
	}

	result, err := b.db.ExecContext(ctx,
		`UPDATE jobs SET state = 'running', started_at = ? WHERE id = ? AND state = 'pending'`,
		encodeTime(time.Now()), id)
	if err != nil {
		return Job{}, false, b.opErr("next_job", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return Job{}, false, b.opErr("next_job", err)
	}
	if changed == 0 {
		// Lost the race; try again on the next tick.
		return Job{}, false, nil
	}

	job, err := b.Job(ctx, id)
	if err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

func (b *SQLite) FinishJob(ctx context.Context, id string, jobErr error) error {
	state := JobCompleted
	message := ""
	if jobErr != nil {
		state = JobFailed
		message = jobErr.Error()
	}
	_, err := b.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, error = ?, finished_at = ? WHERE id = ? AND state NOT IN `+terminalStates,
		string(state), message, encodeTime(time.Now()), id)
	if err != nil {
		return b.opErr("finish_job", err)
	}
	return nil
}

func (b *SQLite) AddSchedule(ctx context.Context, schedule Schedule) error {
	overrides, err := encodeJSON(schedule.Overrides)
	if err != nil {
		return b.opErr("add_schedule", err)
	}
	trigger, err := encodeJSON(schedule.Trigger)
	if err != nil {
		return b.opErr("add_schedule", err)
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO schedules (id, pipeline, overrides, trigger, state, created_at, next_run, last_run, runs)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID, schedule.Pipeline, overrides, trigger, string(schedule.State),
		encodeTime(schedule.CreatedAt), encodeTime(schedule.NextRun), encodeTime(schedule.LastRun), schedule.Runs)
	if err != nil {
		return b.opErr("add_schedule", err)
	}
	return nil
}

const scheduleColumns = `id, pipeline, overrides, trigger, state, created_at, next_run, last_run, runs`

func scanSchedule(row interface{ Scan(...any) error }) (Schedule, error) {
	var schedule Schedule
	var overrides, trigger sql.NullString
	var createdAt, nextRun, lastRun sql.NullString
	var state string

	err := row.Scan(&schedule.ID, &schedule.Pipeline, &overrides, &trigger, &state,
		&createdAt, &nextRun, &lastRun, &schedule.Runs)
	if err != nil {
		return Schedule{}, err
	}

	schedule.State = ScheduleState(state)
	schedule.CreatedAt = decodeTime(createdAt)
	schedule.NextRun = decodeTime(nextRun)
	schedule.LastRun = decodeTime(lastRun)
	if overrides.Valid && overrides.String != "" {
		if err := json.Unmarshal([]byte(overrides.String), &schedule.Overrides); err != nil {
			return Schedule{}, err
		}
	}
	if trigger.Valid && trigger.String != "" {
		if err := json.Unmarshal([]byte(trigger.String), &schedule.Trigger); err != nil {
			return Schedule{}, err
		}
	}
	return schedule, nil
}

func (b *SQLite) Schedule(ctx context.Context, id string) (Schedule, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	schedule, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return Schedule{}, &errors.NotFoundError{Resource: "schedule", ID: id}
	}
	if err != nil {
		return Schedule{}, b.opErr("get_schedule", err)
	}
	return schedule, nil
}

func (b *SQLite) Schedules(ctx context.Context) ([]Schedule, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY created_at DESC`)
	if err != nil {
		return nil, b.opErr("list_schedules", err)
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, b.opErr("list_schedules", err)
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, b.opErr("list_schedules", err)
	}
	return schedules, nil
}

func (b *SQLite) PauseSchedule(ctx context.Context, id string) error {
	return b.transition(ctx, id, "pause_schedule", SchedulePaused, nil)
}

func (b *SQLite) ResumeSchedule(ctx context.Context, id string) error {
	schedule, err := b.Schedule(ctx, id)
	if err != nil {
		return err
	}
	if schedule.State.Terminal() {
		return &errors.BackendError{
			Backend: "sqlite", Op: "resume_schedule",
			Message: "schedule is " + string(schedule.State),
		}
	}
	next, err := schedule.Trigger.Next(time.Now().UTC())
	if err != nil {
		return err
	}
	if next.IsZero() {
		return b.transition(ctx, id, "resume_schedule", ScheduleCompleted, nil)
	}
	return b.transition(ctx, id, "resume_schedule", ScheduleActive, &next)
}

// transition moves a non-terminal schedule to the given state.
func (b *SQLite) transition(ctx context.Context, id, op string, state ScheduleState, nextRun *time.Time) error {
	query := `UPDATE schedules SET state = ? WHERE id = ? AND state NOT IN ('cancelled', 'completed')`
	args := []any{string(state), id}
	if nextRun != nil {
		query = `UPDATE schedules SET state = ?, next_run = ? WHERE id = ? AND state NOT IN ('cancelled', 'completed')`
		args = []any{string(state), encodeTime(*nextRun), id}
	}
	result, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return b.opErr(op, err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return b.opErr(op, err)
	}
	if changed == 0 {
		schedule, err := b.Schedule(ctx, id)
		if err != nil {
			return err
		}
		return &errors.BackendError{
			Backend: "sqlite", Op: op,
			Message: "schedule is " + string(schedule.State),
		}
	}
	return nil
}

func (b *SQLite) CancelSchedule(ctx context.Context, id string) (bool, error) {
	result, err := b.db.ExecContext(ctx,
		`UPDATE schedules SET state = 'cancelled' WHERE id = ? AND state NOT IN ('cancelled', 'completed')`, id)
	if err != nil {
		return false, b.opErr("cancel_schedule", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return false, b.opErr("cancel_schedule", err)
	}
	if changed == 0 {
		return false, nil
	}
	return true, nil
}

func (b *SQLite) CancelSchedules(ctx context.Context) (int, error) {
	result, err := b.db.ExecContext(ctx,
		`UPDATE schedules SET state = 'cancelled' WHERE state NOT IN ('cancelled', 'completed')`)
	if err != nil {
		return 0, b.opErr("cancel_schedules", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return 0, b.opErr("cancel_schedules", err)
	}
	return int(changed), nil
}

func (b *SQLite) DeleteSchedule(ctx context.Context, id string) error {
	result, err := b.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return b.opErr("delete_schedule", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return b.opErr("delete_schedule", err)
	}
	if changed == 0 {
		return &errors.NotFoundError{Resource: "schedule", ID: id}
	}
	return nil
}

func (b *SQLite) DeleteSchedules(ctx context.Context) (int, error) {
	result, err := b.db.ExecContext(ctx, `DELETE FROM schedules`)
	if err != nil {
		return 0, b.opErr("delete_schedules", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return 0, b.opErr("delete_schedules", err)
	}
	return int(changed), nil
}

func (b *SQLite) DueSchedules(ctx context.Context, now time.Time) ([]Job, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE state = 'active' AND next_run IS NOT NULL AND next_run <= ?`,
		encodeTime(now))
	if err != nil {
		return nil, b.opErr("due_schedules", err)
	}
	var due []Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			rows.Close()
			return nil, b.opErr("due_schedules", err)
		}
		due = append(due, schedule)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, b.opErr("due_schedules", err)
	}

	var spawned []Job
	for _, schedule := range due {
		job := NewJob(schedule.Pipeline, schedule.Overrides)
		job.ScheduleID = schedule.ID
		if err := b.AddJob(ctx, job); err != nil {
			return spawned, err
		}
		spawned = append(spawned, job)

		next, err := schedule.Trigger.Next(now)
		if err != nil {
			return spawned, err
		}
		state := ScheduleActive
		if next.IsZero() {
			state = ScheduleCompleted
		}
		_, err = b.db.ExecContext(ctx,
			`UPDATE schedules SET state = ?, next_run = ?, last_run = ?, runs = runs + 1 WHERE id = ?`,
			string(state), encodeTime(next), encodeTime(now), schedule.ID)
		if err != nil {
			return spawned, b.opErr("due_schedules", err)
		}
	}
	return spawned, nil
}
