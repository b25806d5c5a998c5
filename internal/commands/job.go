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

package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/petalflow/petalflow/internal/jobqueue"
	"github.com/petalflow/petalflow/internal/output"
	"github.com/petalflow/petalflow/pkg/errors"
)

func newJobCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage queued jobs",
		Long: `Commands for queueing pipelines and administering the job queue.

Queued jobs are executed by a worker (petalflow worker).`,
	}

	cmd.AddCommand(newJobAddCommand(app))
	cmd.AddCommand(newJobListCommand(app))
	cmd.AddCommand(newJobShowCommand(app))
	cmd.AddCommand(newJobCancelCommand(app))
	cmd.AddCommand(newJobDeleteCommand(app))

	return cmd
}

func newJobAddCommand(app *App) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "add <pipeline>",
		Short: "Queue a pipeline for deferred execution",
		Long: `Record a job for the pipeline with the given overrides and return
immediately. A worker picks the job up and executes it.`,
		Example: `  # Example 1: Queue with defaults
  petalflow job add sales

  # Example 2: Queue with overrides
  petalflow job add sales --input region=emea --max-retries 3

  # Example 3: Capture the job id
  petalflow job add sales --json | jq -r '.data.id'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			m, err := app.manager(cmd.Context())
			if err != nil {
				return fail(formatter, "job add", err)
			}
			job, err := m.AddJob(cmd.Context(), args[0], flags.options())
			if err != nil {
				return fail(formatter, "job add", err)
			}

			if app.JSON {
				return formatter.Success("job add", job)
			}
			return formatter.Success("job add", output.KeyValues{Pairs: [][2]string{
				{"id", job.ID},
				{"pipeline", job.Pipeline},
				{"state", string(job.State)},
			}})
		},
	}

	flags.register(cmd.Flags())
	return cmd
}

func newJobListCommand(app *App) *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Example: `  # Example 1: All jobs
  petalflow job list

  # Example 2: Only failures
  petalflow job list --state failed

  # Example 3: As JSON
  petalflow job list --json | jq '.data.jobs[].id'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			m, err := app.manager(cmd.Context())
			if err != nil {
				return fail(formatter, "job list", err)
			}
			jobs, err := m.Jobs(cmd.Context())
			if err != nil {
				return fail(formatter, "job list", err)
			}
			if state != "" {
				filtered := jobs[:0]
				for _, job := range jobs {
					if string(job.State) == state {
						filtered = append(filtered, job)
					}
				}
				jobs = filtered
			}

			if app.JSON {
				return formatter.Success("job list", map[string]any{"jobs": jobs})
			}
			table := output.Table{Header: []string{"ID", "PIPELINE", "STATE", "CREATED"}}
			for _, job := range jobs {
				table.Rows = append(table.Rows, []string{
					job.ID, job.Pipeline, string(job.State),
					job.CreatedAt.Format(time.RFC3339),
				})
			}
			return formatter.Success("job list", table)
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state (pending, running, completed, failed, cancelled)")
	return cmd
}

func newJobShowCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show job details",
		Example: `  # Example 1: Human-readable details
  petalflow job show 6f1c9b2e

  # Example 2: Poll for completion
  petalflow job show 6f1c9b2e --json | jq -e '.data.state == "completed"'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			m, err := app.manager(cmd.Context())
			if err != nil {
				return fail(formatter, "job show", err)
			}
			job, err := m.Job(cmd.Context(), args[0])
			if err != nil {
				return fail(formatter, "job show", err)
			}

			if app.JSON {
				return formatter.Success("job show", job)
			}
			return formatter.Success("job show", jobDetails(job))
		},
	}
	return cmd
}

func jobDetails(job jobqueue.Job) output.KeyValues {
	pairs := [][2]string{
		{"id", job.ID},
		{"pipeline", job.Pipeline},
		{"state", string(job.State)},
		{"created", job.CreatedAt.Format(time.RFC3339)},
	}
	if !job.StartedAt.IsZero() {
		pairs = append(pairs, [2]string{"started", job.StartedAt.Format(time.RFC3339)})
	}
	if !job.FinishedAt.IsZero() {
		pairs = append(pairs, [2]string{"finished", job.FinishedAt.Format(time.RFC3339)})
	}
	if job.ScheduleID != "" {
		pairs = append(pairs, [2]string{"schedule", job.ScheduleID})
	}
	if job.Error != "" {
		pairs = append(pairs, [2]string{"error", job.Error})
	}
	return output.KeyValues{Pairs: pairs}
}

func newJobCancelCommand(app *App) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "cancel [job-id]",
		Short: "Cancel a job",
		Long: `Cancel a pending or running job. Cancelling a job that already
finished is a no-op.`,
		Example: `  # Example 1: Cancel one job
  petalflow job cancel 6f1c9b2e

  # Example 2: Cancel everything still pending or running
  petalflow job cancel --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			if all == (len(args) == 1) {
				return fail(formatter, "job cancel",
					&errors.ConfigError{Key: "job cancel", Reason: "pass a job id or --all, not both"})
			}

			m, err := app.manager(cmd.Context())
			if err != nil {
				return fail(formatter, "job cancel", err)
			}

			if all {
				count, err := m.CancelJobs(cmd.Context())
				if err != nil {
					return fail(formatter, "job cancel", err)
				}
				return formatter.Success("job cancel", fmt.Sprintf("cancelled %d jobs", count))
			}

			changed, err := m.CancelJob(cmd.Context(), args[0])
			if err != nil {
				return fail(formatter, "job cancel", err)
			}
			if !changed {
				return formatter.Success("job cancel", "job already finished")
			}
			return formatter.Success("job cancel", "job cancelled")
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Cancel every pending and running job")
	return cmd
}

func newJobDeleteCommand(app *App) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "delete [job-id]",
		Short: "Delete job records",
		Example: `  # Example 1: Delete one record
  petalflow job delete 6f1c9b2e

  # Example 2: Clear the queue history
  petalflow job delete --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			if all == (len(args) == 1) {
				return fail(formatter, "job delete",
					&errors.ConfigError{Key: "job delete", Reason: "pass a job id or --all, not both"})
			}

			m, err := app.manager(cmd.Context())
			if err != nil {
				return fail(formatter, "job delete", err)
			}

			if all {
				count, err := m.DeleteJobs(cmd.Context())
				if err != nil {
					return fail(formatter, "job delete", err)
				}
				return formatter.Success("job delete", fmt.Sprintf("deleted %d jobs", count))
			}

			if err := m.DeleteJob(cmd.Context(), args[0]); err != nil {
				return fail(formatter, "job delete", err)
			}
			return formatter.Success("job delete", "job deleted")
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Delete every job record")
	return cmd
}
