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

	"github.com/petalflow/petalflow/internal/config"
	"github.com/petalflow/petalflow/internal/jobqueue"
	"github.com/petalflow/petalflow/internal/output"
	"github.com/petalflow/petalflow/pkg/errors"
)

func newScheduleCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage recurring pipeline execution",
		Long: `Commands for creating and administering schedules. A schedule fires
jobs on a cron expression, a fixed interval, or a one-shot date; a
running worker executes them.`,
	}

	cmd.AddCommand(newScheduleAddCommand(app))
	cmd.AddCommand(newScheduleListCommand(app))
	cmd.AddCommand(newScheduleShowCommand(app))
	cmd.AddCommand(newSchedulePauseCommand(app))
	cmd.AddCommand(newScheduleResumeCommand(app))
	cmd.AddCommand(newScheduleCancelCommand(app))
	cmd.AddCommand(newScheduleDeleteCommand(app))

	return cmd
}

func newScheduleAddCommand(app *App) *cobra.Command {
	var flags runFlags
	var cron string
	var interval time.Duration
	var at string

	cmd := &cobra.Command{
		Use:   "add <pipeline>",
		Short: "Schedule recurring execution of a pipeline",
		Long: `Create a schedule from --cron, --interval, or --at. Without any
trigger flag the pipeline's own schedule section is used.`,
		Example: `  # Example 1: Weekday mornings
  petalflow schedule add sales --cron "0 8 * * 1-5"

  # Example 2: Every ten minutes
  petalflow schedule add sales --interval 10m

  # Example 3: Once, at a fixed time
  petalflow schedule add sales --at 2026-09-01T06:00:00Z

  # Example 4: Use the pipeline's configured schedule
  petalflow schedule add sales`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			m, err := app.manager(cmd.Context())
			if err != nil {
				return fail(formatter, "schedule add", err)
			}

			var schedule jobqueue.Schedule
			if cron == "" && interval == 0 && at == "" {
				schedule, err = m.SchedulePipeline(cmd.Context(), args[0], flags.options())
			} else {
				spec := config.ScheduleSpec{Cron: cron, Interval: config.Duration(interval)}
				if at != "" {
					date, parseErr := time.Parse(time.RFC3339, at)
					if parseErr != nil {
						return fail(formatter, "schedule add", &errors.ConfigError{
							Key:    "schedule.date",
							Reason: "not an RFC 3339 timestamp",
							Cause:  parseErr,
						})
					}
					spec.Date = date
				}
				schedule, err = m.Schedule(cmd.Context(), args[0], spec, flags.options())
			}
			if err != nil {
				return fail(formatter, "schedule add", err)
			}

			if app.JSON {
				return formatter.Success("schedule add", schedule)
			}
			return formatter.Success("schedule add", output.KeyValues{Pairs: [][2]string{
				{"id", schedule.ID},
				{"pipeline", schedule.Pipeline},
				{"trigger", schedule.Trigger.Describe()},
				{"next run", schedule.NextRun.Format(time.RFC3339)},
			}})
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&cron, "cron", "", "Cron expression (minute hour day month weekday)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Fixed interval between runs")
	cmd.Flags().StringVar(&at, "at", "", "One-shot RFC 3339 fire time")

	return cmd
}

func newScheduleListCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		Example: `  # Example 1: Table output
  petalflow schedule list

  # Example 2: As JSON
  petalflow schedule list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			m, err := app.manager(cmd.Context())
			if err != nil {
				return fail(formatter, "schedule list", err)
			}
			schedules, err := m.Schedules(cmd.Context())
			if err != nil {
				return fail(formatter, "schedule list", err)
			}

			if app.JSON {
				return formatter.Success("schedule list", map[string]any{"schedules": schedules})
			}
			table := output.Table{Header: []string{"ID", "PIPELINE", "TRIGGER", "STATE", "NEXT RUN"}}
			for _, schedule := range schedules {
				next := "-"
				if !schedule.NextRun.IsZero() {
					next = schedule.NextRun.Format(time.RFC3339)
				}
				table.Rows = append(table.Rows, []string{
					schedule.ID, schedule.Pipeline, schedule.Trigger.Describe(),
					string(schedule.State), next,
				})
			}
			return formatter.Success("schedule list", table)
		},
	}
	return cmd
}

func newScheduleShowCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <schedule-id>",
		Short: "Show schedule details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			m, err := app.manager(cmd.Context())
			if err != nil {
				return fail(formatter, "schedule show", err)
			}
			schedule, err := m.GetSchedule(cmd.Context(), args[0])
			if err != nil {
				return fail(formatter, "schedule show", err)
			}

			if app.JSON {
				return formatter.Success("schedule show", schedule)
			}
			pairs := [][2]string{
				{"id", schedule.ID},
				{"pipeline", schedule.Pipeline},
				{"trigger", schedule.Trigger.Describe()},
				{"state", string(schedule.State)},
				{"runs", fmt.Sprintf("%d", schedule.Runs)},
			}
			if !schedule.NextRun.IsZero() {
				pairs = append(pairs, [2]string{"next run", schedule.NextRun.Format(time.RFC3339)})
			}
			if !schedule.LastRun.IsZero() {
				pairs = append(pairs, [2]string{"last run", schedule.LastRun.Format(time.RFC3339)})
			}
			return formatter.Success("schedule show", output.KeyValues{Pairs: pairs})
		},
	}
	return cmd
}

func newSchedulePauseCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pause <schedule-id>",
		Short: "Pause a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			m, err := app.manager(cmd.Context())
			if err != nil {
				return fail(formatter, "schedule pause", err)
			}
			if err := m.PauseSchedule(cmd.Context(), args[0]); err != nil {
				return fail(formatter, "schedule pause", err)
			}
			return formatter.Success("schedule pause", "schedule paused")
		},
	}
	return cmd
}

func newScheduleResumeCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <schedule-id>",
		Short: "Resume a paused schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			m, err := app.manager(cmd.Context())
			if err != nil {
				return fail(formatter, "schedule resume", err)
			}
			if err := m.ResumeSchedule(cmd.Context(), args[0]); err != nil {
				return fail(formatter, "schedule resume", err)
			}
			return formatter.Success("schedule resume", "schedule resumed")
		},
	}
	return cmd
}

func newScheduleCancelCommand(app *App) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "cancel [schedule-id]",
		Short: "Cancel a schedule",
		Long: `Permanently stop a schedule from firing. Cancelling an already
cancelled schedule is a no-op.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			if all == (len(args) == 1) {
				return fail(formatter, "schedule cancel",
					&errors.ConfigError{Key: "schedule cancel", Reason: "pass a schedule id or --all, not both"})
			}

			m, err := app.manager(cmd.Context())
			if err != nil {
				return fail(formatter, "schedule cancel", err)
			}

			if all {
				count, err := m.CancelSchedules(cmd.Context())
				if err != nil {
					return fail(formatter, "schedule cancel", err)
				}
				return formatter.Success("schedule cancel", fmt.Sprintf("cancelled %d schedules", count))
			}

			changed, err := m.CancelSchedule(cmd.Context(), args[0])
			if err != nil {
				return fail(formatter, "schedule cancel", err)
			}
			if !changed {
				return formatter.Success("schedule cancel", "schedule already stopped")
			}
			return formatter.Success("schedule cancel", "schedule cancelled")
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Cancel every active or paused schedule")
	return cmd
}

func newScheduleDeleteCommand(app *App) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "delete [schedule-id]",
		Short: "Delete schedule records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			if all == (len(args) == 1) {
				return fail(formatter, "schedule delete",
					&errors.ConfigError{Key: "schedule delete", Reason: "pass a schedule id or --all, not both"})
			}

			m, err := app.manager(cmd.Context())
			if err != nil {
				return fail(formatter, "schedule delete", err)
			}

			if all {
				count, err := m.DeleteSchedules(cmd.Context())
				if err != nil {
					return fail(formatter, "schedule delete", err)
				}
				return formatter.Success("schedule delete", fmt.Sprintf("deleted %d schedules", count))
			}

			if err := m.DeleteSchedule(cmd.Context(), args[0]); err != nil {
				return fail(formatter, "schedule delete", err)
			}
			return formatter.Success("schedule delete", "schedule deleted")
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Delete every schedule record")
	return cmd
}
