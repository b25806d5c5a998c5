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
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWorkerCommand(app *App) *cobra.Command {
	var workers int
	var watch bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a worker that executes queued and scheduled jobs",
		Long: `Claim jobs from the configured queue and execute them, and fire due
schedules. The worker runs until interrupted.

With --watch, configuration files are watched and the cache reloads on
change, so edited pipeline configuration applies to the next job
without a restart.`,
		Example: `  # Example 1: Single worker
  petalflow worker

  # Example 2: Four concurrent jobs with config reload
  petalflow worker --workers 4 --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := app.store()
			if err != nil {
				return fail(formatter, "worker", err)
			}
			if watch {
				if err := store.Watch(ctx); err != nil {
					return fail(formatter, "worker", err)
				}
			}

			m, err := app.managerWith(ctx, store)
			if err != nil {
				return fail(formatter, "worker", err)
			}
			if err := m.Worker(ctx, workers); err != nil {
				return fail(formatter, "worker", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 1, "Number of jobs to execute concurrently")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload configuration when project files change")

	return cmd
}
