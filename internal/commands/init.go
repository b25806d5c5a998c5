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
	"github.com/spf13/cobra"

	"github.com/petalflow/petalflow/internal/config"
	"github.com/petalflow/petalflow/internal/output"
)

func newInitCommand(app *App) *cobra.Command {
	var name string
	var queueType string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new petalflow project",
		Long: `Create petalflow.yaml and the pipelines directory in the project
directory. Existing files are left untouched.`,
		Example: `  # Example 1: Initialise the current directory
  petalflow init --name sales-reporting

  # Example 2: Use a durable job queue
  petalflow init --name sales-reporting --queue sqlite`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			store, err := app.store()
			if err != nil {
				return fail(formatter, "init", err)
			}

			project := &config.ProjectConfig{
				Name: name,
				JobQueue: config.JobQueueConfig{
					Type: queueType,
				},
			}
			if queueType == "sqlite" {
				project.JobQueue.Path = "petalflow.db"
			}

			if err := store.SaveProject(cmd.Context(), project); err != nil {
				return fail(formatter, "init", err)
			}
			return formatter.Success("init", output.KeyValues{Pairs: [][2]string{
				{"project", name},
				{"config", config.ProjectFile},
				{"job queue", project.JobQueue.Type},
			}})
		},
	}

	cmd.Flags().StringVar(&name, "name", "petalflow-project", "Project name")
	cmd.Flags().StringVar(&queueType, "queue", "memory", "Job queue backend (memory, sqlite)")

	return cmd
}
