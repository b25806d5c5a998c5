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
)

// NewRootCommand builds the petalflow command tree.
func NewRootCommand(app *App, version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "petalflow",
		Short: "Pipeline orchestration for dataflow graphs",
		Long: `petalflow resolves layered run configuration, executes dataflow
pipelines through pluggable execution strategies, and manages deferred
and scheduled runs through a job queue.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&app.ProjectDir, "project", ".", "Project directory containing petalflow.yaml")
	cmd.PersistentFlags().BoolVar(&app.JSON, "json", false, "Emit machine-readable JSON output")

	cmd.AddCommand(newInitCommand(app))
	cmd.AddCommand(newRunCommand(app))
	cmd.AddCommand(newPipelineCommand(app))
	cmd.AddCommand(newJobCommand(app))
	cmd.AddCommand(newScheduleCommand(app))
	cmd.AddCommand(newWorkerCommand(app))
	cmd.AddCommand(newConfigCommand(app))

	return cmd
}
