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
	"gopkg.in/yaml.v3"

	"github.com/petalflow/petalflow/internal/output"
)

func newPipelineCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage pipeline configuration",
		Long: `Commands for creating and inspecting per-pipeline configuration
files under the pipelines directory.`,
	}

	cmd.AddCommand(newPipelineNewCommand(app))
	cmd.AddCommand(newPipelineListCommand(app))
	cmd.AddCommand(newPipelineShowCommand(app))

	return cmd
}

func newPipelineNewCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Scaffold a pipeline configuration file",
		Example: `  # Example 1: Create pipelines/sales.yaml
  petalflow pipeline new sales`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			store, err := app.store()
			if err != nil {
				return fail(formatter, "pipeline new", err)
			}
			cfg, err := store.NewPipeline(cmd.Context(), args[0])
			if err != nil {
				return fail(formatter, "pipeline new", err)
			}
			return formatter.Success("pipeline new", output.KeyValues{Pairs: [][2]string{
				{"pipeline", cfg.Name},
				{"file", "pipelines/" + cfg.Name + ".yaml"},
			}})
		},
	}
	return cmd
}

func newPipelineListCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured pipelines",
		Example: `  # Example 1: Table output
  petalflow pipeline list

  # Example 2: Names as JSON
  petalflow pipeline list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			store, err := app.store()
			if err != nil {
				return fail(formatter, "pipeline list", err)
			}
			names, err := store.ListPipelines(cmd.Context())
			if err != nil {
				return fail(formatter, "pipeline list", err)
			}

			if app.JSON {
				return formatter.Success("pipeline list", map[string]any{"pipelines": names})
			}
			table := output.Table{Header: []string{"PIPELINE", "REGISTERED"}}
			for _, name := range names {
				registered := "no"
				if _, err := app.Registry.Get(name); err == nil {
					registered = "yes"
				}
				table.Rows = append(table.Rows, []string{name, registered})
			}
			return formatter.Success("pipeline list", table)
		},
	}
	return cmd
}

func newPipelineShowCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a pipeline's configuration file",
		Example: `  # Example 1: Print the configuration
  petalflow pipeline show sales

  # Example 2: As JSON
  petalflow pipeline show sales --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			store, err := app.store()
			if err != nil {
				return fail(formatter, "pipeline show", err)
			}
			doc, err := store.PipelineDoc(cmd.Context(), args[0])
			if err != nil {
				return fail(formatter, "pipeline show", err)
			}

			if app.JSON {
				return formatter.Success("pipeline show", doc)
			}
			rendered, err := yaml.Marshal(doc)
			if err != nil {
				return fail(formatter, "pipeline show", err)
			}
			return formatter.Success("pipeline show", string(rendered))
		},
	}
	return cmd
}
