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

	configpkg "github.com/petalflow/petalflow/internal/config"
)

func newConfigCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect resolved configuration",
	}

	cmd.AddCommand(newConfigShowCommand(app))
	return cmd
}

func newConfigShowCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [pipeline]",
		Short: "Show resolved configuration",
		Long: `Without arguments, print the project configuration. With a pipeline
name, resolve and print the configuration a run of that pipeline would
use right now: defaults, file configuration after environment
interpolation, environment overrides, everything merged in precedence
order. Useful for debugging why a run behaves the way it does.`,
		Example: `  # Example 1: Project configuration
  petalflow config show

  # Example 2: Effective run configuration for a pipeline
  petalflow config show sales

  # Example 3: Check an environment override landed
  PETALFLOW__run__executor__type=threadpool petalflow config show sales --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			store, err := app.store()
			if err != nil {
				return fail(formatter, "config show", err)
			}

			if len(args) == 0 {
				project, err := store.Project(cmd.Context())
				if err != nil {
					return fail(formatter, "config show", err)
				}
				if app.JSON {
					return formatter.Success("config show", project)
				}
				rendered, err := yaml.Marshal(project)
				if err != nil {
					return fail(formatter, "config show", err)
				}
				return formatter.Success("config show", string(rendered))
			}

			settings, err := configpkg.SettingsFromEnv()
			if err != nil {
				return fail(formatter, "config show", err)
			}
			resolver := configpkg.NewResolver(store, settings)
			resolved, err := resolver.Resolve(cmd.Context(), args[0], nil)
			if err != nil {
				return fail(formatter, "config show", err)
			}

			if app.JSON {
				return formatter.Success("config show", resolved)
			}
			rendered, err := yaml.Marshal(map[string]any{
				"pipeline": resolved.Pipeline,
				"run":      resolved.Run,
				"adapter":  resolved.AdapterSettings,
				"params":   resolved.Params,
			})
			if err != nil {
				return fail(formatter, "config show", err)
			}
			return formatter.Success("config show", string(rendered))
		},
	}
	return cmd
}
