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
	"github.com/spf13/pflag"

	"github.com/petalflow/petalflow/internal/manager"
)

// runFlags are the call-time override flags shared by run and job add.
type runFlags struct {
	inputs     []string
	finalVars  []string
	executor   string
	maxWorkers int
	maxRetries int
	logLevel   string
	adapters   []string
	noAdapters []string
}

func (f *runFlags) register(flags *pflag.FlagSet) {
	flags.StringArrayVar(&f.inputs, "input", nil, "Run input as key=value (value parsed as JSON when possible, repeatable)")
	flags.StringSliceVar(&f.finalVars, "final-vars", nil, "Output variables to compute")
	flags.StringVar(&f.executor, "executor", "", "Execution strategy (synchronous, threadpool, processpool)")
	flags.IntVar(&f.maxWorkers, "max-workers", 0, "Worker limit for the threadpool strategy")
	flags.IntVar(&f.maxRetries, "max-retries", -1, "Retry attempts after a failed run")
	flags.StringVar(&f.logLevel, "log-level", "", "Log level for this run")
	flags.StringSliceVar(&f.adapters, "adapter", nil, "Enable an adapter (progress, tracker, tracing, metrics)")
	flags.StringSliceVar(&f.noAdapters, "no-adapter", nil, "Disable an adapter enabled in configuration")
}

func (f *runFlags) options() manager.RunOptions {
	opts := manager.RunOptions{
		Inputs:    parseAssignments(f.inputs),
		FinalVars: f.finalVars,
		Executor:  f.executor,
		LogLevel:  f.logLevel,
	}
	if f.maxWorkers > 0 {
		opts.MaxWorkers = f.maxWorkers
	}
	if f.maxRetries >= 0 {
		retries := f.maxRetries
		opts.MaxRetries = &retries
	}
	if len(f.adapters) > 0 || len(f.noAdapters) > 0 {
		opts.WithAdapter = map[string]bool{}
		for _, name := range f.adapters {
			opts.WithAdapter[name] = true
		}
		for _, name := range f.noAdapters {
			opts.WithAdapter[name] = false
		}
	}
	return opts
}

func newRunCommand(app *App) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Execute a pipeline now",
		Long: `Resolve the pipeline's configuration, execute its graph, and print
the requested final variables.

See also: petalflow job add, petalflow schedule add`,
		Example: `  # Example 1: Run with configured defaults
  petalflow run sales

  # Example 2: Override inputs and outputs
  petalflow run sales --input region=emea --final-vars revenue,orders

  # Example 3: Run concurrently with retries
  petalflow run sales --executor threadpool --max-workers 8 --max-retries 3

  # Example 4: Get the outputs as JSON
  petalflow run sales --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := app.formatter()

			m, err := app.manager(cmd.Context())
			if err != nil {
				return fail(formatter, "run", err)
			}
			outputs, err := m.Run(cmd.Context(), args[0], flags.options())
			if err != nil {
				return fail(formatter, "run", err)
			}
			return formatter.Success("run", outputs)
		},
	}

	flags.register(cmd.Flags())
	return cmd
}
