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

package main

import (
	"fmt"
	"os"

	"github.com/petalflow/petalflow/internal/commands"
	"github.com/petalflow/petalflow/internal/examples"
	"github.com/petalflow/petalflow/internal/pipeline"
)

// Version information (injected via ldflags at build time)
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	registry := pipeline.NewRegistry()
	callbacks := pipeline.NewCallbacks()
	if err := examples.Register(registry, callbacks); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := commands.NewApp(registry, callbacks)
	root := commands.NewRootCommand(app, fmt.Sprintf("%s (commit %s)", version, commit))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
