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

// Package executor provides the execution strategies a run can select
// through its resolved configuration, and the factory that maps a strategy
// tag to an implementation.
package executor

import (
	"log/slog"
	"runtime"
	"strings"

	"github.com/petalflow/petalflow/internal/config"
	"github.com/petalflow/petalflow/internal/log"
	"github.com/petalflow/petalflow/pkg/graph"
)

// Strategy tags accepted in run configuration.
const (
	TagSynchronous = "synchronous"
	TagThreadpool  = "threadpool"
	TagProcesspool = "processpool"
)

// From builds the execution strategy for the given spec. Unknown tags,
// including the distributed family that this build does not ship, degrade
// to synchronous execution with a logged warning rather than failing the
// run.
func From(spec config.ExecutorSpec, logger *slog.Logger) graph.Executor {
	if logger == nil {
		logger = slog.Default()
	}

	switch spec.Type {
	case TagSynchronous, "":
		return NewSynchronous()
	case TagThreadpool:
		return NewThreadpool(spec.MaxWorkers)
	case TagProcesspool:
		return NewProcesspool(spec.NumCPUs)
	default:
		reason := "unknown executor type"
		if strings.HasPrefix(spec.Type, "distributed") {
			reason = "distributed executors are not available in this build"
		}
		logger.Warn("falling back to synchronous execution",
			log.ExecutorKey, spec.Type,
			"reason", reason)
		return NewSynchronous()
	}
}

// poolSize clamps a requested worker count to something sane.
func poolSize(requested int) int {
	if requested > 0 {
		return requested
	}
	return runtime.NumCPU()
}
