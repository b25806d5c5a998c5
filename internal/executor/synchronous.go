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

package executor

import (
	"context"

	"github.com/petalflow/petalflow/pkg/graph"
)

// synchronous runs every task inline on the calling goroutine, in the
// order given. It is the default strategy and the fallback for tags the
// factory does not recognize.
type synchronous struct{}

// NewSynchronous returns the inline execution strategy.
func NewSynchronous() graph.Executor {
	return synchronous{}
}

func (synchronous) Name() string { return TagSynchronous }

func (synchronous) Execute(ctx context.Context, tasks []graph.Task) error {
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := task.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (synchronous) Close() error { return nil }
