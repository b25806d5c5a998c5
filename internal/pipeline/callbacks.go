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

package pipeline

import (
	"context"
	"sort"
	"sync"

	"github.com/petalflow/petalflow/pkg/errors"
)

// CallbackFunc runs after a pipeline finishes. Outputs is nil on the
// failure path; runErr is nil on the success path.
type CallbackFunc func(ctx context.Context, pipeline string, outputs map[string]any, runErr error)

// Callbacks maps callback names, as referenced by on_success and
// on_failure in run configuration, to functions.
type Callbacks struct {
	mu    sync.RWMutex
	funcs map[string]CallbackFunc
}

// NewCallbacks returns an empty callback registry.
func NewCallbacks() *Callbacks {
	return &Callbacks{funcs: map[string]CallbackFunc{}}
}

// Register adds or replaces a named callback.
func (c *Callbacks) Register(name string, fn CallbackFunc) error {
	if name == "" {
		return &errors.ConfigError{Key: "callback", Reason: "callback name is required"}
	}
	if fn == nil {
		return &errors.ConfigError{Key: "callback." + name, Reason: "callback function is nil"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs[name] = fn
	return nil
}

// Get returns the named callback.
func (c *Callbacks) Get(name string) (CallbackFunc, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.funcs[name]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "callback", ID: name}
	}
	return fn, nil
}

// Validate checks that every referenced callback name is registered.
// It reports the first missing name so run configuration problems
// surface before execution rather than after.
func (c *Callbacks) Validate(names []string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, name := range names {
		if _, ok := c.funcs[name]; !ok {
			return &errors.NotFoundError{Resource: "callback", ID: name}
		}
	}
	return nil
}

// Names returns the registered callback names, sorted.
func (c *Callbacks) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.funcs))
	for name := range c.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
