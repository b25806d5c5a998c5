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

package jobqueue

import (
	"sync"

	"github.com/petalflow/petalflow/internal/config"
	"github.com/petalflow/petalflow/pkg/errors"
)

// Gateway selects and caches the project's configured backend. The
// backend is opened on first use, not at construction, so commands that
// never touch the queue never open a database.
type Gateway struct {
	cfg config.JobQueueConfig

	mu      sync.Mutex
	backend Backend
}

// NewGateway wraps a project's job queue configuration.
func NewGateway(cfg config.JobQueueConfig) *Gateway {
	return &Gateway{cfg: cfg}
}

// Backend returns the configured backend, opening it on first call.
func (g *Gateway) Backend() (Backend, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.backend != nil {
		return g.backend, nil
	}

	switch g.cfg.Type {
	case "memory", "":
		g.backend = NewMemory()
	case "sqlite":
		path := g.cfg.Path
		if path == "" {
			return nil, &errors.ConfigError{
				Key:    "job_queue.path",
				Reason: "sqlite backend requires a database path",
			}
		}
		backend, err := NewSQLite(path, g.cfg.PollInterval.Std())
		if err != nil {
			return nil, err
		}
		g.backend = backend
	default:
		return nil, &errors.UnsupportedError{
			Backend: g.cfg.Type,
			Op:      "job queue",
		}
	}
	return g.backend, nil
}

// Close closes the backend if it was opened.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.backend == nil {
		return nil
	}
	err := g.backend.Close()
	g.backend = nil
	return err
}
