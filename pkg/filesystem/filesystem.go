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

// Package filesystem provides a uniform, path-addressable interface over
// storage backends. A handle is rooted at a location resolved from a
// scheme-prefixed path (file:///data, s3://bucket/prefix, mem://name) so
// that downstream code never needs to know whether it is local or remote.
package filesystem

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/petalflow/petalflow/pkg/errors"
)

// Handle is a filesystem rooted at a base location. All names are
// interpreted relative to that root.
type Handle interface {
	// Scheme returns the backend scheme ("file", "s3", "mem").
	Scheme() string

	// Root returns the resolved base location.
	Root() string

	// Open opens the named file for reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// ReadFile reads the whole named file.
	ReadFile(ctx context.Context, name string) ([]byte, error)

	// WriteFile writes data to the named file, creating parent directories
	// (or key prefixes) as needed.
	WriteFile(ctx context.Context, name string, data []byte) error

	// List returns the names under the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, name string) (bool, error)

	// Remove deletes the named file. Removing a missing file is not an error.
	Remove(ctx context.Context, name string) error
}

// Options carries backend-specific credentials and settings.
type Options struct {
	// Endpoint is the remote service endpoint (host:port), if any.
	Endpoint string

	// AccessKey and SecretKey authenticate against remote object storage.
	AccessKey string
	SecretKey string

	// Region is the object storage region.
	Region string

	// UseSSL enables TLS for remote endpoints.
	UseSSL bool

	// CacheDir, when set, wraps remote backends with a read-through local
	// cache at that directory.
	CacheDir string
}

// Factory constructs a Handle rooted at the given location.
type Factory func(root string, opts Options) (Handle, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a backend factory for the given scheme. Registering a
// scheme twice replaces the earlier factory.
func Register(scheme string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[scheme] = factory
}

// Schemes returns the registered backend schemes, sorted.
func Schemes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for s := range registry {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SplitPath splits a possibly scheme-prefixed path into scheme and root.
// Paths without a scheme default to the local backend.
func SplitPath(path string) (scheme, root string) {
	if idx := strings.Index(path, "://"); idx != -1 {
		return path[:idx], path[idx+3:]
	}
	return "file", path
}

// GetHandle resolves a scheme-prefixed path plus options into a live Handle.
// Remote handles are wrapped with a read-through cache when opts.CacheDir
// is set.
func GetHandle(path string, opts Options) (Handle, error) {
	scheme, root := SplitPath(path)

	registryMu.RLock()
	factory, ok := registry[scheme]
	registryMu.RUnlock()
	if !ok {
		return nil, &errors.ConfigError{
			Key:    "filesystem",
			Reason: fmt.Sprintf("unknown backend scheme %q (known: %s)", scheme, strings.Join(Schemes(), ", ")),
		}
	}

	handle, err := factory(root, opts)
	if err != nil {
		return nil, err
	}

	if opts.CacheDir != "" && scheme != "file" && scheme != "mem" {
		handle, err = WithCache(handle, opts.CacheDir)
		if err != nil {
			return nil, err
		}
	}
	return handle, nil
}
