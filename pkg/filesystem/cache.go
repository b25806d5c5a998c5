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

package filesystem

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
)

// cached wraps a remote handle with a read-through local cache. Reads are
// served from the cache directory when present; writes go to the remote
// first and then refresh the cached copy.
type cached struct {
	Handle
	dir string
}

// WithCache wraps the handle with a read-through cache rooted at dir.
func WithCache(h Handle, dir string) (Handle, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &cached{Handle: h, dir: dir}, nil
}

func (c *cached) cachePath(name string) string {
	// Hash the root+name so two handles never collide in one cache dir.
	sum := sha256.Sum256([]byte(c.Scheme() + "://" + c.Root() + "/" + normalize(name)))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:]))
}

// ReadFile serves from the cache when possible, falling back to the remote
// and populating the cache on a miss.
func (c *cached) ReadFile(ctx context.Context, name string) ([]byte, error) {
	path := c.cachePath(name)
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}

	data, err := c.Handle.ReadFile(ctx, name)
	if err != nil {
		return nil, err
	}
	// Cache population is best-effort; a failed write still returns data.
	_ = os.WriteFile(path, data, 0o644)
	return data, nil
}

// Open reads through the cache.
func (c *cached) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	data, err := c.ReadFile(ctx, name)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// WriteFile writes to the remote, then refreshes the cached copy.
func (c *cached) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := c.Handle.WriteFile(ctx, name, data); err != nil {
		return err
	}
	_ = os.WriteFile(c.cachePath(name), data, 0o644)
	return nil
}

// Remove drops both the remote object and the cached copy.
func (c *cached) Remove(ctx context.Context, name string) error {
	if err := c.Handle.Remove(ctx, name); err != nil {
		return err
	}
	_ = os.Remove(c.cachePath(name))
	return nil
}
