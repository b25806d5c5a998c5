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
	"io"
	"io/fs"
	"sort"
	"strings"
	"sync"
)

func init() {
	Register("mem", func(root string, _ Options) (Handle, error) {
		return NewMemory(root), nil
	})
}

// Memory is an in-memory backend, used in tests and as the smallest
// reference implementation of the Handle contract.
type Memory struct {
	root  string
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemory creates an empty in-memory handle.
func NewMemory(root string) *Memory {
	return &Memory{
		root:  root,
		files: make(map[string][]byte),
	}
}

// Scheme implements Handle.
func (m *Memory) Scheme() string { return "mem" }

// Root implements Handle.
func (m *Memory) Root() string { return m.root }

// Open implements Handle.
func (m *Memory) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	data, err := m.ReadFile(ctx, name)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// ReadFile implements Handle.
func (m *Memory) ReadFile(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[normalize(name)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteFile implements Handle.
func (m *Memory) WriteFile(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.files[normalize(name)] = stored
	return nil
}

// List implements Handle.
func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix = normalize(prefix)
	var names []string
	for name := range m.files {
		if prefix == "" || strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Exists implements Handle.
func (m *Memory) Exists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[normalize(name)]
	return ok, nil
}

// Remove implements Handle.
func (m *Memory) Remove(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, normalize(name))
	return nil
}
