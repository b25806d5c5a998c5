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
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func init() {
	Register("file", func(root string, _ Options) (Handle, error) {
		return NewLocal(root)
	})
}

// Local is the local-disk backend.
type Local struct {
	root string
}

// NewLocal creates a handle rooted at the given directory. The directory
// does not need to exist yet; it is created on first write.
func NewLocal(root string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

// Scheme implements Handle.
func (l *Local) Scheme() string { return "file" }

// Root implements Handle.
func (l *Local) Root() string { return l.root }

func (l *Local) path(name string) string {
	return filepath.Join(l.root, filepath.FromSlash(name))
}

// Open implements Handle.
func (l *Local) Open(_ context.Context, name string) (io.ReadCloser, error) {
	return os.Open(l.path(name))
}

// ReadFile implements Handle.
func (l *Local) ReadFile(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(l.path(name))
}

// WriteFile implements Handle.
func (l *Local) WriteFile(_ context.Context, name string, data []byte) error {
	path := l.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// Write to a temp file and rename so readers never observe a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".petalflow-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// List implements Handle.
func (l *Local) List(_ context.Context, prefix string) ([]string, error) {
	base := l.path(prefix)
	var names []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Exists implements Handle.
func (l *Local) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(l.path(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Remove implements Handle.
func (l *Local) Remove(_ context.Context, name string) error {
	err := os.Remove(l.path(name))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// normalize strips any leading "./" and slashes so names join cleanly.
func normalize(name string) string {
	return strings.TrimPrefix(strings.TrimPrefix(name, "./"), "/")
}
