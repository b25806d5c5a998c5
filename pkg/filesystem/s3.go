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
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/petalflow/petalflow/pkg/errors"
)

func init() {
	Register("s3", func(root string, opts Options) (Handle, error) {
		return NewS3(root, opts)
	})
}

// S3 is an object-storage backend speaking the S3 protocol via the MinIO
// client. The root takes the form "bucket" or "bucket/prefix".
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
	root   string
}

// NewS3 creates a handle rooted at the given bucket/prefix.
func NewS3(root string, opts Options) (*S3, error) {
	if opts.Endpoint == "" {
		return nil, &errors.ConfigError{
			Key:    "filesystem.endpoint",
			Reason: "s3 backend requires an endpoint",
		}
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, &errors.BackendError{
			Backend: "s3",
			Op:      "connect",
			Message: err.Error(),
			Cause:   err,
		}
	}

	root = normalize(root)
	bucket, prefix, _ := strings.Cut(root, "/")
	if bucket == "" {
		return nil, &errors.ConfigError{
			Key:    "filesystem",
			Reason: "s3 path must include a bucket",
		}
	}

	return &S3{
		client: client,
		bucket: bucket,
		prefix: prefix,
		root:   root,
	}, nil
}

// Scheme implements Handle.
func (s *S3) Scheme() string { return "s3" }

// Root implements Handle.
func (s *S3) Root() string { return s.root }

func (s *S3) key(name string) string {
	return path.Join(s.prefix, normalize(name))
}

// Open implements Handle.
func (s *S3) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrap("get", err)
	}
	return obj, nil
}

// ReadFile implements Handle.
func (s *S3) ReadFile(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.wrap("read", err)
	}
	return data, nil
}

// WriteFile implements Handle.
func (s *S3) WriteFile(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return s.wrap("put", err)
	}
	return nil
}

// List implements Handle.
func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	listPrefix := s.key(prefix)
	if listPrefix != "" {
		listPrefix += "/"
	}

	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    listPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, s.wrap("list", obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, s.prefix)
		names = append(names, strings.TrimPrefix(name, "/"))
	}
	sort.Strings(names)
	return names, nil
}

// Exists implements Handle.
func (s *S3) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, s.key(name), minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return false, nil
		}
		return false, s.wrap("stat", err)
	}
	return true, nil
}

// Remove implements Handle.
func (s *S3) Remove(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil {
		return s.wrap("remove", err)
	}
	return nil
}

func (s *S3) wrap(op string, err error) error {
	return &errors.BackendError{
		Backend: "s3",
		Op:      op,
		Message: err.Error(),
		Cause:   err,
	}
}
