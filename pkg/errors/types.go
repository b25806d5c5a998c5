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

package errors

import (
	"fmt"
	"time"
)

// ConfigError represents configuration problems.
// Use this for malformed config files, failed environment interpolation,
// bad type coercion, or invalid config values. Configuration errors are
// always fatal and are raised before any pipeline code executes.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "run.executor.type")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ConfigError) ErrorType() string { return "config" }

// IsRetryable implements ErrorClassifier. Configuration errors never
// resolve themselves by retrying.
func (e *ConfigError) IsRetryable() bool { return false }

// NotFoundError represents a resource not found error.
// Use this when a requested pipeline, job, or schedule does not exist.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "pipeline", "job", "schedule")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrorType implements ErrorClassifier.
func (e *NotFoundError) ErrorType() string { return "not_found" }

// IsRetryable implements ErrorClassifier.
func (e *NotFoundError) IsRetryable() bool { return false }

// ExecutionError represents a failure raised by pipeline code or by the
// graph engine while a run was in flight. Execution errors are subject to
// the configured retry policy.
type ExecutionError struct {
	// Pipeline is the pipeline that was executing
	Pipeline string

	// Node is the graph node that failed (empty if the failure was not
	// attributable to a single node)
	Node string

	// Message is the human-readable error description
	Message string

	// Attempts is the number of attempts made before giving up (set when
	// the retry policy is exhausted)
	Attempts int

	// Elapsed is the total wall-clock time spent across attempts
	Elapsed time.Duration

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("execution error in pipeline %s", e.Pipeline)
	if e.Node != "" {
		msg = fmt.Sprintf("%s (node %s)", msg, e.Node)
	}
	msg = fmt.Sprintf("%s: %s", msg, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s (after %d attempts in %v)", msg, e.Attempts, e.Elapsed.Round(time.Millisecond))
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ExecutionError) ErrorType() string { return "execution" }

// IsRetryable implements ErrorClassifier.
func (e *ExecutionError) IsRetryable() bool { return true }

// BackendError represents a job-queue or storage backend failure: the
// backend was unreachable or rejected an operation. The core never retries
// backend errors itself; retry is the backend's concern.
type BackendError struct {
	// Backend is the backend type (e.g., "sqlite", "memory", "s3")
	Backend string

	// Op is the operation that failed (e.g., "enqueue", "schedule")
	Op string

	// Message is the human-readable error description
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %s failed: %s", e.Backend, e.Op, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *BackendError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *BackendError) ErrorType() string { return "backend" }

// IsRetryable implements ErrorClassifier.
func (e *BackendError) IsRetryable() bool { return false }

// UnsupportedError reports that the selected backend lacks a requested
// capability (e.g., pause semantics on a plain queue). It is distinct from
// BackendError so callers can branch on capability rather than on a
// transient failure.
type UnsupportedError struct {
	// Backend is the backend type that lacks the capability
	Backend string

	// Op is the unsupported operation
	Op string
}

// Error implements the error interface.
func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("backend %s does not support %s", e.Backend, e.Op)
}

// ErrorType implements ErrorClassifier.
func (e *UnsupportedError) ErrorType() string { return "unsupported" }

// IsRetryable implements ErrorClassifier. Retrying cannot grow a capability.
func (e *UnsupportedError) IsRetryable() bool { return false }
