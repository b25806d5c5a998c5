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

package runner

import (
	"math/rand"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/petalflow/petalflow/internal/config"
	"github.com/petalflow/petalflow/pkg/errors"
)

// retryEnv is the allow-listed environment visible to a retry condition
// expression. Nothing else is reachable from the expression.
type retryEnv struct {
	Error     string `expr:"error"`
	ErrorType string `expr:"error_type"`
	Attempt   int    `expr:"attempt"`
	Pipeline  string `expr:"pipeline"`
}

// retryPolicy is a compiled retry specification.
type retryPolicy struct {
	maxRetries int
	delay      time.Duration
	jitter     float64
	condition  *vm.Program
}

// compileRetry validates the spec and compiles the optional condition
// expression. An unparseable condition fails resolution up front rather
// than on the first error mid-run.
func compileRetry(spec config.RetrySpec) (*retryPolicy, error) {
	if spec.MaxRetries < 0 {
		return nil, &errors.ConfigError{
			Key:    "run.retry.max_retries",
			Reason: "must not be negative",
		}
	}
	if spec.JitterFactor < 0 || spec.JitterFactor > 1 {
		return nil, &errors.ConfigError{
			Key:    "run.retry.jitter_factor",
			Reason: "must be between 0 and 1",
		}
	}

	policy := &retryPolicy{
		maxRetries: spec.MaxRetries,
		delay:      spec.Delay.Std(),
		jitter:     spec.JitterFactor,
	}
	if spec.Condition != "" {
		program, err := expr.Compile(spec.Condition, expr.Env(retryEnv{}), expr.AsBool())
		if err != nil {
			return nil, &errors.ConfigError{
				Key:    "run.retry.condition",
				Reason: "invalid retry condition expression",
				Cause:  err,
			}
		}
		policy.condition = program
	}
	return policy, nil
}

// shouldRetry decides whether the given failure on the given attempt
// (1-based) warrants another try. Without a condition expression the
// error's own classification decides.
func (p *retryPolicy) shouldRetry(pipeline string, attempt int, err error) (bool, error) {
	if attempt > p.maxRetries {
		return false, nil
	}
	if p.condition == nil {
		return errors.IsRetryable(err), nil
	}

	out, evalErr := expr.Run(p.condition, retryEnv{
		Error:     err.Error(),
		ErrorType: errors.Layer(err),
		Attempt:   attempt,
		Pipeline:  pipeline,
	})
	if evalErr != nil {
		return false, &errors.ConfigError{
			Key:    "run.retry.condition",
			Reason: "retry condition evaluation failed",
			Cause:  evalErr,
		}
	}
	return out.(bool), nil
}

// backoff returns the delay before the next attempt, jittered by up to
// ±jitter_factor around the configured delay.
func (p *retryPolicy) backoff() time.Duration {
	if p.jitter == 0 {
		return p.delay
	}
	spread := (rand.Float64()*2 - 1) * p.jitter
	return time.Duration(float64(p.delay) * (1 + spread))
}
