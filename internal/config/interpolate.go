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

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/petalflow/petalflow/pkg/errors"
)

// LookupFunc reports the value of an environment variable and whether it
// is set. os.LookupEnv satisfies it; tests substitute their own.
type LookupFunc func(name string) (string, bool)

// Interpolate walks a configuration value and expands environment
// references in every string. Supported forms:
//
//	${VAR}          error if VAR is unset
//	${VAR:-default} default if VAR is unset or empty
//	${VAR-default}  default only if VAR is unset
//	${VAR:?message} error carrying message if VAR is unset or empty
//	$${...}         literal ${...}, no expansion
//
// A string that underwent expansion is re-typed: if the expanded text
// parses as a bool, a number, or a JSON structure, the parsed value
// replaces the string.
func Interpolate(value any, lookup LookupFunc) (any, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return interpolateValue(value, lookup)
}

func interpolateValue(value any, lookup LookupFunc) (any, error) {
	switch v := value.(type) {
	case string:
		expanded, substituted, err := expand(v, lookup)
		if err != nil {
			return nil, err
		}
		if !substituted {
			return expanded, nil
		}
		return retype(expanded), nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			expanded, err := interpolateValue(item, lookup)
			if err != nil {
				return nil, err
			}
			out[key] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			expanded, err := interpolateValue(item, lookup)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return value, nil
	}
}

// expand performs one pass of ${...} substitution over s. The second
// return reports whether any substitution actually happened.
func expand(s string, lookup LookupFunc) (string, bool, error) {
	if !strings.Contains(s, "$") {
		return s, false, nil
	}

	var out strings.Builder
	substituted := false
	for i := 0; i < len(s); {
		// Literal escape: $${...} emits ${...} verbatim.
		if strings.HasPrefix(s[i:], "$${") {
			end := strings.IndexByte(s[i+2:], '}')
			if end == -1 {
				out.WriteString(s[i:])
				break
			}
			out.WriteString(s[i+1 : i+2+end+1])
			i += 2 + end + 1
			continue
		}

		if strings.HasPrefix(s[i:], "${") {
			end := strings.IndexByte(s[i:], '}')
			if end == -1 {
				return "", false, &errors.ConfigError{
					Reason: fmt.Sprintf("unterminated ${ in %q", s),
				}
			}
			replacement, err := expandRef(s[i+2 : i+end])
			if err != nil {
				return "", false, err
			}
			value, err := replacement(lookup)
			if err != nil {
				return "", false, err
			}
			out.WriteString(value)
			substituted = true
			i += end + 1
			continue
		}

		out.WriteByte(s[i])
		i++
	}
	return out.String(), substituted, nil
}

// expandRef parses the inside of one ${...} reference and returns a
// function resolving it against a lookup.
func expandRef(ref string) (func(LookupFunc) (string, error), error) {
	name := ref
	op := ""
	arg := ""

	// The first operator in the reference wins, so a default value may
	// itself contain operator characters.
	opIdx := -1
	for _, candidate := range []string{":-", ":?", "-"} {
		idx := strings.Index(ref, candidate)
		if idx == -1 {
			continue
		}
		if opIdx == -1 || idx < opIdx {
			opIdx = idx
			op = candidate
		}
	}
	if opIdx != -1 {
		name = ref[:opIdx]
		arg = ref[opIdx+len(op):]
	}

	if name == "" {
		return nil, &errors.ConfigError{
			Reason: fmt.Sprintf("empty variable name in ${%s}", ref),
		}
	}

	return func(lookup LookupFunc) (string, error) {
		value, set := lookup(name)
		switch op {
		case ":-":
			// Default when unset or empty.
			if !set || value == "" {
				return arg, nil
			}
			return value, nil
		case "-":
			// Default only when unset; an empty value passes through.
			if !set {
				return arg, nil
			}
			return value, nil
		case ":?":
			if !set || value == "" {
				return "", &errors.ConfigError{
					Key:    name,
					Reason: arg,
				}
			}
			return value, nil
		default:
			if !set {
				return "", &errors.ConfigError{
					Key:    name,
					Reason: "required environment variable is not set",
				}
			}
			return value, nil
		}
	}, nil
}

// retype parses an expanded string as a bool, number, or JSON structure
// when it looks like one, otherwise returns the string unchanged.
func retype(s string) any {
	trimmed := strings.TrimSpace(s)
	switch trimmed {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return int(n)
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return normalizeJSON(parsed)
		}
	}
	return s
}

// normalizeJSON converts json.Unmarshal output to the same shapes yaml.v3
// produces (map[string]any, []any, int where possible).
func normalizeJSON(v any) any {
	switch value := v.(type) {
	case map[string]any:
		for k, item := range value {
			value[k] = normalizeJSON(item)
		}
		return value
	case []any:
		for i, item := range value {
			value[i] = normalizeJSON(item)
		}
		return value
	case float64:
		if value == float64(int(value)) {
			return int(value)
		}
		return value
	default:
		return value
	}
}
