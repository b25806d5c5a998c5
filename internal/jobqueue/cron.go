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
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronExpr is a parsed five-field cron expression
// (minute hour day-of-month month day-of-week).
type cronExpr struct {
	minutes  map[int]bool // 0-59
	hours    map[int]bool // 0-23
	days     map[int]bool // 1-31
	months   map[int]bool // 1-12
	weekdays map[int]bool // 0-6, Sunday = 0
}

var cronAliases = map[string]string{
	"@hourly":   "0 * * * *",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@weekly":   "0 0 * * 0",
	"@monthly":  "0 0 1 * *",
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
}

// parseCron parses a cron expression. Aliases like @daily are accepted.
func parseCron(expr string) (*cronExpr, error) {
	if alias, ok := cronAliases[strings.ToLower(strings.TrimSpace(expr))]; ok {
		expr = alias
	}

	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	c := &cronExpr{}
	specs := []struct {
		name string
		min  int
		max  int
		dst  *map[int]bool
	}{
		{"minute", 0, 59, &c.minutes},
		{"hour", 0, 23, &c.hours},
		{"day-of-month", 1, 31, &c.days},
		{"month", 1, 12, &c.months},
		{"day-of-week", 0, 6, &c.weekdays},
	}
	for i, spec := range specs {
		values, err := parseCronField(fields[i], spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", spec.name, err)
		}
		*spec.dst = values
	}
	return c, nil
}

// parseCronField parses one field: comma-separated parts, each a value,
// a range, or a wildcard, optionally with a step.
func parseCronField(field string, min, max int) (map[int]bool, error) {
	values := map[int]bool{}
	for _, part := range strings.Split(field, ",") {
		step := 1
		if idx := strings.Index(part, "/"); idx != -1 {
			parsed, err := strconv.Atoi(part[idx+1:])
			if err != nil || parsed <= 0 {
				return nil, fmt.Errorf("invalid step %q", part[idx+1:])
			}
			step = parsed
			part = part[:idx]
		}

		start, end := min, max
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			bounds := strings.SplitN(part, "-", 2)
			var err error
			if start, err = strconv.Atoi(bounds[0]); err != nil {
				return nil, fmt.Errorf("invalid range start %q", bounds[0])
			}
			if end, err = strconv.Atoi(bounds[1]); err != nil {
				return nil, fmt.Errorf("invalid range end %q", bounds[1])
			}
		default:
			parsed, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q", part)
			}
			start, end = parsed, parsed
		}

		if start < min || end > max || start > end {
			return nil, fmt.Errorf("range %d-%d outside [%d-%d]", start, end, min, max)
		}
		for v := start; v <= end; v += step {
			values[v] = true
		}
	}
	return values, nil
}

// next returns the first matching time strictly after from, or the zero
// time if no match exists within the search horizon.
func (c *cronExpr) next(from time.Time) time.Time {
	t := from.Truncate(time.Minute).Add(time.Minute)
	horizon := from.AddDate(4, 0, 0)

	for t.Before(horizon) {
		switch {
		case !c.months[int(t.Month())]:
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
		case !c.days[t.Day()] || !c.weekdays[int(t.Weekday())]:
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
		case !c.hours[t.Hour()]:
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
		case !c.minutes[t.Minute()]:
			t = t.Add(time.Minute)
		default:
			return t
		}
	}
	return time.Time{}
}
