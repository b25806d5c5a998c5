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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petalflow/petalflow/internal/config"
	"github.com/petalflow/petalflow/pkg/errors"
)

func TestParseCronRejectsBadExpressions(t *testing.T) {
	bad := []string{
		"",
		"* * * *",
		"* * * * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 7",
		"a * * * *",
		"1-0 * * * *",
		"*/0 * * * *",
	}
	for _, expr := range bad {
		_, err := parseCron(expr)
		assert.Error(t, err, "expression %q", expr)
	}
}

func TestCronNextWeekdayMornings(t *testing.T) {
	expr, err := parseCron("0 8 * * 1-5")
	require.NoError(t, err)

	// Saturday afternoon; the next weekday 08:00 is Monday.
	saturday := time.Date(2026, 8, 29, 15, 30, 0, 0, time.UTC)
	next := expr.next(saturday)
	assert.Equal(t, time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.Monday, next.Weekday())

	// Monday 08:00 itself is not "after"; the next fire is Tuesday.
	next = expr.next(next)
	assert.Equal(t, time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC), next)
}

func TestCronNextSteps(t *testing.T) {
	expr, err := parseCron("*/15 * * * *")
	require.NoError(t, err)

	from := time.Date(2026, 1, 1, 10, 7, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC), expr.next(from))

	from = time.Date(2026, 1, 1, 10, 45, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC), expr.next(from))
}

func TestCronNextMonthBoundary(t *testing.T) {
	expr, err := parseCron("0 0 1 * *")
	require.NoError(t, err)

	from := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), expr.next(from))
}

func TestCronAliases(t *testing.T) {
	from := time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC)

	hourly, err := parseCron("@hourly")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC), hourly.next(from))

	daily, err := parseCron("@daily")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), daily.next(from))

	monthly, err := parseCron("@monthly")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), monthly.next(from))
}

func TestCronCommaLists(t *testing.T) {
	expr, err := parseCron("0 9,17 * * *")
	require.NoError(t, err)

	from := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 5, 4, 17, 0, 0, 0, time.UTC), expr.next(from))
	assert.Equal(t, time.Date(2026, 5, 5, 9, 0, 0, 0, time.UTC), expr.next(expr.next(from)))
}

func TestTriggerFromRequiresExactlyOne(t *testing.T) {
	_, err := TriggerFrom(config.ScheduleSpec{})
	assert.True(t, errors.IsConfig(err))

	_, err = TriggerFrom(config.ScheduleSpec{
		Cron:     "0 * * * *",
		Interval: config.Duration(time.Minute),
	})
	assert.True(t, errors.IsConfig(err))

	_, err = TriggerFrom(config.ScheduleSpec{Cron: "bogus"})
	assert.True(t, errors.IsConfig(err))

	trigger, err := TriggerFrom(config.ScheduleSpec{Cron: "0 * * * *"})
	require.NoError(t, err)
	assert.Equal(t, TriggerCron, trigger.Kind)
}

func TestTriggerIntervalNext(t *testing.T) {
	trigger, err := TriggerFrom(config.ScheduleSpec{Interval: config.Duration(10 * time.Minute)})
	require.NoError(t, err)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := trigger.Next(from)
	require.NoError(t, err)
	assert.Equal(t, from.Add(10*time.Minute), next)
}

func TestTriggerDateFiresOnce(t *testing.T) {
	when := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)
	trigger, err := TriggerFrom(config.ScheduleSpec{Date: when})
	require.NoError(t, err)

	next, err := trigger.Next(when.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, when, next)

	// Once the date has passed the trigger never fires again.
	next, err = trigger.Next(when)
	require.NoError(t, err)
	assert.True(t, next.IsZero())
}
