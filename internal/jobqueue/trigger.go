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
	"time"

	"github.com/petalflow/petalflow/internal/config"
	"github.com/petalflow/petalflow/pkg/errors"
)

// TriggerKind selects how a schedule decides its next fire time.
type TriggerKind string

const (
	TriggerCron     TriggerKind = "cron"
	TriggerInterval TriggerKind = "interval"
	TriggerDate     TriggerKind = "date"
)

// Trigger is a serializable schedule trigger. Exactly one of Cron,
// Interval, or Date is set, according to Kind.
type Trigger struct {
	Kind     TriggerKind   `json:"kind"`
	Cron     string        `json:"cron,omitempty"`
	Interval time.Duration `json:"interval,omitempty"`
	Date     time.Time     `json:"date,omitzero"`
}

// TriggerFrom builds a trigger from a schedule spec, enforcing that
// exactly one trigger field is set and that a cron expression parses.
func TriggerFrom(spec config.ScheduleSpec) (Trigger, error) {
	set := 0
	if spec.Cron != "" {
		set++
	}
	if spec.Interval > 0 {
		set++
	}
	if !spec.Date.IsZero() {
		set++
	}
	if set != 1 {
		return Trigger{}, &errors.ConfigError{
			Key:    "schedule",
			Reason: "exactly one of cron, interval, or date must be set",
		}
	}

	switch {
	case spec.Cron != "":
		if _, err := parseCron(spec.Cron); err != nil {
			return Trigger{}, &errors.ConfigError{
				Key:    "schedule.cron",
				Reason: "invalid cron expression",
				Cause:  err,
			}
		}
		return Trigger{Kind: TriggerCron, Cron: spec.Cron}, nil
	case spec.Interval > 0:
		return Trigger{Kind: TriggerInterval, Interval: spec.Interval.Std()}, nil
	default:
		return Trigger{Kind: TriggerDate, Date: spec.Date.UTC()}, nil
	}
}

// Next returns the first fire time strictly after from. A zero time
// means the trigger will never fire again.
func (t Trigger) Next(from time.Time) (time.Time, error) {
	switch t.Kind {
	case TriggerCron:
		expr, err := parseCron(t.Cron)
		if err != nil {
			return time.Time{}, &errors.ConfigError{
				Key:    "schedule.cron",
				Reason: "invalid cron expression",
				Cause:  err,
			}
		}
		return expr.next(from), nil
	case TriggerInterval:
		if t.Interval <= 0 {
			return time.Time{}, &errors.ConfigError{
				Key:    "schedule.interval",
				Reason: "interval must be positive",
			}
		}
		return from.Add(t.Interval), nil
	case TriggerDate:
		if t.Date.After(from) {
			return t.Date, nil
		}
		// One-shot trigger already in the past.
		return time.Time{}, nil
	default:
		return time.Time{}, &errors.ConfigError{
			Key:    "schedule",
			Reason: "unknown trigger kind " + string(t.Kind),
		}
	}
}

// Describe renders the trigger for listings.
func (t Trigger) Describe() string {
	switch t.Kind {
	case TriggerCron:
		return "cron " + t.Cron
	case TriggerInterval:
		return "every " + t.Interval.String()
	case TriggerDate:
		return "at " + t.Date.Format(time.RFC3339)
	}
	return string(t.Kind)
}
