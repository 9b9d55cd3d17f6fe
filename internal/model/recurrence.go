package model

import (
	"fmt"
	"time"
)

// NextOccurrence returns the first occurrence of the task's recurrence rule
// strictly after the given instant, anchored at the task's current
// ReminderTime. Anchoring keeps the wall-clock time of day stable and makes
// the computation idempotent: if several periods were missed while the app
// was closed, the result lands on the first occurrence after "after" rather
// than stepping one period per invocation.
func (t Task) NextOccurrence(after time.Time) (time.Time, error) {
	switch t.Type {
	case TaskRecurring:
		return nextRecurring(t.ReminderTime, t.RecurrenceType, t.RecurrenceInterval, after)
	case TaskInterval:
		if t.IntervalDays <= 0 {
			return time.Time{}, fmt.Errorf("%w: interval days %d", ErrInvalidInterval, t.IntervalDays)
		}
		return nextByDays(t.ReminderTime, t.IntervalDays, after), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q has no recurrence", ErrInvalidTaskType, t.Type)
	}
}

func nextRecurring(anchor time.Time, rt RecurrenceType, interval int, after time.Time) (time.Time, error) {
	if interval <= 0 {
		return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidInterval, interval)
	}
	switch rt {
	case RecurrenceDaily:
		return nextByDays(anchor, interval, after), nil
	case RecurrenceWeekly:
		return nextByDays(anchor, interval*7, after), nil
	case RecurrenceMonthly:
		return nextByMonths(anchor, interval, after), nil
	case RecurrenceYearly:
		return nextByMonths(anchor, interval*12, after), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidRecurrenceType, rt)
	}
}

// nextByDays steps the anchor in whole intervals of days. Step counting is
// computed in calendar days rather than elapsed hours so DST shifts cannot
// skew the wall-clock time of the result.
func nextByDays(anchor time.Time, days int, after time.Time) time.Time {
	if after.Before(anchor) {
		return anchor
	}
	elapsed := int(after.Sub(anchor) / (24 * time.Hour))
	steps := elapsed/days + 1
	probe := anchor.AddDate(0, 0, steps*days)
	for !probe.After(after) {
		probe = probe.AddDate(0, 0, days)
	}
	// Walk back in case integer division overshot across a missing period.
	for prev := probe.AddDate(0, 0, -days); prev.After(after); prev = probe.AddDate(0, 0, -days) {
		probe = prev
	}
	return probe
}

func nextByMonths(anchor time.Time, months int, after time.Time) time.Time {
	if after.Before(anchor) {
		return anchor
	}
	probe := anchor
	for !probe.After(after) {
		probe = probe.AddDate(0, months, 0)
	}
	return probe
}
