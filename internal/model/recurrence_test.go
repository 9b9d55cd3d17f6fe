package model

import (
	"testing"
	"time"
)

func localDate(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.Local)
}

func TestNextOccurrenceDaily(t *testing.T) {
	task := Task{
		Type:               TaskRecurring,
		RecurrenceType:     RecurrenceDaily,
		RecurrenceInterval: 1,
		ReminderTime:       localDate(2026, 3, 1, 9, 0),
	}
	next, err := task.NextOccurrence(task.ReminderTime)
	if err != nil {
		t.Fatalf("next daily: %v", err)
	}
	if want := localDate(2026, 3, 2, 9, 0); !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}
}

func TestNextOccurrenceSkipsMissedPeriods(t *testing.T) {
	task := Task{
		Type:               TaskRecurring,
		RecurrenceType:     RecurrenceDaily,
		RecurrenceInterval: 3,
		ReminderTime:       localDate(2026, 1, 1, 7, 30),
	}
	// Ten days later plus a bit: occurrences are Jan 4, 7, 10, 13.
	after := localDate(2026, 1, 11, 12, 0)
	next, err := task.NextOccurrence(after)
	if err != nil {
		t.Fatalf("next after gap: %v", err)
	}
	if want := localDate(2026, 1, 13, 7, 30); !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}
}

func TestNextOccurrenceWeekly(t *testing.T) {
	task := Task{
		Type:               TaskRecurring,
		RecurrenceType:     RecurrenceWeekly,
		RecurrenceInterval: 2,
		ReminderTime:       localDate(2026, 3, 2, 18, 0), // Monday
	}
	next, err := task.NextOccurrence(task.ReminderTime)
	if err != nil {
		t.Fatalf("next weekly: %v", err)
	}
	if want := localDate(2026, 3, 16, 18, 0); !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}
}

func TestNextOccurrenceMonthly(t *testing.T) {
	task := Task{
		Type:               TaskRecurring,
		RecurrenceType:     RecurrenceMonthly,
		RecurrenceInterval: 1,
		ReminderTime:       localDate(2026, 1, 15, 10, 0),
	}
	next, err := task.NextOccurrence(localDate(2026, 3, 20, 0, 0))
	if err != nil {
		t.Fatalf("next monthly: %v", err)
	}
	if want := localDate(2026, 4, 15, 10, 0); !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}
}

func TestNextOccurrenceYearly(t *testing.T) {
	task := Task{
		Type:               TaskRecurring,
		RecurrenceType:     RecurrenceYearly,
		RecurrenceInterval: 1,
		ReminderTime:       localDate(2026, 6, 1, 8, 0),
	}
	next, err := task.NextOccurrence(task.ReminderTime)
	if err != nil {
		t.Fatalf("next yearly: %v", err)
	}
	if want := localDate(2027, 6, 1, 8, 0); !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}
}

func TestNextOccurrenceIntervalDays(t *testing.T) {
	task := Task{
		Type:         TaskInterval,
		IntervalDays: 10,
		ReminderTime: localDate(2026, 2, 1, 9, 0),
	}
	next, err := task.NextOccurrence(task.ReminderTime)
	if err != nil {
		t.Fatalf("next interval: %v", err)
	}
	if want := localDate(2026, 2, 11, 9, 0); !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}
}

func TestNextOccurrenceBeforeAnchor(t *testing.T) {
	anchor := localDate(2026, 5, 1, 9, 0)
	task := Task{
		Type:               TaskRecurring,
		RecurrenceType:     RecurrenceDaily,
		RecurrenceInterval: 1,
		ReminderTime:       anchor,
	}
	next, err := task.NextOccurrence(localDate(2026, 4, 20, 0, 0))
	if err != nil {
		t.Fatalf("next before anchor: %v", err)
	}
	if !next.Equal(anchor) {
		t.Fatalf("expected anchor %s, got %s", anchor, next)
	}
}

func TestNextOccurrenceRejectsOneTime(t *testing.T) {
	task := Task{Type: TaskOneTime, ReminderTime: localDate(2026, 3, 1, 9, 0)}
	if _, err := task.NextOccurrence(task.ReminderTime); err == nil {
		t.Fatal("expected error for one-time task")
	}
}

func TestNextOccurrenceRejectsZeroInterval(t *testing.T) {
	task := Task{
		Type:           TaskRecurring,
		RecurrenceType: RecurrenceDaily,
		ReminderTime:   localDate(2026, 3, 1, 9, 0),
	}
	if _, err := task.NextOccurrence(task.ReminderTime); err == nil {
		t.Fatal("expected error for zero interval")
	}
}
