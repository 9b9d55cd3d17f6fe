package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidTaskType       = errors.New("model: invalid task type")
	ErrInvalidRecurrenceType = errors.New("model: invalid recurrence type")
	ErrInvalidInterval       = errors.New("model: invalid recurrence interval")
)

type TaskType string

const (
	TaskOneTime   TaskType = "one_time"
	TaskRecurring TaskType = "recurring"
	TaskInterval  TaskType = "interval"
)

func (t TaskType) IsValid() bool {
	switch t {
	case TaskOneTime, TaskRecurring, TaskInterval:
		return true
	default:
		return false
	}
}

type RecurrenceType string

const (
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
	RecurrenceYearly  RecurrenceType = "yearly"
)

func (r RecurrenceType) IsValid() bool {
	switch r {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return true
	default:
		return false
	}
}

// Task is the client-owned snapshot of a server task. ReminderTime is
// local-naive: server and clients agree on wall-clock values with no
// timezone attached, so it is serialized without a zone offset.
type Task struct {
	ID                 int64
	Title              string
	Description        string
	Type               TaskType
	RecurrenceType     RecurrenceType
	RecurrenceInterval int
	IntervalDays       int
	ReminderTime       time.Time
	GroupID            *int64
	Enabled            bool
	Completed          bool
	AssignedUserIDs    []int64

	// Maintained by the local cache, never by the server.
	LastAccessed time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return errors.New("model: task title is required")
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidTaskType, t.Type)
	}
	switch t.Type {
	case TaskRecurring:
		if !t.RecurrenceType.IsValid() {
			return fmt.Errorf("%w: %q", ErrInvalidRecurrenceType, t.RecurrenceType)
		}
		if t.RecurrenceInterval <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidInterval, t.RecurrenceInterval)
		}
	case TaskInterval:
		if t.IntervalDays <= 0 {
			return fmt.Errorf("%w: interval days %d", ErrInvalidInterval, t.IntervalDays)
		}
	}
	if t.ReminderTime.IsZero() {
		return errors.New("model: task reminder time is required")
	}
	return nil
}

// IsRecurrent reports whether the task re-arms after completion. One-time
// tasks leave the active rotation permanently once completed.
func (t Task) IsRecurrent() bool {
	return t.Type == TaskRecurring || t.Type == TaskInterval
}
