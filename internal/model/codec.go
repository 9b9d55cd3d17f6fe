package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeLayout is the local-naive timestamp format shared with the backend.
const TimeLayout = "2006-01-02T15:04:05"

type taskDTO struct {
	ID                 int64          `json:"id"`
	Title              string         `json:"title"`
	Description        string         `json:"description,omitempty"`
	Type               TaskType       `json:"task_type"`
	RecurrenceType     RecurrenceType `json:"recurrence_type,omitempty"`
	RecurrenceInterval int            `json:"recurrence_interval,omitempty"`
	IntervalDays       int            `json:"interval_days,omitempty"`
	ReminderTime       string         `json:"reminder_time"`
	GroupID            *int64         `json:"group_id,omitempty"`
	Enabled            bool           `json:"enabled"`
	Completed          bool           `json:"completed"`
	AssignedUserIDs    []int64        `json:"assigned_user_ids,omitempty"`
	LastAccessed       string         `json:"last_accessed,omitempty"`
	CreatedAt          string         `json:"created_at,omitempty"`
	UpdatedAt          string         `json:"updated_at,omitempty"`
}

func formatTime(v time.Time) string {
	if v.IsZero() {
		return ""
	}
	return v.Format(TimeLayout)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(TimeLayout, v, time.Local)
}

func EncodeTask(t Task) ([]byte, error) {
	dto := taskDTO{
		ID:                 t.ID,
		Title:              t.Title,
		Description:        t.Description,
		Type:               t.Type,
		RecurrenceType:     t.RecurrenceType,
		RecurrenceInterval: t.RecurrenceInterval,
		IntervalDays:       t.IntervalDays,
		ReminderTime:       formatTime(t.ReminderTime),
		GroupID:            t.GroupID,
		Enabled:            t.Enabled,
		Completed:          t.Completed,
		AssignedUserIDs:    t.AssignedUserIDs,
		LastAccessed:       formatTime(t.LastAccessed),
		CreatedAt:          formatTime(t.CreatedAt),
		UpdatedAt:          formatTime(t.UpdatedAt),
	}
	return json.Marshal(dto)
}

func DecodeTask(data []byte) (Task, error) {
	var dto taskDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return Task{}, fmt.Errorf("model: decode task: %w", err)
	}
	out := Task{
		ID:                 dto.ID,
		Title:              dto.Title,
		Description:        dto.Description,
		Type:               dto.Type,
		RecurrenceType:     dto.RecurrenceType,
		RecurrenceInterval: dto.RecurrenceInterval,
		IntervalDays:       dto.IntervalDays,
		GroupID:            dto.GroupID,
		Enabled:            dto.Enabled,
		Completed:          dto.Completed,
		AssignedUserIDs:    dto.AssignedUserIDs,
	}
	var err error
	if out.ReminderTime, err = parseTime(dto.ReminderTime); err != nil {
		return Task{}, fmt.Errorf("model: decode reminder time: %w", err)
	}
	if out.LastAccessed, err = parseTime(dto.LastAccessed); err != nil {
		return Task{}, fmt.Errorf("model: decode last accessed: %w", err)
	}
	if out.CreatedAt, err = parseTime(dto.CreatedAt); err != nil {
		return Task{}, fmt.Errorf("model: decode created at: %w", err)
	}
	if out.UpdatedAt, err = parseTime(dto.UpdatedAt); err != nil {
		return Task{}, fmt.Errorf("model: decode updated at: %w", err)
	}
	return out, nil
}
