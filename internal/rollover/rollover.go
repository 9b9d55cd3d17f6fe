// Package rollover keeps recurring tasks correct across day boundaries
// without server contact.
//
// A logical day starts at a configurable hour (default 4) rather than
// midnight, so a task completed at 01:30 still counts against the previous
// evening. The recomputation runs at most once per logical day, tracked by a
// persisted marker, and must precede every day-sensitive cache read since
// the boundary can pass while the app is backgrounded.
package rollover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SorgKs/homeplanner-sub002/internal/cache"
	"github.com/SorgKs/homeplanner-sub002/internal/logging"
	"github.com/SorgKs/homeplanner-sub002/internal/model"
	"github.com/SorgKs/homeplanner-sub002/internal/storage"
)

const DefaultDayStartHour = 4

const markerKey = "rollover"

// Marker records when the last recomputation ran and under which day-start
// configuration. Absence means "never recalculated".
type Marker struct {
	LastRecalculatedAt time.Time `json:"last_recalculated_at"`
	LastDayStartHour   int       `json:"last_day_start_hour"`
}

// LogicalDayStart returns the start of the logical day containing now: today
// at hour when now is past it, otherwise yesterday at hour.
func LogicalDayStart(now time.Time, hour int) time.Time {
	start := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if now.Hour() < hour {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// IsNewDay reports whether the logical day has advanced between the marker
// write and now, honoring a day-start hour change in between.
func IsNewDay(lastUpdate, now time.Time, lastHour, currentHour int) bool {
	return LogicalDayStart(now, currentHour).After(LogicalDayStart(lastUpdate, lastHour))
}

type Outcome string

const (
	OutcomeEmptyCache   Outcome = "empty_cache"
	OutcomeSameDay      Outcome = "same_day"
	OutcomeRecalculated Outcome = "recalculated"
)

type Result struct {
	Outcome Outcome
	// Rearmed counts recurring tasks whose reminder advanced; Retired
	// counts one-time tasks disabled after completion.
	Rearmed int
	Retired int
}

type Recalculator struct {
	cache        *cache.Store
	rows         storage.RowStore
	log          *logging.Logger
	dayStartHour int
	now          func() time.Time

	// Serializes the whole read-modify-write cycle; a concurrent run could
	// double-advance reminders or corrupt the marker.
	mu sync.Mutex
}

type Option func(*Recalculator)

func WithClock(now func() time.Time) Option {
	return func(r *Recalculator) { r.now = now }
}

func New(taskCache *cache.Store, rows storage.RowStore, log *logging.Logger, dayStartHour int, opts ...Option) *Recalculator {
	if dayStartHour < 0 || dayStartHour > 23 {
		dayStartHour = DefaultDayStartHour
	}
	r := &Recalculator{
		cache:        taskCache,
		rows:         rows,
		log:          log,
		dayStartHour: dayStartHour,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recalculate performs the once-per-logical-day rewrite of cached task
// state. On an empty cache it is a no-op and the marker is never written,
// even on the first-ever call.
func (r *Recalculator) Recalculate(ctx context.Context) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks := r.cache.GetAll(ctx)
	if len(tasks) == 0 {
		return Result{Outcome: OutcomeEmptyCache}, nil
	}

	now := r.now()
	marker, found, err := r.loadMarker(ctx)
	if err != nil {
		return Result{}, err
	}
	if found && !IsNewDay(marker.LastRecalculatedAt, now, marker.LastDayStartHour, r.dayStartHour) {
		return Result{Outcome: OutcomeSameDay}, nil
	}

	result := Result{Outcome: OutcomeRecalculated}
	rewritten := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		rewritten = append(rewritten, r.rewrite(task, &result))
	}

	if err := r.cache.UpsertAll(ctx, rewritten); err != nil {
		return Result{}, fmt.Errorf("rollover: write back: %w", err)
	}
	if err := r.saveMarker(ctx, Marker{LastRecalculatedAt: now, LastDayStartHour: r.dayStartHour}); err != nil {
		return Result{}, err
	}
	r.log.Infof("rollover: recalculated %d tasks (rearmed=%d retired=%d)", len(rewritten), result.Rearmed, result.Retired)
	return result, nil
}

func (r *Recalculator) rewrite(task model.Task, result *Result) model.Task {
	if !task.Completed {
		return task
	}
	switch task.Type {
	case model.TaskOneTime:
		// Permanently out of the active rotation; history is preserved.
		task.Enabled = false
		result.Retired++
	case model.TaskRecurring, model.TaskInterval:
		next, err := task.NextOccurrence(task.ReminderTime)
		if err != nil {
			r.log.Warnf("rollover: task %d: %v; leaving unchanged", task.ID, err)
			return task
		}
		task.ReminderTime = next
		task.Completed = false
		result.Rearmed++
	default:
		// Unknown future task types pass through untouched.
	}
	return task
}

func (r *Recalculator) loadMarker(ctx context.Context) (Marker, bool, error) {
	data, err := r.rows.Get(ctx, storage.BucketMarker, markerKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Marker{}, false, nil
		}
		return Marker{}, false, fmt.Errorf("rollover: load marker: %w", err)
	}
	var marker Marker
	if err := json.Unmarshal(data, &marker); err != nil {
		return Marker{}, false, fmt.Errorf("rollover: decode marker: %w", err)
	}
	return marker, true, nil
}

func (r *Recalculator) saveMarker(ctx context.Context, marker Marker) error {
	data, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("rollover: encode marker: %w", err)
	}
	if err := r.rows.Put(ctx, storage.BucketMarker, markerKey, data); err != nil {
		return fmt.Errorf("rollover: save marker: %w", err)
	}
	return nil
}
