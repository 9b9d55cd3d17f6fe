package rollover

import (
	"context"
	"testing"
	"time"

	"github.com/SorgKs/homeplanner-sub002/internal/cache"
	"github.com/SorgKs/homeplanner-sub002/internal/logging"
	"github.com/SorgKs/homeplanner-sub002/internal/model"
	"github.com/SorgKs/homeplanner-sub002/internal/storage"
)

func TestLogicalDayStart(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{
			name: "after boundary same day",
			now:  time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local),
			hour: 4,
			want: time.Date(2026, 3, 2, 4, 0, 0, 0, time.Local),
		},
		{
			name: "before boundary belongs to yesterday",
			now:  time.Date(2026, 3, 2, 2, 30, 0, 0, time.Local),
			hour: 4,
			want: time.Date(2026, 3, 1, 4, 0, 0, 0, time.Local),
		},
		{
			name: "exactly at boundary",
			now:  time.Date(2026, 3, 2, 4, 0, 0, 0, time.Local),
			hour: 4,
			want: time.Date(2026, 3, 2, 4, 0, 0, 0, time.Local),
		},
		{
			name: "midnight boundary",
			now:  time.Date(2026, 3, 2, 23, 59, 0, 0, time.Local),
			hour: 0,
			want: time.Date(2026, 3, 2, 0, 0, 0, 0, time.Local),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := LogicalDayStart(tc.now, tc.hour); !got.Equal(tc.want) {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestIsNewDay(t *testing.T) {
	cases := []struct {
		name       string
		lastUpdate time.Time
		now        time.Time
		lastHour   int
		curHour    int
		want       bool
	}{
		{
			name:       "same logical day",
			lastUpdate: time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local),
			now:        time.Date(2026, 3, 2, 22, 0, 0, 0, time.Local),
			lastHour:   4, curHour: 4,
			want: false,
		},
		{
			name:       "calendar day passed",
			lastUpdate: time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local),
			now:        time.Date(2026, 3, 3, 8, 0, 0, 0, time.Local),
			lastHour:   4, curHour: 4,
			want: true,
		},
		{
			name:       "early morning still previous logical day",
			lastUpdate: time.Date(2026, 3, 2, 22, 0, 0, 0, time.Local),
			now:        time.Date(2026, 3, 3, 2, 0, 0, 0, time.Local),
			lastHour:   4, curHour: 4,
			want: false,
		},
		{
			name:       "boundary hour crossing",
			lastUpdate: time.Date(2026, 3, 2, 22, 0, 0, 0, time.Local),
			now:        time.Date(2026, 3, 3, 4, 30, 0, 0, time.Local),
			lastHour:   4, curHour: 4,
			want: true,
		},
		{
			name:       "day start hour moved later",
			lastUpdate: time.Date(2026, 3, 2, 5, 0, 0, 0, time.Local),
			now:        time.Date(2026, 3, 2, 7, 0, 0, 0, time.Local),
			lastHour:   4, curHour: 6,
			want: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsNewDay(tc.lastUpdate, tc.now, tc.lastHour, tc.curHour); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

type fixture struct {
	rows   *storage.MemStore
	cache  *cache.Store
	recalc *Recalculator
	now    time.Time
}

func setup(t *testing.T, dayStartHour int) *fixture {
	t.Helper()
	f := &fixture{
		rows: storage.NewMemStore(),
		now:  time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local),
	}
	nowFn := func() time.Time { return f.now }
	f.cache = cache.New(f.rows, logging.Discard(), cache.WithClock(nowFn))
	f.recalc = New(f.cache, f.rows, logging.Discard(), dayStartHour, WithClock(nowFn))
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) mustUpsert(t *testing.T, tasks ...model.Task) {
	t.Helper()
	if err := f.cache.UpsertAll(context.Background(), tasks); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
}

func (f *fixture) markerExists(t *testing.T) bool {
	t.Helper()
	_, found, err := f.recalc.loadMarker(context.Background())
	if err != nil {
		t.Fatalf("load marker: %v", err)
	}
	return found
}

func yesterdayAt(now time.Time, hh int) time.Time {
	y := now.AddDate(0, 0, -1)
	return time.Date(y.Year(), y.Month(), y.Day(), hh, 0, 0, 0, time.Local)
}

func TestRecalculateEmptyCacheNeverWritesMarker(t *testing.T) {
	f := setup(t, 4)

	result, err := f.recalc.Recalculate(context.Background())
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if result.Outcome != OutcomeEmptyCache {
		t.Fatalf("expected empty-cache no-op, got %s", result.Outcome)
	}
	if f.markerExists(t) {
		t.Fatal("marker must not be written for an empty cache")
	}
}

func TestRecalculateFirstRunThenIdempotentSameDay(t *testing.T) {
	f := setup(t, 4)
	ctx := context.Background()

	done := model.Task{
		ID: 1, Title: "Dishes", Type: model.TaskRecurring,
		RecurrenceType: model.RecurrenceDaily, RecurrenceInterval: 1,
		ReminderTime: yesterdayAt(f.now, 19), Enabled: true, Completed: true,
	}
	f.mustUpsert(t, done)

	// No prior marker and a non-empty cache counts as a new day.
	result, err := f.recalc.Recalculate(ctx)
	if err != nil {
		t.Fatalf("first recalculate: %v", err)
	}
	if result.Outcome != OutcomeRecalculated || result.Rearmed != 1 {
		t.Fatalf("expected one rearmed task, got %#v", result)
	}

	marker, found, err := f.recalc.loadMarker(ctx)
	if err != nil || !found {
		t.Fatalf("marker missing after recalculate (err %v)", err)
	}

	tasksAfterFirst := f.cache.GetAll(ctx)

	// Second run within the same logical day is a no-op.
	f.advance(2 * time.Hour)
	result, err = f.recalc.Recalculate(ctx)
	if err != nil {
		t.Fatalf("second recalculate: %v", err)
	}
	if result.Outcome != OutcomeSameDay {
		t.Fatalf("expected same-day no-op, got %s", result.Outcome)
	}

	markerAfter, _, err := f.recalc.loadMarker(ctx)
	if err != nil {
		t.Fatalf("load marker: %v", err)
	}
	if !markerAfter.LastRecalculatedAt.Equal(marker.LastRecalculatedAt) {
		t.Fatal("marker must not move on a same-day no-op")
	}

	tasksAfterSecond := f.cache.GetAll(ctx)
	if len(tasksAfterFirst) != len(tasksAfterSecond) {
		t.Fatalf("task set changed on no-op: %d vs %d", len(tasksAfterFirst), len(tasksAfterSecond))
	}
	for i := range tasksAfterFirst {
		if !tasksAfterFirst[i].ReminderTime.Equal(tasksAfterSecond[i].ReminderTime) ||
			tasksAfterFirst[i].Completed != tasksAfterSecond[i].Completed {
			t.Fatalf("task %d mutated on no-op", tasksAfterFirst[i].ID)
		}
	}
}

func TestOneTimeVersusRecurringDivergence(t *testing.T) {
	f := setup(t, 4)
	ctx := context.Background()

	dueYesterday := yesterdayAt(f.now, 9)
	oneTime := model.Task{
		ID: 1, Title: "Pick up package", Type: model.TaskOneTime,
		ReminderTime: dueYesterday, Enabled: true, Completed: true,
	}
	recurring := model.Task{
		ID: 2, Title: "Feed cat", Type: model.TaskRecurring,
		RecurrenceType: model.RecurrenceDaily, RecurrenceInterval: 1,
		ReminderTime: dueYesterday, Enabled: true, Completed: true,
	}
	f.mustUpsert(t, oneTime, recurring)

	if _, err := f.recalc.Recalculate(ctx); err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	gotOne, ok := f.cache.GetByID(ctx, 1)
	if !ok {
		t.Fatal("one-time task missing")
	}
	if gotOne.Enabled || !gotOne.Completed {
		t.Fatalf("one-time task should be disabled and stay completed: %#v", gotOne)
	}
	if !gotOne.ReminderTime.Equal(dueYesterday) {
		t.Fatalf("one-time reminder must not move: %s", gotOne.ReminderTime)
	}

	gotRec, ok := f.cache.GetByID(ctx, 2)
	if !ok {
		t.Fatal("recurring task missing")
	}
	if gotRec.Completed {
		t.Fatal("recurring task should be re-armed")
	}
	if want := dueYesterday.AddDate(0, 0, 1); !gotRec.ReminderTime.Equal(want) {
		t.Fatalf("expected reminder %s, got %s", want, gotRec.ReminderTime)
	}
	if !gotRec.Enabled {
		t.Fatal("recurring task must stay enabled")
	}
}

func TestIncompleteTasksUntouched(t *testing.T) {
	f := setup(t, 4)
	ctx := context.Background()

	pendingTask := model.Task{
		ID: 1, Title: "Vacuum", Type: model.TaskRecurring,
		RecurrenceType: model.RecurrenceDaily, RecurrenceInterval: 1,
		ReminderTime: yesterdayAt(f.now, 15), Enabled: true, Completed: false,
	}
	f.mustUpsert(t, pendingTask)

	if _, err := f.recalc.Recalculate(ctx); err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	got, ok := f.cache.GetByID(ctx, 1)
	if !ok {
		t.Fatal("task missing")
	}
	if got.Completed || !got.ReminderTime.Equal(pendingTask.ReminderTime) {
		t.Fatalf("incomplete task must pass through unchanged: %#v", got)
	}
}

func TestCompletedIntervalTaskAdvancesByIntervalDays(t *testing.T) {
	f := setup(t, 4)
	ctx := context.Background()

	due := yesterdayAt(f.now, 8)
	f.mustUpsert(t, model.Task{
		ID: 1, Title: "Change filter", Type: model.TaskInterval, IntervalDays: 30,
		ReminderTime: due, Enabled: true, Completed: true,
	})

	if _, err := f.recalc.Recalculate(ctx); err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	got, _ := f.cache.GetByID(ctx, 1)
	if want := due.AddDate(0, 0, 30); !got.ReminderTime.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got.ReminderTime)
	}
	if got.Completed {
		t.Fatal("interval task should be re-armed")
	}
}

func TestUnknownTaskTypePassesThrough(t *testing.T) {
	f := setup(t, 4)
	ctx := context.Background()

	// Seed a completed task of a type this client version does not know.
	odd := model.Task{
		ID: 1, Title: "Mystery", Type: "lunar",
		ReminderTime: yesterdayAt(f.now, 9), Enabled: true, Completed: true,
	}
	f.mustUpsert(t, odd)

	if _, err := f.recalc.Recalculate(ctx); err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	got, _ := f.cache.GetByID(ctx, 1)
	if !got.Completed || !got.Enabled || !got.ReminderTime.Equal(odd.ReminderTime) {
		t.Fatalf("unknown type must pass through unchanged: %#v", got)
	}
}

func TestRecalculateNextLogicalDayRunsAgain(t *testing.T) {
	f := setup(t, 4)
	ctx := context.Background()

	f.mustUpsert(t, model.Task{
		ID: 1, Title: "Dishes", Type: model.TaskRecurring,
		RecurrenceType: model.RecurrenceDaily, RecurrenceInterval: 1,
		ReminderTime: yesterdayAt(f.now, 19), Enabled: true, Completed: true,
	})
	if _, err := f.recalc.Recalculate(ctx); err != nil {
		t.Fatalf("first recalculate: %v", err)
	}

	// Complete it again, then cross the 04:00 boundary.
	got, _ := f.cache.GetByID(ctx, 1)
	got.Completed = true
	f.mustUpsert(t, got)
	f.advance(24 * time.Hour)

	result, err := f.recalc.Recalculate(ctx)
	if err != nil {
		t.Fatalf("next-day recalculate: %v", err)
	}
	if result.Outcome != OutcomeRecalculated || result.Rearmed != 1 {
		t.Fatalf("expected rearm on new logical day, got %#v", result)
	}
}
