// Package cache implements the bounded offline task snapshot store.
//
// Two pressures shrink the cache: retention (rows not accessed for the
// retention window are expired on every read and write) and the byte budget
// (writes evict least-recently-accessed rows until the cache fits, even when
// those rows are not yet expired). Reads never evict by size.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/SorgKs/homeplanner-sub002/internal/logging"
	"github.com/SorgKs/homeplanner-sub002/internal/model"
	"github.com/SorgKs/homeplanner-sub002/internal/storage"
)

const (
	DefaultMaxBytes  = 20 * 1024 * 1024
	DefaultRetention = 7 * 24 * time.Hour
)

// WriteError is the fail-closed failure for cache mutations. Reads never
// return it; a degraded read yields an empty result and a log line instead.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("cache: %s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

type Store struct {
	rows      storage.RowStore
	log       *logging.Logger
	maxBytes  int64
	retention time.Duration
	now       func() time.Time

	mu sync.Mutex
}

type Option func(*Store)

func WithMaxBytes(n int64) Option {
	return func(s *Store) { s.maxBytes = n }
}

func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// WithClock overrides the time source. Tests use it to cross retention
// boundaries without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(rows storage.RowStore, log *logging.Logger, opts ...Option) *Store {
	s := &Store{
		rows:      rows,
		log:       log,
		maxBytes:  DefaultMaxBytes,
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func taskKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// UpsertAll inserts or replaces tasks by id, refreshing LastAccessed on each,
// then expires stale rows and evicts least-recently-accessed rows until the
// cache fits its byte budget. Size pressure wins over retention age.
func (s *Store) UpsertAll(ctx context.Context, tasks []model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, task := range tasks {
		task.LastAccessed = now
		if task.CreatedAt.IsZero() {
			task.CreatedAt = now
		}
		task.UpdatedAt = now
		data, err := model.EncodeTask(task)
		if err != nil {
			return &WriteError{Op: fmt.Sprintf("encode task %d", task.ID), Err: err}
		}
		if err := s.rows.Put(ctx, storage.BucketTasks, taskKey(task.ID), data); err != nil {
			return &WriteError{Op: fmt.Sprintf("upsert task %d", task.ID), Err: err}
		}
	}

	entries, err := s.load(ctx)
	if err != nil {
		return &WriteError{Op: "load after upsert", Err: err}
	}
	entries = s.expire(ctx, entries, now)
	s.evict(ctx, entries)
	return nil
}

// ReplaceAll atomically substitutes the whole cache content, used when the
// server returns the canonical task list after a flush or seed.
func (s *Store) ReplaceAll(ctx context.Context, tasks []model.Task) error {
	s.mu.Lock()
	if err := s.rows.Clear(ctx, storage.BucketTasks); err != nil {
		s.mu.Unlock()
		return &WriteError{Op: "clear before replace", Err: err}
	}
	s.mu.Unlock()
	return s.UpsertAll(ctx, tasks)
}

// GetAll returns every cached task, counting the read as an access, then
// expires stale rows. It fails open: any storage error degrades to an empty
// slice so an offline task list never crashes the caller.
func (s *Store) GetAll(ctx context.Context) []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		s.log.Warnf("cache: read failed, degrading to empty list: %v", err)
		return []model.Task{}
	}

	now := s.now()
	out := make([]model.Task, 0, len(entries))
	for _, e := range entries {
		task := e.task
		task.LastAccessed = now
		if data, encErr := model.EncodeTask(task); encErr == nil {
			if putErr := s.rows.Put(ctx, storage.BucketTasks, e.key, data); putErr != nil {
				s.log.Warnf("cache: touch task %d: %v", task.ID, putErr)
			}
		}
		out = append(out, task)
	}

	entries, err = s.load(ctx)
	if err == nil {
		s.expire(ctx, entries, now)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetByID returns one task, touching LastAccessed. Fail-open: storage errors
// report absence.
func (s *Store) GetByID(ctx context.Context, id int64) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.rows.Get(ctx, storage.BucketTasks, taskKey(id))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warnf("cache: get task %d: %v", id, err)
		}
		return model.Task{}, false
	}
	task, err := model.DecodeTask(data)
	if err != nil {
		s.log.Warnf("cache: decode task %d: %v", id, err)
		return model.Task{}, false
	}
	task.LastAccessed = s.now()
	if touched, encErr := model.EncodeTask(task); encErr == nil {
		if putErr := s.rows.Put(ctx, storage.BucketTasks, taskKey(id), touched); putErr != nil {
			s.log.Warnf("cache: touch task %d: %v", id, putErr)
		}
	}
	return task, true
}

func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.rows.Delete(ctx, storage.BucketTasks, taskKey(id))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return &WriteError{Op: fmt.Sprintf("delete task %d", id), Err: err}
	}
	return err
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rows.Clear(ctx, storage.BucketTasks); err != nil {
		return &WriteError{Op: "clear", Err: err}
	}
	return nil
}

// SizeBytes is the sum of serialized row sizes, consumed by the storage
// budget manager.
func (s *Store) SizeBytes(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return 0, fmt.Errorf("cache: size: %w", err)
	}
	var total int64
	for _, e := range entries {
		total += e.size
	}
	return total, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return 0, fmt.Errorf("cache: count: %w", err)
	}
	return len(entries), nil
}

type entry struct {
	key  string
	size int64
	task model.Task
}

func (s *Store) load(ctx context.Context) ([]entry, error) {
	rows, err := s.rows.List(ctx, storage.BucketTasks)
	if err != nil {
		return nil, err
	}
	entries := make([]entry, 0, len(rows))
	for _, row := range rows {
		task, decErr := model.DecodeTask(row.Value)
		if decErr != nil {
			// A corrupt row is dropped rather than poisoning every read.
			s.log.Warnf("cache: dropping corrupt row %s: %v", row.Key, decErr)
			_ = s.rows.Delete(ctx, storage.BucketTasks, row.Key)
			continue
		}
		entries = append(entries, entry{key: row.Key, size: int64(len(row.Value)), task: task})
	}
	return entries, nil
}

// expire deletes rows whose LastAccessed is older than the retention window.
// Failures are logged only; retention is housekeeping, not a contract.
func (s *Store) expire(ctx context.Context, entries []entry, now time.Time) []entry {
	cutoff := now.Add(-s.retention)
	kept := entries[:0]
	for _, e := range entries {
		if e.task.LastAccessed.Before(cutoff) {
			if err := s.rows.Delete(ctx, storage.BucketTasks, e.key); err != nil && !errors.Is(err, storage.ErrNotFound) {
				s.log.Warnf("cache: expire row %s: %v", e.key, err)
				kept = append(kept, e)
			}
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// evict deletes least-recently-accessed rows until the cache byte total is
// within budget, regardless of retention age.
func (s *Store) evict(ctx context.Context, entries []entry) {
	var total int64
	for _, e := range entries {
		total += e.size
	}
	if total <= s.maxBytes {
		return
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].task.LastAccessed.Before(entries[j].task.LastAccessed)
	})
	for _, e := range entries {
		if total <= s.maxBytes {
			break
		}
		if err := s.rows.Delete(ctx, storage.BucketTasks, e.key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.log.Warnf("cache: evict row %s: %v", e.key, err)
			continue
		}
		total -= e.size
		s.log.Infof("cache: evicted task %d under size pressure", e.task.ID)
	}
}
