// Package queue implements the bounded FIFO store of pending mutations.
//
// Light operations (complete, uncomplete, delete) carry only an entity id;
// full operations (create, update) carry a serialized task payload. When the
// byte budget would be exceeded by an insert, full items are evicted oldest
// first, then light items oldest first. Evicted mutations are lost outright;
// that loss is logged, never raised as an error.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SorgKs/homeplanner-sub002/internal/logging"
	"github.com/SorgKs/homeplanner-sub002/internal/storage"
)

const (
	DefaultMaxBytes = 5 * 1024 * 1024

	// itemOverheadBytes approximates the fixed per-item storage cost
	// (envelope fields, row key, index entry) on top of the payload.
	itemOverheadBytes = 128
)

var (
	ErrInvalidOperation = errors.New("queue: invalid operation")
	ErrItemTooLarge     = errors.New("queue: item exceeds queue budget")
)

type Operation string

const (
	OpCreate     Operation = "create"
	OpUpdate     Operation = "update"
	OpComplete   Operation = "complete"
	OpUncomplete Operation = "uncomplete"
	OpDelete     Operation = "delete"
)

func (o Operation) IsValid() bool {
	switch o {
	case OpCreate, OpUpdate, OpComplete, OpUncomplete, OpDelete:
		return true
	default:
		return false
	}
}

// IsFull reports whether the operation carries a serialized payload.
func (o Operation) IsFull() bool {
	return o == OpCreate || o == OpUpdate
}

type Status string

const (
	StatusPending Status = "pending"
	StatusFailed  Status = "failed"
)

// Item is immutable once inserted except for Status. Key is a client-side
// idempotency key replayed to the server with every submission of the item.
type Item struct {
	ID         int64           `json:"id"`
	Key        string          `json:"key"`
	Operation  Operation       `json:"operation"`
	EntityType string          `json:"entity_type"`
	EntityID   *int64          `json:"entity_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	SizeBytes  int64           `json:"size_bytes"`
	Status     Status          `json:"status"`
	Timestamp  time.Time       `json:"timestamp"`
}

// WriteError is the fail-closed failure for queue mutations.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("queue: %s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

type Store struct {
	rows     storage.RowStore
	log      *logging.Logger
	maxBytes int64
	now      func() time.Time
	newKey   func() string

	mu     sync.Mutex
	loaded bool
	nextID int64
}

type Option func(*Store)

func WithMaxBytes(n int64) Option {
	return func(s *Store) { s.maxBytes = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(rows storage.RowStore, log *logging.Logger, opts ...Option) *Store {
	s := &Store{
		rows:     rows,
		log:      log,
		maxBytes: DefaultMaxBytes,
		now:      time.Now,
		newKey:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// queue row keys are zero-padded so lexicographic bucket order matches
// insertion order.
func itemKey(id int64) string {
	return fmt.Sprintf("%012d", id)
}

// Enqueue computes the item size, evicts older items if the budget would be
// exceeded, and inserts. The eviction check and the insert are a single
// atomic unit; two concurrent enqueues can never jointly exceed the budget.
func (s *Store) Enqueue(ctx context.Context, op Operation, entityType string, entityID *int64, payload json.RawMessage) (Item, error) {
	if !op.IsValid() {
		return Item{}, fmt.Errorf("%w: %q", ErrInvalidOperation, op)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadLocked(ctx)
	if err != nil {
		return Item{}, &WriteError{Op: "load queue", Err: err}
	}

	item := Item{
		Key:        s.newKey(),
		Operation:  op,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     StatusPending,
		Timestamp:  s.now(),
	}
	// Light operations never persist a payload, even if one was passed.
	if op.IsFull() {
		item.Payload = payload
	}
	item.SizeBytes = itemOverheadBytes + int64(len(item.Payload))

	if item.SizeBytes > s.maxBytes {
		return Item{}, fmt.Errorf("%w: %d bytes", ErrItemTooLarge, item.SizeBytes)
	}

	var total int64
	for _, it := range items {
		total += it.SizeBytes
	}
	if total+item.SizeBytes > s.maxBytes {
		items, total = s.evictLocked(ctx, items, total, item.SizeBytes)
	}
	if total+item.SizeBytes > s.maxBytes {
		return Item{}, &WriteError{Op: "enqueue", Err: errors.New("budget still exceeded after eviction")}
	}

	item.ID = s.nextID
	s.nextID++

	data, err := json.Marshal(item)
	if err != nil {
		return Item{}, &WriteError{Op: "encode item", Err: err}
	}
	if err := s.rows.Put(ctx, storage.BucketQueue, itemKey(item.ID), data); err != nil {
		return Item{}, &WriteError{Op: "insert item", Err: err}
	}
	return item, nil
}

// Pending returns up to limit pending items in FIFO order. limit <= 0 means
// no limit.
func (s *Store) Pending(ctx context.Context, limit int) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue: pending: %w", err)
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Status != StatusPending {
			continue
		}
		out = append(out, it)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CountPending(ctx context.Context) (int, error) {
	items, err := s.Pending(ctx, 0)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (s *Store) SizeBytes(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadLocked(ctx)
	if err != nil {
		return 0, fmt.Errorf("queue: size: %w", err)
	}
	var total int64
	for _, it := range items {
		total += it.SizeBytes
	}
	return total, nil
}

func (s *Store) RemoveByID(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.rows.Delete(ctx, storage.BucketQueue, itemKey(id))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return &WriteError{Op: fmt.Sprintf("remove item %d", id), Err: err}
	}
	return err
}

// MarkFailed flips an item's status so it no longer participates in flush
// batches. Items stay inspectable until cleared or evicted.
func (s *Store) MarkFailed(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.rows.Get(ctx, storage.BucketQueue, itemKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return &WriteError{Op: fmt.Sprintf("load item %d", id), Err: err}
	}
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return &WriteError{Op: fmt.Sprintf("decode item %d", id), Err: err}
	}
	item.Status = StatusFailed
	updated, err := json.Marshal(item)
	if err != nil {
		return &WriteError{Op: fmt.Sprintf("encode item %d", id), Err: err}
	}
	if err := s.rows.Put(ctx, storage.BucketQueue, itemKey(id), updated); err != nil {
		return &WriteError{Op: fmt.Sprintf("mark item %d failed", id), Err: err}
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rows.Clear(ctx, storage.BucketQueue); err != nil {
		return &WriteError{Op: "clear", Err: err}
	}
	return nil
}

// loadLocked reads the whole queue in FIFO order and initializes the id
// counter on first use. Caller holds s.mu.
func (s *Store) loadLocked(ctx context.Context) ([]Item, error) {
	rows, err := s.rows.List(ctx, storage.BucketQueue)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		var item Item
		if decErr := json.Unmarshal(row.Value, &item); decErr != nil {
			s.log.Warnf("queue: dropping corrupt row %s: %v", row.Key, decErr)
			_ = s.rows.Delete(ctx, storage.BucketQueue, row.Key)
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].ID < items[j].ID
		}
		return items[i].Timestamp.Before(items[j].Timestamp)
	})
	if !s.loaded {
		var maxID int64
		for _, it := range items {
			if it.ID > maxID {
				maxID = it.ID
			}
		}
		s.nextID = maxID + 1
		s.loaded = true
	}
	return items, nil
}

// evictLocked frees room for an incoming item of the given size: full
// operations go first, oldest first, then light operations oldest first.
// Every eviction is a silent data-loss event and is logged as such.
func (s *Store) evictLocked(ctx context.Context, items []Item, total, incoming int64) ([]Item, int64) {
	for _, full := range []bool{true, false} {
		for i := 0; i < len(items) && total+incoming > s.maxBytes; {
			it := items[i]
			if it.Operation.IsFull() != full {
				i++
				continue
			}
			if err := s.rows.Delete(ctx, storage.BucketQueue, itemKey(it.ID)); err != nil && !errors.Is(err, storage.ErrNotFound) {
				s.log.Warnf("queue: evict item %d: %v", it.ID, err)
				i++
				continue
			}
			s.log.Warnf("queue: evicted %s mutation %d (entity %s) under size pressure; change is lost locally", it.Operation, it.ID, entityRef(it))
			total -= it.SizeBytes
			items = append(items[:i], items[i+1:]...)
		}
	}
	return items, total
}

func entityRef(it Item) string {
	if it.EntityID == nil {
		return it.EntityType + "/new"
	}
	return it.EntityType + "/" + strconv.FormatInt(*it.EntityID, 10)
}
