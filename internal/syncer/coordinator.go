// Package syncer drains the pending mutation queue against the remote task
// service and reconciles the local cache with the authoritative response.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SorgKs/homeplanner-sub002/internal/budget"
	"github.com/SorgKs/homeplanner-sub002/internal/cache"
	"github.com/SorgKs/homeplanner-sub002/internal/logging"
	"github.com/SorgKs/homeplanner-sub002/internal/model"
	"github.com/SorgKs/homeplanner-sub002/internal/queue"
	"github.com/SorgKs/homeplanner-sub002/internal/storage"
)

const DefaultBatchLimit = 50

// FlushSummary reports what one flush attempt accomplished.
type FlushSummary struct {
	Submitted int
	Removed   int
	// CacheReplaced is true when the server's canonical task list was
	// written over the local cache.
	CacheReplaced bool
}

// Remote is the slice of Client the coordinator needs; tests substitute it.
type Remote interface {
	SubmitBatch(ctx context.Context, ops []BatchOperation) ([]model.Task, error)
	FetchTasks(ctx context.Context) ([]model.Task, error)
}

type Coordinator struct {
	queue      *queue.Store
	cache      *cache.Store
	budget     *budget.Manager
	remote     Remote
	log        *logging.Logger
	batchLimit int

	// One flush at a time; overlapping drains would double-submit.
	mu sync.Mutex
}

func NewCoordinator(q *queue.Store, c *cache.Store, b *budget.Manager, remote Remote, log *logging.Logger, batchLimit int) *Coordinator {
	if batchLimit <= 0 {
		batchLimit = DefaultBatchLimit
	}
	return &Coordinator{queue: q, cache: c, budget: b, remote: remote, log: log, batchLimit: batchLimit}
}

// Flush submits one bounded batch of pending mutations. On success the
// submitted items are removed and the cache is replaced with the canonical
// server state. On any failure the queue is left entirely untouched so the
// next invocation retries the same batch; delivery is at-least-once and
// idempotency is the server's responsibility (keyed per item).
func (c *Coordinator) Flush(ctx context.Context) (FlushSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.queue.Pending(ctx, c.batchLimit)
	if err != nil {
		return FlushSummary{}, fmt.Errorf("syncer: read pending: %w", err)
	}
	if len(items) == 0 {
		return FlushSummary{}, nil
	}

	ops := make([]BatchOperation, 0, len(items))
	for _, it := range items {
		ops = append(ops, BatchOperation{
			Key:        it.Key,
			Operation:  it.Operation,
			EntityType: it.EntityType,
			EntityID:   it.EntityID,
			Payload:    it.Payload,
			Timestamp:  it.Timestamp.UTC().Format(time.RFC3339),
		})
	}

	canonical, err := c.remote.SubmitBatch(ctx, ops)
	if err != nil {
		if isPermanentRejection(err) {
			// Retrying a batch the server deems invalid can never succeed;
			// park the items as failed so they stop blocking the queue head.
			for _, it := range items {
				if markErr := c.queue.MarkFailed(ctx, it.ID); markErr != nil {
					c.log.Warnf("syncer: mark item %d failed: %v", it.ID, markErr)
				}
			}
			c.log.Errorf("syncer: server permanently rejected batch of %d: %v", len(ops), err)
		}
		return FlushSummary{Submitted: len(ops)}, err
	}

	summary := FlushSummary{Submitted: len(ops)}
	for _, it := range items {
		if err := c.queue.RemoveByID(ctx, it.ID); err != nil {
			// A re-run against an already-cleared subset is fine; only
			// real storage failures abort.
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return summary, fmt.Errorf("syncer: remove item %d: %w", it.ID, err)
		}
		summary.Removed++
	}

	if err := c.cache.ReplaceAll(ctx, canonical); err != nil {
		return summary, fmt.Errorf("syncer: apply server state: %w", err)
	}
	summary.CacheReplaced = true

	if _, err := c.budget.Refresh(ctx); err != nil {
		c.log.Warnf("syncer: budget refresh after flush: %v", err)
	}
	c.log.Infof("syncer: flushed %d mutations, cache now holds %d canonical tasks", summary.Removed, len(canonical))
	return summary, nil
}

// isPermanentRejection reports whether a submit failure can never succeed on
// retry. Auth, timeout and throttling answers stay retryable; other 4xx
// answers mean the batch itself is invalid.
func isPermanentRejection(err error) bool {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	switch reqErr.Status {
	case 401, 403, 408, 429:
		return false
	}
	return reqErr.Status >= 400 && reqErr.Status < 500
}

// Seed refreshes the cache from the remote fetch endpoint without touching
// the queue.
func (c *Coordinator) Seed(ctx context.Context) (int, error) {
	tasks, err := c.remote.FetchTasks(ctx)
	if err != nil {
		return 0, err
	}
	if err := c.cache.ReplaceAll(ctx, tasks); err != nil {
		return 0, fmt.Errorf("syncer: seed cache: %w", err)
	}
	if _, err := c.budget.Refresh(ctx); err != nil {
		c.log.Warnf("syncer: budget refresh after seed: %v", err)
	}
	return len(tasks), nil
}
