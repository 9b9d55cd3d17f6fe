package planner

import (
	"context"
	"errors"
	"fmt"

	"github.com/SorgKs/homeplanner-sub002/internal/budget"
	"github.com/SorgKs/homeplanner-sub002/internal/model"
	"github.com/SorgKs/homeplanner-sub002/internal/queue"
	"github.com/SorgKs/homeplanner-sub002/internal/storage"
	"github.com/SorgKs/homeplanner-sub002/internal/syncer"
)

// Tasks returns the cached task list for day-sensitive views. The rollover
// check always runs first: the logical day can advance while the app sits in
// the background, not just at startup.
func (p *Planner) Tasks(ctx context.Context) []model.Task {
	if _, err := p.rollover.Recalculate(ctx); err != nil {
		p.log.Warnf("planner: rollover before read: %v", err)
	}
	return p.cache.GetAll(ctx)
}

// CreateTask stores an optimistic local snapshot under a provisional
// negative id and queues the create for the next flush. The server assigns
// the real id; the canonical list returned by a successful flush replaces
// the provisional row.
func (p *Planner) CreateTask(ctx context.Context, task model.Task) (model.Task, error) {
	if err := task.Validate(); err != nil {
		return model.Task{}, err
	}
	id, err := p.provisionalID(ctx)
	if err != nil {
		return model.Task{}, err
	}
	task.ID = id
	task.Enabled = true
	task.Completed = false

	payload, err := model.EncodeTask(task)
	if err != nil {
		return model.Task{}, fmt.Errorf("planner: encode create payload: %w", err)
	}
	if err := p.cache.UpsertAll(ctx, []model.Task{task}); err != nil {
		return model.Task{}, err
	}
	if _, err := p.queue.Enqueue(ctx, queue.OpCreate, "task", nil, payload); err != nil {
		return model.Task{}, err
	}
	p.refreshBudget(ctx)
	return task, nil
}

// UpdateTask overwrites the local snapshot and queues a full update.
func (p *Planner) UpdateTask(ctx context.Context, task model.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	payload, err := model.EncodeTask(task)
	if err != nil {
		return fmt.Errorf("planner: encode update payload: %w", err)
	}
	if err := p.cache.UpsertAll(ctx, []model.Task{task}); err != nil {
		return err
	}
	id := task.ID
	if _, err := p.queue.Enqueue(ctx, queue.OpUpdate, "task", &id, payload); err != nil {
		return err
	}
	p.refreshBudget(ctx)
	return nil
}

func (p *Planner) CompleteTask(ctx context.Context, id int64) error {
	return p.setCompleted(ctx, id, true, queue.OpComplete)
}

func (p *Planner) UncompleteTask(ctx context.Context, id int64) error {
	return p.setCompleted(ctx, id, false, queue.OpUncomplete)
}

func (p *Planner) setCompleted(ctx context.Context, id int64, completed bool, op queue.Operation) error {
	task, ok := p.cache.GetByID(ctx, id)
	if !ok {
		return fmt.Errorf("planner: task %d: %w", id, storage.ErrNotFound)
	}
	task.Completed = completed
	if err := p.cache.UpsertAll(ctx, []model.Task{task}); err != nil {
		return err
	}
	if _, err := p.queue.Enqueue(ctx, op, "task", &id, nil); err != nil {
		return err
	}
	p.refreshBudget(ctx)
	return nil
}

// DeleteTask removes the local snapshot and queues a light delete. Deleting
// a task that is not cached still queues the delete; the server may know it.
func (p *Planner) DeleteTask(ctx context.Context, id int64) error {
	if err := p.cache.DeleteByID(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if _, err := p.queue.Enqueue(ctx, queue.OpDelete, "task", &id, nil); err != nil {
		return err
	}
	p.refreshBudget(ctx)
	return nil
}

// StoragePercentage reads the persisted budget figure synchronously.
func (p *Planner) StoragePercentage(ctx context.Context) float64 {
	return p.budget.Current(ctx).Percentage
}

func (p *Planner) StorageMetadata(ctx context.Context) budget.Metadata {
	return p.budget.Current(ctx)
}

// FlushNow drains one batch immediately, same contract as the periodic
// trigger.
func (p *Planner) FlushNow(ctx context.Context) (syncer.FlushSummary, error) {
	return p.coordinator.Flush(ctx)
}

// Seed refreshes the cache from the remote fetch endpoint, independent of
// the queue.
func (p *Planner) Seed(ctx context.Context) (int, error) {
	return p.coordinator.Seed(ctx)
}

func (p *Planner) PendingCount(ctx context.Context) (int, error) {
	return p.queue.CountPending(ctx)
}

func (p *Planner) refreshBudget(ctx context.Context) {
	if _, err := p.budget.Refresh(ctx); err != nil {
		p.log.Warnf("planner: budget refresh: %v", err)
	}
}

// provisionalID returns the next unused negative id for tasks created
// offline. Negative ids can never collide with server-assigned ones.
func (p *Planner) provisionalID(ctx context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.nextLocalID == 0 {
		low := int64(0)
		for _, task := range p.cache.GetAll(ctx) {
			if task.ID < low {
				low = task.ID
			}
		}
		p.nextLocalID = low - 1
	}
	id := p.nextLocalID
	p.nextLocalID--
	return id, nil
}
