// Package planner wires the offline core together and exposes the
// query/command surface consumed by the UI layer and the scheduler.
//
// All stores are explicitly constructed and injectable with an open/close
// lifecycle; nothing here is a package-level singleton even though a process
// normally holds exactly one Planner.
package planner

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/SorgKs/homeplanner-sub002/internal/budget"
	"github.com/SorgKs/homeplanner-sub002/internal/cache"
	"github.com/SorgKs/homeplanner-sub002/internal/config"
	"github.com/SorgKs/homeplanner-sub002/internal/logging"
	"github.com/SorgKs/homeplanner-sub002/internal/queue"
	"github.com/SorgKs/homeplanner-sub002/internal/rollover"
	"github.com/SorgKs/homeplanner-sub002/internal/storage"
	"github.com/SorgKs/homeplanner-sub002/internal/syncer"
)

type Planner struct {
	rows        storage.RowStore
	cache       *cache.Store
	queue       *queue.Store
	budget      *budget.Manager
	rollover    *rollover.Recalculator
	coordinator *syncer.Coordinator
	runner      *syncer.Runner
	log         *logging.Logger

	mu          sync.Mutex
	nextLocalID int64
}

// Deps carries the collaborators for New. Tests assemble these directly;
// production code goes through Open.
type Deps struct {
	Rows        storage.RowStore
	Cache       *cache.Store
	Queue       *queue.Store
	Budget      *budget.Manager
	Rollover    *rollover.Recalculator
	Coordinator *syncer.Coordinator
	Runner      *syncer.Runner
	Log         *logging.Logger
}

func New(d Deps) *Planner {
	return &Planner{
		rows:        d.Rows,
		cache:       d.Cache,
		queue:       d.Queue,
		budget:      d.Budget,
		rollover:    d.Rollover,
		coordinator: d.Coordinator,
		runner:      d.Runner,
		log:         d.Log,
	}
}

// Open builds the full engine from configuration: sqlite row store, the two
// bounded stores, budget read model, rollover recalculator, remote client
// and flush machinery.
func Open(cfg config.Config, log *logging.Logger) (*Planner, error) {
	rows, err := storage.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("planner: open storage: %w", err)
	}

	taskCache := cache.New(rows, log,
		cache.WithMaxBytes(cfg.Cache.MaxBytes),
		cache.WithRetention(cfg.Retention()),
	)
	syncQueue := queue.New(rows, log, queue.WithMaxBytes(cfg.Queue.MaxBytes))
	budgetMgr := budget.New(rows, taskCache, syncQueue, log, cfg.Cache.MaxBytes+cfg.Queue.MaxBytes)
	recalc := rollover.New(taskCache, rows, log, cfg.DayStartHour)

	client := syncer.NewClient(&http.Client{Timeout: cfg.RemoteTimeout()}, cfg.Remote.BaseURL, cfg.Remote.Token)
	coordinator := syncer.NewCoordinator(syncQueue, taskCache, budgetMgr, client, log, cfg.Sync.BatchLimit)
	runner := syncer.NewRunner(coordinator, log, cfg.SyncInterval())

	return New(Deps{
		Rows:        rows,
		Cache:       taskCache,
		Queue:       syncQueue,
		Budget:      budgetMgr,
		Rollover:    recalc,
		Coordinator: coordinator,
		Runner:      runner,
		Log:         log,
	}), nil
}

// StartAutoFlush launches the periodic flush loop. Close joins it.
func (p *Planner) StartAutoFlush() {
	if p.runner != nil {
		p.runner.Start()
	}
}

func (p *Planner) Close() error {
	if p.runner != nil {
		p.runner.Stop()
	}
	if p.rows != nil {
		return p.rows.Close()
	}
	return nil
}
