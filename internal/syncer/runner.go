package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/SorgKs/homeplanner-sub002/internal/logging"
)

// Runner invokes Flush on a fixed interval. It is owned by the process
// lifecycle: Start launches the loop, Stop blocks until it has fully
// drained, so no flush is ever left racing a shutdown.
type Runner struct {
	coordinator *Coordinator
	log         *logging.Logger
	interval    time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
}

func NewRunner(coordinator *Coordinator, log *logging.Logger, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Runner{
		coordinator: coordinator,
		log:         log,
		interval:    interval,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	go r.loop()
}

func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.stopCh)
	r.mu.Unlock()
	<-r.doneCh
}

func (r *Runner) loop() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.flushOnce()
		}
	}
}

func (r *Runner) flushOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()

	summary, err := r.coordinator.Flush(ctx)
	if err != nil {
		// Queue is untouched on failure; the next tick retries.
		r.log.Warnf("syncer: periodic flush failed (%d submitted): %v", summary.Submitted, err)
		return
	}
	if summary.Submitted > 0 {
		r.log.Infof("syncer: periodic flush done: %d removed", summary.Removed)
	}
}
