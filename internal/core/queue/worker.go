package queue

import (
	"context"
	"time"
)

// DefaultPollInterval is how long the worker loop sleeps when the pending
// queue is empty or the engine is at capacity.
const DefaultPollInterval = 250 * time.Millisecond

// Worker is the single background loop of an engine instance. It pulls
// records from the store while capacity allows and dispatches each one to
// its own goroutine, never waiting for a dispatched job to finish.
type Worker[T Job[T]] struct {
	Store    *Store[T]
	Limit    func() int                 // concurrency limit, read each iteration
	Run      func(context.Context, T)   // execution unit for one record
	Interval time.Duration              // poll interval, DefaultPollInterval if zero
}

// Loop runs until ctx is cancelled. It only ever sleeps for the poll
// interval; execution units block on external I/O in their own goroutines.
func (w *Worker[T]) Loop(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	for {
		if ctx.Err() != nil {
			return
		}

		limit := w.Limit()
		if limit < 1 {
			limit = 1
		}
		if w.Store.ActiveCount() >= limit {
			if !sleep(ctx, interval) {
				return
			}
			continue
		}

		job, ok := w.Store.Next()
		if !ok {
			if !sleep(ctx, interval) {
				return
			}
			continue
		}

		go w.Run(ctx, job)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
