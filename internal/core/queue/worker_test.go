package queue_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benasterisk/stemtube/internal/core/queue"
)

func TestWorkerRespectsConcurrencyLimit(t *testing.T) {
	s := newStore()
	const limit = 3
	const jobs = 12

	var current, peak atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(jobs)

	w := &queue.Worker[*testJob]{
		Store:    s,
		Limit:    func() int { return limit },
		Interval: time.Millisecond,
		Run: func(_ context.Context, j *testJob) {
			defer wg.Done()
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			current.Add(-1)
			s.Complete(j.JobID())
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Loop(ctx)

	for i := 0; i < jobs; i++ {
		s.Submit(&testJob{id: fmt.Sprintf("job-%d", i)})
	}

	// Let the loop saturate, then verify it stopped at the limit.
	deadline := time.After(2 * time.Second)
	for s.ActiveCount() < limit {
		select {
		case <-deadline:
			t.Fatalf("worker never reached the limit: active=%d", s.ActiveCount())
		case <-time.After(time.Millisecond):
		}
	}
	time.Sleep(20 * time.Millisecond)
	if got := s.ActiveCount(); got > limit {
		t.Fatalf("active count %d exceeds limit %d", got, limit)
	}

	close(release)
	wg.Wait()

	if got := peak.Load(); got > limit {
		t.Fatalf("peak concurrency %d exceeds limit %d", got, limit)
	}
	snap := s.List()
	if len(snap.Completed) != jobs {
		t.Fatalf("completed %d jobs, want %d", len(snap.Completed), jobs)
	}
}

func TestWorkerDispatchesInSubmissionOrder(t *testing.T) {
	s := newStore()

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup
	const jobs = 6
	wg.Add(jobs)

	w := &queue.Worker[*testJob]{
		Store:    s,
		Limit:    func() int { return 1 },
		Interval: time.Millisecond,
		Run: func(_ context.Context, j *testJob) {
			defer wg.Done()
			mu.Lock()
			order = append(order, j.JobID())
			mu.Unlock()
			s.Complete(j.JobID())
		},
	}

	for i := 0; i < jobs; i++ {
		s.Submit(&testJob{id: fmt.Sprintf("job-%d", i)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Loop(ctx)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, id := range order {
		if want := fmt.Sprintf("job-%d", i); id != want {
			t.Fatalf("dispatch order %v, want job-0..job-%d in order", order, jobs-1)
		}
	}
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	s := newStore()
	done := make(chan struct{})

	w := &queue.Worker[*testJob]{
		Store:    s,
		Limit:    func() int { return 1 },
		Interval: time.Millisecond,
		Run:      func(context.Context, *testJob) {},
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		w.Loop(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker loop did not stop after context cancellation")
	}
}
