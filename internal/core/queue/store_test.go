package queue_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/benasterisk/stemtube/internal/core/queue"
)

type testJob struct {
	id    string
	state queue.Status
}

func (j *testJob) JobID() string            { return j.id }
func (j *testJob) State() queue.Status      { return j.state }
func (j *testJob) SetState(s queue.Status)  { j.state = s }
func (j *testJob) Clone() *testJob          { cp := *j; return &cp }

func newStore() *queue.Store[*testJob] {
	return queue.NewStore[*testJob]()
}

func TestSubmitReturnsQueuedStatus(t *testing.T) {
	s := newStore()
	id := s.Submit(&testJob{id: "a"})
	if id != "a" {
		t.Fatalf("Submit returned %q, want %q", id, "a")
	}

	got, ok := s.Get("a")
	if !ok {
		t.Fatal("Get failed for submitted job")
	}
	if got.State() != queue.StatusQueued {
		t.Fatalf("state = %s, want %s", got.State(), queue.StatusQueued)
	}
}

func TestUnknownID(t *testing.T) {
	s := newStore()
	if _, ok := s.Get("missing"); ok {
		t.Fatal("Get returned a record for an unknown id")
	}
	if s.Cancel("missing") {
		t.Fatal("Cancel returned true for an unknown id")
	}
}

func TestCancelQueuedMovesToFailed(t *testing.T) {
	s := newStore()
	s.Submit(&testJob{id: "a"})

	if !s.Cancel("a") {
		t.Fatal("Cancel returned false for a queued job")
	}

	got, ok := s.Get("a")
	if !ok || got.State() != queue.StatusCancelled {
		t.Fatalf("cancelled job state = %v, want %s", got, queue.StatusCancelled)
	}

	snap := s.List()
	if len(snap.Queued) != 0 || len(snap.Failed) != 1 {
		t.Fatalf("after cancel: queued=%d failed=%d, want 0/1", len(snap.Queued), len(snap.Failed))
	}

	// A cancelled queued job must never be dispatched.
	if _, ok := s.Next(); ok {
		t.Fatal("Next dispatched a cancelled job")
	}
}

func TestCancelActiveMovesToFailed(t *testing.T) {
	s := newStore()
	s.Submit(&testJob{id: "a"})
	if _, ok := s.Next(); !ok {
		t.Fatal("Next did not dispatch the queued job")
	}

	if !s.Cancel("a") {
		t.Fatal("Cancel returned false for an active job")
	}

	// Terminal transitions on a cancelled record are refused.
	if s.Complete("a") {
		t.Fatal("Complete succeeded on a cancelled job")
	}
	if s.Fail("a") {
		t.Fatal("Fail succeeded on a cancelled job")
	}
	if s.Update("a", func(j *testJob) {}) {
		t.Fatal("Update mutated a cancelled job")
	}
}

func TestCancelTerminalReturnsFalse(t *testing.T) {
	s := newStore()
	s.Submit(&testJob{id: "done"})
	s.Next()
	s.Complete("done")

	s.Submit(&testJob{id: "broken"})
	s.Next()
	s.Fail("broken")

	if s.Cancel("done") {
		t.Fatal("Cancel returned true for a completed job")
	}
	if s.Cancel("broken") {
		t.Fatal("Cancel returned true for a failed job")
	}
}

func TestNextIsFIFO(t *testing.T) {
	s := newStore()
	for i := 0; i < 5; i++ {
		s.Submit(&testJob{id: fmt.Sprintf("job-%d", i)})
	}

	for i := 0; i < 5; i++ {
		j, ok := s.Next()
		if !ok {
			t.Fatalf("Next returned no job at position %d", i)
		}
		if want := fmt.Sprintf("job-%d", i); j.JobID() != want {
			t.Fatalf("Next returned %s at position %d, want %s", j.JobID(), i, want)
		}
		if j.State() != queue.StatusActive {
			t.Fatalf("dispatched job state = %s, want %s", j.State(), queue.StatusActive)
		}
	}
	if _, ok := s.Next(); ok {
		t.Fatal("Next returned a job from an empty queue")
	}
}

func TestListPreservesQueuedOrder(t *testing.T) {
	s := newStore()
	for i := 0; i < 3; i++ {
		s.Submit(&testJob{id: fmt.Sprintf("job-%d", i)})
	}
	snap := s.List()
	for i, j := range snap.Queued {
		if want := fmt.Sprintf("job-%d", i); j.JobID() != want {
			t.Fatalf("queued[%d] = %s, want %s", i, j.JobID(), want)
		}
	}
}

func TestGetReturnsSnapshot(t *testing.T) {
	s := newStore()
	s.Submit(&testJob{id: "a"})

	got, _ := s.Get("a")
	got.SetState(queue.StatusFailed)

	again, _ := s.Get("a")
	if again.State() != queue.StatusQueued {
		t.Fatalf("mutating a snapshot leaked into the store: state = %s", again.State())
	}
}

// Every submitted id must appear in exactly one bucket at every observable
// instant, under concurrent submission, dispatch, cancellation and
// completion.
func TestExactlyOneBucketInvariant(t *testing.T) {
	s := newStore()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("job-%d", i)
		s.Submit(&testJob{id: id})

		wg.Add(2)
		go func() {
			defer wg.Done()
			if j, ok := s.Next(); ok {
				s.Complete(j.JobID())
			}
		}()
		go func(id string) {
			defer wg.Done()
			s.Cancel(id)
		}(id)

		snap := s.List()
		seen := make(map[string]int)
		for _, bucket := range [][]*testJob{snap.Active, snap.Queued, snap.Completed, snap.Failed} {
			for _, j := range bucket {
				seen[j.JobID()]++
			}
		}
		for id, count := range seen {
			if count != 1 {
				t.Fatalf("job %s appears in %d buckets", id, count)
			}
		}
	}
	wg.Wait()

	snap := s.List()
	total := len(snap.Active) + len(snap.Queued) + len(snap.Completed) + len(snap.Failed)
	if total != n {
		t.Fatalf("final snapshot holds %d records, want %d", total, n)
	}
}
