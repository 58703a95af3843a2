package queue

import (
	"sync"
)

// Store holds job records in four mutually exclusive buckets plus a FIFO of
// pending ids. A record is always in exactly one bucket; every move between
// buckets happens under the store mutex, so readers never observe a record
// in zero or two buckets. The pending FIFO is an id slice with the records
// indexed by the queued map, which keeps cancel and lookup O(1) and atomic
// with concurrent submissions.
type Store[T Job[T]] struct {
	mu        sync.Mutex
	pending   []string
	queued    map[string]T
	active    map[string]T
	completed map[string]T
	failed    map[string]T
}

// Snapshot is a consistent copy of every bucket. Queued preserves FIFO order.
type Snapshot[T any] struct {
	Active    []T
	Queued    []T
	Completed []T
	Failed    []T
}

func NewStore[T Job[T]]() *Store[T] {
	return &Store[T]{
		queued:    make(map[string]T),
		active:    make(map[string]T),
		completed: make(map[string]T),
		failed:    make(map[string]T),
	}
}

// Submit enqueues a record and returns its id. It never blocks on execution.
func (s *Store[T]) Submit(j T) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	j.SetState(StatusQueued)
	id := j.JobID()
	s.queued[id] = j
	s.pending = append(s.pending, id)
	return id
}

// Cancel marks a queued or active record Cancelled and moves it to the
// failed bucket. Records already completed or failed, and unknown ids,
// return false. The external operation of an active record is not killed;
// the record simply refuses further mutation once Cancelled.
func (s *Store[T]) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.active[id]; ok {
		j.SetState(StatusCancelled)
		delete(s.active, id)
		s.failed[id] = j
		return true
	}
	if j, ok := s.queued[id]; ok {
		j.SetState(StatusCancelled)
		delete(s.queued, id)
		s.removePending(id)
		s.failed[id] = j
		return true
	}
	return false
}

// Get returns a snapshot of the record, looked up across all four buckets.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, bucket := range []map[string]T{s.active, s.queued, s.completed, s.failed} {
		if j, ok := bucket[id]; ok {
			return j.Clone(), true
		}
	}
	var zero T
	return zero, false
}

// State returns the current status of the record without copying it.
func (s *Store[T]) State(id string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, bucket := range []map[string]T{s.active, s.queued, s.completed, s.failed} {
		if j, ok := bucket[id]; ok {
			return j.State(), true
		}
	}
	return "", false
}

// List returns a consistent snapshot of every bucket.
func (s *Store[T]) List() Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot[T]{
		Active:    cloneBucket(s.active),
		Completed: cloneBucket(s.completed),
		Failed:    cloneBucket(s.failed),
		Queued:    make([]T, 0, len(s.queued)),
	}
	for _, id := range s.pending {
		if j, ok := s.queued[id]; ok {
			snap.Queued = append(snap.Queued, j.Clone())
		}
	}
	return snap
}

// Next pops the head of the pending FIFO and moves it to the active bucket,
// routing records cancelled while queued to the failed bucket instead. The
// returned record is the live one; callers mutate it through Update only.
func (s *Store[T]) Next() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.pending) > 0 {
		id := s.pending[0]
		s.pending = s.pending[1:]
		j, ok := s.queued[id]
		if !ok {
			continue
		}
		delete(s.queued, id)
		if j.State() == StatusCancelled {
			s.failed[id] = j
			continue
		}
		j.SetState(StatusActive)
		s.active[id] = j
		return j, true
	}
	var zero T
	return zero, false
}

// Update applies fn to the record under the store mutex. It is a no-op on
// records already Cancelled, so a racing execution unit cannot mutate state
// after cancellation is recorded.
func (s *Store[T]) Update(id string, fn func(T)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, bucket := range []map[string]T{s.active, s.queued, s.completed, s.failed} {
		if j, ok := bucket[id]; ok {
			if j.State() == StatusCancelled {
				return false
			}
			fn(j)
			return true
		}
	}
	return false
}

// Complete moves an active record to the completed bucket. Returns false if
// the record is not active anymore (cancelled records have already been
// moved to failed), in which case the caller must skip its success callback.
func (s *Store[T]) Complete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.active[id]
	if !ok || j.State() == StatusCancelled {
		return false
	}
	j.SetState(StatusCompleted)
	delete(s.active, id)
	s.completed[id] = j
	return true
}

// Fail moves an active record to the failed bucket. Returns false if the
// record is not active anymore.
func (s *Store[T]) Fail(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.active[id]
	if !ok || j.State() == StatusCancelled {
		return false
	}
	j.SetState(StatusFailed)
	delete(s.active, id)
	s.failed[id] = j
	return true
}

// ActiveCount returns the number of records currently executing.
func (s *Store[T]) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Store[T]) removePending(id string) {
	for i, pid := range s.pending {
		if pid == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

func cloneBucket[T Job[T]](bucket map[string]T) []T {
	out := make([]T, 0, len(bucket))
	for _, j := range bucket {
		out = append(out, j.Clone())
	}
	return out
}
