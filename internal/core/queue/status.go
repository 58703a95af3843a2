// Package queue implements the in-memory job engine shared by the download
// manager and the stems extractor: a four-bucket record store (queued,
// active, completed, failed) with a FIFO of pending jobs, and a polling
// worker loop that dispatches jobs up to a concurrency limit.
package queue

// Status is the lifecycle state of a job record.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is implemented by the record types held in a Store. T is the record
// type itself (a pointer), so Clone can return a typed snapshot.
type Job[T any] interface {
	JobID() string
	State() Status
	SetState(Status)
	Clone() T
}
