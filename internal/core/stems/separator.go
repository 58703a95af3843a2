package stems

import "context"

// Request describes one separation run against the external model.
type Request struct {
	InputPath   string
	Model       string
	Device      string
	TwoStem     bool
	PrimaryStem string
}

// Result is the location of the separated stems after a successful run.
// StemDir contains one file per stem named after the stem. Cleanup, when
// non-nil, releases the separator's scratch space and must be called once
// the stems have been collected.
type Result struct {
	StemDir string
	Cleanup func()
}

// Separator runs the separation model. Implementations report raw model
// progress in percent through the callback; staging onto the job's 0-100
// scale is the manager's concern.
type Separator interface {
	Separate(ctx context.Context, req Request, progress func(percent float64)) (Result, error)
}
