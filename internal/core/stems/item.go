// Package stems implements the stem extraction engine: a bounded worker
// pool over a FIFO of extraction records, driving the external separator
// and staging model progress, stem collection and archive creation into a
// single 0-100 scale.
package stems

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/benasterisk/stemtube/internal/core/queue"
)

// Item is one extraction job record. OutputPaths maps stem name to the
// final per-stem file; it is populated during the collection stage.
type Item struct {
	ID            string
	AudioPath     string
	Model         string
	OutputDir     string
	SelectedStems []string
	TwoStemMode   bool
	PrimaryStem   string

	Status       queue.Status
	Progress     float64
	Message      string
	OutputPaths  map[string]string
	ZipPath      string
	ErrorMessage string
}

// NewItem builds a record with an id derived from the input file's base
// name and the creation timestamp. Ids are never reused.
func NewItem(audioPath, model string, selected []string) *Item {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return &Item{
		ID:            fmt.Sprintf("%s_%d", base, time.Now().UnixMilli()),
		AudioPath:     audioPath,
		Model:         model,
		SelectedStems: selected,
		Status:        queue.StatusQueued,
	}
}

func (i *Item) JobID() string           { return i.ID }
func (i *Item) State() queue.Status     { return i.Status }
func (i *Item) SetState(s queue.Status) { i.Status = s }

// Clone deep-copies the mutable collections so snapshots cannot be altered
// through a shared map or slice.
func (i *Item) Clone() *Item {
	cp := *i
	if i.SelectedStems != nil {
		cp.SelectedStems = append([]string(nil), i.SelectedStems...)
	}
	if i.OutputPaths != nil {
		cp.OutputPaths = make(map[string]string, len(i.OutputPaths))
		for k, v := range i.OutputPaths {
			cp.OutputPaths[k] = v
		}
	}
	return &cp
}
