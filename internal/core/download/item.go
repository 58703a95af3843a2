// Package download implements the download job engine: a bounded worker
// pool over a FIFO of download records, driving the external downloader and
// reporting progress through constructor-injected callbacks.
package download

import (
	"fmt"
	"time"

	"github.com/benasterisk/stemtube/internal/core/queue"
)

// Kind selects the media stream to download.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Item is one download job record. Identity fields are set at creation;
// status, progress and the transient labels are mutated only through the
// owning store.
type Item struct {
	ID           string
	VideoID      string
	Title        string
	ThumbnailURL string
	Kind         Kind
	Quality      string

	Status       queue.Status
	Progress     float64
	Speed        string
	ETA          string
	FilePath     string
	ErrorMessage string
}

// NewItem builds a record with an id derived from the video id and the
// creation timestamp. Ids are never reused.
func NewItem(videoID, title, thumbnailURL string, kind Kind, quality string) *Item {
	return &Item{
		ID:           fmt.Sprintf("%s_%d", videoID, time.Now().UnixMilli()),
		VideoID:      videoID,
		Title:        title,
		ThumbnailURL: thumbnailURL,
		Kind:         kind,
		Quality:      quality,
		Status:       queue.StatusQueued,
	}
}

func (i *Item) JobID() string           { return i.ID }
func (i *Item) State() queue.Status     { return i.Status }
func (i *Item) SetState(s queue.Status) { i.Status = s }
func (i *Item) Clone() *Item            { cp := *i; return &cp }
