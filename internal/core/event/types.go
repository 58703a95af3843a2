package event

import "time"

type EventType string

const (
	// Download lifecycle
	EventDownloadProgress EventType = "download.progress"
	EventDownloadComplete EventType = "download.complete"
	EventDownloadError    EventType = "download.error"

	// Extraction lifecycle
	EventExtractionProgress EventType = "extraction.progress"
	EventExtractionComplete EventType = "extraction.complete"
	EventExtractionError    EventType = "extraction.error"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// DownloadEvent is the payload of every download.* event. Progress callbacks
// from concurrently active jobs interleave, so every payload carries its
// job id.
type DownloadEvent struct {
	SessionID  string
	DownloadID string
	Progress   float64
	Speed      string
	ETA        string
	Title      string
	FilePath   string
	Error      string
}

// ExtractionEvent is the payload of every extraction.* event.
type ExtractionEvent struct {
	SessionID    string
	ExtractionID string
	Progress     float64
	Message      string
	Error        string
}
