package download

import "context"

// Phase classifies a downloader progress event.
type Phase string

const (
	// PhaseDownloading carries byte counters and rate/ETA labels.
	PhaseDownloading Phase = "downloading"
	// PhaseFinished means the payload is written but post-processing
	// (merge, transcode, metadata) is still running.
	PhaseFinished Phase = "finished"
	// PhaseError carries a tool-reported error line.
	PhaseError Phase = "error"
)

// ProgressEvent is one report from the external downloader's stream.
type ProgressEvent struct {
	Phase      Phase
	Downloaded int64
	Total      int64 // 0 when the tool does not know the size
	Speed      string
	ETA        string
	Error      string
}

// Request describes one download operation.
type Request struct {
	VideoID   string
	Kind      Kind
	Quality   string
	OutputDir string
}

// Result is the terminal outcome of a successful download.
type Result struct {
	FilePath string
}

// Downloader is the external media-fetch operation. Implementations invoke
// progress zero or more times from a single goroutine, then return the
// terminal result. A non-nil error is the failure outcome.
type Downloader interface {
	Download(ctx context.Context, req Request, progress func(ProgressEvent)) (Result, error)
}
