package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/benasterisk/stemtube/internal/api/middleware"
	"github.com/benasterisk/stemtube/internal/core/download"
	"github.com/benasterisk/stemtube/internal/core/queue"
	"github.com/benasterisk/stemtube/internal/core/session"
	"github.com/benasterisk/stemtube/internal/database"
	"github.com/benasterisk/stemtube/internal/youtube"
)

type DownloadsHandler struct {
	sessions  *session.Registry
	yt        *youtube.Client
	processed *database.ProcessedStore
	settings  *database.SettingsStore
}

func NewDownloadsHandler(sessions *session.Registry, yt *youtube.Client, processed *database.ProcessedStore, settings *database.SettingsStore) *DownloadsHandler {
	return &DownloadsHandler{sessions: sessions, yt: yt, processed: processed, settings: settings}
}

type DownloadDTO struct {
	ID           string  `json:"id" doc:"Download ID"`
	VideoID      string  `json:"video_id" doc:"YouTube video ID"`
	Title        string  `json:"title" doc:"Video title"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty" doc:"Thumbnail URL"`
	Kind         string  `json:"kind" enum:"audio,video" doc:"Media kind"`
	Quality      string  `json:"quality" doc:"Requested quality"`
	Status       string  `json:"status" doc:"Lifecycle status"`
	Progress     float64 `json:"progress" doc:"Progress percentage"`
	Speed        string  `json:"speed,omitempty" doc:"Transfer rate"`
	ETA          string  `json:"eta,omitempty" doc:"Estimated time remaining"`
	FilePath     string  `json:"file_path,omitempty" doc:"Final file location"`
	Error        string  `json:"error,omitempty" doc:"Failure reason"`
	Reused       bool    `json:"reused,omitempty" doc:"Served from the processed-media cache"`
}

func downloadDTO(it *download.Item) DownloadDTO {
	return DownloadDTO{
		ID:           it.ID,
		VideoID:      it.VideoID,
		Title:        it.Title,
		ThumbnailURL: it.ThumbnailURL,
		Kind:         string(it.Kind),
		Quality:      it.Quality,
		Status:       string(it.Status),
		Progress:     it.Progress,
		Speed:        it.Speed,
		ETA:          it.ETA,
		FilePath:     it.FilePath,
		Error:        it.ErrorMessage,
	}
}

type DownloadListDTO struct {
	Active    []DownloadDTO `json:"active"`
	Queued    []DownloadDTO `json:"queued"`
	Completed []DownloadDTO `json:"completed"`
	Failed    []DownloadDTO `json:"failed"`
}

func (h *DownloadsHandler) List(ctx context.Context, _ *EmptyInput) (*DataOutput[DownloadListDTO], error) {
	snap := h.sessions.Get(middleware.SessionID(ctx)).Downloads.List()
	return OK(DownloadListDTO{
		Active:    downloadDTOs(snap.Active),
		Queued:    downloadDTOs(snap.Queued),
		Completed: downloadDTOs(snap.Completed),
		Failed:    downloadDTOs(snap.Failed),
	}), nil
}

func downloadDTOs(items []*download.Item) []DownloadDTO {
	out := make([]DownloadDTO, 0, len(items))
	for _, it := range items {
		out = append(out, downloadDTO(it))
	}
	return out
}

type DownloadIDInput struct {
	ID string `path:"id" doc:"Download ID"`
}

func (h *DownloadsHandler) Get(ctx context.Context, input *DownloadIDInput) (*DataOutput[DownloadDTO], error) {
	it, ok := h.sessions.Get(middleware.SessionID(ctx)).Downloads.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("download not found")
	}
	return OK(downloadDTO(it)), nil
}

type AddDownloadInput struct {
	Body struct {
		VideoID string `json:"video_id" minLength:"1" doc:"YouTube video ID"`
		Kind    string `json:"kind" enum:"audio,video" doc:"Media kind"`
		Quality string `json:"quality,omitempty" doc:"Quality override; defaults come from settings"`
		Title   string `json:"title,omitempty" doc:"Title override when the video is not in the search cache"`
	}
}

func (h *DownloadsHandler) Add(ctx context.Context, input *AddDownloadInput) (*DataOutput[DownloadDTO], error) {
	kind := download.Kind(input.Body.Kind)

	quality := input.Body.Quality
	if quality == "" {
		if kind == download.KindAudio {
			quality = h.settings.Get("audio_quality", "best")
		} else {
			quality = h.settings.Get("video_quality", "720p")
		}
	}

	title := input.Body.Title
	thumbnail := ""
	if v, ok := h.yt.Lookup(ctx, input.Body.VideoID); ok {
		if title == "" {
			title = v.Title
		}
		thumbnail = v.ThumbnailURL
	}
	if title == "" {
		title = input.Body.VideoID
	}

	// A finished download of the same video, kind and quality is served
	// from disk instead of re-running the downloader.
	if prev, ok := h.processed.LookupDownload(ctx, input.Body.VideoID, string(kind), quality); ok {
		return OK(DownloadDTO{
			ID:       "",
			VideoID:  prev.VideoID,
			Title:    prev.Title,
			Kind:     prev.Kind,
			Quality:  prev.Quality,
			Status:   string(queue.StatusCompleted),
			Progress: 100,
			FilePath: prev.FilePath,
			Reused:   true,
		}), nil
	}

	item := download.NewItem(input.Body.VideoID, title, thumbnail, kind, quality)
	dto := downloadDTO(item)
	h.sessions.Get(middleware.SessionID(ctx)).Downloads.Add(item)
	return OK(dto), nil
}

func (h *DownloadsHandler) Cancel(ctx context.Context, input *DownloadIDInput) (*MsgOutput, error) {
	if !h.sessions.Get(middleware.SessionID(ctx)).Downloads.Cancel(input.ID) {
		return nil, huma.Error404NotFound("download not found or already finished")
	}
	return Msg("download cancelled"), nil
}
