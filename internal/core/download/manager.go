package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/benasterisk/stemtube/internal/core/ffmpeg"
	"github.com/benasterisk/stemtube/internal/core/queue"
	"github.com/benasterisk/stemtube/internal/core/util"
)

// Callbacks fan engine events out to the caller. Fixed at manager creation;
// nil fields are skipped. Callbacks from concurrently active jobs may
// interleave, so every invocation is tagged with the job id.
type Callbacks struct {
	OnStart    func(id string)
	OnProgress func(id string, percent float64, speed, eta string)
	OnComplete func(id, title, filePath string)
	OnError    func(id, message string)
}

// Config assembles a Manager. MaxConcurrent is read each worker iteration so
// setting changes apply to jobs not yet started.
type Config struct {
	Downloader      Downloader
	Transcoder      ffmpeg.Transcoder
	RootDir         string
	MaxConcurrent   func() int
	Callbacks       Callbacks
	PollInterval    time.Duration
	CompletionGrace time.Duration
}

// Manager is one download engine instance: the four-bucket record store plus
// the worker loop, serving a single session.
type Manager struct {
	store *queue.Store[*Item]
	cfg   Config
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxConcurrent == nil {
		cfg.MaxConcurrent = func() int { return 3 }
	}
	if cfg.CompletionGrace == 0 {
		cfg.CompletionGrace = 200 * time.Millisecond
	}
	return &Manager{
		store: queue.NewStore[*Item](),
		cfg:   cfg,
	}
}

// Start launches the worker loop. It runs until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	w := &queue.Worker[*Item]{
		Store:    m.store,
		Limit:    m.cfg.MaxConcurrent,
		Run:      m.run,
		Interval: m.cfg.PollInterval,
	}
	go w.Loop(ctx)
}

// Add enqueues a download and returns its id immediately.
func (m *Manager) Add(item *Item) string {
	return m.store.Submit(item)
}

// Cancel cancels a queued or active download. Active jobs are cooperative:
// the external process keeps running but the record accepts no further
// mutation and no success callback fires. Completed/failed/unknown ids
// return false with no callback.
func (m *Manager) Cancel(id string) bool {
	if !m.store.Cancel(id) {
		return false
	}
	log.Info().Str("download_id", id).Msg("download cancelled")
	if m.cfg.Callbacks.OnError != nil {
		m.cfg.Callbacks.OnError(id, "Download cancelled by user")
	}
	return true
}

// Get returns a snapshot of the record, or false for unknown ids.
func (m *Manager) Get(id string) (*Item, bool) {
	return m.store.Get(id)
}

// List returns a consistent snapshot of all four buckets.
func (m *Manager) List() queue.Snapshot[*Item] {
	return m.store.List()
}

// run is the execution unit for one active download. It never panics or
// returns an error past this boundary: every failure becomes a Failed
// record plus an error callback.
func (m *Manager) run(ctx context.Context, item *Item) {
	id := item.ID
	if m.cfg.Callbacks.OnStart != nil {
		m.cfg.Callbacks.OnStart(id)
	}

	outputDir := filepath.Join(m.cfg.RootDir, util.SanitizeTitle(item.Title), string(item.Kind))
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		m.fail(id, fmt.Sprintf("create output directory: %v", err))
		return
	}

	maxProgress := 0.0
	onProgress := func(ev ProgressEvent) {
		switch ev.Phase {
		case PhaseDownloading:
			pct := 0.0
			if ev.Total > 0 {
				pct = float64(ev.Downloaded) / float64(ev.Total) * 100
			}
			// External reports are not guaranteed monotonic; clamp to the
			// running maximum.
			if pct < maxProgress {
				pct = maxProgress
			}
			maxProgress = pct
			speed := util.StripANSI(ev.Speed)
			eta := util.StripANSI(ev.ETA)
			if !m.store.Update(id, func(it *Item) {
				it.Progress = pct
				it.Speed = speed
				it.ETA = eta
			}) {
				return
			}
			if m.cfg.Callbacks.OnProgress != nil {
				m.cfg.Callbacks.OnProgress(id, pct, speed, eta)
			}
		case PhaseFinished:
			pct := 99.0
			if pct < maxProgress {
				pct = maxProgress
			}
			maxProgress = pct
			if !m.store.Update(id, func(it *Item) {
				it.Progress = pct
				it.Speed = "Processing..."
				it.ETA = ""
			}) {
				return
			}
			if m.cfg.Callbacks.OnProgress != nil {
				m.cfg.Callbacks.OnProgress(id, pct, "Processing...", "")
			}
		}
	}

	result, err := m.cfg.Downloader.Download(ctx, Request{
		VideoID:   item.VideoID,
		Kind:      item.Kind,
		Quality:   item.Quality,
		OutputDir: outputDir,
	}, onProgress)

	if state, ok := m.store.State(id); ok && state == queue.StatusCancelled {
		log.Debug().Str("download_id", id).Msg("download finished after cancellation, discarding result")
		return
	}
	if err != nil {
		m.fail(id, err.Error())
		return
	}

	finalPath := result.FilePath
	if item.Kind == KindAudio {
		finalPath, err = m.ensureMP3(ctx, finalPath)
		if err != nil {
			m.fail(id, err.Error())
			return
		}
	}

	m.store.Update(id, func(it *Item) {
		it.Progress = 100
		it.FilePath = finalPath
		it.Speed = ""
		it.ETA = ""
	})
	if m.cfg.Callbacks.OnProgress != nil {
		m.cfg.Callbacks.OnProgress(id, 100, "", "")
	}

	// Grace pause so subscribers observe the 100% update before the
	// completion event.
	time.Sleep(m.cfg.CompletionGrace)

	if !m.store.Complete(id) {
		return
	}
	log.Info().Str("download_id", id).Str("path", finalPath).Msg("download completed")
	if m.cfg.Callbacks.OnComplete != nil {
		m.cfg.Callbacks.OnComplete(id, item.Title, finalPath)
	}
}

// ensureMP3 returns the mp3 for an audio download, falling back to a manual
// transcode when the expected container is absent after a claimed-successful
// run (yt-dlp can leave the intermediate behind when its post-processor is
// misconfigured).
func (m *Manager) ensureMP3(ctx context.Context, path string) (string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	mp3Path := base + ".mp3"

	if _, err := os.Stat(mp3Path); err == nil {
		return mp3Path, nil
	}

	for _, altExt := range []string{ext, ".webm", ".m4a", ".opus"} {
		if altExt == "" || altExt == ".mp3" {
			continue
		}
		candidate := base + altExt
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		log.Info().Str("from", candidate).Str("to", mp3Path).Msg("transcoding intermediate audio file")
		if m.cfg.Transcoder == nil {
			return "", fmt.Errorf("no mp3 produced and no transcoder available for %s", candidate)
		}
		if err := m.cfg.Transcoder.ToMP3(ctx, candidate, mp3Path); err != nil {
			return "", err
		}
		return mp3Path, nil
	}

	return "", fmt.Errorf("expected audio output missing: %s", mp3Path)
}

func (m *Manager) fail(id, message string) {
	m.store.Update(id, func(it *Item) {
		it.ErrorMessage = message
	})
	if !m.store.Fail(id) {
		return
	}
	log.Warn().Str("download_id", id).Str("error", message).Msg("download failed")
	if m.cfg.Callbacks.OnError != nil {
		m.cfg.Callbacks.OnError(id, message)
	}
}
