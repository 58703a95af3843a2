package stems

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/benasterisk/stemtube/internal/core/queue"
)

// Callbacks fan engine events out to the caller. Fixed at manager creation;
// nil fields are skipped.
type Callbacks struct {
	OnStart    func(id string)
	OnProgress func(id string, percent float64, message string)
	OnComplete func(id string)
	OnError    func(id, message string)
}

// Config assembles a Manager. UseGPU and MaxConcurrent are read each worker
// iteration; without a GPU concurrency is pinned to one because parallel
// CPU separations starve each other.
type Config struct {
	Separator       Separator
	DefaultDir      string
	UseGPU          func() bool
	MaxConcurrent   func() int
	Callbacks       Callbacks
	PollInterval    time.Duration
	CompletionGrace time.Duration
}

// Manager is one extraction engine instance: the four-bucket record store
// plus the worker loop, serving a single session.
type Manager struct {
	store *queue.Store[*Item]
	cfg   Config
}

func NewManager(cfg Config) *Manager {
	if cfg.UseGPU == nil {
		cfg.UseGPU = func() bool { return false }
	}
	if cfg.MaxConcurrent == nil {
		cfg.MaxConcurrent = func() int { return 1 }
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
		Limit:    m.limit,
		Run:      m.run,
		Interval: m.cfg.PollInterval,
	}
	go w.Loop(ctx)
}

func (m *Manager) limit() int {
	if !m.cfg.UseGPU() {
		return 1
	}
	return m.cfg.MaxConcurrent()
}

// Add enqueues an extraction and returns its id immediately. The requested
// output directory is probed with a test write; when it is absent or not
// writable the job falls back to the default directory instead of failing
// later mid-run.
func (m *Manager) Add(item *Item) string {
	dir := item.OutputDir
	if dir == "" || ensureWritable(dir) != nil {
		fallback := filepath.Join(m.cfg.DefaultDir, "extracted")
		if dir != "" {
			log.Warn().Str("requested", dir).Str("fallback", fallback).Msg("output directory not writable, using fallback")
		}
		item.OutputDir = fallback
	}
	return m.store.Submit(item)
}

// Cancel cancels a queued or active extraction. Active jobs are cooperative:
// the separator process keeps running but the record accepts no further
// mutation and no success callback fires.
func (m *Manager) Cancel(id string) bool {
	if !m.store.Cancel(id) {
		return false
	}
	log.Info().Str("extraction_id", id).Msg("extraction cancelled")
	if m.cfg.Callbacks.OnError != nil {
		m.cfg.Callbacks.OnError(id, "Extraction cancelled by user")
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

// Progress staging: the model's own 0-100 maps onto 0-90, collecting the
// stems fills 90-99, the archive lands at 99 and the job finishes at 100.
const modelProgressCeiling = 90.0

// run is the execution unit for one active extraction.
func (m *Manager) run(ctx context.Context, item *Item) {
	id := item.ID
	if m.cfg.Callbacks.OnStart != nil {
		m.cfg.Callbacks.OnStart(id)
	}

	if err := ensureWritable(item.OutputDir); err != nil {
		m.fail(id, fmt.Sprintf("output directory: %v", err))
		return
	}

	device := "cpu"
	if m.cfg.UseGPU() {
		device = "cuda"
	}

	maxProgress := 0.0
	onProgress := func(percent float64) {
		pct := percent * modelProgressCeiling / 100
		if pct > modelProgressCeiling {
			pct = modelProgressCeiling
		}
		// Model output is not guaranteed monotonic; clamp to the running
		// maximum.
		if pct < maxProgress {
			pct = maxProgress
		}
		maxProgress = pct
		m.report(id, pct, "Separating stems...")
	}

	result, err := m.cfg.Separator.Separate(ctx, Request{
		InputPath:   item.AudioPath,
		Model:       item.Model,
		Device:      device,
		TwoStem:     item.TwoStemMode,
		PrimaryStem: item.PrimaryStem,
	}, onProgress)

	if state, ok := m.store.State(id); ok && state == queue.StatusCancelled {
		log.Debug().Str("extraction_id", id).Msg("extraction finished after cancellation, discarding result")
		return
	}
	if err != nil {
		m.fail(id, err.Error())
		return
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}

	wanted := item.SelectedStems
	if item.TwoStemMode {
		wanted = []string{item.PrimaryStem, "other"}
	}
	if len(wanted) == 0 {
		wanted = ModelStems(item.Model)
	}

	base := strings.TrimSuffix(filepath.Base(item.AudioPath), filepath.Ext(item.AudioPath))
	outputs := make(map[string]string, len(wanted))
	for i, stem := range wanted {
		src, ok := findStemFile(result.StemDir, stem)
		if !ok {
			log.Warn().Str("extraction_id", id).Str("stem", stem).Msg("stem not produced by model, skipping")
			continue
		}
		dst := filepath.Join(item.OutputDir, fmt.Sprintf("%s_%s%s", base, stem, filepath.Ext(src)))
		if err := copyFile(src, dst); err != nil {
			m.fail(id, fmt.Sprintf("save stem %s: %v", stem, err))
			return
		}
		outputs[stem] = dst
		pct := modelProgressCeiling + float64(i+1)*9/float64(len(wanted))
		if !m.store.Update(id, func(it *Item) {
			it.Progress = pct
			it.Message = "Saving " + stem + "..."
			if it.OutputPaths == nil {
				it.OutputPaths = make(map[string]string)
			}
			it.OutputPaths[stem] = dst
		}) {
			return
		}
		if m.cfg.Callbacks.OnProgress != nil {
			m.cfg.Callbacks.OnProgress(id, pct, "Saving "+stem+"...")
		}
	}

	// A missing archive is an inconvenience, not a failed extraction.
	zipPath := filepath.Join(item.OutputDir, base+"_stems.zip")
	m.report(id, 99, "Creating archive...")
	if err := writeArchive(zipPath, outputs); err != nil {
		log.Warn().Err(err).Str("extraction_id", id).Msg("archive creation failed")
		zipPath = ""
	}

	m.store.Update(id, func(it *Item) {
		it.Progress = 100
		it.Message = "Extraction complete"
		it.ZipPath = zipPath
	})
	if m.cfg.Callbacks.OnProgress != nil {
		m.cfg.Callbacks.OnProgress(id, 100, "Extraction complete")
	}

	// Grace pause so subscribers observe the 100% update before the
	// completion event.
	time.Sleep(m.cfg.CompletionGrace)

	if !m.store.Complete(id) {
		return
	}
	log.Info().Str("extraction_id", id).Int("stems", len(outputs)).Msg("extraction completed")
	if m.cfg.Callbacks.OnComplete != nil {
		m.cfg.Callbacks.OnComplete(id)
	}
}

func (m *Manager) report(id string, pct float64, message string) {
	if !m.store.Update(id, func(it *Item) {
		it.Progress = pct
		it.Message = message
	}) {
		return
	}
	if m.cfg.Callbacks.OnProgress != nil {
		m.cfg.Callbacks.OnProgress(id, pct, message)
	}
}

func (m *Manager) fail(id, message string) {
	m.store.Update(id, func(it *Item) {
		it.ErrorMessage = message
	})
	if !m.store.Fail(id) {
		return
	}
	log.Warn().Str("extraction_id", id).Str("error", message).Msg("extraction failed")
	if m.cfg.Callbacks.OnError != nil {
		m.cfg.Callbacks.OnError(id, message)
	}
}

// findStemFile locates a stem in the separator's output, preferring mp3
// over wav.
func findStemFile(dir, stem string) (string, bool) {
	for _, ext := range []string{".mp3", ".wav"} {
		candidate := filepath.Join(dir, stem+ext)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// writeArchive packs the collected stem files into a flat zip.
func writeArchive(path string, files map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)
	for _, src := range files {
		in, err := os.Open(src)
		if err != nil {
			zw.Close()
			f.Close()
			return err
		}
		w, err := zw.Create(filepath.Base(src))
		if err == nil {
			_, err = io.Copy(w, in)
		}
		in.Close()
		if err != nil {
			zw.Close()
			f.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ensureWritable creates the directory if needed and verifies it with a
// test write.
func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}
