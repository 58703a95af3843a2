package stems_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benasterisk/stemtube/internal/core/queue"
	"github.com/benasterisk/stemtube/internal/core/stems"
)

type fakeSeparator struct {
	run func(ctx context.Context, req stems.Request, progress func(float64)) (stems.Result, error)
}

func (f *fakeSeparator) Separate(ctx context.Context, req stems.Request, progress func(float64)) (stems.Result, error) {
	return f.run(ctx, req, progress)
}

// writeStems builds a fake separator output directory with the given stems
// as mp3 files.
func writeStems(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name+".mp3"), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

type stemRecorder struct {
	mu       sync.Mutex
	progress []float64
	messages []string
	done     chan struct{}
	failed   chan struct{}
	errMsg   string
}

func newStemRecorder() *stemRecorder {
	return &stemRecorder{done: make(chan struct{}, 1), failed: make(chan struct{}, 1)}
}

func (r *stemRecorder) callbacks() stems.Callbacks {
	return stems.Callbacks{
		OnProgress: func(_ string, percent float64, message string) {
			r.mu.Lock()
			r.progress = append(r.progress, percent)
			r.messages = append(r.messages, message)
			r.mu.Unlock()
		},
		OnComplete: func(string) {
			select {
			case r.done <- struct{}{}:
			default:
			}
		},
		OnError: func(_, message string) {
			r.mu.Lock()
			r.errMsg = message
			r.mu.Unlock()
			select {
			case r.failed <- struct{}{}:
			default:
			}
		},
	}
}

func startManager(t *testing.T, sep stems.Separator, rec *stemRecorder, defaultDir string) *stems.Manager {
	t.Helper()
	m := stems.NewManager(stems.Config{
		Separator:       sep,
		DefaultDir:      defaultDir,
		Callbacks:       rec.callbacks(),
		PollInterval:    time.Millisecond,
		CompletionGrace: time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m.Start(ctx)
	return m
}

func waitFor(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func audioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "track.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractionStagedProgress(t *testing.T) {
	stemDir := writeStems(t, "vocals", "drums", "bass", "other")
	sep := &fakeSeparator{run: func(_ context.Context, req stems.Request, progress func(float64)) (stems.Result, error) {
		progress(50)
		progress(100)
		return stems.Result{StemDir: stemDir}, nil
	}}

	rec := newStemRecorder()
	m := startManager(t, sep, rec, t.TempDir())

	item := stems.NewItem(audioFile(t), "htdemucs", []string{"vocals", "drums", "other"})
	item.OutputDir = t.TempDir()
	id := m.Add(item)
	waitFor(t, rec.done, "completion callback")

	rec.mu.Lock()
	defer rec.mu.Unlock()

	// Model phase scaled onto 0-90, then a 90-99 step per saved stem, then
	// the archive at 99 and 100 at the end.
	want := []float64{45, 90, 93, 96, 99, 99, 100}
	if len(rec.progress) != len(want) {
		t.Fatalf("progress = %v, want %v", rec.progress, want)
	}
	for i := range want {
		if rec.progress[i] != want[i] {
			t.Fatalf("progress[%d] = %v, want %v (%v)", i, rec.progress[i], want[i], rec.progress)
		}
	}

	got, _ := m.Get(id)
	if got.State() != queue.StatusCompleted {
		t.Fatalf("state = %s, want completed", got.State())
	}
	if len(got.OutputPaths) != 3 {
		t.Fatalf("output paths = %v, want 3 stems", got.OutputPaths)
	}
	for stem, path := range got.OutputPaths {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("stem %s missing at %s: %v", stem, path, err)
		}
	}
	if got.ZipPath == "" {
		t.Fatal("zip path not recorded")
	}
	if _, err := os.Stat(got.ZipPath); err != nil {
		t.Fatalf("archive missing: %v", err)
	}
}

func TestExtractionTwoStemMode(t *testing.T) {
	stemDir := writeStems(t, "vocals", "other")
	sep := &fakeSeparator{run: func(_ context.Context, req stems.Request, progress func(float64)) (stems.Result, error) {
		if !req.TwoStem || req.PrimaryStem != "vocals" {
			t.Errorf("two-stem request not propagated: %+v", req)
		}
		return stems.Result{StemDir: stemDir}, nil
	}}

	rec := newStemRecorder()
	m := startManager(t, sep, rec, t.TempDir())

	item := stems.NewItem(audioFile(t), "htdemucs", []string{"vocals", "drums", "bass", "other"})
	item.OutputDir = t.TempDir()
	item.TwoStemMode = true
	item.PrimaryStem = "vocals"
	id := m.Add(item)
	waitFor(t, rec.done, "completion callback")

	got, _ := m.Get(id)
	if len(got.OutputPaths) != 2 {
		t.Fatalf("output paths = %v, want the primary stem and its complement", got.OutputPaths)
	}
	for _, stem := range []string{"vocals", "other"} {
		if _, ok := got.OutputPaths[stem]; !ok {
			t.Fatalf("missing %s in %v", stem, got.OutputPaths)
		}
	}
}

func TestExtractionMissingStemSkipped(t *testing.T) {
	// Model only produced two of the three requested stems.
	stemDir := writeStems(t, "vocals", "other")
	sep := &fakeSeparator{run: func(_ context.Context, _ stems.Request, _ func(float64)) (stems.Result, error) {
		return stems.Result{StemDir: stemDir}, nil
	}}

	rec := newStemRecorder()
	m := startManager(t, sep, rec, t.TempDir())

	item := stems.NewItem(audioFile(t), "htdemucs", []string{"vocals", "drums", "other"})
	item.OutputDir = t.TempDir()
	id := m.Add(item)
	waitFor(t, rec.done, "completion callback")

	got, _ := m.Get(id)
	if got.State() != queue.StatusCompleted {
		t.Fatalf("state = %s, want completed despite the missing stem", got.State())
	}
	if _, ok := got.OutputPaths["drums"]; ok {
		t.Fatal("absent stem reported as an output")
	}
	if len(got.OutputPaths) != 2 {
		t.Fatalf("output paths = %v, want 2", got.OutputPaths)
	}
}

func TestExtractionZipFailureNonFatal(t *testing.T) {
	stemDir := writeStems(t, "vocals", "other")
	sep := &fakeSeparator{run: func(_ context.Context, _ stems.Request, _ func(float64)) (stems.Result, error) {
		return stems.Result{StemDir: stemDir}, nil
	}}

	rec := newStemRecorder()
	m := startManager(t, sep, rec, t.TempDir())

	item := stems.NewItem(audioFile(t), "htdemucs", []string{"vocals", "other"})
	item.OutputDir = t.TempDir()
	// Occupy the archive path with a directory so creating it fails.
	if err := os.Mkdir(filepath.Join(item.OutputDir, "track_stems.zip"), 0o755); err != nil {
		t.Fatal(err)
	}
	id := m.Add(item)
	waitFor(t, rec.done, "completion callback")

	got, _ := m.Get(id)
	if got.State() != queue.StatusCompleted {
		t.Fatalf("state = %s, want completed despite archive failure", got.State())
	}
	if got.ZipPath != "" {
		t.Fatalf("zip path = %q, want empty after failed archive", got.ZipPath)
	}
}

func TestExtractionFailureFiresErrorCallback(t *testing.T) {
	sep := &fakeSeparator{run: func(_ context.Context, _ stems.Request, _ func(float64)) (stems.Result, error) {
		return stems.Result{}, errors.New("model weights not found")
	}}

	rec := newStemRecorder()
	m := startManager(t, sep, rec, t.TempDir())

	item := stems.NewItem(audioFile(t), "htdemucs", nil)
	item.OutputDir = t.TempDir()
	id := m.Add(item)
	waitFor(t, rec.failed, "error callback")

	got, _ := m.Get(id)
	if got.State() != queue.StatusFailed {
		t.Fatalf("state = %s, want failed", got.State())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.errMsg != "model weights not found" {
		t.Fatalf("error message = %q", rec.errMsg)
	}
}

func TestAddFallsBackWhenOutputDirUnwritable(t *testing.T) {
	stemDir := writeStems(t, "vocals")
	sep := &fakeSeparator{run: func(_ context.Context, _ stems.Request, _ func(float64)) (stems.Result, error) {
		return stems.Result{StemDir: stemDir}, nil
	}}

	rec := newStemRecorder()
	defaultDir := t.TempDir()
	m := startManager(t, sep, rec, defaultDir)

	// A path below a regular file can never be created.
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	item := stems.NewItem(audioFile(t), "htdemucs", []string{"vocals"})
	item.OutputDir = filepath.Join(blocker, "nested")
	id := m.Add(item)

	got, _ := m.Get(id)
	want := filepath.Join(defaultDir, "extracted")
	if got.OutputDir != want {
		t.Fatalf("output dir = %s, want fallback %s", got.OutputDir, want)
	}
	waitFor(t, rec.done, "completion callback")
}

func TestCancelQueuedExtraction(t *testing.T) {
	release := make(chan struct{})
	stemDir := writeStems(t, "vocals")
	sep := &fakeSeparator{run: func(_ context.Context, _ stems.Request, _ func(float64)) (stems.Result, error) {
		<-release
		return stems.Result{StemDir: stemDir}, nil
	}}

	rec := newStemRecorder()
	m := startManager(t, sep, rec, t.TempDir())

	// An extraction engine without GPU runs one job at a time, so the
	// second submission stays queued behind the first.
	first := stems.NewItem(audioFile(t), "htdemucs", []string{"vocals"})
	first.OutputDir = t.TempDir()
	m.Add(first)
	second := stems.NewItem(audioFile(t), "htdemucs", []string{"vocals"})
	second.OutputDir = t.TempDir()
	id := m.Add(second)

	if !m.Cancel(id) {
		t.Fatal("Cancel returned false for a queued extraction")
	}
	close(release)
	waitFor(t, rec.done, "first job completion")

	got, _ := m.Get(id)
	if got.State() != queue.StatusCancelled {
		t.Fatalf("state = %s, want cancelled", got.State())
	}
}
