package download_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benasterisk/stemtube/internal/core/download"
	"github.com/benasterisk/stemtube/internal/core/queue"
)

type fakeDownloader struct {
	run func(ctx context.Context, req download.Request, progress func(download.ProgressEvent)) (download.Result, error)
}

func (f *fakeDownloader) Download(ctx context.Context, req download.Request, progress func(download.ProgressEvent)) (download.Result, error) {
	return f.run(ctx, req, progress)
}

type fakeTranscoder struct {
	called bool
}

func (f *fakeTranscoder) ToMP3(_ context.Context, inputPath, outputPath string) error {
	f.called = true
	if err := os.WriteFile(outputPath, []byte("mp3"), 0o644); err != nil {
		return err
	}
	return os.Remove(inputPath)
}

// recorder collects callback invocations in order.
type recorder struct {
	mu        sync.Mutex
	progress  []float64
	completed []string
	errors    []string
	done      chan struct{}
	failed    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{}, 1), failed: make(chan struct{}, 1)}
}

func (r *recorder) callbacks() download.Callbacks {
	return download.Callbacks{
		OnProgress: func(_ string, percent float64, _, _ string) {
			r.mu.Lock()
			r.progress = append(r.progress, percent)
			r.mu.Unlock()
		},
		OnComplete: func(_, _, path string) {
			r.mu.Lock()
			r.completed = append(r.completed, path)
			r.mu.Unlock()
			select {
			case r.done <- struct{}{}:
			default:
			}
		},
		OnError: func(_, message string) {
			r.mu.Lock()
			r.errors = append(r.errors, message)
			r.mu.Unlock()
			select {
			case r.failed <- struct{}{}:
			default:
			}
		},
	}
}

func newManager(t *testing.T, dl download.Downloader, rec *recorder) (*download.Manager, string) {
	t.Helper()
	root := t.TempDir()
	m := download.NewManager(download.Config{
		Downloader:      dl,
		Transcoder:      &fakeTranscoder{},
		RootDir:         root,
		MaxConcurrent:   func() int { return 2 },
		Callbacks:       rec.callbacks(),
		PollInterval:    time.Millisecond,
		CompletionGrace: time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m.Start(ctx)
	return m, root
}

func waitFor(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestDownloadEndToEnd(t *testing.T) {
	dl := &fakeDownloader{run: func(_ context.Context, req download.Request, progress func(download.ProgressEvent)) (download.Result, error) {
		progress(download.ProgressEvent{Phase: download.PhaseDownloading, Downloaded: 500, Total: 1000, Speed: "1.0MiB/s", ETA: "00:01"})
		progress(download.ProgressEvent{Phase: download.PhaseDownloading, Downloaded: 1000, Total: 1000})
		progress(download.ProgressEvent{Phase: download.PhaseFinished})
		path := filepath.Join(req.OutputDir, "My Video.mp4")
		if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
			return download.Result{}, err
		}
		return download.Result{FilePath: path}, nil
	}}

	rec := newRecorder()
	m, root := newManager(t, dl, rec)

	item := download.NewItem("abc123", "My Video: Greatest Hits!", "", download.KindVideo, "720p")
	id := m.Add(item)

	got, ok := m.Get(id)
	if !ok || got.State() != queue.StatusQueued {
		t.Fatalf("status right after submit = %v, want queued", got)
	}

	waitFor(t, rec.done, "completion callback")

	rec.mu.Lock()
	defer rec.mu.Unlock()

	// 50 during transfer, 99 while post-processing, 100 before completion.
	if len(rec.progress) < 3 {
		t.Fatalf("too few progress callbacks: %v", rec.progress)
	}
	if rec.progress[0] != 50 {
		t.Fatalf("first progress = %v, want 50", rec.progress[0])
	}
	if last := rec.progress[len(rec.progress)-1]; last != 100 {
		t.Fatalf("last progress before completion = %v, want 100", last)
	}
	for i := 1; i < len(rec.progress); i++ {
		if rec.progress[i] < rec.progress[i-1] {
			t.Fatalf("progress not monotonic: %v", rec.progress)
		}
	}

	if len(rec.completed) != 1 {
		t.Fatalf("completion callbacks = %d, want 1", len(rec.completed))
	}
	wantDir := filepath.Join(root, "My Video_ Greatest Hits_", "video")
	if filepath.Dir(rec.completed[0]) != wantDir {
		t.Fatalf("final path %s not under %s", rec.completed[0], wantDir)
	}

	final, _ := m.Get(id)
	if final.State() != queue.StatusCompleted || final.Progress != 100 {
		t.Fatalf("final record: state=%s progress=%v", final.State(), final.Progress)
	}
}

func TestDownloadProgressClampedToRunningMax(t *testing.T) {
	dl := &fakeDownloader{run: func(_ context.Context, req download.Request, progress func(download.ProgressEvent)) (download.Result, error) {
		progress(download.ProgressEvent{Phase: download.PhaseDownloading, Downloaded: 800, Total: 1000})
		// Out-of-order report from the external tool.
		progress(download.ProgressEvent{Phase: download.PhaseDownloading, Downloaded: 300, Total: 1000})
		path := filepath.Join(req.OutputDir, "a.mp4")
		os.WriteFile(path, []byte("x"), 0o644)
		return download.Result{FilePath: path}, nil
	}}

	rec := newRecorder()
	m, _ := newManager(t, dl, rec)
	m.Add(download.NewItem("v", "t", "", download.KindVideo, "best"))
	waitFor(t, rec.done, "completion callback")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.progress[0] != 80 || rec.progress[1] != 80 {
		t.Fatalf("clamped progress = %v, want 80, 80, ...", rec.progress)
	}
}

func TestDownloadFailureFiresErrorCallback(t *testing.T) {
	dl := &fakeDownloader{run: func(context.Context, download.Request, func(download.ProgressEvent)) (download.Result, error) {
		return download.Result{}, errors.New("network unreachable")
	}}

	rec := newRecorder()
	m, _ := newManager(t, dl, rec)
	id := m.Add(download.NewItem("v", "t", "", download.KindVideo, "best"))
	waitFor(t, rec.failed, "error callback")

	got, _ := m.Get(id)
	if got.State() != queue.StatusFailed {
		t.Fatalf("state = %s, want failed", got.State())
	}
	if got.ErrorMessage != "network unreachable" {
		t.Fatalf("error message = %q", got.ErrorMessage)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.completed) != 0 || len(rec.errors) != 1 {
		t.Fatalf("completed=%d errors=%d, want 0/1", len(rec.completed), len(rec.errors))
	}
}

func TestCancelActiveSuppressesCompletion(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	dl := &fakeDownloader{run: func(_ context.Context, req download.Request, progress func(download.ProgressEvent)) (download.Result, error) {
		close(started)
		<-release
		path := filepath.Join(req.OutputDir, "a.mp4")
		os.WriteFile(path, []byte("x"), 0o644)
		return download.Result{FilePath: path}, nil
	}}

	rec := newRecorder()
	m, _ := newManager(t, dl, rec)
	id := m.Add(download.NewItem("v", "t", "", download.KindVideo, "best"))

	<-started
	if !m.Cancel(id) {
		t.Fatal("Cancel returned false for an active download")
	}
	close(release)

	// Give the unit time to observe the cancellation and bail out.
	time.Sleep(50 * time.Millisecond)

	got, _ := m.Get(id)
	if got.State() != queue.StatusCancelled {
		t.Fatalf("state = %s, want cancelled", got.State())
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.completed) != 0 {
		t.Fatal("completion callback fired for a cancelled download")
	}
	if len(rec.errors) != 1 {
		t.Fatalf("error callbacks = %d, want exactly 1", len(rec.errors))
	}
}

func TestCancelTerminalNoCallback(t *testing.T) {
	dl := &fakeDownloader{run: func(_ context.Context, req download.Request, progress func(download.ProgressEvent)) (download.Result, error) {
		path := filepath.Join(req.OutputDir, "a.mp4")
		os.WriteFile(path, []byte("x"), 0o644)
		return download.Result{FilePath: path}, nil
	}}

	rec := newRecorder()
	m, _ := newManager(t, dl, rec)
	id := m.Add(download.NewItem("v", "t", "", download.KindVideo, "best"))
	waitFor(t, rec.done, "completion callback")

	if m.Cancel(id) {
		t.Fatal("Cancel returned true for a completed download")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errors) != 0 {
		t.Fatal("cancelling a completed download fired a callback")
	}
}

func TestAudioFallbackTranscode(t *testing.T) {
	dl := &fakeDownloader{run: func(_ context.Context, req download.Request, progress func(download.ProgressEvent)) (download.Result, error) {
		// Claimed success but the mp3 is missing: only the intermediate
		// container was written.
		path := filepath.Join(req.OutputDir, "song.webm")
		os.WriteFile(path, []byte("opusdata"), 0o644)
		return download.Result{FilePath: path}, nil
	}}

	rec := newRecorder()
	root := t.TempDir()
	tc := &fakeTranscoder{}
	m := download.NewManager(download.Config{
		Downloader:      dl,
		Transcoder:      tc,
		RootDir:         root,
		MaxConcurrent:   func() int { return 1 },
		Callbacks:       rec.callbacks(),
		PollInterval:    time.Millisecond,
		CompletionGrace: time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	id := m.Add(download.NewItem("v", "Song", "", download.KindAudio, "best"))
	waitFor(t, rec.done, "completion callback")

	if !tc.called {
		t.Fatal("transcoder was not invoked for the intermediate file")
	}
	got, _ := m.Get(id)
	if filepath.Ext(got.FilePath) != ".mp3" {
		t.Fatalf("final path = %s, want .mp3", got.FilePath)
	}
	if _, err := os.Stat(got.FilePath); err != nil {
		t.Fatalf("mp3 missing: %v", err)
	}
	// Intermediate removed on success only.
	if _, err := os.Stat(filepath.Join(filepath.Dir(got.FilePath), "song.webm")); !os.IsNotExist(err) {
		t.Fatal("intermediate file still present after transcode")
	}
}
