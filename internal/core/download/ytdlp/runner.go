// Package ytdlp drives the yt-dlp binary as the external downloader.
package ytdlp

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/benasterisk/stemtube/internal/core/download"
)

// progressPrefix tags the machine-readable progress lines requested through
// --progress-template so they are distinguishable from normal output.
const progressPrefix = "stprog"

// Runner implements download.Downloader by spawning yt-dlp and translating
// its output stream into progress events.
type Runner struct {
	binary     string
	ffmpegPath string
}

func New(binary, ffmpegPath string) *Runner {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &Runner{binary: binary, ffmpegPath: ffmpegPath}
}

// Check verifies that the yt-dlp binary is on PATH.
func (r *Runner) Check() error {
	if _, err := exec.LookPath(r.binary); err != nil {
		return fmt.Errorf("yt-dlp binary not found: %w", err)
	}
	return nil
}

func (r *Runner) Download(ctx context.Context, req download.Request, progress func(download.ProgressEvent)) (download.Result, error) {
	args := []string{
		"--no-warnings",
		"--no-playlist",
		"--newline",
		"--progress",
		"--progress-template", "download:" + progressPrefix + " %(progress.downloaded_bytes|0)s %(progress.total_bytes|0)s %(progress.total_bytes_estimate|0)s %(progress._speed_str|NA)s %(progress._eta_str|NA)s",
		"-o", filepath.Join(req.OutputDir, "%(title)s.%(ext)s"),
		"-f", download.FormatString(req.Kind, req.Quality),
	}
	if req.Kind == download.KindAudio {
		args = append(args,
			"--extract-audio",
			"--audio-format", "mp3",
			"--audio-quality", "192K",
			"--embed-metadata",
			"--postprocessor-args", "ffmpeg:-ar 44100 -ac 2 -b:a 192k",
		)
	}
	if r.ffmpegPath != "" {
		args = append(args, "--ffmpeg-location", r.ffmpegPath)
	}
	args = append(args, "https://www.youtube.com/watch?v="+req.VideoID)

	cmd := exec.CommandContext(ctx, r.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return download.Result{}, fmt.Errorf("pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return download.Result{}, fmt.Errorf("start yt-dlp: %w", err)
	}

	var lastError string
	finishedSent := false
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		log.Debug().Str("ytdlp", line).Msg("yt-dlp output")

		if ev, ok := parseProgressLine(line); ok {
			progress(ev)
			continue
		}
		if isPostProcessLine(line) && !finishedSent {
			finishedSent = true
			progress(download.ProgressEvent{Phase: download.PhaseFinished})
			continue
		}
		if strings.HasPrefix(line, "ERROR:") {
			lastError = strings.TrimPrefix(line, "ERROR: ")
			progress(download.ProgressEvent{Phase: download.PhaseError, Error: lastError})
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return download.Result{}, ctx.Err()
		}
		if lastError != "" {
			return download.Result{}, fmt.Errorf("yt-dlp: %s", lastError)
		}
		return download.Result{}, fmt.Errorf("yt-dlp exit: %w", err)
	}

	path, err := newestFile(req.OutputDir)
	if err != nil {
		return download.Result{}, err
	}
	return download.Result{FilePath: path}, nil
}

// parseProgressLine decodes a progress-template line:
//
//	stprog <downloaded> <total> <total_estimate> <speed> <eta>
func parseProgressLine(line string) (download.ProgressEvent, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, progressPrefix+" ") {
		return download.ProgressEvent{}, false
	}
	fields := strings.Fields(strings.TrimPrefix(line, progressPrefix+" "))
	if len(fields) < 5 {
		return download.ProgressEvent{}, false
	}

	downloaded := parseBytes(fields[0])
	total := parseBytes(fields[1])
	if total == 0 {
		total = parseBytes(fields[2])
	}

	ev := download.ProgressEvent{
		Phase:      download.PhaseDownloading,
		Downloaded: downloaded,
		Total:      total,
		Speed:      cleanLabel(fields[3]),
		ETA:        cleanLabel(fields[4]),
	}
	return ev, true
}

func parseBytes(s string) int64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int64(f)
}

func cleanLabel(s string) string {
	if s == "NA" || s == "Unknown" {
		return ""
	}
	return s
}

func isPostProcessLine(line string) bool {
	for _, marker := range []string{"[ExtractAudio]", "[Merger]", "[Metadata]", "[FixupM4a]", "Post-process"} {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// newestFile returns the most recently modified regular file in dir,
// ignoring partial download artifacts.
func newestFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("scan output dir: %w", err)
	}

	var best string
	var bestTime int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if t := info.ModTime().UnixNano(); best == "" || t > bestTime {
			best = name
			bestTime = t
		}
	}
	if best == "" {
		return "", fmt.Errorf("no output file found in %s", dir)
	}
	return filepath.Join(dir, best), nil
}

// Health probes the binary and reports version plus call latency.
func (r *Runner) Health(ctx context.Context) (string, time.Duration, error) {
	start := time.Now()
	out, err := exec.CommandContext(ctx, r.binary, "--version").Output()
	if err != nil {
		return "", time.Since(start), fmt.Errorf("yt-dlp health check: %w", err)
	}
	return strings.TrimSpace(string(out)), time.Since(start), nil
}
