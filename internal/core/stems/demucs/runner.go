// Package demucs drives the demucs separation model as a subprocess.
package demucs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/benasterisk/stemtube/internal/core/stems"
	"github.com/benasterisk/stemtube/internal/core/util"
)

// percentRe matches the progress figure demucs prints on its tqdm-style
// status lines.
var percentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

// Runner shells out to the demucs binary.
type Runner struct {
	binary string
}

func New(binary string) *Runner {
	if binary == "" {
		binary = "demucs"
	}
	return &Runner{binary: binary}
}

// Check reports whether the binary is resolvable.
func (r *Runner) Check() error {
	if _, err := exec.LookPath(r.binary); err != nil {
		return fmt.Errorf("demucs not found: %w", err)
	}
	return nil
}

// Separate runs the model in a scratch directory and returns where it left
// the stems. Demucs writes <out>/<model>/<track>/<stem>.mp3; the track name
// is pinned by copying the input into the scratch directory first.
func (r *Runner) Separate(ctx context.Context, req stems.Request, progress func(percent float64)) (stems.Result, error) {
	workDir, err := os.MkdirTemp("", "stemtube-demucs-*")
	if err != nil {
		return stems.Result{}, fmt.Errorf("create scratch directory: %w", err)
	}
	cleanup := func() { os.RemoveAll(workDir) }

	inputCopy := filepath.Join(workDir, "input"+filepath.Ext(req.InputPath))
	if err := copyFile(req.InputPath, inputCopy); err != nil {
		cleanup()
		return stems.Result{}, fmt.Errorf("stage input file: %w", err)
	}

	model := req.Model
	if model == "" {
		model = stems.DefaultModel
	}
	args := []string{
		"--mp3",
		"--mp3-bitrate", "320",
		"-n", model,
		"-o", workDir,
		"-d", req.Device,
	}
	if req.TwoStem {
		args = append(args, "--two-stems", req.PrimaryStem)
	}
	args = append(args, inputCopy)

	cmd := exec.CommandContext(ctx, r.binary, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cleanup()
		return stems.Result{}, err
	}
	cmd.Stdout = cmd.Stderr

	if err := cmd.Start(); err != nil {
		cleanup()
		return stems.Result{}, fmt.Errorf("start demucs: %w", err)
	}

	var lastLine string
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanCarriageLines)
	for scanner.Scan() {
		line := util.StripANSI(strings.TrimSpace(scanner.Text()))
		if line == "" {
			continue
		}
		lastLine = line
		if m := percentRe.FindStringSubmatch(line); m != nil {
			if pct, err := strconv.ParseFloat(m[1], 64); err == nil && progress != nil {
				progress(pct)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		cleanup()
		if ctx.Err() != nil {
			return stems.Result{}, ctx.Err()
		}
		if lastLine != "" {
			return stems.Result{}, fmt.Errorf("demucs: %s", lastLine)
		}
		return stems.Result{}, fmt.Errorf("demucs: %w", err)
	}

	stemDir := filepath.Join(workDir, model, "input")
	if _, err := os.Stat(stemDir); err != nil {
		// Some model variants name the track directory differently; take
		// the only directory present.
		stemDir, err = soleSubdir(filepath.Join(workDir, model))
		if err != nil {
			cleanup()
			return stems.Result{}, fmt.Errorf("locate stem output: %w", err)
		}
	}

	if req.TwoStem {
		if err := renameComplement(stemDir, req.PrimaryStem); err != nil {
			cleanup()
			return stems.Result{}, err
		}
	}

	return stems.Result{StemDir: stemDir, Cleanup: cleanup}, nil
}

// renameComplement maps the no_<primary> file demucs writes in two-stem mode
// onto the "other" stem name the callers look up.
func renameComplement(stemDir, primary string) error {
	for _, ext := range []string{".mp3", ".wav"} {
		src := filepath.Join(stemDir, "no_"+primary+ext)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, filepath.Join(stemDir, "other"+ext)); err != nil {
			return fmt.Errorf("rename complement stem: %w", err)
		}
	}
	return nil
}

// scanCarriageLines splits on both newlines and carriage returns so the
// in-place tqdm progress updates surface as individual lines.
func scanCarriageLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func soleSubdir(parent string) (string, error) {
	entries, err := os.ReadDir(parent)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() {
			return filepath.Join(parent, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no output directory under %s", parent)
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

// Health probes the binary and reports version plus call latency.
func (r *Runner) Health(ctx context.Context) (string, time.Duration, error) {
	start := time.Now()
	out, err := exec.CommandContext(ctx, r.binary, "--version").Output()
	if err != nil {
		return "", time.Since(start), fmt.Errorf("demucs health check: %w", err)
	}
	return strings.TrimSpace(string(out)), time.Since(start), nil
}
