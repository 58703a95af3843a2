// Package ffmpeg wraps the ffmpeg binary for the audio transcode fallback
// used when yt-dlp leaves an intermediate container behind.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
)

// Transcoder converts audio files to mp3. The download execution unit takes
// it as an interface so tests can substitute a fake.
type Transcoder interface {
	ToMP3(ctx context.Context, inputPath, outputPath string) error
}

type FFmpeg struct {
	binary string
}

func New(binary string) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{binary: binary}
}

// ToMP3 transcodes inputPath to a 192kbps 44.1kHz stereo mp3 at outputPath
// and removes the input file on success. The parameters match the quality
// yt-dlp is asked for, so fallback output is indistinguishable from the
// normal path.
func (f *FFmpeg) ToMP3(ctx context.Context, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, f.binary,
		"-i", inputPath,
		"-vn",
		"-ar", "44100",
		"-ac", "2",
		"-b:a", "192k",
		"-f", "mp3",
		"-y",
		outputPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg transcode: %w: %s", err, tail(out))
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("ffmpeg produced no output at %s", outputPath)
	}

	if err := os.Remove(inputPath); err != nil {
		log.Warn().Err(err).Str("path", inputPath).Msg("could not remove intermediate file")
	}
	return nil
}

// Health probes the binary and reports version plus call latency.
func (f *FFmpeg) Health(ctx context.Context) (string, time.Duration, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, f.binary, "-version")
	out, err := cmd.Output()
	latency := time.Since(start)
	if err != nil {
		return "", latency, fmt.Errorf("ffmpeg health check: %w", err)
	}
	return firstLine(out), latency, nil
}

func firstLine(out []byte) string {
	for i, b := range out {
		if b == '\n' {
			return string(out[:i])
		}
	}
	return string(out)
}

func tail(out []byte) string {
	const max = 400
	if len(out) > max {
		out = out[len(out)-max:]
	}
	return string(out)
}
