// Package audio wraps the external ffmpeg/ffprobe binaries: probing duration,
// normalizing uploads to the canonical PCM WAV, and splitting long recordings
// into overlapping chunks for the transcriber.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

var (
	// ErrProbeFailed indicates ffprobe produced unparsable output.
	ErrProbeFailed = errors.New("could not probe audio duration")
	// ErrTooManySegments trips the safety ceiling on chunk count.
	ErrTooManySegments = errors.New("too many audio segments")
)

// StartHook receives the spawned child process immediately after start, so the
// worker can register it for cancellation. May be nil.
type StartHook func(cmd *exec.Cmd)

// Tools invokes ffmpeg and ffprobe. Paths default to PATH lookup.
type Tools struct {
	FFmpegPath  string
	FFprobePath string
}

func NewTools() *Tools {
	return &Tools{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe"}
}

// ProbeDuration returns the duration of an audio file in seconds.
func (t *Tools) ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, t.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrProbeFailed, strings.TrimSpace(string(out)))
	}
	return seconds, nil
}

// Normalize resamples src to the canonical format: mono, 16 kHz, 16-bit PCM
// WAV at dst. The -y flag makes the overwrite atomic from ffmpeg's side.
// onStart exposes the child process for cancellation before the wait begins.
func (t *Tools) Normalize(ctx context.Context, src, dst string, onStart StartHook) error {
	args := []string{
		"-y",
		"-i", src,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		dst,
	}
	return t.runFFmpeg(ctx, args, onStart)
}

// Extract copies the [start, start+length) window of src into dst in the
// canonical sample format.
func (t *Tools) Extract(ctx context.Context, src, dst string, start, length float64, onStart StartHook) error {
	args := []string{
		"-y",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(length),
		"-i", src,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		dst,
	}
	return t.runFFmpeg(ctx, args, onStart)
}

// runFFmpeg starts ffmpeg, hands the handle to onStart, and waits. ffmpeg
// writes diagnostics to stderr; on a nonzero exit the captured stream is the
// error detail.
func (t *Tools) runFFmpeg(ctx context.Context, args []string, onStart StartHook) error {
	cmd := exec.CommandContext(ctx, t.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	if onStart != nil {
		onStart(cmd)
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, lastStderrLines(stderr.String(), 5))
	}
	return nil
}

// Delete removes an audio file; a missing file is not an error.
func (t *Tools) Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// lastStderrLines keeps the tail of a diagnostic stream for error messages.
func lastStderrLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
