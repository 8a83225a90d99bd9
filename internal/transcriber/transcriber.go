// Package transcriber runs the whisper command-line tool over normalized WAV
// audio, chunking long recordings, retrying suspected hallucinations with
// conservative decoding, and merging overlapping chunk outputs.
package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"whisperjournal/internal/audio"
)

const (
	// DefaultChunkSeconds is the window above which audio is transcribed in
	// overlapping chunks.
	DefaultChunkSeconds = 60

	chunkOverlapSeconds = 5.0
)

// Options configure one transcription run.
type Options struct {
	ModelPath    string
	Language     string // empty means auto-detect
	Prompt       string // optional priming text
	VadEnabled   bool
	VadModelPath string
	ChunkSeconds int // window length C; 0 means DefaultChunkSeconds

	// OnStart exposes each spawned whisper process for cancellation.
	OnStart audio.StartHook
}

func (o Options) chunkSeconds() int {
	if o.ChunkSeconds > 0 {
		return o.ChunkSeconds
	}
	return DefaultChunkSeconds
}

// Transcriber drives the external speech tool.
type Transcriber struct {
	BinaryPath string
	tools      *audio.Tools
}

func New(tools *audio.Tools) *Transcriber {
	return &Transcriber{BinaryPath: "whisper-cli", tools: tools}
}

// Transcribe converts a normalized WAV into text. Audio no longer than the
// chunk window goes through a single run; longer audio is split into
// overlapping chunks transcribed sequentially (the tool is heavy; sequential
// keeps memory bounded) and merged. Chunks that trip the hallucination
// detector are retried with conservative decoding, and the reviewer gets the
// alternative reading appended after a divider.
func (t *Transcriber) Transcribe(ctx context.Context, wav string, durationSeconds float64, tempDir string, opts Options) (string, error) {
	window := float64(opts.chunkSeconds())
	if durationSeconds <= window {
		return t.transcribeOne(ctx, wav, filepath.Join(tempDir, "single"), false, opts)
	}

	segments, err := t.tools.Split(ctx, wav, tempDir, durationSeconds, window, chunkOverlapSeconds, opts.OnStart)
	if err != nil {
		return "", err
	}

	type flaggedChunk struct {
		index       int
		reason      string
		alternative string
	}
	primaries := make([]string, 0, len(segments))
	var flagged []flaggedChunk

	for _, seg := range segments {
		prefix := strings.TrimSuffix(seg.Path, ".wav")
		text, err := t.transcribeOne(ctx, seg.Path, prefix, false, opts)
		if err != nil {
			return "", fmt.Errorf("chunk %d: %w", seg.Index, err)
		}

		check := CheckHallucination(text, seg.Duration())
		if check.Flagged {
			retry, retryErr := t.transcribeOne(ctx, seg.Path, prefix+"_retry", true, opts)
			if retryErr != nil {
				return "", fmt.Errorf("chunk %d retry: %w", seg.Index, retryErr)
			}
			// Prefer whichever reading passes the detector; the other one is
			// kept as the annotated alternative for the reviewer.
			if !CheckHallucination(retry, seg.Duration()).Flagged {
				flagged = append(flagged, flaggedChunk{index: seg.Index, reason: check.Reason, alternative: text})
				text = retry
			} else {
				flagged = append(flagged, flaggedChunk{index: seg.Index, reason: check.Reason, alternative: retry})
			}
		}
		primaries = append(primaries, text)
	}

	merged := MergeChunks(primaries, chunkOverlapSeconds)

	if len(flagged) > 0 {
		var b strings.Builder
		b.WriteString(merged)
		b.WriteString("\n\n---\n\nAlternative transcriptions (possible hallucination detected):\n")
		for _, f := range flagged {
			fmt.Fprintf(&b, "\n[chunk %d] %s:\n%s\n", f.index, f.reason, f.alternative)
		}
		merged = b.String()
	}
	return merged, nil
}

// transcribeOne spawns the speech tool for a single WAV and reads back the
// companion .txt it writes next to outPrefix. Conservative mode narrows the
// beam and pins temperature for the hallucination retry path.
func (t *Transcriber) transcribeOne(ctx context.Context, wav, outPrefix string, conservative bool, opts Options) (string, error) {
	lang := opts.Language
	if lang == "" {
		lang = "auto"
	}
	args := []string{
		"-m", opts.ModelPath,
		"-f", wav,
		"-l", lang,
		"-nt",
		"-otxt",
		"-of", outPrefix,
		"--entropy-thold", "2.4",
		"--no-fallback",
		// Fresh context per segment: never condition on earlier output, so a
		// hallucination cannot contaminate the following window.
		"--no-context",
	}
	if conservative {
		args = append(args, "-bs", "3", "-bo", "3", "--temperature", "0.0", "-t", "2")
	} else {
		args = append(args, "-bs", "5", "-bo", "5")
	}
	if opts.VadEnabled {
		threshold := "0.5"
		if conservative {
			threshold = "0.6"
		}
		args = append(args,
			"--vad",
			"--vad-threshold", threshold,
			"--vad-min-speech-duration-ms", "250",
			"--vad-min-silence-duration-ms", "100",
		)
		if opts.VadModelPath != "" {
			args = append(args, "--vad-model", opts.VadModelPath)
		}
	}
	if opts.Prompt != "" {
		args = append(args, "--prompt", opts.Prompt, "--carry-initial-prompt")
	}

	cmd := exec.CommandContext(ctx, t.BinaryPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", t.BinaryPath, err)
	}
	if opts.OnStart != nil {
		opts.OnStart(cmd)
	}
	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", t.BinaryPath, err, tail(stderr.String()))
	}

	companion := outPrefix + ".txt"
	data, err := os.ReadFile(companion)
	if err != nil {
		return "", fmt.Errorf("read transcription output: %w", err)
	}
	_ = os.Remove(companion)
	return strings.TrimSpace(string(data)), nil
}

func tail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "\n")
}
