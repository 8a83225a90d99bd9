package audio

import (
	"context"
	"fmt"
	"path/filepath"
)

// Splitter defaults. The overlap keeps words spoken at a window boundary
// inside at least one chunk.
const (
	DefaultWindowSeconds  = 150.0
	DefaultOverlapSeconds = 5.0

	// MaxSegments is a safety ceiling; exceeding it is a fatal error rather
	// than a silent multi-hour transcription run.
	MaxSegments = 100
)

// Segment is one overlapping window of the source audio.
type Segment struct {
	Path  string  // chunk file inside the temp dir
	Index int     // zero-based order
	Start float64 // seconds into the source
	End   float64
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// window is a planned [start, end) pair before extraction.
type window struct {
	start, end float64
}

// planWindows computes the overlapping windows: segment i covers
// [i*(W-O), min(i*(W-O)+W, total)], the last window shorter when the audio
// ends mid-window.
func planWindows(total, windowLen, overlap float64) ([]window, error) {
	if windowLen <= 0 || overlap < 0 || overlap >= windowLen {
		return nil, fmt.Errorf("invalid split parameters: window=%v overlap=%v", windowLen, overlap)
	}
	step := windowLen - overlap
	var windows []window
	for i := 0; ; i++ {
		start := float64(i) * step
		if start >= total {
			break
		}
		end := start + windowLen
		if end > total {
			end = total
		}
		windows = append(windows, window{start: start, end: end})
		if len(windows) > MaxSegments {
			return nil, fmt.Errorf("%w: %.0fs audio with %.0fs windows needs more than %d segments",
				ErrTooManySegments, total, windowLen, MaxSegments)
		}
		if end >= total {
			break
		}
	}
	return windows, nil
}

// Split cuts src into overlapping canonical-format chunks inside tempDir.
// Chunks are named chunk_000.wav, chunk_001.wav, ... and are transient; the
// caller removes tempDir when done.
func (t *Tools) Split(ctx context.Context, src, tempDir string, total, windowLen, overlap float64, onStart StartHook) ([]Segment, error) {
	windows, err := planWindows(total, windowLen, overlap)
	if err != nil {
		return nil, err
	}
	segments := make([]Segment, 0, len(windows))
	for i, w := range windows {
		chunkPath := filepath.Join(tempDir, fmt.Sprintf("chunk_%03d.wav", i))
		if err := t.Extract(ctx, src, chunkPath, w.start, w.end-w.start, onStart); err != nil {
			return nil, fmt.Errorf("extract chunk %d: %w", i, err)
		}
		segments = append(segments, Segment{Path: chunkPath, Index: i, Start: w.start, End: w.end})
	}
	return segments, nil
}
