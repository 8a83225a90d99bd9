// Package worker drives entries through the pipeline: one worker, one entry
// at a time, with heartbeat-based recovery and cooperative cancellation.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"whisperjournal/internal/audio"
	"whisperjournal/internal/config"
	"whisperjournal/internal/llm"
	"whisperjournal/internal/logger"
	"whisperjournal/internal/models"
	"whisperjournal/internal/notes"
	"whisperjournal/internal/prompt"
	"whisperjournal/internal/settings"
	"whisperjournal/internal/store"
	"whisperjournal/internal/transcriber"
)

// errStop aborts the current run without marking the entry failed: the entry
// was cancelled, deleted, or moved out from under the worker.
var errStop = errors.New("stop processing entry")

// Runner is the single pipeline worker.
type Runner struct {
	store       *store.Store
	settings    *settings.Service
	tools       *audio.Tools
	transcriber *transcriber.Transcriber
	procs       *ProcTable

	workerID   string
	tick       time.Duration
	staleAfter time.Duration
}

// Worker defaults, used when the config leaves them unset.
const (
	defaultTick       = 1 * time.Second
	defaultStaleAfter = 5 * time.Minute
)

func NewRunner(st *store.Store, svc *settings.Service, tools *audio.Tools, tr *transcriber.Transcriber, procs *ProcTable, cfg *config.Config) *Runner {
	tick := defaultTick
	if cfg.WorkerTickSeconds > 0 {
		tick = time.Duration(cfg.WorkerTickSeconds) * time.Second
	}
	staleAfter := defaultStaleAfter
	if cfg.HeartbeatStaleMinutes > 0 {
		staleAfter = time.Duration(cfg.HeartbeatStaleMinutes) * time.Minute
	}
	return &Runner{
		store:       st,
		settings:    svc,
		tools:       tools,
		transcriber: tr,
		procs:       procs,
		workerID:    "worker-" + uuid.New().String()[:8],
		tick:        tick,
		staleAfter:  staleAfter,
	}
}

// WorkerID returns the runner's stable identity string.
func (r *Runner) WorkerID() string {
	return r.workerID
}

// Run ticks until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	logger.Info("worker started", logger.Fields{"workerId": r.workerID, "tick": r.tick.String()})
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tickOnce(ctx)
		}
	}
}

// tickOnce recovers stuck entries, finalizes pending cancels, then runs the
// oldest runnable entry if the lease can be taken.
func (r *Runner) tickOnce(ctx context.Context) {
	r.recoverStuck()
	r.finalizeCancels()

	e, err := r.store.NextRunnable()
	if err != nil {
		logger.Error("failed to fetch next runnable entry", err, nil)
		return
	}
	if e == nil {
		return
	}
	ok, err := r.store.AcquireLease(e.ID, r.workerID)
	if err != nil {
		logger.Error("failed to acquire lease", err, logger.Fields{"entryId": e.ID})
		return
	}
	if !ok {
		return
	}
	r.runEntry(ctx, e.ID, e.Stage)
}

// recoverStuck resets entries whose worker died mid-stage: running stage,
// heartbeat past the liveness threshold.
func (r *Runner) recoverStuck() {
	stuck, err := r.store.StaleRunning(r.staleAfter)
	if err != nil {
		logger.Error("failed to list stale entries", err, nil)
		return
	}
	for _, e := range stuck {
		msg := fmt.Sprintf("Reset to queued after stalled %s stage", e.Stage)
		if err := r.store.ResetToQueued(e.ID, msg); err != nil {
			logger.Error("failed to reset stalled entry", err, logger.Fields{"entryId": e.ID})
			continue
		}
		logger.Warn("reset stalled entry", logger.Fields{"entryId": e.ID, "stage": e.Stage})
	}
}

// finalizeCancels completes cancellation for every entry parked in
// cancel_requested, including those the worker never picked up.
func (r *Runner) finalizeCancels() {
	pending, err := r.store.CancelRequested()
	if err != nil {
		logger.Error("failed to list cancel requests", err, nil)
		return
	}
	for i := range pending {
		r.finalizeCancel(&pending[i])
	}
}

// finalizeCancel kills any live child, removes the normalized WAV, and marks
// the entry cancelled with the lease cleared.
func (r *Runner) finalizeCancel(e *models.Entry) {
	r.procs.Kill(e.ID)

	if e.NormalizedAudioPath != "" {
		if s, err := r.settings.Load(); err == nil && s.VaultPath != "" {
			if err := r.tools.Delete(filepath.Join(s.VaultPath, filepath.FromSlash(e.NormalizedAudioPath))); err != nil {
				logger.Warn("failed to remove normalized audio", logger.Fields{"entryId": e.ID, "error": err.Error()})
			}
		}
	}

	err := r.store.UpdateEntry(e.ID, map[string]interface{}{
		"stage":                 models.StageCancelled,
		"stage_message":         "Cancelled",
		"normalized_audio_path": "",
		"locked_by":             "",
		"locked_at":             nil,
		"heartbeat_at":          nil,
	})
	if err != nil {
		logger.Error("failed to finalize cancellation", err, logger.Fields{"entryId": e.ID})
		return
	}
	logger.Info("entry cancelled", logger.Fields{"entryId": e.ID})
}

// runEntry executes the pipeline from wherever the entry stands. Queued
// entries run the full front half and park at review; entries parked in
// generating or writing by a continue action resume from there.
func (r *Runner) runEntry(ctx context.Context, id, stage string) {
	var err error
	switch stage {
	case models.StageQueued:
		err = r.runIngest(ctx, id)
	case models.StageGenerating:
		err = r.runGenerate(ctx, id)
	case models.StageWriting:
		err = r.runWrite(ctx, id)
	default:
		err = r.store.ReleaseLease(id)
	}
	if err == nil || errors.Is(err, errStop) {
		return
	}
	r.fail(id, err)
}

// runIngest is the front half: normalize, transcribe, park for human review.
func (r *Runner) runIngest(ctx context.Context, id string) error {
	e, s, err := r.reload(id)
	if err != nil {
		return err
	}
	if s.VaultPath == "" {
		return errors.New("vault path is not configured")
	}

	// Normalize.
	if err := r.store.SetStage(id, models.StageNormalizing, "Normalizing audio"); err != nil {
		return err
	}
	if err := r.heartbeat(id); err != nil {
		return err
	}
	originalAbs := filepath.Join(s.VaultPath, filepath.FromSlash(e.OriginalAudioPath))
	duration, err := r.tools.ProbeDuration(ctx, originalAbs)
	if err != nil {
		return err
	}
	normalizedRel := "journal/audio/" + e.ID + "-normalized.wav"
	normalizedAbs := filepath.Join(s.VaultPath, filepath.FromSlash(normalizedRel))
	if err := r.tools.Normalize(ctx, originalAbs, normalizedAbs, r.startHook(id)); err != nil {
		r.procs.Unregister(id)
		if cancelErr := r.checkCancel(id); cancelErr != nil {
			return cancelErr
		}
		return err
	}
	r.procs.Unregister(id)
	err = r.store.UpdateEntry(id, map[string]interface{}{
		"audio_duration_seconds": duration,
		"normalized_audio_path":  normalizedRel,
	})
	if err != nil {
		return err
	}
	if err := r.checkCancel(id); err != nil {
		return err
	}

	// Transcribe.
	if err := r.store.SetStage(id, models.StageTranscribing, "Transcribing audio"); err != nil {
		return err
	}
	if err := r.heartbeat(id); err != nil {
		return err
	}
	modelPath, err := transcriber.ResolveModelPath(s.WhisperModel, s.WhisperModelPath)
	if err != nil {
		return err
	}
	chunkDir := filepath.Join(s.VaultPath, "journal", "audio", e.ID+"-chunks")
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return err
	}
	defer os.RemoveAll(chunkDir)

	text, err := r.transcriber.Transcribe(ctx, normalizedAbs, duration, chunkDir, transcriber.Options{
		ModelPath:    modelPath,
		Prompt:       s.WhisperPrompt,
		VadEnabled:   s.VadEnabled,
		VadModelPath: s.VadModelPath,
		ChunkSeconds: s.ChunkDurationSeconds,
		OnStart:      r.startHook(id),
	})
	r.procs.Unregister(id)
	if err != nil {
		if cancelErr := r.checkCancel(id); cancelErr != nil {
			return cancelErr
		}
		return err
	}
	if err := r.store.LockRawTranscript(id, text); err != nil && !errors.Is(err, store.ErrTranscriptLocked) {
		return err
	}
	if err := r.checkCancel(id); err != nil {
		return err
	}

	// Park for review; a later continue action re-queues the back half.
	return r.store.UpdateEntry(id, map[string]interface{}{
		"stage":         models.StageAwaitingReview,
		"stage_message": "Waiting for transcript review",
		"locked_by":     "",
		"locked_at":     nil,
		"heartbeat_at":  nil,
	})
}

// runGenerate produces the LLM sections, then continues into the write stage.
func (r *Runner) runGenerate(ctx context.Context, id string) error {
	e, s, err := r.reload(id)
	if err != nil {
		return err
	}
	if err := r.store.SetStage(id, models.StageGenerating, "Generating journal content"); err != nil {
		return err
	}
	if err := r.heartbeat(id); err != nil {
		return err
	}

	client := llm.NewClient(s.LLMBaseURL, s.LLMModel, prompt.NewBuilder(s.UserName))
	result, err := client.Generate(ctx, e.EffectiveTranscript(), e.PromptAnswers, e.EntryType)
	if err != nil {
		if cancelErr := r.checkCancel(id); cancelErr != nil {
			return cancelErr
		}
		return err
	}

	generated := models.SectionMap{}
	for k, v := range e.GeneratedSections {
		generated[k] = v
	}
	if result.Content != "" {
		generated[notes.SectionJournal] = result.Content
	}
	if result.Reflection != "" {
		generated[notes.SectionAIReflection] = result.Reflection
	}
	err = r.store.UpdateEntry(id, map[string]interface{}{
		"generated_sections": generated,
	})
	if err != nil {
		return err
	}
	if err := r.checkCancel(id); err != nil {
		return err
	}
	return r.runWrite(ctx, id)
}

// runWrite produces the note file and completes the entry.
func (r *Runner) runWrite(ctx context.Context, id string) error {
	e, s, err := r.reload(id)
	if err != nil {
		return err
	}
	if err := r.store.SetStage(id, models.StageWriting, "Writing note"); err != nil {
		return err
	}
	if err := r.heartbeat(id); err != nil {
		return err
	}

	// Audio that will not be kept gets no references in the note.
	noteEntry := *e
	if !s.KeepAudio {
		noteEntry.OriginalAudioPath = ""
	}
	writer := notes.NewWriter(s.VaultPath)
	rel, mtime, err := writer.WriteNote(&noteEntry, e.EffectiveTranscript(), e.PromptAnswers, e.GeneratedSections)
	if err != nil {
		return err
	}
	if err := r.checkCancel(id); err != nil {
		return err
	}

	updates := map[string]interface{}{
		"stage":         models.StageCompleted,
		"stage_message": "Completed",
		"note_path":     rel,
		"note_mtime":    mtime,
		"locked_by":     "",
		"locked_at":     nil,
		"heartbeat_at":  nil,
	}
	if !s.KeepAudio {
		for _, audioRel := range []string{e.OriginalAudioPath, e.NormalizedAudioPath} {
			if audioRel == "" {
				continue
			}
			if err := r.tools.Delete(filepath.Join(s.VaultPath, filepath.FromSlash(audioRel))); err != nil {
				logger.Warn("failed to remove audio", logger.Fields{"entryId": id, "error": err.Error()})
			}
		}
		updates["original_audio_path"] = ""
		updates["normalized_audio_path"] = ""
	}
	if err := r.store.UpdateEntry(id, updates); err != nil {
		return err
	}
	logger.Info("entry completed", logger.Fields{"entryId": id, "note": rel})
	return nil
}

// reload fetches fresh entry state and settings at a stage boundary, so edits
// made over HTTP while the entry was parked are honored.
func (r *Runner) reload(id string) (*models.Entry, *settings.Settings, error) {
	e, err := r.store.GetEntry(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, errStop
		}
		return nil, nil, err
	}
	if e.Stage == models.StageCancelRequested {
		r.finalizeCancel(e)
		return nil, nil, errStop
	}
	s, err := r.settings.Load()
	if err != nil {
		return nil, nil, err
	}
	return e, s, nil
}

// checkCancel finalizes cancellation when the store marked the entry while a
// stage body was running.
func (r *Runner) checkCancel(id string) error {
	e, err := r.store.GetEntry(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errStop
		}
		return err
	}
	if e.Stage == models.StageCancelRequested {
		r.finalizeCancel(e)
		return errStop
	}
	return nil
}

func (r *Runner) heartbeat(id string) error {
	return r.store.Heartbeat(id, r.workerID)
}

// startHook registers each spawned child for the cancel path and refreshes
// the heartbeat, once per spawn rather than once per stage.
func (r *Runner) startHook(id string) audio.StartHook {
	return func(cmd *exec.Cmd) {
		r.procs.Register(id, cmd)
		if err := r.heartbeat(id); err != nil {
			logger.Warn("heartbeat failed", logger.Fields{"entryId": id, "error": err.Error()})
		}
	}
}

// fail records the diagnostic and releases the lease. The entry is not
// retried automatically. A pending cancel wins over the failure: the store
// refuses the write and finalization runs on a later tick.
func (r *Runner) fail(id string, cause error) {
	logger.Error("entry failed", cause, logger.Fields{"entryId": id})
	ok, err := r.store.MarkFailed(id, cause.Error())
	if err != nil {
		logger.Error("failed to record entry failure", err, logger.Fields{"entryId": id})
		return
	}
	if !ok {
		logger.Info("failure superseded by cancel or terminal stage", logger.Fields{"entryId": id})
	}
}
