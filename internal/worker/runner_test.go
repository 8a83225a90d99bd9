package worker

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisperjournal/internal/audio"
	"whisperjournal/internal/config"
	"whisperjournal/internal/database"
	"whisperjournal/internal/models"
	"whisperjournal/internal/settings"
	"whisperjournal/internal/store"
	"whisperjournal/internal/transcriber"
)

func testRunner(t *testing.T) (*Runner, *store.Store, string) {
	t.Helper()
	db, err := database.Connect(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	vault := t.TempDir()
	svc := settings.NewService(db)
	require.NoError(t, svc.Seed())
	require.NoError(t, svc.Update(map[string]interface{}{"vaultPath": vault}))

	st := store.New(db)
	tools := audio.NewTools()
	r := NewRunner(st, svc, tools, transcriber.New(tools), NewProcTable(), &config.Config{})
	return r, st, vault
}

func queuedEntry(t *testing.T, st *store.Store) *models.Entry {
	t.Helper()
	e := &models.Entry{
		EntryType: models.TypeQuickNote,
		Timezone:  "UTC",
		EntryDate: "2025-03-14",
	}
	require.NoError(t, st.CreateEntry(e))
	require.NoError(t, st.SetStage(e.ID, models.StageQueued, ""))
	return e
}

func TestRunnerDefaults(t *testing.T) {
	r, _, _ := testRunner(t)
	assert.Equal(t, 1*time.Second, r.tick)
	assert.Equal(t, 5*time.Minute, r.staleAfter)
	assert.NotEmpty(t, r.WorkerID())
}

func TestFinalizeCancels(t *testing.T) {
	r, st, _ := testRunner(t)
	e := queuedEntry(t, st)
	require.NoError(t, st.SetStage(e.ID, models.StageCancelRequested, "Cancel requested"))

	r.finalizeCancels()

	got, err := st.GetEntry(e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageCancelled, got.Stage)
	assert.Empty(t, got.LockedBy)
	assert.Nil(t, got.HeartbeatAt)
}

func TestCancelRequestedNeverRunsAnotherStage(t *testing.T) {
	r, st, _ := testRunner(t)
	e := queuedEntry(t, st)
	require.NoError(t, st.SetStage(e.ID, models.StageCancelRequested, ""))

	// Even if a stage body asks, the answer is finalization.
	err := r.checkCancel(e.ID)
	assert.ErrorIs(t, err, errStop)

	got, getErr := st.GetEntry(e.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.StageCancelled, got.Stage)
}

func TestCheckCancelPassesThroughActiveEntry(t *testing.T) {
	r, st, _ := testRunner(t)
	e := queuedEntry(t, st)

	assert.NoError(t, r.checkCancel(e.ID))

	got, err := st.GetEntry(e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageQueued, got.Stage)
}

func TestCheckCancelOnDeletedEntry(t *testing.T) {
	r, st, _ := testRunner(t)
	e := queuedEntry(t, st)
	require.NoError(t, st.DeleteEntry(e.ID))

	assert.ErrorIs(t, r.checkCancel(e.ID), errStop)
}

func TestRecoverStuckResetsStaleEntries(t *testing.T) {
	r, st, _ := testRunner(t)
	e := queuedEntry(t, st)

	old := time.Now().UTC().Add(-10 * time.Minute)
	require.NoError(t, st.UpdateEntry(e.ID, map[string]interface{}{
		"stage":        models.StageTranscribing,
		"locked_by":    "worker-dead",
		"heartbeat_at": old,
	}))

	r.recoverStuck()

	got, err := st.GetEntry(e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageQueued, got.Stage)
	assert.Contains(t, got.StageMessage, "Reset")
	assert.Empty(t, got.LockedBy)
}

func TestFailRecordsDiagnosticAndReleasesLease(t *testing.T) {
	r, st, _ := testRunner(t)
	e := queuedEntry(t, st)
	ok, err := st.AcquireLease(e.ID, r.workerID)
	require.NoError(t, err)
	require.True(t, ok)

	r.fail(e.ID, assert.AnError)

	got, err := st.GetEntry(e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageFailed, got.Stage)
	assert.Equal(t, assert.AnError.Error(), got.ErrorMessage)
	assert.Empty(t, got.LockedBy)
}

func TestRecoverStuckIgnoresContinueParkedEntry(t *testing.T) {
	r, st, _ := testRunner(t)
	e := queuedEntry(t, st)

	// A continue parks the entry in writing with no lease and no heartbeat;
	// recovery must leave it for pickup instead of resetting it to queued.
	require.NoError(t, st.SetStage(e.ID, models.StageWriting, "Continuing"))

	r.recoverStuck()

	got, err := st.GetEntry(e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageWriting, got.Stage)
}

func TestTickCompletesContinueParkedQuickNote(t *testing.T) {
	r, st, vault := testRunner(t)
	e := queuedEntry(t, st)
	require.NoError(t, st.LockRawTranscript(e.ID, "raw words"))
	require.NoError(t, st.UpdateEntry(e.ID, map[string]interface{}{
		"edited_transcript": "hello world",
		"stage":             models.StageAwaitingReview,
	}))

	// The continue action for a quick-note parks the entry in writing.
	ok, err := st.AdvanceStage(e.ID, models.StageAwaitingReview, models.StageWriting, "Continuing")
	require.NoError(t, err)
	require.True(t, ok)

	r.tickOnce(context.Background())

	got, err := st.GetEntry(e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageCompleted, got.Stage)
	assert.NotEmpty(t, got.NotePath)
	assert.NotNil(t, got.NoteMtime)
	assert.Empty(t, got.LockedBy)

	note, err := os.ReadFile(filepath.Join(vault, filepath.FromSlash(got.NotePath)))
	require.NoError(t, err)
	assert.Contains(t, string(note), "hello world")
	assert.Contains(t, string(note), "type: quick-note")
}

func TestFailDoesNotOverrideCancelRequested(t *testing.T) {
	r, st, _ := testRunner(t)
	e := queuedEntry(t, st)
	require.NoError(t, st.SetStage(e.ID, models.StageCancelRequested, "Cancel requested"))

	// A stage body erroring out after the tool was killed must not turn a
	// pending cancel into a failure.
	r.fail(e.ID, assert.AnError)

	got, err := st.GetEntry(e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageCancelRequested, got.Stage)
	assert.Empty(t, got.ErrorMessage)

	r.finalizeCancels()
	got, err = st.GetEntry(e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageCancelled, got.Stage)
}

func TestProcTable(t *testing.T) {
	p := NewProcTable()

	// Kill on an unknown id is a no-op.
	p.Kill("nope")

	cmd := exec.Command("sleep", "60")
	require.NoError(t, cmd.Start())
	p.Register("e1", cmd)
	p.Kill("e1")

	err := cmd.Wait()
	assert.Error(t, err, "killed process must not exit cleanly")

	p.Unregister("e1")
	p.Kill("e1")
}
