package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisperjournal/internal/database"
	"whisperjournal/internal/models"
)

func testService(t *testing.T) *Service {
	t.Helper()
	db, err := database.Connect(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return NewService(db)
}

func TestSeedAndLoadDefaults(t *testing.T) {
	svc := testService(t)
	require.NoError(t, svc.Seed())

	s, err := svc.Load()
	require.NoError(t, err)
	assert.Equal(t, "", s.VaultPath)
	assert.Equal(t, "base.en", s.WhisperModel)
	assert.Equal(t, "http://localhost:11434", s.LLMBaseURL)
	assert.Equal(t, "llama3.1", s.LLMModel)
	assert.True(t, s.KeepAudio)
	assert.Equal(t, "UTC", s.DefaultTimezone)
	assert.False(t, s.VadEnabled)
	assert.Equal(t, 60, s.ChunkDurationSeconds)
}

func TestSeedDoesNotOverwrite(t *testing.T) {
	svc := testService(t)
	require.NoError(t, svc.Seed())
	require.NoError(t, svc.Update(map[string]interface{}{"whisperModel": "large-v3"}))

	require.NoError(t, svc.Seed())
	s, err := svc.Load()
	require.NoError(t, err)
	assert.Equal(t, "large-v3", s.WhisperModel)
}

func TestUpdate(t *testing.T) {
	svc := testService(t)
	require.NoError(t, svc.Seed())

	err := svc.Update(map[string]interface{}{
		"vaultPath":            "/tmp/vault",
		"keepAudio":            false,
		"chunkDurationSeconds": float64(90), // JSON numbers arrive as float64
		"vadEnabled":           true,
	})
	require.NoError(t, err)

	s, err := svc.Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/vault", s.VaultPath)
	assert.False(t, s.KeepAudio)
	assert.Equal(t, 90, s.ChunkDurationSeconds)
	assert.True(t, s.VadEnabled)
}

func TestUpdateValidation(t *testing.T) {
	svc := testService(t)
	require.NoError(t, svc.Seed())

	tests := []struct {
		name  string
		patch map[string]interface{}
	}{
		{"unknown key", map[string]interface{}{"nope": "x"}},
		{"wrong type for string", map[string]interface{}{"vaultPath": 3}},
		{"wrong type for bool", map[string]interface{}{"keepAudio": "yes"}},
		{"wrong type for int", map[string]interface{}{"chunkDurationSeconds": "60"}},
		{"non-integer", map[string]interface{}{"chunkDurationSeconds": 60.5}},
		{"non-positive", map[string]interface{}{"chunkDurationSeconds": float64(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, svc.Update(tt.patch))
		})
	}

	// A rejected patch writes nothing.
	s, err := svc.Load()
	require.NoError(t, err)
	assert.Equal(t, 60, s.ChunkDurationSeconds)
}

func TestLoadIgnoresCorruptIntValue(t *testing.T) {
	svc := testService(t)
	require.NoError(t, svc.Seed())
	require.NoError(t, svc.db.Model(&models.Setting{}).
		Where("key = ?", "chunk_duration_seconds").
		Update("value", "garbage").Error)

	s, err := svc.Load()
	require.NoError(t, err)
	assert.Equal(t, 60, s.ChunkDurationSeconds)
}
