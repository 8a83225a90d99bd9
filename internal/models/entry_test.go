package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOverallProgress(t *testing.T) {
	tests := []struct {
		stage string
		want  int
	}{
		{StagePending, 0},
		{StageQueued, 0},
		{StageNormalizing, 5},
		{StageTranscribing, 15},
		{StageAwaitingReview, 60},
		{StageAwaitingPrompts, 60},
		{StageGenerating, 60},
		{StageWriting, 90},
		{StageCompleted, 100},
		{StageFailed, 0},
		{StageCancelled, 0},
		{StageCancelRequested, 0},
		{"unknown", 0},
	}
	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			assert.Equal(t, tt.want, OverallProgress(tt.stage))
		})
	}
}

func TestProgressNeverDecreasesAlongSuccessPath(t *testing.T) {
	path := []string{
		StagePending, StageQueued, StageNormalizing, StageTranscribing,
		StageAwaitingReview, StageAwaitingPrompts, StageGenerating,
		StageWriting, StageCompleted,
	}
	prev := -1
	for _, stage := range path {
		p := OverallProgress(stage)
		assert.GreaterOrEqual(t, p, prev, stage)
		prev = p
	}
}

func TestStagePredicates(t *testing.T) {
	for _, s := range TerminalStages {
		assert.True(t, IsTerminalStage(s), s)
		assert.False(t, IsCancellableStage(s), s)
	}
	assert.False(t, IsTerminalStage(StageQueued))
	assert.True(t, IsCancellableStage(StageQueued))
	assert.True(t, IsCancellableStage(StageTranscribing))
	assert.False(t, IsCancellableStage(StagePending))
	assert.False(t, IsCancellableStage(StageAwaitingReview))
}

func TestEffectiveTranscript(t *testing.T) {
	e := &Entry{RawTranscript: "raw words"}
	assert.Equal(t, "raw words", e.EffectiveTranscript())
	e.EditedTranscript = "edited words"
	assert.Equal(t, "edited words", e.EffectiveTranscript())
}

func TestLocation(t *testing.T) {
	e := &Entry{Timezone: "America/New_York"}
	loc := e.Location()
	assert.Equal(t, "America/New_York", loc.String())

	e.Timezone = "Not/AZone"
	assert.Equal(t, time.UTC, e.Location())
}

func TestValidEntryType(t *testing.T) {
	assert.True(t, ValidEntryType(TypeBrainDump))
	assert.True(t, ValidEntryType(TypeDailyReflection))
	assert.True(t, ValidEntryType(TypeQuickNote))
	assert.False(t, ValidEntryType(""))
	assert.False(t, ValidEntryType("note"))
}
