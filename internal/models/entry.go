package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Entry types.
const (
	TypeBrainDump       = "brain-dump"
	TypeDailyReflection = "daily-reflection"
	TypeQuickNote       = "quick-note"
)

// Pipeline stages.
const (
	StagePending         = "pending"
	StageQueued          = "queued"
	StageNormalizing     = "normalizing"
	StageTranscribing    = "transcribing"
	StageAwaitingReview  = "awaiting_review"
	StageAwaitingPrompts = "awaiting_prompts"
	StageGenerating      = "generating"
	StageWriting         = "writing"
	StageCancelRequested = "cancel_requested"
	StageCompleted       = "completed"
	StageFailed          = "failed"
	StageCancelled       = "cancelled"
)

// RunningStages are the worker-driven stages that carry a heartbeat; a stale
// heartbeat in one of these means the worker died mid-stage.
var RunningStages = []string{StageNormalizing, StageTranscribing, StageGenerating, StageWriting}

// CancellableStages are the stages in which a cancel request is accepted.
var CancellableStages = []string{StageQueued, StageNormalizing, StageTranscribing, StageGenerating, StageWriting}

// RunnableStages are the stages the worker picks up: queued entries plus
// entries parked in a post-review stage by a continue action.
var RunnableStages = []string{StageQueued, StageGenerating, StageWriting}

// TerminalStages never transition again.
var TerminalStages = []string{StageCompleted, StageFailed, StageCancelled}

// IsTerminalStage reports whether stage is one of the terminal stages.
func IsTerminalStage(stage string) bool {
	for _, s := range TerminalStages {
		if s == stage {
			return true
		}
	}
	return false
}

// IsCancellableStage reports whether a cancel request is accepted in stage.
func IsCancellableStage(stage string) bool {
	for _, s := range CancellableStages {
		if s == stage {
			return true
		}
	}
	return false
}

// ValidEntryType reports whether t is a known entry type.
func ValidEntryType(t string) bool {
	return t == TypeBrainDump || t == TypeDailyReflection || t == TypeQuickNote
}

// The four guided daily-reflection prompts.
const (
	PromptGratitude       = "gratitude"
	PromptAccomplishments = "accomplishments"
	PromptChallenges      = "challenges"
	PromptTomorrow        = "tomorrow"
)

// PromptKeys are the guided prompt keys in presentation order.
var PromptKeys = []string{PromptGratitude, PromptAccomplishments, PromptChallenges, PromptTomorrow}

// PromptAnswer is one answer to a guided prompt. Text is the canonical answer;
// ExtractedText and AudioTranscript keep the intermediate forms the UI produced it from.
type PromptAnswer struct {
	Text            string `json:"text"`
	ExtractedText   string `json:"extractedText,omitempty"`
	AudioTranscript string `json:"audioTranscript,omitempty"`
}

// PromptAnswers maps prompt key to answer, stored as a JSON text column.
type PromptAnswers map[string]PromptAnswer

func (p PromptAnswers) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *PromptAnswers) Scan(value interface{}) error {
	return scanJSON(value, p)
}

// SectionMap maps a note section name to its body text, stored as a JSON text column.
type SectionMap map[string]string

func (s SectionMap) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *SectionMap) Scan(value interface{}) error {
	return scanJSON(value, s)
}

func scanJSON(value, dest interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	default:
		return fmt.Errorf("unsupported column type %T", value)
	}
}

// Entry is the central entity: one journal entry moving through the pipeline.
type Entry struct {
	ID        string    `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	EntryType string `gorm:"not null;index" json:"entryType"`
	Timezone  string `gorm:"not null" json:"timezone"`
	EntryDate string `gorm:"not null;index" json:"entryDate"` // local calendar date, YYYY-MM-DD

	Stage        string `gorm:"default:'pending';index" json:"stage"`
	StageMessage string `json:"stageMessage,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	// Worker lease. At most one holder at any instant.
	LockedBy    string     `json:"-"`
	LockedAt    *time.Time `json:"-"`
	HeartbeatAt *time.Time `json:"-"`

	// Audio paths are vault-relative.
	OriginalAudioPath    string  `json:"originalAudioPath,omitempty"`
	NormalizedAudioPath  string  `json:"normalizedAudioPath,omitempty"`
	AudioDurationSeconds float64 `json:"audioDurationSeconds,omitempty"`

	RawTranscript         string     `gorm:"type:text" json:"rawTranscript,omitempty"`
	RawTranscriptLockedAt *time.Time `json:"rawTranscriptLockedAt,omitempty"`
	EditedTranscript      string     `gorm:"type:text" json:"editedTranscript,omitempty"`

	PromptAnswers     PromptAnswers `gorm:"type:text" json:"promptAnswers,omitempty"`
	GeneratedSections SectionMap    `gorm:"type:text" json:"generatedSections,omitempty"`

	NotePath  string     `json:"notePath,omitempty"`
	NoteMtime *time.Time `json:"noteMtime,omitempty"`
}

// EffectiveTranscript returns the user-edited transcript when present, the raw
// transcript otherwise.
func (e *Entry) EffectiveTranscript() string {
	if e.EditedTranscript != "" {
		return e.EditedTranscript
	}
	return e.RawTranscript
}

// Location resolves the entry's IANA timezone, falling back to UTC.
func (e *Entry) Location() *time.Location {
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// stageProgress maps each stage to its [start, end] slot on a 0-100 scale.
// Clients display the start value.
var stageProgress = map[string][2]int{
	StagePending:         {0, 0},
	StageQueued:          {0, 5},
	StageNormalizing:     {5, 15},
	StageTranscribing:    {15, 60},
	StageAwaitingReview:  {60, 60},
	StageAwaitingPrompts: {60, 60},
	StageGenerating:      {60, 90},
	StageWriting:         {90, 100},
	StageCompleted:       {100, 100},
	StageFailed:          {0, 0},
	StageCancelled:       {0, 0},
	StageCancelRequested: {0, 0},
}

// OverallProgress returns the display progress for a stage.
func OverallProgress(stage string) int {
	if p, ok := stageProgress[stage]; ok {
		return p[0]
	}
	return 0
}
