// Package store is the single mutation point for durable state: entries,
// links, and the worker lease protocol all go through it.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"whisperjournal/internal/models"
)

var (
	// ErrNotFound indicates an unknown entry id.
	ErrNotFound = errors.New("entry not found")
	// ErrTranscriptLocked indicates an attempt to change raw_transcript after
	// its lock timestamp was set.
	ErrTranscriptLocked = errors.New("raw transcript is locked")
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateEntry inserts a new entry, assigning its id when empty.
func (s *Store) CreateEntry(e *models.Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Stage == "" {
		e.Stage = models.StagePending
	}
	if e.PromptAnswers == nil {
		e.PromptAnswers = models.PromptAnswers{}
	}
	if e.GeneratedSections == nil {
		e.GeneratedSections = models.SectionMap{}
	}
	return s.db.Create(e).Error
}

// GetEntry fetches an entry by id.
func (s *Store) GetEntry(id string) (*models.Entry, error) {
	var e models.Entry
	if err := s.db.First(&e, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// ListEntries returns the most recent entries with the total count.
func (s *Store) ListEntries(limit, offset int) ([]models.Entry, int64, error) {
	var entries []models.Entry
	if err := s.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	var total int64
	if err := s.db.Model(&models.Entry{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// NextRunnable returns the oldest unleased entry the worker can act on:
// freshly queued entries plus entries parked in generating/writing by a
// continue action. FIFO on created_at.
func (s *Store) NextRunnable() (*models.Entry, error) {
	var e models.Entry
	err := s.db.
		Where("stage IN ?", models.RunnableStages).
		Where("locked_by = '' OR locked_by IS NULL").
		Order("created_at ASC").
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CancelRequested lists entries awaiting cancel finalization.
func (s *Store) CancelRequested() ([]models.Entry, error) {
	var entries []models.Entry
	err := s.db.Where("stage = ?", models.StageCancelRequested).Find(&entries).Error
	return entries, err
}

// StaleRunning lists entries stuck in a running stage whose worker went
// silent: the lease is held but the heartbeat is older than the threshold.
// Unleased entries in a running stage are parked there by a continue action
// and are waiting for pickup, not stuck.
func (s *Store) StaleRunning(olderThan time.Duration) ([]models.Entry, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	var entries []models.Entry
	err := s.db.
		Where("stage IN ?", models.RunningStages).
		Where("locked_by IS NOT NULL AND locked_by <> ''").
		Where("heartbeat_at IS NULL OR heartbeat_at < ?", cutoff).
		Find(&entries).Error
	return entries, err
}

// AcquireLease takes the worker lease with a compare-and-set: it succeeds only
// when the entry is in a runnable stage and unlocked (or already self-leased).
// Returns false when another worker holds the lease or the stage moved.
func (s *Store) AcquireLease(id, workerID string) (bool, error) {
	now := time.Now().UTC()
	res := s.db.Model(&models.Entry{}).
		Where("id = ?", id).
		Where("stage IN ?", models.RunnableStages).
		Where("locked_by = '' OR locked_by IS NULL OR locked_by = ?", workerID).
		Updates(map[string]interface{}{
			"locked_by":    workerID,
			"locked_at":    now,
			"heartbeat_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseLease clears the lease fields.
func (s *Store) ReleaseLease(id string) error {
	return s.db.Model(&models.Entry{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"locked_by":    "",
			"locked_at":    nil,
			"heartbeat_at": nil,
		}).Error
}

// Heartbeat refreshes the lease liveness timestamp for the holding worker.
func (s *Store) Heartbeat(id, workerID string) error {
	return s.db.Model(&models.Entry{}).
		Where("id = ? AND locked_by = ?", id, workerID).
		Update("heartbeat_at", time.Now().UTC()).Error
}

// SetStage moves an entry to a stage and records the human-readable message.
func (s *Store) SetStage(id, stage, message string) error {
	return s.UpdateEntry(id, map[string]interface{}{
		"stage":         stage,
		"stage_message": message,
	})
}

// AdvanceStage moves an entry to a stage only while it still stands in the
// expected one. Returns false when the stage moved first.
func (s *Store) AdvanceStage(id, from, to, message string) (bool, error) {
	res := s.db.Model(&models.Entry{}).
		Where("id = ? AND stage = ?", id, from).
		Updates(map[string]interface{}{
			"stage":         to,
			"stage_message": message,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RequestCancel stamps cancel_requested only while the entry is still in a
// cancellable stage. Returns false when the stage moved on first; a terminal
// entry can never be dragged back into cancellation.
func (s *Store) RequestCancel(id string) (bool, error) {
	res := s.db.Model(&models.Entry{}).
		Where("id = ?", id).
		Where("stage IN ?", models.CancellableStages).
		Updates(map[string]interface{}{
			"stage":         models.StageCancelRequested,
			"stage_message": "Cancel requested",
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkFailed records the failure diagnostic and clears the lease. The write is
// refused once the entry is terminal or has a cancel pending: a tool killed by
// cancellation must end cancelled, not failed.
func (s *Store) MarkFailed(id, diagnostic string) (bool, error) {
	guard := append([]string{models.StageCancelRequested}, models.TerminalStages...)
	res := s.db.Model(&models.Entry{}).
		Where("id = ?", id).
		Where("stage NOT IN ?", guard).
		Updates(map[string]interface{}{
			"stage":         models.StageFailed,
			"stage_message": "Failed",
			"error_message": diagnostic,
			"locked_by":     "",
			"locked_at":     nil,
			"heartbeat_at":  nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ResetToQueued sends a stuck entry back to the queue, clearing its lease.
func (s *Store) ResetToQueued(id, message string) error {
	return s.UpdateEntry(id, map[string]interface{}{
		"stage":         models.StageQueued,
		"stage_message": message,
		"locked_by":     "",
		"locked_at":     nil,
		"heartbeat_at":  nil,
	})
}

// UpdateEntry applies a partial update by column name. Once the raw transcript
// lock timestamp is set the raw_transcript column is immutable.
func (s *Store) UpdateEntry(id string, updates map[string]interface{}) error {
	if _, touchesRaw := updates["raw_transcript"]; touchesRaw {
		e, err := s.GetEntry(id)
		if err != nil {
			return err
		}
		if e.RawTranscriptLockedAt != nil {
			return ErrTranscriptLocked
		}
	}
	res := s.db.Model(&models.Entry{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// LockRawTranscript records the transcript and stamps its lock in one write.
func (s *Store) LockRawTranscript(id, transcript string) error {
	e, err := s.GetEntry(id)
	if err != nil {
		return err
	}
	if e.RawTranscriptLockedAt != nil {
		return ErrTranscriptLocked
	}
	return s.db.Model(&models.Entry{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"raw_transcript":           transcript,
			"raw_transcript_locked_at": time.Now().UTC(),
		}).Error
}

// DeleteEntry removes the row (links included); vault files are left alone.
func (s *Store) DeleteEntry(id string) error {
	res := s.db.Delete(&models.Entry{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return s.db.Delete(&models.EntryLink{}, "source_id = ? OR target_id = ?", id, id).Error
}

// AddLink inserts a directed typed edge between two entries.
func (s *Store) AddLink(sourceID, targetID, linkType string) (*models.EntryLink, error) {
	link := models.EntryLink{SourceID: sourceID, TargetID: targetID, Type: linkType}
	if err := s.db.Create(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

// RemoveLink deletes the edge matching all three fields.
func (s *Store) RemoveLink(sourceID, targetID, linkType string) error {
	res := s.db.Delete(&models.EntryLink{},
		"source_id = ? AND target_id = ? AND type = ?", sourceID, targetID, linkType)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLinks returns every edge touching the entry, in either direction.
func (s *Store) ListLinks(entryID string) ([]models.EntryLink, error) {
	var links []models.EntryLink
	err := s.db.
		Where("source_id = ? OR target_id = ?", entryID, entryID).
		Order("created_at ASC").
		Find(&links).Error
	return links, err
}

// SearchQuery carries the search term and optional filters.
type SearchQuery struct {
	Term        string
	EntryType   string
	StatusClass string // active | done | failed
	DateFrom    string // YYYY-MM-DD, inclusive
	DateTo      string // YYYY-MM-DD, inclusive
	Limit       int
	Offset      int
}

// Search runs a prefix-matching full-text search over transcripts and
// generated sections, AND-ing whitespace-split terms, with optional filters.
func (s *Store) Search(q SearchQuery) ([]models.Entry, int64, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}

	tx := s.db.Table("entries")
	if match := buildMatchExpr(q.Term); match != "" {
		tx = tx.
			Joins("JOIN entries_fts ON entries_fts.rowid = entries.rowid").
			Where("entries_fts MATCH ?", match)
	}
	if q.EntryType != "" {
		tx = tx.Where("entries.entry_type = ?", q.EntryType)
	}
	switch q.StatusClass {
	case "active":
		tx = tx.Where("entries.stage NOT IN ?", models.TerminalStages)
	case "done":
		tx = tx.Where("entries.stage = ?", models.StageCompleted)
	case "failed":
		tx = tx.Where("entries.stage IN ?", []string{models.StageFailed, models.StageCancelled})
	}
	if q.DateFrom != "" {
		tx = tx.Where("entries.entry_date >= ?", q.DateFrom)
	}
	if q.DateTo != "" {
		tx = tx.Where("entries.entry_date <= ?", q.DateTo)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.Entry
	err := tx.Select("entries.*").
		Order("entries.created_at DESC").
		Limit(q.Limit).Offset(q.Offset).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// buildMatchExpr turns a bare user term into an FTS5 expression: terms are
// whitespace-split, quoted against operator injection, prefix-matched, and
// implicitly AND-ed.
func buildMatchExpr(term string) string {
	fields := strings.Fields(term)
	if len(fields) == 0 {
		return ""
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf(`"%s"*`, f))
	}
	return strings.Join(parts, " ")
}
