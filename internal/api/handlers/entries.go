package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"whisperjournal/internal/models"
	"whisperjournal/internal/notes"
	"whisperjournal/internal/settings"
	"whisperjournal/internal/store"
	"whisperjournal/internal/worker"
)

const maxListPageSize = 100

type EntryHandler struct {
	store    *store.Store
	settings *settings.Service
	procs    *worker.ProcTable
}

func NewEntryHandler(st *store.Store, svc *settings.Service, procs *worker.ProcTable) *EntryHandler {
	return &EntryHandler{store: st, settings: svc, procs: procs}
}

type createEntryRequest struct {
	EntryType string `json:"entryType"`
	EntryDate string `json:"entryDate"`
	Timezone  string `json:"timezone"`
}

// Create creates a new entry in the pending stage
func (h *EntryHandler) Create(c *gin.Context) {
	var req createEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if !models.ValidEntryType(req.EntryType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown entry type"})
		return
	}

	tz := req.Timezone
	if tz == "" {
		if s, err := h.settings.Load(); err == nil && s.DefaultTimezone != "" {
			tz = s.DefaultTimezone
		} else {
			tz = "UTC"
		}
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid timezone"})
		return
	}

	entryDate := req.EntryDate
	if entryDate == "" {
		entryDate = time.Now().In(loc).Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", entryDate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entryDate must be YYYY-MM-DD"})
		return
	}

	entry := &models.Entry{
		EntryType: req.EntryType,
		Timezone:  tz,
		EntryDate: entryDate,
		Stage:     models.StagePending,
	}
	if err := h.store.CreateEntry(entry); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create entry"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// List returns the most recent entries
func (h *EntryHandler) List(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 20, maxListPageSize)
	offset := parseIntQuery(c, "offset", 0, 1<<30)

	entries, count, err := h.store.ListEntries(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list entries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   count,
	})
}

// Search runs full-text search with optional filters
func (h *EntryHandler) Search(c *gin.Context) {
	q := store.SearchQuery{
		Term:        c.Query("q"),
		EntryType:   c.Query("type"),
		StatusClass: c.Query("status"),
		DateFrom:    c.Query("from"),
		DateTo:      c.Query("to"),
		Limit:       parseIntQuery(c, "limit", 20, maxListPageSize),
		Offset:      parseIntQuery(c, "offset", 0, 1<<30),
	}
	if q.EntryType != "" && !models.ValidEntryType(q.EntryType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown entry type"})
		return
	}
	switch q.StatusClass {
	case "", "active", "done", "failed":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status class"})
		return
	}

	entries, total, err := h.store.Search(q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   total,
		"hasMore": int64(q.Offset+len(entries)) < total,
	})
}

// entryResponse is an entry plus the fields computed per fetch.
type entryResponse struct {
	*models.Entry
	OverallProgress  int    `json:"overallProgress"`
	HasExternalEdits bool   `json:"hasExternalEdits"`
	NoteContent      string `json:"noteContent,omitempty"`
}

// Get returns one entry with computed progress, drift, and note content
func (h *EntryHandler) Get(c *gin.Context) {
	entry, ok := h.fetch(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.present(entry))
}

func (h *EntryHandler) present(entry *models.Entry) entryResponse {
	resp := entryResponse{
		Entry:           entry,
		OverallProgress: models.OverallProgress(entry.Stage),
	}
	if s, err := h.settings.Load(); err == nil && s.VaultPath != "" && entry.NotePath != "" {
		writer := notes.NewWriter(s.VaultPath)
		if edited, err := writer.HasExternalEdits(entry); err == nil {
			resp.HasExternalEdits = edited
		}
		if content, found, err := writer.ReadNote(entry); err == nil && found {
			resp.NoteContent = content
		}
	}
	return resp
}

type updateEntryRequest struct {
	EditedTranscript *string               `json:"editedTranscript"`
	PromptAnswers    *models.PromptAnswers `json:"promptAnswers"`
	EntryDate        *string               `json:"entryDate"`
	EditedSections   map[string]string     `json:"editedSections"`
	Action           string                `json:"action"`
}

// Update applies edits to an entry and optionally continues the pipeline
func (h *EntryHandler) Update(c *gin.Context) {
	entry, ok := h.fetch(c)
	if !ok {
		return
	}
	var req updateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	updates := map[string]interface{}{}
	if req.EditedTranscript != nil {
		updates["edited_transcript"] = *req.EditedTranscript
	}
	if req.PromptAnswers != nil {
		for key := range *req.PromptAnswers {
			if !isPromptKey(key) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown prompt key " + key})
				return
			}
		}
		updates["prompt_answers"] = *req.PromptAnswers
	}
	if req.EntryDate != nil {
		if _, err := time.Parse("2006-01-02", *req.EntryDate); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "entryDate must be YYYY-MM-DD"})
			return
		}
		if entry.Stage == models.StageWriting || entry.Stage == models.StageCompleted {
			c.JSON(http.StatusBadRequest, gin.H{"error": "entryDate can no longer be changed"})
			return
		}
		updates["entry_date"] = *req.EntryDate
	}

	if len(updates) > 0 {
		if err := h.store.UpdateEntry(entry.ID, updates); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update entry"})
			return
		}
	}

	if len(req.EditedSections) > 0 {
		if !h.applySectionEdits(c, entry, req.EditedSections) {
			return
		}
	}

	if req.Action == "continue" {
		if !h.applyContinue(c, entry.ID) {
			return
		}
	} else if req.Action != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown action"})
		return
	}

	updated, err := h.store.GetEntry(entry.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reload entry"})
		return
	}
	c.JSON(http.StatusOK, h.present(updated))
}

// applySectionEdits rewrites marker-delimited sections of the note on disk.
// The file is strict-parsed first; marker corruption is surfaced, never
// silently repaired.
func (h *EntryHandler) applySectionEdits(c *gin.Context, entry *models.Entry, sections map[string]string) bool {
	s, err := h.settings.Load()
	if err != nil || s.VaultPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Vault path is not configured"})
		return false
	}
	if entry.NotePath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Entry has no note yet"})
		return false
	}
	writer := notes.NewWriter(s.VaultPath)
	mtime, err := writer.UpdateNoteContent(entry, sections)
	if err != nil {
		var parseErr notes.ParseError
		if errors.As(err, &parseErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Note markers are corrupt: " + parseErr.Error()})
			return false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update note"})
		return false
	}

	generated := models.SectionMap{}
	for k, v := range entry.GeneratedSections {
		generated[k] = v
	}
	for k, v := range sections {
		generated[k] = v
	}
	err = h.store.UpdateEntry(entry.ID, map[string]interface{}{
		"generated_sections": generated,
		"note_mtime":         mtime,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update entry"})
		return false
	}
	return true
}

// applyContinue advances an entry parked in an awaiting stage. On any other
// stage it is a no-op and the current entry is returned unchanged.
func (h *EntryHandler) applyContinue(c *gin.Context, id string) bool {
	entry, err := h.store.GetEntry(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return false
	}

	var next string
	switch entry.Stage {
	case models.StageAwaitingReview:
		switch entry.EntryType {
		case models.TypeQuickNote:
			next = models.StageWriting
		case models.TypeBrainDump:
			next = models.StageGenerating
		case models.TypeDailyReflection:
			next = models.StageAwaitingPrompts
		}
	case models.StageAwaitingPrompts:
		next = models.StageGenerating
	default:
		return true
	}

	// Guarded on the observed stage; a lost race is the same no-op as a
	// continue outside the awaiting stages.
	if _, err := h.store.AdvanceStage(id, entry.Stage, next, "Continuing"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to continue entry"})
		return false
	}
	return true
}

// Delete removes the entry row; the vault file is left alone
func (h *EntryHandler) Delete(c *gin.Context) {
	err := h.store.DeleteEntry(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete entry"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// UploadAudio stores the source audio under the vault and queues the entry
func (h *EntryHandler) UploadAudio(c *gin.Context) {
	entry, ok := h.fetch(c)
	if !ok {
		return
	}
	if entry.Stage != models.StagePending {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Audio can only be uploaded to a pending entry"})
		return
	}

	file, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing audio field"})
		return
	}
	contentType := file.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "audio/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File must be audio"})
		return
	}

	s, err := h.settings.Load()
	if err != nil || s.VaultPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Vault path is not configured"})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext == "" {
		ext = ".wav"
	}
	rel := "journal/audio/" + entry.ID + "-original" + ext
	if err := c.SaveUploadedFile(file, filepath.Join(s.VaultPath, filepath.FromSlash(rel))); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store audio"})
		return
	}

	err = h.store.UpdateEntry(entry.ID, map[string]interface{}{
		"original_audio_path": rel,
		"stage":               models.StageQueued,
		"stage_message":       "Queued",
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue entry"})
		return
	}

	updated, err := h.store.GetEntry(entry.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reload entry"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Cancel requests cancellation of an active entry
func (h *EntryHandler) Cancel(c *gin.Context) {
	entry, ok := h.fetch(c)
	if !ok {
		return
	}
	// Compare-and-set against the cancellable stages: the worker may have
	// moved the entry since the fetch, and a terminal entry must never be
	// dragged back into cancellation.
	ok, err := h.store.RequestCancel(entry.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to request cancel"})
		return
	}
	if !ok {
		current, err := h.store.GetEntry(entry.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reload entry"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Entry cannot be cancelled in stage " + current.Stage})
		return
	}
	// Best effort: the worker finalizes on its next check.
	h.procs.Kill(entry.ID)

	updated, err := h.store.GetEntry(entry.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reload entry"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// fetch loads the path entry or writes the 404.
func (h *EntryHandler) fetch(c *gin.Context) (*models.Entry, bool) {
	entry, err := h.store.GetEntry(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load entry"})
		return nil, false
	}
	return entry, true
}

func isPromptKey(key string) bool {
	for _, k := range models.PromptKeys {
		if k == key {
			return true
		}
	}
	return false
}

func parseIntQuery(c *gin.Context, name string, def, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
