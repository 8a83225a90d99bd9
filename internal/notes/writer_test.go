package notes

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisperjournal/internal/models"
)

func testEntry(entryType string) *models.Entry {
	created := time.Date(2025, 3, 14, 21, 30, 5, 0, time.UTC)
	return &models.Entry{
		ID:        "entry-123",
		CreatedAt: created,
		EntryType: entryType,
		Timezone:  "America/New_York",
		EntryDate: "2025-03-14",
	}
}

func TestFilename(t *testing.T) {
	// 21:30:05 UTC is 17:30:05 in New York (EDT).
	e := testEntry(models.TypeQuickNote)
	assert.Equal(t, "2025-03-14-173005-quick-note.md", Filename(e))

	e.Timezone = "UTC"
	assert.Equal(t, "2025-03-14-213005-quick-note.md", Filename(e))
}

func TestWriteNoteQuickNote(t *testing.T) {
	w := NewWriter(t.TempDir())
	e := testEntry(models.TypeQuickNote)

	rel, mtime, err := w.WriteNote(e, "hello world", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "journal/2025-03-14-173005-quick-note.md", rel)
	assert.False(t, mtime.IsZero())

	data, err := os.ReadFile(filepath.Join(w.VaultRoot, rel))
	require.NoError(t, err)
	doc := string(data)

	assert.Contains(t, doc, "id: entry-123\n")
	assert.Contains(t, doc, "type: quick-note\n")
	assert.Contains(t, doc, "timezone: America/New_York\n")
	assert.Contains(t, doc, "entry_date: 2025-03-14\n")
	assert.Contains(t, doc, "tags: [journal, quick-note]\n")
	assert.Contains(t, doc, "#journal #quick-note\n")

	sections, errs := Parse(doc)
	require.Empty(t, errs)

	byName := map[string]Section{}
	for _, s := range sections {
		byName[s.Name] = s
	}

	transcript, ok := byName[SectionTranscript]
	require.True(t, ok)
	assert.True(t, transcript.HasFlag(FlagImmutable))
	assert.Contains(t, transcript.Body, "hello world")
	assert.Contains(t, transcript.Body, "## Transcript")
	assert.NotContains(t, transcript.Body, "<details>")

	related, ok := byName[SectionRelated]
	require.True(t, ok)
	assert.True(t, related.HasFlag(FlagGenerated))
	assert.Equal(t, "", related.Body)
}

func TestWriteNoteBrainDump(t *testing.T) {
	w := NewWriter(t.TempDir())
	e := testEntry(models.TypeBrainDump)
	e.OriginalAudioPath = "journal/audio/entry-123-original.m4a"
	e.AudioDurationSeconds = 63.4

	generated := models.SectionMap{SectionJournal: "## TL;DR\n\nShipped the thing."}
	rel, _, err := w.WriteNote(e, "raw spoken words", nil, generated)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(w.VaultRoot, rel))
	require.NoError(t, err)
	doc := string(data)

	assert.Contains(t, doc, "audio_duration: 63\n")
	assert.Contains(t, doc, "audio_file: audio/entry-123-original.m4a\n")

	sections, errs := Parse(doc)
	require.Empty(t, errs)
	byName := map[string]Section{}
	for _, s := range sections {
		byName[s.Name] = s
	}

	audio := byName[SectionAudio]
	assert.True(t, audio.HasFlag(FlagImmutable))
	assert.Contains(t, audio.Body, "[Source audio](audio/entry-123-original.m4a)")
	assert.Contains(t, audio.Body, "![[audio/entry-123-original.m4a]]")

	journal := byName[SectionJournal]
	assert.True(t, journal.HasFlag(FlagGenerated))
	assert.Equal(t, "## TL;DR\n\nShipped the thing.", journal.Body)

	transcript := byName[SectionTranscript]
	assert.Contains(t, transcript.Body, "<details>")
	assert.Contains(t, transcript.Body, "<summary>Raw Transcript</summary>")
	assert.Contains(t, transcript.Body, "raw spoken words")
}

func TestWriteNoteDailyReflection(t *testing.T) {
	w := NewWriter(t.TempDir())
	e := testEntry(models.TypeDailyReflection)

	answers := models.PromptAnswers{
		models.PromptGratitude: {Text: "I'm grateful for coffee"},
	}
	generated := models.SectionMap{SectionAIReflection: "A good day, all told."}
	rel, _, err := w.WriteNote(e, "spoken reflection", answers, generated)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(w.VaultRoot, rel))
	require.NoError(t, err)

	sections, errs := Parse(string(data))
	require.Empty(t, errs)
	byName := map[string]Section{}
	for _, s := range sections {
		byName[s.Name] = s
	}

	assert.Equal(t, "I'm grateful for coffee", byName[SectionGratitude].Body)
	assert.Equal(t, "A good day, all told.", byName[SectionAIReflection].Body)
	assert.NotEmpty(t, byName[SectionAIReflection].Body)

	// Blank answers get no section at all.
	_, hasChallenges := byName[SectionChallenges]
	assert.False(t, hasChallenges)
}

func TestWriteNoteRoundTrips(t *testing.T) {
	w := NewWriter(t.TempDir())
	e := testEntry(models.TypeBrainDump)

	rel, _, err := w.WriteNote(e, "some transcript", nil, models.SectionMap{SectionJournal: "body"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(w.VaultRoot, rel))
	require.NoError(t, err)
	doc := string(data)

	sections, err := ParseStrict(doc)
	require.NoError(t, err)

	// Replacing every body with its parsed value reproduces the document.
	out := doc
	for _, name := range []string{SectionJournal, SectionTranscript, SectionRelated} {
		current, parseErr := ParseStrict(out)
		require.NoError(t, parseErr)
		for _, s := range current {
			if s.Name == name {
				out = replaceBody(out, s, s.Body)
			}
		}
	}
	assert.Equal(t, doc, out)
	require.NotEmpty(t, sections)
}

func TestUpdateNoteSection(t *testing.T) {
	w := NewWriter(t.TempDir())
	e := testEntry(models.TypeBrainDump)

	rel, _, err := w.WriteNote(e, "transcript", nil, models.SectionMap{SectionJournal: "old"})
	require.NoError(t, err)
	before, err := os.ReadFile(filepath.Join(w.VaultRoot, rel))
	require.NoError(t, err)

	_, err = w.UpdateNoteSection(rel, SectionJournal, "new body")
	require.NoError(t, err)

	after, err := os.ReadFile(filepath.Join(w.VaultRoot, rel))
	require.NoError(t, err)
	assert.Contains(t, string(after), "new body")
	assert.NotContains(t, string(after), "\nold\n")

	// Only the one section body may differ.
	assert.Equal(t,
		strings.Replace(string(before), "\nold\n", "\nnew body\n", 1),
		string(after))

	_, err = w.UpdateNoteSection(rel, "NOPE", "x")
	assert.Error(t, err)
}

func TestUpdateNoteContentPreservesTranscriptWrapper(t *testing.T) {
	w := NewWriter(t.TempDir())

	// Expandable style stays expandable.
	brain := testEntry(models.TypeBrainDump)
	rel, _, err := w.WriteNote(brain, "original words", nil, models.SectionMap{SectionJournal: "j"})
	require.NoError(t, err)
	brain.NotePath = rel

	_, err = w.UpdateNoteContent(brain, map[string]string{SectionTranscript: "edited words"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(w.VaultRoot, rel))
	require.NoError(t, err)
	sections, parseErrs := Parse(string(data))
	require.Empty(t, parseErrs)
	for _, s := range sections {
		if s.Name == SectionTranscript {
			assert.Contains(t, s.Body, "<details>")
			assert.Contains(t, s.Body, "edited words")
			assert.NotContains(t, s.Body, "original words")
		}
	}

	// Plain style stays plain.
	quick := testEntry(models.TypeQuickNote)
	quick.ID = "entry-456"
	rel, _, err = w.WriteNote(quick, "original words", nil, nil)
	require.NoError(t, err)
	quick.NotePath = rel

	_, err = w.UpdateNoteContent(quick, map[string]string{SectionTranscript: "edited words"})
	require.NoError(t, err)

	data, err = os.ReadFile(filepath.Join(w.VaultRoot, rel))
	require.NoError(t, err)
	sections, parseErrs = Parse(string(data))
	require.Empty(t, parseErrs)
	for _, s := range sections {
		if s.Name == SectionTranscript {
			assert.NotContains(t, s.Body, "<details>")
			assert.Contains(t, s.Body, "## Transcript")
			assert.Contains(t, s.Body, "edited words")
		}
	}
}

func TestUpdateNoteContentSkipsAbsentSections(t *testing.T) {
	w := NewWriter(t.TempDir())
	e := testEntry(models.TypeQuickNote)
	rel, _, err := w.WriteNote(e, "words", nil, nil)
	require.NoError(t, err)
	e.NotePath = rel

	before, err := os.ReadFile(filepath.Join(w.VaultRoot, rel))
	require.NoError(t, err)

	_, err = w.UpdateNoteContent(e, map[string]string{SectionJournal: "should not appear"})
	require.NoError(t, err)

	after, err := os.ReadFile(filepath.Join(w.VaultRoot, rel))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestHasExternalEdits(t *testing.T) {
	w := NewWriter(t.TempDir())
	e := testEntry(models.TypeQuickNote)

	rel, mtime, err := w.WriteNote(e, "words", nil, nil)
	require.NoError(t, err)
	e.NotePath = rel
	e.NoteMtime = &mtime

	edited, err := w.HasExternalEdits(e)
	require.NoError(t, err)
	assert.False(t, edited)

	touched := mtime.Add(1 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(w.VaultRoot, rel), touched, touched))

	edited, err = w.HasExternalEdits(e)
	require.NoError(t, err)
	assert.True(t, edited)
}

func TestReadNote(t *testing.T) {
	w := NewWriter(t.TempDir())
	e := testEntry(models.TypeQuickNote)

	content, found, err := w.ReadNote(e)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "", content)

	rel, _, err := w.WriteNote(e, "words", nil, nil)
	require.NoError(t, err)
	e.NotePath = rel

	content, found, err = w.ReadNote(e)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Contains(t, content, "words")
}
