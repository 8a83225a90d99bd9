package notes

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"whisperjournal/internal/models"
)

// Section names in the order they appear in a written note.
const (
	SectionAudio           = "AUDIO"
	SectionJournal         = "JOURNAL"
	SectionGratitude       = "GRATITUDE"
	SectionAccomplishments = "ACCOMPLISHMENTS"
	SectionChallenges      = "CHALLENGES"
	SectionTomorrow        = "TOMORROW"
	SectionAIReflection    = "AI_REFLECTION"
	SectionSummary         = "SUMMARY"
	SectionTranscript      = "TRANSCRIPT"
	SectionRelated         = "RELATED"
)

// sectionHeadings are the Markdown headings written above known sections.
// JOURNAL and TRANSCRIPT bring their own structure; names missing here get
// markers only.
var sectionHeadings = map[string]string{
	SectionAudio:           "## Audio",
	SectionGratitude:       "## Gratitude",
	SectionAccomplishments: "## Accomplishments",
	SectionChallenges:      "## Challenges",
	SectionTomorrow:        "## Tomorrow",
	SectionAIReflection:    "## Reflection",
	SectionSummary:         "## Summary",
	SectionRelated:         "## Related",
}

var kindTitles = map[string]string{
	models.TypeBrainDump:       "Brain Dump",
	models.TypeDailyReflection: "Daily Reflection",
	models.TypeQuickNote:       "Quick Note",
}

// Writer produces and mutates notes under <vault>/journal/.
type Writer struct {
	VaultRoot string
}

func NewWriter(vaultRoot string) *Writer {
	return &Writer{VaultRoot: vaultRoot}
}

// Filename computes the note filename from the entry's creation instant
// projected into its timezone.
func Filename(e *models.Entry) string {
	local := e.CreatedAt.In(e.Location())
	return fmt.Sprintf("%s-%s.md", local.Format("2006-01-02-150405"), e.EntryType)
}

// notePath is the absolute path for a vault-relative note path.
func (w *Writer) notePath(rel string) string {
	return filepath.Join(w.VaultRoot, filepath.FromSlash(rel))
}

// WriteNote produces the whole document deterministically from the entry and
// inputs, writes it atomically, and returns the vault-relative path plus the
// post-rename mtime.
func (w *Writer) WriteNote(e *models.Entry, transcript string, answers models.PromptAnswers, generated models.SectionMap) (string, time.Time, error) {
	doc := renderNote(e, transcript, answers, generated)
	rel := "journal/" + Filename(e)
	mtime, err := w.writeAtomic(w.notePath(rel), doc)
	if err != nil {
		return "", time.Time{}, err
	}
	return rel, mtime, nil
}

// UpdateNoteSection replaces exactly the body between one section's markers,
// preserving everything else byte-for-byte.
func (w *Writer) UpdateNoteSection(rel, name, body string) (time.Time, error) {
	doc, err := os.ReadFile(w.notePath(rel))
	if err != nil {
		return time.Time{}, err
	}
	sections, err := ParseStrict(string(doc))
	if err != nil {
		return time.Time{}, err
	}
	for _, s := range sections {
		if s.Name == name {
			return w.writeAtomic(w.notePath(rel), replaceBody(string(doc), s, body))
		}
	}
	return time.Time{}, fmt.Errorf("section %s not found in %s", name, rel)
}

// UpdateNoteContent replaces the bodies of several sections in one atomic
// write. Sections absent from the file are skipped, not invented. A TRANSCRIPT
// body keeps the wrapper style already in the file: expandable details stays
// expandable, a plain heading stays plain.
func (w *Writer) UpdateNoteContent(e *models.Entry, bodies map[string]string) (time.Time, error) {
	path := w.notePath(e.NotePath)
	raw, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, err
	}
	doc := string(raw)

	// Replacements restart from a fresh parse each time; offsets shift as
	// bodies change length.
	for name, body := range bodies {
		sections, err := ParseStrict(doc)
		if err != nil {
			return time.Time{}, err
		}
		for _, s := range sections {
			if s.Name != name {
				continue
			}
			if name == SectionTranscript {
				body = wrapTranscript(body, strings.Contains(s.Body, "<details>"))
			}
			doc = replaceBody(doc, s, body)
			break
		}
	}
	return w.writeAtomic(path, doc)
}

// ReadNote returns the note's content, or ok=false when no file exists.
func (w *Writer) ReadNote(e *models.Entry) (string, bool, error) {
	if e.NotePath == "" {
		return "", false, nil
	}
	data, err := os.ReadFile(w.notePath(e.NotePath))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// HasExternalEdits reports whether the file's current mtime is strictly newer
// than the one recorded at the last write.
func (w *Writer) HasExternalEdits(e *models.Entry) (bool, error) {
	if e.NotePath == "" || e.NoteMtime == nil {
		return false, nil
	}
	info, err := os.Stat(w.notePath(e.NotePath))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.ModTime().After(*e.NoteMtime), nil
}

// writeAtomic writes via a temp file in the same directory plus rename, so the
// path is never observed half-written, and returns the post-rename mtime.
func (w *Writer) writeAtomic(path, content string) (time.Time, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return time.Time{}, err
	}
	tmp, err := os.CreateTemp(dir, ".note-*")
	if err != nil {
		return time.Time{}, err
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return time.Time{}, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return time.Time{}, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return time.Time{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// renderNote builds the canonical document: frontmatter, title, tag line, then
// the marker-delimited sections for the entry's kind.
func renderNote(e *models.Entry, transcript string, answers models.PromptAnswers, generated models.SectionMap) string {
	var b strings.Builder

	writeFrontmatter(&b, e)

	local := e.CreatedAt.In(e.Location())
	title := kindTitles[e.EntryType]
	if title == "" {
		title = e.EntryType
	}
	fmt.Fprintf(&b, "\n# %s - %s\n\n", title, local.Format("January 2, 2006"))
	fmt.Fprintf(&b, "#journal #%s\n", e.EntryType)

	emit := func(name, body string, flags ...string) {
		b.WriteString("\n")
		if heading := sectionHeadings[name]; heading != "" {
			b.WriteString(heading)
			b.WriteString("\n\n")
		}
		b.WriteString(StartMarker(name, flags...))
		b.WriteString("\n")
		if body != "" {
			b.WriteString(body)
			b.WriteString("\n")
		}
		b.WriteString(EndMarker(name))
		b.WriteString("\n")
	}

	if e.OriginalAudioPath != "" {
		audioRef := "audio/" + filepath.Base(e.OriginalAudioPath)
		emit(SectionAudio, fmt.Sprintf("[Source audio](%s)\n\n![[%s]]", audioRef, audioRef), FlagImmutable)
	}

	switch e.EntryType {
	case models.TypeBrainDump:
		emit(SectionJournal, generated[SectionJournal], FlagGenerated)
		emit(SectionTranscript, wrapTranscript(transcript, true), FlagImmutable)
	case models.TypeDailyReflection:
		answerSections := []struct{ key, name string }{
			{models.PromptGratitude, SectionGratitude},
			{models.PromptAccomplishments, SectionAccomplishments},
			{models.PromptChallenges, SectionChallenges},
			{models.PromptTomorrow, SectionTomorrow},
		}
		for _, as := range answerSections {
			if text := strings.TrimSpace(answers[as.key].Text); text != "" {
				emit(as.name, text)
			}
		}
		emit(SectionAIReflection, generated[SectionAIReflection], FlagGenerated)
		emit(SectionTranscript, wrapTranscript(transcript, true), FlagImmutable)
	default: // quick-note: the transcript is the primary content
		emit(SectionTranscript, wrapTranscript(transcript, false), FlagImmutable)
	}

	if body, ok := generated[SectionSummary]; ok && body != "" {
		emit(SectionSummary, body, FlagGenerated)
	}

	emit(SectionRelated, "", FlagGenerated)

	return b.String()
}

// wrapTranscript renders the transcript body in one of its two styles.
func wrapTranscript(text string, expandable bool) string {
	if expandable {
		return fmt.Sprintf("<details>\n<summary>Raw Transcript</summary>\n\n%s\n\n</details>", text)
	}
	return fmt.Sprintf("## Transcript\n\n%s", text)
}

func writeFrontmatter(b *strings.Builder, e *models.Entry) {
	local := e.CreatedAt.In(e.Location())
	b.WriteString("---\n")
	fmt.Fprintf(b, "id: %s\n", e.ID)
	fmt.Fprintf(b, "created: %s\n", e.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(b, "created_local: %s\n", local.Format(time.RFC3339))
	fmt.Fprintf(b, "timezone: %s\n", e.Timezone)
	fmt.Fprintf(b, "entry_date: %s\n", e.EntryDate)
	fmt.Fprintf(b, "type: %s\n", e.EntryType)
	if e.AudioDurationSeconds > 0 {
		fmt.Fprintf(b, "audio_duration: %d\n", int(math.Round(e.AudioDurationSeconds)))
	}
	if e.OriginalAudioPath != "" {
		fmt.Fprintf(b, "audio_file: audio/%s\n", filepath.Base(e.OriginalAudioPath))
	}
	fmt.Fprintf(b, "tags: [journal, %s]\n", e.EntryType)
	b.WriteString("---\n")
}
