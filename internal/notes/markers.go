// Package notes produces and mutates the structured Markdown journal
// documents. Rewriteable regions are delimited by marker comment pairs so a
// partially user-edited note can be updated without touching the rest.
package notes

import (
	"fmt"
	"regexp"
	"strings"
)

// Parse error kinds.
const (
	ErrKindMissingEnd       = "missing_end"
	ErrKindMissingStart     = "missing_start"
	ErrKindInvalidNesting   = "invalid_nesting"
	ErrKindDuplicateSection = "duplicate_section"
)

// ParseError is one structural problem found while scanning markers.
type ParseError struct {
	Kind string
	Name string
	Line int // 1-based line of the offending marker (or last line for missing_end)
}

func (e ParseError) Error() string {
	return fmt.Sprintf("%s: section %s at line %d", e.Kind, e.Name, e.Line)
}

// Section is one marker-delimited region of a note.
type Section struct {
	Name  string
	Flags []string
	Body  string // text between the markers, trimmed
	Line  int    // 1-based line of the START marker
	End   int    // 1-based line of the END marker

	// Raw byte range of the body between the marker lines, for in-place
	// replacement that preserves everything else byte-for-byte.
	bodyStart int
	bodyEnd   int
}

// HasFlag reports whether the START marker carried the given flag.
func (s Section) HasFlag(flag string) bool {
	for _, f := range s.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Recognized section flags. Unknown flags are preserved but ignored.
const (
	FlagImmutable = "immutable"
	FlagGenerated = "generated"
)

var markerRe = regexp.MustCompile(`^<!-- WHISPER_JOURNAL:([A-Z0-9_]+):(START|END)(?: (.*?))? -->$`)

// StartMarker renders a section's opening comment.
func StartMarker(name string, flags ...string) string {
	if len(flags) == 0 {
		return fmt.Sprintf("<!-- WHISPER_JOURNAL:%s:START -->", name)
	}
	return fmt.Sprintf("<!-- WHISPER_JOURNAL:%s:START %s -->", name, strings.Join(flags, " "))
}

// EndMarker renders a section's closing comment.
func EndMarker(name string) string {
	return fmt.Sprintf("<!-- WHISPER_JOURNAL:%s:END -->", name)
}

// Parse line-scans a document for marker pairs. Structural problems are
// collected rather than aborting the scan, so one corrupt section does not
// hide the rest.
func Parse(doc string) ([]Section, []ParseError) {
	type openSection struct {
		flags     []string
		startLine int
		bodyStart int
	}

	var (
		sections []Section
		errs     []ParseError
		open     = map[string]openSection{}
		seen     = map[string]bool{}
	)

	offset := 0
	line := 0
	for _, raw := range strings.SplitAfter(doc, "\n") {
		line++
		text := strings.TrimSuffix(raw, "\n")
		m := markerRe.FindStringSubmatch(text)
		if m == nil {
			offset += len(raw)
			continue
		}
		name, kind := m[1], m[2]
		switch kind {
		case "START":
			if _, isOpen := open[name]; isOpen {
				errs = append(errs, ParseError{Kind: ErrKindInvalidNesting, Name: name, Line: line})
			} else if seen[name] {
				errs = append(errs, ParseError{Kind: ErrKindDuplicateSection, Name: name, Line: line})
			} else {
				open[name] = openSection{
					flags:     strings.Fields(m[3]),
					startLine: line,
					bodyStart: offset + len(raw),
				}
			}
		case "END":
			o, isOpen := open[name]
			if !isOpen {
				errs = append(errs, ParseError{Kind: ErrKindMissingStart, Name: name, Line: line})
				break
			}
			delete(open, name)
			seen[name] = true
			sections = append(sections, Section{
				Name:      name,
				Flags:     o.flags,
				Body:      strings.TrimSpace(doc[o.bodyStart:offset]),
				Line:      o.startLine,
				End:       line,
				bodyStart: o.bodyStart,
				bodyEnd:   offset,
			})
		}
		offset += len(raw)
	}

	for name, o := range open {
		errs = append(errs, ParseError{Kind: ErrKindMissingEnd, Name: name, Line: o.startLine})
	}
	return sections, errs
}

// ParseStrict fails on the first collected error. Used before any in-place
// rewrite: a structurally corrupt file is surfaced, never silently repaired.
func ParseStrict(doc string) ([]Section, error) {
	sections, errs := Parse(doc)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return sections, nil
}

// replaceBody swaps the raw body region of one parsed section inside doc,
// leaving every byte outside the markers untouched. An empty body leaves no
// blank line between the markers.
func replaceBody(doc string, s Section, body string) string {
	var b strings.Builder
	b.WriteString(doc[:s.bodyStart])
	if body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}
	b.WriteString(doc[s.bodyEnd:])
	return b.String()
}
