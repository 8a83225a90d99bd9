// Package prompt assembles the LLM prompts for each entry type.
package prompt

import (
	"fmt"
	"strings"

	"whisperjournal/internal/models"
)

// Builder builds generation prompts
type Builder struct {
	UserName string
}

// NewBuilder creates a new prompt builder
func NewBuilder(userName string) *Builder {
	return &Builder{UserName: userName}
}

// journalSections is the fixed skeleton the brain-dump prompt asks for.
var journalSections = []string{
	"TL;DR",
	"Today in 6 Bullets",
	"What Actually Mattered",
	"Distractions vs Leverage",
	"Decisions",
	"Friction",
	"Emotional State",
	"Money",
	"90-day Extrapolation",
	"Identity Continuation",
	"Three Non-Negotiables",
	"Open Loops",
	"Identity Check",
	"Tags",
}

// BuildJournalPrompt builds the brain-dump prompt: the model turns a raw
// spoken transcript into a Daily Strategic Journal with a fixed section list.
func (b *Builder) BuildJournalPrompt(transcript string) string {
	var sb strings.Builder

	sb.WriteString("You are a reflective journaling assistant")
	if b.UserName != "" {
		fmt.Fprintf(&sb, " working for %s", b.UserName)
	}
	sb.WriteString(".\n\n")
	sb.WriteString("Below is the raw transcript of a spoken brain dump. Rewrite it as a Daily Strategic Journal in Markdown.\n\n")
	sb.WriteString("Produce exactly these sections, each as a `## ` heading, in this order:\n")
	for _, name := range journalSections {
		fmt.Fprintf(&sb, "- %s\n", name)
	}
	sb.WriteString("\nRules:\n")
	sb.WriteString("- Use only what the speaker actually said; never invent events.\n")
	sb.WriteString("- Write in the first person, keeping the speaker's own voice.\n")
	sb.WriteString("- A section the transcript gives nothing for gets a single line: (nothing noted).\n")
	sb.WriteString("- Tags is a single line of lowercase hashtags.\n")
	sb.WriteString("- Output only the Markdown body, no preamble.\n\n")
	sb.WriteString("Transcript:\n\"\"\"\n")
	sb.WriteString(transcript)
	sb.WriteString("\n\"\"\"\n")

	return sb.String()
}

// reflectionLabels maps prompt-answer keys to the labels used in the
// daily-reflection prompt, in presentation order.
var reflectionLabels = []struct {
	key   string
	label string
}{
	{models.PromptGratitude, "Gratitude"},
	{models.PromptAccomplishments, "Accomplishments"},
	{models.PromptChallenges, "Challenges"},
	{models.PromptTomorrow, "Plans for tomorrow"},
}

// BuildReflectionPrompt builds the daily-reflection prompt from whichever of
// the guided answers are non-empty. Returns an empty string when every answer
// is blank, in which case no generation call should be made.
func (b *Builder) BuildReflectionPrompt(answers models.PromptAnswers) string {
	var parts []string
	for _, rl := range reflectionLabels {
		answer, ok := answers[rl.key]
		if !ok {
			continue
		}
		text := strings.TrimSpace(answer.Text)
		if text == "" {
			text = strings.TrimSpace(answer.AudioTranscript)
		}
		if text == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", rl.label, text))
	}
	if len(parts) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("You are a reflective journaling assistant.\n\n")
	sb.WriteString("From the notes below, write a short first-person reflection of 2-4 sentences. ")
	sb.WriteString("Stay faithful to the notes; do not add anything the writer did not say. ")
	sb.WriteString("Output only the paragraph.\n\n")
	sb.WriteString(strings.Join(parts, "\n"))
	sb.WriteString("\n")
	return sb.String()
}
