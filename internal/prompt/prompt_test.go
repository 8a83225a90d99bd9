package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"whisperjournal/internal/models"
)

func TestBuildJournalPrompt(t *testing.T) {
	b := NewBuilder("Ada")
	p := b.BuildJournalPrompt("today I shipped the release")

	assert.Contains(t, p, "Ada")
	assert.Contains(t, p, `"""`+"\ntoday I shipped the release\n"+`"""`)
	for _, section := range journalSections {
		assert.Contains(t, p, section)
	}
	// The transcript appears exactly once, fenced.
	assert.Equal(t, 1, strings.Count(p, "today I shipped the release"))
}

func TestBuildJournalPromptWithoutUserName(t *testing.T) {
	b := NewBuilder("")
	p := b.BuildJournalPrompt("t")
	assert.NotContains(t, p, "working for")
}

func TestBuildReflectionPrompt(t *testing.T) {
	b := NewBuilder("")

	answers := models.PromptAnswers{
		models.PromptGratitude:  {Text: "I'm grateful for coffee"},
		models.PromptChallenges: {Text: ""},
		models.PromptTomorrow:   {AudioTranscript: "finish the report"},
	}
	p := b.BuildReflectionPrompt(answers)

	assert.Contains(t, p, "Gratitude: I'm grateful for coffee")
	assert.Contains(t, p, "Plans for tomorrow: finish the report")
	assert.NotContains(t, p, "Challenges")
	assert.NotContains(t, p, "Accomplishments")
}

func TestBuildReflectionPromptEmptyAnswers(t *testing.T) {
	b := NewBuilder("")
	assert.Equal(t, "", b.BuildReflectionPrompt(nil))
	assert.Equal(t, "", b.BuildReflectionPrompt(models.PromptAnswers{
		models.PromptGratitude: {Text: "   "},
	}))
}
