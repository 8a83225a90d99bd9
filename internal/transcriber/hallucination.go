package transcriber

import (
	"fmt"
	"strings"
	"unicode"
)

// Speech below this rate (characters per second at ~5 chars/word) marks a
// transcription as suspiciously short for its audio length.
const minCharsPerSecond = 0.3 * 5

// Check is the detector verdict for one chunk of transcription.
type Check struct {
	Flagged    bool
	Confidence float64
	Reason     string
}

// CheckHallucination applies the heuristic rules to a chunk's text given the
// chunk's audio length in seconds. When several rules fire, the highest
// confidence one wins.
func CheckHallucination(text string, durationSeconds float64) Check {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Check{Flagged: true, Confidence: 1.0, Reason: "empty transcription"}
	}

	tokens := strings.Fields(trimmed)
	best := Check{}

	if phrase, count := repeatedPhrase(tokens); count >= 3 {
		best = consider(best, Check{
			Flagged:    true,
			Confidence: 0.95,
			Reason:     fmt.Sprintf("phrase %q repeated %d times back-to-back", phrase, count),
		})
	}

	if durationSeconds > 0 && float64(len(trimmed)) < minCharsPerSecond*durationSeconds {
		best = consider(best, Check{
			Flagged:    true,
			Confidence: 0.8,
			Reason:     fmt.Sprintf("only %d characters for %.0fs of audio", len(trimmed), durationSeconds),
		})
	}

	if token, share, count := dominantToken(tokens); share > 0.2 && count > 10 {
		best = consider(best, Check{
			Flagged:    true,
			Confidence: 0.7,
			Reason:     fmt.Sprintf("token %q accounts for %.0f%% of the text", token, share*100),
		})
	}

	return best
}

func consider(best, candidate Check) Check {
	if candidate.Confidence > best.Confidence {
		return candidate
	}
	return best
}

// repeatedPhrase scans for the longest contiguous phrase (up to 12 tokens)
// that repeats back-to-back, case-insensitively, and returns it with its
// repeat count. Single-token loops count: "yes yes yes" is a one-word phrase
// repeated three times.
func repeatedPhrase(tokens []string) (string, int) {
	lowered := make([]string, len(tokens))
	for i, t := range tokens {
		lowered[i] = strings.ToLower(t)
	}

	bestPhrase, bestCount := "", 0
	maxLen := 12
	if maxLen > len(tokens)/3 {
		maxLen = len(tokens) / 3
	}
	for phraseLen := 1; phraseLen <= maxLen; phraseLen++ {
		for start := 0; start+phraseLen*3 <= len(tokens); start++ {
			count := 1
			for next := start + phraseLen; next+phraseLen <= len(tokens); next += phraseLen {
				if !equalRange(lowered, start, next, phraseLen) {
					break
				}
				count++
			}
			if count >= 3 && count > bestCount {
				bestPhrase = strings.Join(tokens[start:start+phraseLen], " ")
				bestCount = count
			}
		}
	}
	return bestPhrase, bestCount
}

func equalRange(tokens []string, a, b, n int) bool {
	for i := 0; i < n; i++ {
		if tokens[a+i] != tokens[b+i] {
			return false
		}
	}
	return true
}

// dominantToken finds the normalized token (longer than two characters) with
// the highest count, reporting its share of the whole token stream. Short
// tokens cannot be the dominant one but still count toward the denominator.
func dominantToken(tokens []string) (string, float64, int) {
	if len(tokens) == 0 {
		return "", 0, 0
	}
	counts := make(map[string]int)
	for _, t := range tokens {
		norm := normalizeToken(t)
		if len(norm) <= 2 {
			continue
		}
		counts[norm]++
	}
	bestToken, bestCount := "", 0
	for token, count := range counts {
		if count > bestCount {
			bestToken, bestCount = token, count
		}
	}
	return bestToken, float64(bestCount) / float64(len(tokens)), bestCount
}

// normalizeToken lowercases and strips everything but letters and digits.
func normalizeToken(t string) string {
	var b strings.Builder
	for _, r := range t {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
