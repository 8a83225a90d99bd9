package transcriber

import (
	"math"
	"strings"
)

// MergeChunks joins sequentially transcribed overlapping chunks into one text.
// The overlap region is roughly overlapSeconds of speech; with k tokens
// expected in it, the tail of the accumulated text is aligned against candidate
// start positions near the head of each new chunk, and when at least two tokens
// line up the matched prefix is skipped before appending. Alignment failures
// append the chunk verbatim, which can duplicate a few words but never loses
// any. Output is whitespace-collapsed and trimmed; a single chunk passes
// through unchanged apart from that.
func MergeChunks(texts []string, overlapSeconds float64) string {
	if len(texts) == 0 {
		return ""
	}

	// ~2.5 words per second of overlap.
	k := int(math.Ceil(2.5 * overlapSeconds))
	if k < 1 {
		k = 1
	}

	acc := strings.Fields(texts[0])
	for _, text := range texts[1:] {
		next := strings.Fields(text)
		if len(next) == 0 {
			continue
		}
		if len(acc) == 0 {
			acc = next
			continue
		}

		tail := acc
		if len(tail) > 2*k {
			tail = tail[len(tail)-2*k:]
		}
		normTail := normalizeTokens(tail)
		normNext := normalizeTokens(next)

		bestMatches, bestIndex := 0, 0
		maxStart := 3 * k
		if maxStart > len(normNext) {
			maxStart = len(normNext)
		}
		for start := 0; start < maxStart; start++ {
			length := k
			if start+length > len(normNext) {
				length = len(normNext) - start
			}
			if length > len(normTail) {
				length = len(normTail)
			}
			matches := 0
			tailFrom := len(normTail) - length
			for j := 0; j < length; j++ {
				if normTail[tailFrom+j] != "" && normTail[tailFrom+j] == normNext[start+j] {
					matches++
				}
			}
			if matches > bestMatches {
				bestMatches = matches
				bestIndex = start + length
			}
		}

		if bestMatches >= 2 && bestIndex <= len(next) {
			acc = append(acc, next[bestIndex:]...)
		} else {
			acc = append(acc, next...)
		}
	}

	return strings.TrimSpace(strings.Join(acc, " "))
}

func normalizeTokens(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = normalizeToken(t)
	}
	return out
}
