package transcriber

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func tokens(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return out
}

func TestMergeChunksSingleChunkIdempotent(t *testing.T) {
	assert.Equal(t, "hello world", MergeChunks([]string{"  hello   world \n"}, 5))
	assert.Equal(t, "", MergeChunks(nil, 5))
	assert.Equal(t, "", MergeChunks([]string{"   "}, 5))
}

func TestMergeChunksSkipsMatchedOverlap(t *testing.T) {
	// 5s overlap means k=13 expected shared tokens. The second chunk starts
	// with the first chunk's tail, which the merge must not duplicate.
	first := tokens("a", 30)
	overlap := first[len(first)-13:]
	second := append(append([]string{}, overlap...), tokens("b", 6)...)

	merged := MergeChunks([]string{
		strings.Join(first, " "),
		strings.Join(second, " "),
	}, 5)

	want := strings.Join(append(append([]string{}, first...), tokens("b", 6)...), " ")
	assert.Equal(t, want, merged)
}

func TestMergeChunksAppendsVerbatimWithoutMatch(t *testing.T) {
	first := tokens("a", 20)
	second := tokens("b", 20)

	merged := MergeChunks([]string{
		strings.Join(first, " "),
		strings.Join(second, " "),
	}, 5)

	want := strings.Join(append(append([]string{}, first...), second...), " ")
	assert.Equal(t, want, merged)
}

func TestMergeChunksThreeWay(t *testing.T) {
	a := tokens("x", 26)
	b := append(append([]string{}, a[13:]...), tokens("y", 13)...)
	c := append(append([]string{}, b[len(b)-13:]...), tokens("z", 4)...)

	merged := MergeChunks([]string{
		strings.Join(a, " "),
		strings.Join(b, " "),
		strings.Join(c, " "),
	}, 5)

	want := strings.Join(append(append(append([]string{}, a...), tokens("y", 13)...), tokens("z", 4)...), " ")
	assert.Equal(t, want, merged)
}
