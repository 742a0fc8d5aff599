package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkTextBlank(t *testing.T) {
	assert.Nil(t, chunkText("", 100, 10))
	assert.Nil(t, chunkText("   \n\t", 100, 10))
}

func TestChunkTextSingleChunk(t *testing.T) {
	got := chunkText("short text", 100, 10)
	assert.Equal(t, []string{"short text"}, got)
}

func TestChunkTextWindows(t *testing.T) {
	text := strings.Repeat("word ", 200) // 1000 runes
	got := chunkText(text, 300, 50)

	assert.Greater(t, len(got), 2)
	for i, c := range got {
		assert.LessOrEqual(t, len([]rune(c)), 300, "chunk %d too large", i)
		assert.NotEmpty(t, c)
	}
}

func TestChunkTextOverlapCarriesContext(t *testing.T) {
	// Overlapping windows re-emit text, so the combined length of all
	// chunks grows with the overlap.
	text := strings.Repeat("alpha beta gamma delta ", 50)

	total := func(chunks []string) int {
		n := 0
		for _, c := range chunks {
			n += len([]rune(c))
		}
		return n
	}

	plain := chunkText(text, 200, 0)
	overlapped := chunkText(text, 200, 40)
	assert.Greater(t, total(overlapped), total(plain))
}

func TestChunkTextEndsOnWordBoundaries(t *testing.T) {
	// Without overlap, each window ends at a whitespace back-off point and
	// the next starts right after it, so no word is ever cut.
	text := strings.Repeat("abcdefghij ", 100)
	for _, c := range chunkText(text, 64, 0) {
		for _, w := range strings.Fields(c) {
			assert.Equal(t, "abcdefghij", w)
		}
	}
}

func TestChunkTextDegenerateParams(t *testing.T) {
	// Bad size/overlap fall back to defaults instead of looping forever.
	got := chunkText("some text here", 0, -5)
	assert.Equal(t, []string{"some text here"}, got)

	long := strings.Repeat("x", 5000)
	got = chunkText(long, 1000, 2000)
	assert.NotEmpty(t, got)
}
