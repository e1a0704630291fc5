package text_test

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/book-expert/talktwin/internal/tts/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkTexts(chunks []text.Chunk) []string {
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
	}

	return texts
}

func TestNewChunker_InvalidSize(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, -1, -2000} {
		_, err := text.NewChunker(size)
		require.ErrorIs(t, err, text.ErrInvalidChunkSize)

		_, err = text.Split("anything", size)
		require.ErrorIs(t, err, text.ErrInvalidChunkSize)
	}
}

func TestSplit_WordBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		max      int
		expected []string
	}{
		{name: "empty input", input: "", max: 10, expected: []string{}},
		{name: "shorter than limit", input: "short", max: 10, expected: []string{"short"}},
		{name: "exactly the limit", input: "0123456789", max: 10, expected: []string{"0123456789"}},
		{
			name:     "quick brown fox",
			input:    "the quick brown fox",
			max:      10,
			expected: []string{"the quick", "brown fox"},
		},
		{name: "space right at the limit", input: "abcd efgh", max: 4, expected: []string{"abcd", "efgh"}},
		{
			name:     "many short words",
			input:    "a b c d e f g",
			max:      3,
			expected: []string{"a b", "c d", "e f", "g"},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			chunks, err := text.Split(testCase.input, testCase.max)
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, chunkTexts(chunks))

			for i, chunk := range chunks {
				assert.Equal(t, i, chunk.Index)
				assert.False(t, chunk.HardSplit)
			}
		})
	}
}

func TestSplit_HardSplitWithoutSpace(t *testing.T) {
	t.Parallel()

	chunks, err := text.Split("abcdefghij", 4)
	require.NoError(t, err)

	assert.Equal(t, []string{"abcd", "efgh", "ij"}, chunkTexts(chunks))
	assert.True(t, chunks[0].HardSplit)
	assert.True(t, chunks[1].HardSplit)
	assert.False(t, chunks[2].HardSplit)
	assert.Equal(t, "abcdefghij", text.Join(chunks))
}

func TestSplit_MixedHardAndSoftSplits(t *testing.T) {
	t.Parallel()

	input := "supercalifragilistic is long"

	chunks, err := text.Split(input, 8)
	require.NoError(t, err)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk.Text), 8)
	}

	assert.Equal(t, input, text.Join(chunks))
}

func TestSplit_SingleChunkForShortDocument(t *testing.T) {
	t.Parallel()

	chunks, err := text.Split("Hello World. Goodbye.", text.DefaultMaxChunkLength)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Hello World. Goodbye.", chunks[0].Text)
}

func TestSplit_Properties(t *testing.T) {
	t.Parallel()

	words := []string{"a", "narration", "of", "the", "document", "speech", "is", "x", "synthesized"}
	random := rand.New(rand.NewSource(42)) //nolint:gosec // deterministic test data

	for iteration := range 200 {
		count := random.Intn(60)
		parts := make([]string, 0, count)

		for range count {
			parts = append(parts, words[random.Intn(len(words))])
		}

		input := text.Normalize(strings.Join(parts, " "))
		maxLength := 11 + random.Intn(40)

		chunks, err := text.Split(input, maxLength)
		require.NoError(t, err)

		for i, chunk := range chunks {
			assert.Equal(t, i, chunk.Index, "iteration %d", iteration)
			assert.LessOrEqual(t, len(chunk.Text), maxLength, "iteration %d", iteration)
			assert.NotEmpty(t, chunk.Text)
			assert.False(t, chunk.HardSplit, "words are shorter than the limit")
		}

		assert.Equal(t, input, strings.Join(chunkTexts(chunks), " "), "iteration %d", iteration)
	}
}

func TestChunker_Deterministic(t *testing.T) {
	t.Parallel()

	chunker, err := text.NewChunker(16)
	require.NoError(t, err)
	assert.Equal(t, 16, chunker.MaxLength())

	input := "deterministic output for identical input every time"

	assert.Equal(t, chunker.Split(input), chunker.Split(input))
}
