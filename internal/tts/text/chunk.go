package text

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultMaxChunkLength is the chunk size used when none is configured.
const DefaultMaxChunkLength = 2000

// ErrInvalidChunkSize is returned for a non-positive maximum chunk length.
var ErrInvalidChunkSize = errors.New("maximum chunk length must be positive")

// Chunk is a contiguous piece of CleanText synthesized on its own.
type Chunk struct {
	// Index is the 0-based position of the chunk in its document.
	Index int    `json:"index"`
	Text  string `json:"text"`
	// HardSplit is set when the chunk was cut mid-word because no space
	// existed within the limit; the next chunk continues the same word.
	HardSplit bool `json:"hardSplit,omitempty"`
}

// Chunker splits CleanText into chunks no longer than its maximum length.
type Chunker struct {
	maxLength int
}

// NewChunker validates the maximum length once so a bad configuration fails at
// startup rather than in the middle of a pass.
func NewChunker(maxLength int) (*Chunker, error) {
	if maxLength <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, maxLength)
	}

	return &Chunker{maxLength: maxLength}, nil
}

// MaxLength returns the configured limit.
func (c *Chunker) MaxLength() int {
	return c.maxLength
}

// Split cuts text at the last space at or before the limit. The space itself
// separates the chunks and belongs to neither. When no space exists within
// the limit the text is cut exactly at the limit.
func (c *Chunker) Split(text string) []Chunk {
	var chunks []Chunk

	remaining := text

	for len(remaining) > c.maxLength {
		cut := strings.LastIndexByte(remaining[:c.maxLength+1], ' ')
		if cut <= 0 {
			chunks = append(chunks, Chunk{
				Index:     len(chunks),
				Text:      remaining[:c.maxLength],
				HardSplit: true,
			})
			remaining = remaining[c.maxLength:]

			continue
		}

		chunks = append(chunks, Chunk{Index: len(chunks), Text: remaining[:cut]})
		remaining = remaining[cut+1:]
	}

	if remaining != "" {
		chunks = append(chunks, Chunk{Index: len(chunks), Text: remaining})
	}

	return chunks
}

// Split is a convenience wrapper that validates maxLength and splits text.
func Split(text string, maxLength int) ([]Chunk, error) {
	chunker, err := NewChunker(maxLength)
	if err != nil {
		return nil, err
	}

	return chunker.Split(text), nil
}

// Join reassembles chunks into the text they were split from.
func Join(chunks []Chunk) string {
	var builder strings.Builder

	for i, chunk := range chunks {
		builder.WriteString(chunk.Text)

		if i < len(chunks)-1 && !chunk.HardSplit {
			builder.WriteString(singleSpace)
		}
	}

	return builder.String()
}
