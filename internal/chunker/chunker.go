// Package chunker splits raw text into overlapping fixed-size word windows.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultSize is the default window length in words.
	DefaultSize = 300
	// DefaultOverlap is the default number of words shared by consecutive windows.
	DefaultOverlap = 50
)

// ErrInvalidConfiguration is returned for chunk parameters that cannot make progress.
var ErrInvalidConfiguration = errors.New("invalid chunk configuration")

// Chunker splits text into overlapping word-based chunks.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker with the given size and overlap (in words).
// It requires size > 0, overlap >= 0 and size > overlap.
func New(size, overlap int) (*Chunker, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Validate checks chunking parameters without building a Chunker.
func Validate(size, overlap int) error {
	switch {
	case size <= 0:
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfiguration, size)
	case overlap < 0:
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfiguration, overlap)
	case size-overlap <= 0:
		return fmt.Errorf("%w: size %d must exceed overlap %d", ErrInvalidConfiguration, size, overlap)
	}
	return nil
}

// Size returns the window length in words.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of words shared by consecutive windows.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text on whitespace and emits a window of Size words at every
// stride of Size-Overlap words until the start offset reaches the end of the
// word sequence. The last window may be shorter. Empty input yields nil.
func (c *Chunker) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.size - c.overlap
	chunks := make([]string, 0, (len(words)+step-1)/step)
	for start := 0; start < len(words); start += step {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}

// ChunkAll chunks every document in order and concatenates the results.
func (c *Chunker) ChunkAll(texts []string) []string {
	var out []string
	for _, t := range texts {
		out = append(out, c.Chunk(t)...)
	}
	return out
}

// Split is a one-shot helper equivalent to New(size, overlap) followed by Chunk.
func Split(text string, size, overlap int) ([]string, error) {
	c, err := New(size, overlap)
	if err != nil {
		return nil, err
	}
	return c.Chunk(text), nil
}
