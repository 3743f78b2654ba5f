package chunker

import (
	"strings"
	"testing"
)

func BenchmarkChunk(b *testing.B) {
	c, err := New(DefaultSize, DefaultOverlap)
	if err != nil {
		b.Fatal(err)
	}
	text := strings.Repeat("stochastic gradient descent converges under mild assumptions ", 2000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Chunk(text)
	}
}
