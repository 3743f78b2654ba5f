package embedding

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/hyperjump/gakumon/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests. It returns a fixed-dimension
// vector seeded from the text hash so that the same text always gets the same embedding
// and different texts get unrelated ones.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed := uint64(HashString(text))
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = float32(rng.Float64()*2 - 1)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Model returns the mock model identity.
func (e *MockEmbedder) Model() string {
	return "mock-random"
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

// HashEmbedder is an offline bag-of-words embedder using signed feature hashing.
// Texts sharing words get positive cosine similarity, which makes it usable for
// demos and tests that need relevance without a model.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a feature-hashing embedder with the given dimension.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed hashes each lowercased word into a signed bucket and normalizes the result.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()[]{}")
		if word == "" {
			continue
		}
		h := HashString(word)
		sign := float32(1)
		if (h>>40)&1 == 1 {
			sign = -1
		}
		emb[h%e.dimensions] += sign
	}
	if utils.NormalizeL2(emb) == 0 {
		// Keep the vector well-defined for texts made only of punctuation.
		emb[0] = 1
	}
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int { return e.dimensions }

// Model returns the hash model identity, including the dimension.
func (e *HashEmbedder) Model() string { return "hash-bow" }

// Close is a no-op.
func (e *HashEmbedder) Close() error { return nil }

func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
