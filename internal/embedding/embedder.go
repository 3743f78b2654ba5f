// Package embedding turns text into vectors. It defines the Embedder contract consumed by
// the retrieval engine, a validating Adapter that enforces it, and provider clients
// (hash, ONNX, OpenAI-compatible, Gemini).
package embedding

import (
	"context"
	"errors"
)

// ErrEmbeddingUnavailable is returned when the embedding capability cannot be reached
// or returns malformed output (wrong count, wrong dimensionality, non-finite values).
var ErrEmbeddingUnavailable = errors.New("embedding unavailable")

// Embedder produces vector embeddings for text. Implementations must be deterministic
// for a fixed model: identical text yields identical output.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch is semantically identical to calling Embed for each text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the output dimension, or 0 when it is only known after the first call.
	Dimensions() int
	// Model identifies the model; persisted alongside snapshots.
	Model() string
	Close() error
}
