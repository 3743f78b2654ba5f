// Package vector provides the similarity index used by the retrieval engine: an append-only,
// positionally addressed store of L2-normalized vectors searched by cosine similarity.
package vector

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrEmptyInput is returned when Build is given no vectors.
	ErrEmptyInput = errors.New("empty input")
	// ErrIndexNotInitialized is returned when inserting before Build or searching an empty index.
	ErrIndexNotInitialized = errors.New("index not initialized")
)

// Result is a single search hit. Position is the 0-based insertion position of the vector,
// which is also the position of its chunk in the chunk store.
type Result struct {
	Position int
	Score    float64 // cosine similarity in [-1, 1]
}

// Index is the capability interface for vector backends. Every vector is L2-normalized
// before it is stored and every query before it is compared, so scores are cosine
// similarities. Positions are dense and assigned in insertion order.
type Index interface {
	// Build discards any previous content and indexes vectors, fixing the dimension from vectors[0].
	Build(ctx context.Context, vectors [][]float32) error
	// Insert appends vectors after the existing ones.
	Insert(ctx context.Context, vectors [][]float32) error
	// Search returns at most k results by descending score; ties go to the lower position.
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
	Size() int
	// Dimensions returns the fixed dimension, or 0 before the first Build.
	Dimensions() int
	// Truncate drops every vector at position >= n.
	Truncate(n int) error
	// WriteTo serializes the index in the shared binary format (see Encode).
	WriteTo(w io.Writer) (int64, error)
	// ReadFrom replaces the index content with a blob produced by WriteTo.
	ReadFrom(r io.Reader) (int64, error)
	Type() string
	Close() error
}
