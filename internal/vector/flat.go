package vector

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/hyperjump/gakumon/pkg/utils"
)

// FlatIndex is an exact, brute-force inner product index held in memory.
// Vectors are stored normalized in one contiguous row-major slice.
type FlatIndex struct {
	dimensions int
	data       []float32
	mu         sync.RWMutex
}

// NewFlatIndex creates an empty flat index. The dimension is fixed by Build or ReadFrom.
func NewFlatIndex() *FlatIndex {
	return &FlatIndex{}
}

// Type returns the index type identifier.
func (f *FlatIndex) Type() string {
	return string(IndexTypeFlat)
}

// Build replaces the index content with vectors.
func (f *FlatIndex) Build(ctx context.Context, vectors [][]float32) error {
	if len(vectors) == 0 {
		return fmt.Errorf("build: %w", ErrEmptyInput)
	}
	dims := len(vectors[0])
	if dims == 0 {
		return fmt.Errorf("build: zero-length vector: %w", ErrDimensionMismatch)
	}
	data, err := flatten(ctx, vectors, dims)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dimensions = dims
	f.data = data
	return nil
}

// Insert appends vectors. All of them are validated before any is stored.
func (f *FlatIndex) Insert(ctx context.Context, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dimensions == 0 {
		return fmt.Errorf("insert: %w", ErrIndexNotInitialized)
	}
	if len(vectors) == 0 {
		return nil
	}
	data, err := flatten(ctx, vectors, f.dimensions)
	if err != nil {
		return err
	}
	f.data = append(f.data, data...)
	return nil
}

// flatten validates dimensions and returns normalized copies laid out row-major.
func flatten(ctx context.Context, vectors [][]float32, dims int) ([]float32, error) {
	out := make([]float32, 0, len(vectors)*dims)
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("vector %d has %d dimensions, index has %d: %w", i, len(v), dims, ErrDimensionMismatch)
		}
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		start := len(out)
		out = append(out, v...)
		utils.NormalizeL2(out[start:])
	}
	return out, nil
}

// Search returns the top-k positions by cosine similarity with the query.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := f.size()
	if n == 0 {
		return nil, fmt.Errorf("search: %w", ErrIndexNotInitialized)
	}
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w", len(query), f.dimensions, ErrDimensionMismatch)
	}
	if k <= 0 {
		return []Result{}, nil
	}
	k = min(k, n)

	q := utils.Normalized(query)
	results := make([]Result, n)
	for i := 0; i < n; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row := f.data[i*f.dimensions : (i+1)*f.dimensions]
		results[i] = Result{Position: i, Score: utils.Dot(q, row)}
	}
	// Stable sort keeps ascending positions among equal scores.
	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return results[:k:k], nil
}

// Truncate drops every vector at position >= n.
func (f *FlatIndex) Truncate(n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n < 0 || n > f.size() {
		return fmt.Errorf("truncate to %d: index has %d vectors", n, f.size())
	}
	f.data = f.data[:n*f.dimensions]
	return nil
}

// WriteTo serializes the index.
func (f *FlatIndex) WriteTo(w io.Writer) (int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Encode(w, f.dimensions, f.data)
}

// ReadFrom replaces the index content with a serialized blob.
func (f *FlatIndex) ReadFrom(r io.Reader) (int64, error) {
	dims, data, n, err := Decode(r)
	if err != nil {
		return n, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dimensions = dims
	f.data = data
	return n, nil
}

// Size returns the number of vectors in the index.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.size()
}

func (f *FlatIndex) size() int {
	if f.dimensions == 0 {
		return 0
	}
	return len(f.data) / f.dimensions
}

// Dimensions returns the vector dimension, or 0 before Build.
func (f *FlatIndex) Dimensions() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dimensions
}

// Close releases the stored vectors.
func (f *FlatIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = nil
	return nil
}
