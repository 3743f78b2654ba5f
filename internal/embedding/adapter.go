package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/gakumon/pkg/utils"
)

// Adapter wraps an Embedder and enforces the output contract. Every failure it returns
// wraps ErrEmbeddingUnavailable. The expected dimension is taken from the wrapped
// embedder, or pinned from the first successful call when the embedder reports 0.
type Adapter struct {
	inner   Embedder
	timeout time.Duration

	mu   sync.Mutex
	dims int
}

// NewAdapter wraps inner. A positive timeout bounds every call; zero means no timeout.
// Wrapping an *Adapter returns it unchanged.
func NewAdapter(inner Embedder, timeout time.Duration) *Adapter {
	if a, ok := inner.(*Adapter); ok {
		return a
	}
	return &Adapter{inner: inner, timeout: timeout, dims: inner.Dimensions()}
}

func (a *Adapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout > 0 {
		return context.WithTimeout(ctx, a.timeout)
	}
	return context.WithCancel(ctx)
}

// Embed returns the validated embedding for text.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	v, err := a.inner.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	if err := a.check(v); err != nil {
		return nil, err
	}
	return v, nil
}

// EmbedBatch returns validated embeddings for texts, in order.
func (a *Adapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	vs, err := a.inner.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	if len(vs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingUnavailable, len(vs), len(texts))
	}
	for i, v := range vs {
		if err := a.check(v); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}
	return vs, nil
}

func (a *Adapter) check(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrEmbeddingUnavailable)
	}
	if !utils.AllFinite(v) {
		return fmt.Errorf("%w: embedding contains non-finite values", ErrEmbeddingUnavailable)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dims == 0 {
		a.dims = len(v)
		return nil
	}
	if len(v) != a.dims {
		return fmt.Errorf("%w: embedding has %d dimensions, expected %d", ErrEmbeddingUnavailable, len(v), a.dims)
	}
	return nil
}

// Dimensions returns the expected dimension (0 until known).
func (a *Adapter) Dimensions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dims
}

// Model returns the wrapped embedder's model identity.
func (a *Adapter) Model() string { return a.inner.Model() }

// Close closes the wrapped embedder.
func (a *Adapter) Close() error { return a.inner.Close() }
