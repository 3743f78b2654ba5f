package embedding

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

// GeminiOptions configures the Gemini embedder.
type GeminiOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Dimensions  int
	BatchSize   int
	Concurrency int
}

// GeminiEmbedder wraps a genai.Client and calls the EmbedContent API.
type GeminiEmbedder struct {
	client      *genai.Client
	model       string
	dims        int
	batchSize   int
	concurrency int
}

// NewGeminiEmbedder creates a Gemini API embedder.
func NewGeminiEmbedder(ctx context.Context, opts GeminiOptions) (*GeminiEmbedder, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini embedder: API key not set")
	}
	if opts.Model == "" {
		opts.Model = "text-embedding-004"
	}
	if opts.BatchSize <= 0 || opts.BatchSize > 100 {
		opts.BatchSize = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions.BaseURL = opts.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiEmbedder{
		client:      client,
		model:       opts.Model,
		dims:        opts.Dimensions,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
	}, nil
}

// Embed generates an embedding for one text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

// EmbedBatch embeds texts in batches; each batch is one EmbedContent request.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	cfg := &genai.EmbedContentConfig{}
	if e.dims > 0 {
		d := int32(e.dims)
		cfg.OutputDimensionality = &d
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			contents := make([]*genai.Content, 0, end-start)
			for _, t := range texts[start:end] {
				contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: t}}})
			}
			result, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
			if err != nil {
				return fmt.Errorf("failed to generate embeddings: %w", err)
			}
			if len(result.Embeddings) != len(contents) {
				return fmt.Errorf("gemini returned %d embeddings for %d inputs", len(result.Embeddings), len(contents))
			}
			for i, emb := range result.Embeddings {
				if emb == nil {
					return fmt.Errorf("gemini returned nil embedding at %d", start+i)
				}
				out[start+i] = emb.Values
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Dimensions returns the requested output dimensionality (0 when model default).
func (e *GeminiEmbedder) Dimensions() int { return e.dims }

// Model returns the Gemini model name.
func (e *GeminiEmbedder) Model() string { return "gemini:" + e.model }

// Close is a no-op.
func (e *GeminiEmbedder) Close() error { return nil }
