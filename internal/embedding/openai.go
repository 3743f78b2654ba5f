package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

// OpenAIOptions configures an OpenAI-compatible embeddings client.
type OpenAIOptions struct {
	APIKey  string
	BaseURL string // empty means the OpenAI default
	Model   string
	// Dimensions is the expected output size; 0 means learn it from the first response.
	Dimensions  int
	BatchSize   int
	Concurrency int
	HTTPClient  *http.Client
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client      *openai.Client
	model       string
	dims        int
	batchSize   int
	concurrency int
}

// NewOpenAIEmbedder creates an OpenAI-compatible embedder.
func NewOpenAIEmbedder(opts OpenAIOptions) (*OpenAIEmbedder, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai embedder: API key not set")
	}
	if opts.Model == "" {
		opts.Model = string(openai.SmallEmbedding3)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	return &OpenAIEmbedder{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		dims:        opts.Dimensions,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
	}, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

// EmbedBatch sends texts in batches of BatchSize, at most Concurrency requests in flight.
// Results are placed by the index the API reports, not by arrival order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			batch := texts[start:end]
			resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Model: openai.EmbeddingModel(e.model),
				Input: batch,
			})
			if err != nil {
				return fmt.Errorf("openai embeddings: %w", err)
			}
			if len(resp.Data) != len(batch) {
				return fmt.Errorf("openai embeddings: got %d results for %d inputs", len(resp.Data), len(batch))
			}
			for _, d := range resp.Data {
				if d.Index < 0 || d.Index >= len(batch) {
					return fmt.Errorf("openai embeddings: result index %d out of range", d.Index)
				}
				out[start+d.Index] = d.Embedding
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Dimensions returns the configured dimension (0 when unknown).
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dims
}

// Model returns the remote model name.
func (e *OpenAIEmbedder) Model() string {
	return "openai:" + e.model
}

// Close is a no-op; the HTTP client is shared.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
