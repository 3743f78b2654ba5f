package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/gakumon/internal/config"
)

// New builds the embedder selected by cfg.Provider, wrapped in an LRU cache when
// cfg.CacheSize > 0. There is no silent fallback: a provider that cannot be built
// returns an error.
func New(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case "hash", "":
		e = NewHashEmbedder(cfg.Dimensions)
	case "mock":
		e = NewMockEmbedder(cfg.Dimensions)
	case "onnx":
		e, err = NewONNXEmbedder(ONNXOptions{
			ModelPath:  cfg.ModelPath,
			Dimensions: cfg.Dimensions,
			MaxTokens:  cfg.MaxTokens,
			OutputName: cfg.OutputName,
		})
	case "openai":
		e, err = NewOpenAIEmbedder(OpenAIOptions{
			APIKey:      cfg.APIKey(),
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Dimensions:  cfg.Dimensions,
			BatchSize:   cfg.BatchSize,
			Concurrency: cfg.Concurrency,
		})
	case "gemini":
		e, err = NewGeminiEmbedder(ctx, GeminiOptions{
			APIKey:      cfg.APIKey(),
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Dimensions:  cfg.Dimensions,
			BatchSize:   cfg.BatchSize,
			Concurrency: cfg.Concurrency,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s embedder: %w", cfg.Provider, err)
	}
	if cfg.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}
	return e, nil
}
