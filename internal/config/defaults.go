package config

const (
	defaultChunkSize    = 300
	defaultChunkOverlap = 50
	defaultTopK         = 8
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeoutSeconds <= 0 {
		cfg.Server.RequestTimeoutSeconds = 300
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 32 << 20
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/gakumon/data/db/documents.db"
	}
	if cfg.Storage.SnapshotPath == "" {
		cfg.Storage.SnapshotPath = "/usr/local/var/gakumon/data/indices/faiss_index"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hash"
	}
	switch cfg.Embedding.Provider {
	case "onnx":
		if cfg.Embedding.ModelPath == "" {
			cfg.Embedding.ModelPath = "/usr/local/var/gakumon/data/models/all-MiniLM-L6-v2.onnx"
		}
		if cfg.Embedding.Dimensions == 0 {
			cfg.Embedding.Dimensions = 384
		}
		if cfg.Embedding.MaxTokens == 0 {
			cfg.Embedding.MaxTokens = 256
		}
	case "openai":
		if cfg.Embedding.Model == "" {
			cfg.Embedding.Model = "text-embedding-3-small"
		}
		if cfg.Embedding.APIKeyEnv == "" {
			cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
		}
	case "gemini":
		if cfg.Embedding.Model == "" {
			cfg.Embedding.Model = "text-embedding-004"
		}
		if cfg.Embedding.APIKeyEnv == "" {
			cfg.Embedding.APIKeyEnv = "GEMINI_API_KEY"
		}
	case "hash":
		if cfg.Embedding.Dimensions == 0 {
			cfg.Embedding.Dimensions = 256
		}
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 4
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 60
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "flat"
	}
	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = defaultChunkSize
	}
	if cfg.Retrieval.ChunkOverlap == nil {
		o := defaultChunkOverlap
		cfg.Retrieval.ChunkOverlap = &o
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = defaultTopK
	}
	if cfg.Retrieval.MaxTopK == 0 {
		cfg.Retrieval.MaxTopK = 100
	}
	if cfg.Corpus.Extensions == nil {
		cfg.Corpus.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".xlsx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Corpus.Directories) > 0 && cfg.Corpus.Recursive == nil {
		t := true
		cfg.Corpus.Recursive = &t
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Generation.APIKeyEnv == "" {
		cfg.Generation.APIKeyEnv = "OPENROUTER_API_KEY"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "mistralai/mistral-7b-instruct"
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = 0.3
	}
	if cfg.Generation.MaxContextChars == 0 {
		cfg.Generation.MaxContextChars = 12000
	}
	if cfg.Generation.TimeoutSeconds == 0 {
		cfg.Generation.TimeoutSeconds = 120
	}
}
