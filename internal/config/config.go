// Package config provides configuration loading and structs for the gakumon server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Index      IndexConfig      `yaml:"index"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Generation GenerationConfig `yaml:"generation"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RequestTimeoutSeconds bounds each API request, including rebuilds.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
	// MaxBodyBytes caps request bodies. Larger requests get 413.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// RequestTimeout returns the per-request timeout.
func (s *ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// StorageConfig holds paths for the document catalog and the index snapshot.
// SnapshotPath is a base path: the snapshot lives at <SnapshotPath>.index and
// <SnapshotPath>_chunks.json.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	SnapshotPath string `yaml:"snapshot_path"`
	UseCache     *bool  `yaml:"use_cache"`
}

// UseCacheOrDefault reports whether a warm start from the snapshot is allowed; defaults to true.
func (s *StorageConfig) UseCacheOrDefault() bool {
	if s.UseCache != nil {
		return *s.UseCache
	}
	return true
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of "hash", "onnx", "openai", "gemini".
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`

	// onnx
	ModelPath  string `yaml:"model_path"`
	MaxTokens  int    `yaml:"max_tokens"`
	OutputName string `yaml:"output_name"`

	// openai / gemini
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`

	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the per-call embedding timeout.
func (e *EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// APIKey reads the provider API key from the configured environment variable.
func (e *EmbeddingConfig) APIKey() string {
	if e.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(e.APIKeyEnv)
}

// IndexConfig selects the vector index backend ("flat" or "faiss").
type IndexConfig struct {
	Type string `yaml:"type"`
}

// RetrievalConfig holds chunking and top-k settings.
type RetrievalConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is a pointer so an explicit 0 survives ApplyDefaults.
	ChunkOverlap *int `yaml:"chunk_overlap"`
	TopK         int  `yaml:"top_k"`
	MaxTopK      int  `yaml:"max_top_k"`
}

// OverlapOrDefault returns the configured overlap, or the default of 50.
func (r *RetrievalConfig) OverlapOrDefault() int {
	if r.ChunkOverlap != nil {
		return *r.ChunkOverlap
	}
	return defaultChunkOverlap
}

// CorpusConfig lists the document directories loaded at startup and optionally watched.
type CorpusConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	Watch       bool     `yaml:"watch"`
}

// RecursiveOrDefault returns whether to walk directories recursively; defaults to true when unset.
func (c *CorpusConfig) RecursiveOrDefault() bool {
	if c.Recursive != nil {
		return *c.Recursive
	}
	return true
}

// GenerationConfig configures the optional answer-generation client.
type GenerationConfig struct {
	Enabled         bool    `yaml:"enabled"`
	BaseURL         string  `yaml:"base_url"`
	APIKeyEnv       string  `yaml:"api_key_env"`
	Model           string  `yaml:"model"`
	Temperature     float32 `yaml:"temperature"`
	MaxContextChars int     `yaml:"max_context_chars"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
}

// APIKey reads the generation API key from the configured environment variable.
func (g *GenerationConfig) APIKey() string {
	if g.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(g.APIKeyEnv)
}

// Load reads and parses the config file at path, loads a .env file next to it when present,
// expands paths, and applies defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	if err := loadDotEnv(configDir); err != nil {
		return nil, err
	}

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.SnapshotPath = expandPath(cfg.Storage.SnapshotPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Corpus.Directories {
		cfg.Corpus.Directories[i] = expandPath(cfg.Corpus.Directories[i], configDir)
	}

	return &cfg, nil
}

// loadDotEnv loads API keys from <configDir>/.env without overriding variables already set.
func loadDotEnv(configDir string) error {
	envPath := filepath.Join(configDir, ".env")
	if _, err := os.Stat(envPath); err != nil {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("failed to load %s: %w", envPath, err)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" and other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}
