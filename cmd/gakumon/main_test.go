package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/gakumon/internal/config"
	"github.com/hyperjump/gakumon/internal/docid"
	"github.com/hyperjump/gakumon/internal/engine"
	"github.com/hyperjump/gakumon/internal/models"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"attention is all you need", "-k", "3"},
			expected: []string{"-k", "3", "attention is all you need"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-k", "3", "attention is all you need"},
			expected: []string{"-k", "3", "attention is all you need"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"attention is all you need"},
			expected: []string{"attention is all you need"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"one", "two", "-format", "json"},
			expected: []string{"-format", "json", "one", "two"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"backpropagation"}, "backpropagation"},
		{"multiple words", []string{"gradient", "descent"}, "gradient descent"},
		{"single quoted phrase", []string{"gradient descent"}, "gradient descent"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestConfigPathFromArgs(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		defaultPath string
		want        string
	}{
		{"no config flag", []string{"-k", "5", "query"}, "/default.yaml", "/default.yaml"},
		{"-config present", []string{"-config", "/custom.yaml", "query"}, "/default.yaml", "/custom.yaml"},
		{"--config present", []string{"--config", "/other.yaml"}, "/default.yaml", "/other.yaml"},
		{"config at end", []string{"query", "-config", "/end.yaml"}, "/default.yaml", "/end.yaml"},
		{"dangling flag", []string{"query", "-config"}, "/default.yaml", "/default.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := configPathFromArgs(tt.args, tt.defaultPath)
			if got != tt.want {
				t.Errorf("configPathFromArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServerURLFromConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9100
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if got := serverURLFromConfig(configPath); got != "http://127.0.0.1:9100" {
		t.Errorf("serverURLFromConfig() = %q", got)
	}
	if got := serverURLFromConfig(filepath.Join(dir, "nonexistent.yaml")); got != defaultServerURL {
		t.Errorf("serverURLFromConfig(nonexistent) = %q, want %q", got, defaultServerURL)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")
	if err := writeDefaultConfig(path, false); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retrieval.ChunkSize != 300 || cfg.Retrieval.OverlapOrDefault() != 50 || cfg.Embedding.Provider != "hash" {
		t.Errorf("unexpected defaults: %+v / %+v", cfg.Retrieval, cfg.Embedding)
	}
	if want := filepath.Join(filepath.Dir(path), "documents"); len(cfg.Corpus.Directories) != 1 || cfg.Corpus.Directories[0] != want {
		t.Errorf("corpus directories = %v, want [%s]", cfg.Corpus.Directories, want)
	}

	if err := writeDefaultConfig(path, false); err == nil {
		t.Error("expected error when the file exists")
	}
	if err := writeDefaultConfig(path, true); err != nil {
		t.Errorf("force overwrite: %v", err)
	}
}

func TestHTTPClient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/retrieve":
			var req models.RetrieveRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Query == "" {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid request: query cannot be empty"})
				return
			}
			_ = json.NewEncoder(w).Encode(models.RetrieveResponse{
				Query:    req.Query,
				Passages: []*models.Passage{{Rank: 1, Position: 4, Score: 0.9, Text: "passage"}},
			})
		case "/api/v1/documents":
			var in models.DocumentInput
			_ = json.NewDecoder(r.Body).Decode(&in)
			resp := models.AddResponse{Document: &models.Document{ID: in.ID, Title: in.Title}}
			if in.ID == "known" {
				resp.Skipped = true
				resp.Reason = "unchanged"
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusCreated)
			}
			_ = json.NewEncoder(w).Encode(resp)
		case "/api/v1/rebuild":
			_ = json.NewEncoder(w).Encode(models.RebuildResponse{Status: "rebuilt", Chunks: 3})
		case "/api/v1/status":
			_ = json.NewEncoder(w).Encode(models.StatusResponse{State: "ready", Chunks: 3})
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("engine not ready\n"))
		}
	}))
	defer ts.Close()

	t.Run("retrieve", func(t *testing.T) {
		resp, err := retrieveViaHTTP(ts.URL, &models.RetrieveRequest{Query: "attention", K: 1})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Query != "attention" || len(resp.Passages) != 1 || resp.Passages[0].Position != 4 {
			t.Errorf("retrieve = %+v", resp)
		}
	})

	t.Run("api error message", func(t *testing.T) {
		_, err := retrieveViaHTTP(ts.URL, &models.RetrieveRequest{})
		if err == nil || !strings.Contains(err.Error(), "400: invalid request: query cannot be empty") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("plain error body", func(t *testing.T) {
		_, err := askViaHTTP(ts.URL, &models.AskRequest{Question: "why"})
		if err == nil || !strings.Contains(err.Error(), "503: engine not ready") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("add accepts created and skipped", func(t *testing.T) {
		created, err := addViaHTTP(ts.URL, models.DocumentInput{ID: "new", Content: "x"})
		if err != nil || created.Skipped {
			t.Fatalf("created = %+v, %v", created, err)
		}
		skipped, err := addViaHTTP(ts.URL, models.DocumentInput{ID: "known", Content: "x"})
		if err != nil || !skipped.Skipped || skipped.Reason != "unchanged" {
			t.Fatalf("skipped = %+v, %v", skipped, err)
		}
	})

	t.Run("rebuild and status", func(t *testing.T) {
		rb, err := rebuildViaHTTP(ts.URL)
		if err != nil || rb.Status != "rebuilt" {
			t.Fatalf("rebuild = %+v, %v", rb, err)
		}
		st, err := statusViaHTTP(ts.URL)
		if err != nil || st.State != "ready" || st.Chunks != 3 {
			t.Fatalf("status = %+v, %v", st, err)
		}
	})
}

func TestAddInputs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(path, []byte("Entropy measures uncertainty."), 0644); err != nil {
		t.Fatal(err)
	}

	inputs, err := addInputs([]string{path}, "Raw lecture text.", "Lecture 1")
	if err != nil {
		t.Fatal(err)
	}
	if len(inputs) != 2 {
		t.Fatalf("got %d inputs, want 2", len(inputs))
	}
	if inputs[0].Title != "Lecture 1" || inputs[0].ID != "" || inputs[0].Content != "Raw lecture text." {
		t.Errorf("text input = %+v", inputs[0])
	}
	if inputs[1].ID != docid.FromPath(path) || inputs[1].Title != "notes.md" || inputs[1].Content != "Entropy measures uncertainty." {
		t.Errorf("file input = %+v", inputs[1])
	}

	if _, err := addInputs([]string{dir}, "", ""); err == nil {
		t.Error("expected error for a directory")
	}
	if _, err := addInputs([]string{filepath.Join(dir, "missing.txt")}, "", ""); err == nil {
		t.Error("expected error for a missing file")
	}
}

func writeTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	corpusDir := filepath.Join(dir, "corpus")
	if err := os.MkdirAll(corpusDir, 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"a.txt": "Gradient descent minimizes a loss function by following the negative gradient.",
		"b.md":  "Attention layers weigh every token against every other token in the sequence.",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(corpusDir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	configPath := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/documents.db"
  snapshot_path: "./data/faiss_index"
embedding:
  provider: hash
  dimensions: 32
retrieval:
  chunk_size: 40
  chunk_overlap: 10
  top_k: 2
corpus:
  directories: ["./corpus"]
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestComponents_startAndStatus(t *testing.T) {
	cfg := writeTestConfig(t)
	ctx := context.Background()

	c, err := initializeComponents(ctx, cfg, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Generator != nil || c.answerer() != nil {
		t.Error("generator should be disabled without generation.enabled")
	}

	report, err := c.Start(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if report.Warm || report.Size == 0 || report.Added != report.Size {
		t.Errorf("cold start report = %+v", report)
	}

	passages, err := c.Engine.Search(ctx, "gradient descent loss", 1)
	if err != nil || len(passages) != 1 {
		t.Fatalf("search = %v, %v", passages, err)
	}

	st, err := directStatus(ctx, c, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != "ready" || st.Documents != 2 || st.Chunks != report.Size || st.Dimensions != 32 {
		t.Errorf("status = %+v", st)
	}
	if st.DiskUsageBytes == 0 {
		t.Error("disk usage should count the catalog and snapshot")
	}
}

func TestRebuildDirect(t *testing.T) {
	cfg := writeTestConfig(t)
	ctx := context.Background()

	first, err := initializeComponents(ctx, cfg, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	report, err := first.Start(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	first.Close()

	t.Run("from snapshot", func(t *testing.T) {
		c, err := initializeComponents(ctx, cfg, nil, false)
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()
		rb, err := rebuildDirect(ctx, c, false)
		if err != nil {
			t.Fatal(err)
		}
		if rb.Status != "rebuilt" || rb.Chunks != report.Size || rb.Dimensions != 32 {
			t.Errorf("rebuild = %+v", rb)
		}
	})

	t.Run("from corpus over a corrupt snapshot", func(t *testing.T) {
		c, err := initializeComponents(ctx, cfg, nil, false)
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()
		indexPath := c.Engine.Status().SnapshotIndex
		if err := os.WriteFile(indexPath, []byte("garbage"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := rebuildDirect(ctx, c, false); err == nil {
			t.Fatal("expected error for a corrupt snapshot")
		}
		rb, err := rebuildDirect(ctx, c, true)
		if err != nil {
			t.Fatal(err)
		}
		if rb.Chunks != report.Size {
			t.Errorf("rebuild from corpus = %+v, want %d chunks", rb, report.Size)
		}
	})
}

func TestComponents_emptyCorpusWithoutSnapshot(t *testing.T) {
	cfg := writeTestConfig(t)
	cfg.Corpus.Directories = nil

	c, err := initializeComponents(context.Background(), cfg, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.Start(context.Background(), true); !errors.Is(err, engine.ErrEmptyInput) {
		t.Errorf("err = %v, want ErrEmptyInput", err)
	}
}
