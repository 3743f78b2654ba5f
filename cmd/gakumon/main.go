// Package main is the gakumon CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/gakumon/internal/answer"
	"github.com/hyperjump/gakumon/internal/cli"
	"github.com/hyperjump/gakumon/internal/config"
	"github.com/hyperjump/gakumon/internal/docid"
	"github.com/hyperjump/gakumon/internal/embedding"
	"github.com/hyperjump/gakumon/internal/engine"
	"github.com/hyperjump/gakumon/internal/extract"
	"github.com/hyperjump/gakumon/internal/indexer"
	"github.com/hyperjump/gakumon/internal/models"
	"github.com/hyperjump/gakumon/internal/server"
	"github.com/hyperjump/gakumon/internal/snapshot"
	"github.com/hyperjump/gakumon/internal/storage"
	"github.com/hyperjump/gakumon/internal/vector"
	"github.com/hyperjump/gakumon/internal/watcher"
	"github.com/hyperjump/gakumon/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/gakumon/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "gakumon server" from the project dir uses the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "retrieve":
		runRetrieve()
	case "ask":
		runAsk()
	case "add":
		runAdd()
	case "rebuild":
		runRebuild()
	case "status":
		runStatus()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("gakumon version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (file indexing, watcher events, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	report, err := components.Start(ctx, cfg.Storage.UseCacheOrDefault())
	if err != nil {
		logger.Fatal("Failed to start engine", zap.Error(err))
	}
	logger.Info("engine ready",
		zap.Bool("warm", report.Warm),
		zap.Int("loaded", report.Loaded),
		zap.Int("added", report.Added),
		zap.Int("retained", report.Retained),
		zap.Int("size", report.Size),
	)

	var watchSvc *watcher.Watcher
	if cfg.Corpus.Watch && len(cfg.Corpus.Directories) > 0 {
		watchSvc = watcher.NewWatcher(
			cfg.Corpus.Directories,
			components.Indexer,
			watcher.Config{Recursive: cfg.Corpus.RecursiveOrDefault()},
			watcher.WithLogger(logger),
		)
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(
		components.Engine,
		components.Indexer,
		components.Catalog,
		components.answerer(),
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// configPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func configPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultPath
}

// serverURLFromConfig loads config at path and returns the API address it serves on.
// On load failure, returns http://localhost:8080.
func serverURLFromConfig(path string) string {
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil {
		return defaultServerURL
	}
	return fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "gakumon retrieve \"query\" -k 3"
// would otherwise leave -k unparsed.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runRetrieve() {
	args := searchArgsReorder(os.Args[2:])
	fs := flag.NewFlagSet("retrieve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", serverURLFromConfig(configPathFromArgs(args, defaultConfigPath)), "server URL (empty = load the index directly)")
	k := fs.Int("k", 0, "number of passages (0 = configured default)")
	outputFormat := fs.String("format", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: gakumon retrieve [flags] <query>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	format := mustFormat(*outputFormat)
	req := &models.RetrieveRequest{Query: buildSearchQuery(fs.Args()), K: *k}
	if req.Query == "" {
		fs.Usage()
		os.Exit(1)
	}

	if *serverURL != "" {
		resp, err := retrieveViaHTTP(*serverURL, req)
		if err != nil {
			fail("Retrieve failed", err)
		}
		writeOrFail(cli.WriteRetrieveResults(os.Stdout, resp, format))
		return
	}

	components, cfg, logger := openDirect(*configPath)
	defer logger.Sync()
	defer components.Close()
	if err := req.Validate(cfg.Retrieval.MaxTopK); err != nil {
		fail("Retrieve failed", err)
	}
	ctx := context.Background()
	if _, err := components.Start(ctx, cfg.Storage.UseCacheOrDefault()); err != nil {
		fail("Failed to start engine", err)
	}
	start := time.Now()
	passages, err := components.Engine.Search(ctx, req.Query, req.K)
	if err != nil {
		fail("Retrieve failed", err)
	}
	writeOrFail(cli.WriteRetrieveResults(os.Stdout, &models.RetrieveResponse{
		Query:     req.Query,
		Passages:  passagePointers(passages),
		QueryTime: time.Since(start).Milliseconds(),
	}, format))
}

func runAsk() {
	args := searchArgsReorder(os.Args[2:])
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", serverURLFromConfig(configPathFromArgs(args, defaultConfigPath)), "server URL (empty = load the index directly)")
	k := fs.Int("k", 0, "number of supporting passages (0 = configured default)")
	outputFormat := fs.String("format", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: gakumon ask [flags] <question>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	format := mustFormat(*outputFormat)
	req := &models.AskRequest{Question: buildSearchQuery(fs.Args()), K: *k}
	if req.Question == "" {
		fs.Usage()
		os.Exit(1)
	}

	if *serverURL != "" {
		resp, err := askViaHTTP(*serverURL, req)
		if err != nil {
			fail("Ask failed", err)
		}
		writeOrFail(cli.WriteAnswer(os.Stdout, resp, format))
		return
	}

	components, cfg, logger := openDirect(*configPath)
	defer logger.Sync()
	defer components.Close()
	if components.Generator == nil {
		fail("Ask failed", answer.ErrNotConfigured)
	}
	if err := req.Validate(cfg.Retrieval.MaxTopK); err != nil {
		fail("Ask failed", err)
	}
	ctx := context.Background()
	if _, err := components.Start(ctx, cfg.Storage.UseCacheOrDefault()); err != nil {
		fail("Failed to start engine", err)
	}
	start := time.Now()
	passages, err := components.Engine.Search(ctx, req.Question, req.K)
	if err != nil {
		fail("Ask failed", err)
	}
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	text, err := components.Generator.Answer(ctx, req.Question, texts)
	if err != nil {
		fail("Ask failed", err)
	}
	writeOrFail(cli.WriteAnswer(os.Stdout, &models.AskResponse{
		Question:  req.Question,
		Answer:    text,
		Model:     components.Generator.Model(),
		Passages:  passagePointers(passages),
		QueryTime: time.Since(start).Milliseconds(),
	}, format))
}

func runAdd() {
	args := searchArgsReorder(os.Args[2:])
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", serverURLFromConfig(configPathFromArgs(args, defaultConfigPath)), "server URL (empty = write to the index directly)")
	text := fs.String("text", "", "raw text to add instead of files")
	title := fs.String("title", "", "document title for --text")
	outputFormat := fs.String("format", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: gakumon add [flags] <file-or-directory>...\n       gakumon add [flags] --text \"...\"\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	format := mustFormat(*outputFormat)
	if *text == "" && fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}

	if *serverURL != "" {
		inputs, err := addInputs(fs.Args(), *text, *title)
		if err != nil {
			fail("Add failed", err)
		}
		for _, in := range inputs {
			resp, err := addViaHTTP(*serverURL, in)
			if err != nil {
				fail("Add failed", err)
			}
			writeOrFail(cli.WriteAddResult(os.Stdout, resp, format))
		}
		return
	}

	components, cfg, logger := openDirect(*configPath)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()
	if _, err := components.Start(ctx, cfg.Storage.UseCacheOrDefault()); err != nil {
		fail("Failed to start engine", err)
	}

	if *text != "" {
		resp, err := components.Indexer.IndexText(ctx, models.DocumentInput{Title: *title, Content: *text})
		if err != nil {
			fail("Add failed", err)
		}
		writeOrFail(cli.WriteAddResult(os.Stdout, resp, format))
	}
	for _, path := range fs.Args() {
		info, err := os.Stat(path)
		if err != nil {
			fail("Add failed", err)
		}
		if info.IsDir() {
			n, err := components.Indexer.IndexDirectory(ctx, path)
			if err != nil {
				fail("Indexing directory failed", err)
			}
			fmt.Printf("Indexed %d file(s) from %s\n", n, path)
			continue
		}
		resp, err := components.Indexer.IndexFile(ctx, path)
		if err != nil {
			fail("Add failed", err)
		}
		writeOrFail(cli.WriteAddResult(os.Stdout, resp, format))
	}
}

// addInputs turns CLI arguments into document inputs for the HTTP API. Files are extracted
// locally and keep their path-derived ID so re-adding the same file is recognized.
func addInputs(paths []string, text, title string) ([]models.DocumentInput, error) {
	var inputs []models.DocumentInput
	if text != "" {
		inputs = append(inputs, models.DocumentInput{Title: title, Content: text})
	}
	ex := extract.NewExtractor()
	for _, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory; add directories with --server \"\" or list the files", path)
		}
		content, err := ex.Extract(absPath)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", path, err)
		}
		inputs = append(inputs, models.DocumentInput{
			ID:      docid.FromPath(absPath),
			Title:   filepath.Base(absPath),
			Content: content,
		})
	}
	return inputs, nil
}

func runRebuild() {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", serverURLFromConfig(configPathFromArgs(os.Args[2:], defaultConfigPath)), "server URL (empty = rebuild the snapshot directly)")
	fromCorpus := fs.Bool("from-corpus", false, "direct mode: ignore the snapshot and re-index the corpus directories")
	outputFormat := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format := mustFormat(*outputFormat)
	var resp *models.RebuildResponse
	if *serverURL != "" {
		r, err := rebuildViaHTTP(*serverURL)
		if err != nil {
			fail("Rebuild failed", err)
		}
		resp = r
	} else {
		components, _, logger := openDirect(*configPath)
		defer logger.Sync()
		defer components.Close()
		r, err := rebuildDirect(context.Background(), components, *fromCorpus)
		if err != nil {
			if errors.Is(err, snapshot.ErrSnapshotCorrupt) {
				err = fmt.Errorf("%w (run with --from-corpus to rebuild from the corpus directories)", err)
			}
			fail("Rebuild failed", err)
		}
		resp = r
	}

	writeOrFail(cli.WriteRebuild(os.Stdout, resp, format))
}

// rebuildDirect re-embeds the stored chunks. With fromCorpus the snapshot is ignored and the
// index is rebuilt from the corpus directories, which also recovers from a corrupt snapshot.
func rebuildDirect(ctx context.Context, c *Components, fromCorpus bool) (*models.RebuildResponse, error) {
	start := time.Now()
	if fromCorpus {
		if _, err := c.Start(ctx, false); err != nil {
			return nil, err
		}
	} else {
		if _, err := c.Engine.Start(ctx, nil, true); err != nil {
			return nil, err
		}
		if err := c.Engine.Rebuild(ctx); err != nil {
			return nil, err
		}
	}
	st := c.Engine.Status()
	return &models.RebuildResponse{
		Status:     "rebuilt",
		Chunks:     st.Size,
		Dimensions: st.Dimensions,
		TookMS:     time.Since(start).Milliseconds(),
	}, nil
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("config", "config.yaml", "where to write the config file")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	if err := writeDefaultConfig(*path, *force); err != nil {
		fail("Init failed", err)
	}
	fmt.Printf("Wrote default config to %s\n", *path)
}

// writeDefaultConfig saves a config with every default filled in and ./documents as the corpus.
func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Corpus.Directories = []string{"./documents"}
	return config.Save(path, cfg)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", serverURLFromConfig(configPathFromArgs(os.Args[2:], defaultConfigPath)), "server URL (empty = read the snapshot directly)")
	outputFormat := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format := mustFormat(*outputFormat)
	if *serverURL != "" {
		st, err := statusViaHTTP(*serverURL)
		if err != nil {
			fail("Status failed", err)
		}
		writeOrFail(cli.WriteStatus(os.Stdout, st, format))
		return
	}

	components, cfg, logger := openDirect(*configPath)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()
	// Read-only: without a snapshot the engine stays uninitialized.
	if components.Snapshots.Exists() {
		if _, err := components.Engine.Start(ctx, nil, true); err != nil {
			logger.Warn("snapshot not loaded", zap.Error(err))
		}
	}
	st, err := directStatus(ctx, components, cfg)
	if err != nil {
		fail("Status failed", err)
	}
	writeOrFail(cli.WriteStatus(os.Stdout, st, format))
}

func directStatus(ctx context.Context, c *Components, cfg *config.Config) (*models.StatusResponse, error) {
	st := c.Engine.Status()
	docs, err := c.Catalog.Count(ctx)
	if err != nil {
		return nil, err
	}
	resp := &models.StatusResponse{
		State:          st.State.String(),
		Chunks:         st.Size,
		Dimensions:     st.Dimensions,
		Model:          st.Model,
		IndexType:      st.IndexType,
		SnapshotIndex:  st.SnapshotIndex,
		SnapshotChunks: st.SnapshotChunks,
		Documents:      int(docs),
	}
	if n, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, st.SnapshotIndex, st.SnapshotChunks); err == nil {
		resp.DiskUsageBytes = n
	}
	return resp, nil
}

// openDirect loads config and builds components for commands that run without a server.
// It exits the process on failure.
func openDirect(configPath string) (*Components, *config.Config, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fail("Failed to load config", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug)
	if err != nil {
		fail("Failed to create logger", err)
	}
	components, err := initializeComponents(context.Background(), cfg, logger, cfg.Debug)
	if err != nil {
		fail("Failed to initialize", err)
	}
	return components, cfg, logger
}

func mustFormat(s string) cli.OutputFormat {
	format, err := cli.ParseFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func writeOrFail(err error) {
	if err != nil {
		fail("Output failed", err)
	}
}

func fail(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

func passagePointers(ps []models.Passage) []*models.Passage {
	out := make([]*models.Passage, len(ps))
	for i := range ps {
		out[i] = &ps[i]
	}
	return out
}

// Components holds initialized services.
type Components struct {
	Config    *config.Config
	Catalog   *storage.SQLiteCatalog
	Embedder  embedding.Embedder
	Snapshots *snapshot.Store
	Engine    *engine.Engine
	Indexer   *indexer.Indexer
	Generator *answer.Generator // nil when generation is disabled
}

// answerer returns the generator as a server.Answerer, keeping a nil generator a nil interface.
func (c *Components) answerer() server.Answerer {
	if c.Generator == nil {
		return nil
	}
	return c.Generator
}

// Start loads the corpus directories and starts the engine with their chunks, then
// records the corpus files in the catalog.
func (c *Components) Start(ctx context.Context, useCache bool) (*engine.StartReport, error) {
	corpus, err := c.Indexer.LoadCorpus(ctx, c.Config.Corpus.Directories...)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	report, err := c.Engine.Start(ctx, corpus.Chunks, useCache)
	if err != nil {
		if errors.Is(err, engine.ErrEmptyInput) {
			return nil, fmt.Errorf("%w: no snapshot and no documents under corpus.directories", err)
		}
		return nil, err
	}
	if err := c.Indexer.RecordCorpus(ctx, corpus); err != nil {
		return nil, fmt.Errorf("record corpus: %w", err)
	}
	return report, nil
}

func (c *Components) Close() {
	if c.Engine != nil {
		_ = c.Engine.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	catalog, err := storage.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}
	c := &Components{Config: cfg, Catalog: catalog}

	embedder, err := embedding.New(ctx, cfg.Embedding)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedder
	if logger != nil {
		logger.Info("embedder initialized",
			zap.String("provider", cfg.Embedding.Provider),
			zap.String("model", embedder.Model()),
		)
	}

	c.Snapshots = snapshot.New(cfg.Storage.SnapshotPath, snapshot.WithLogger(logger))
	eng, err := engine.New(engine.Config{
		ChunkSize:    cfg.Retrieval.ChunkSize,
		ChunkOverlap: cfg.Retrieval.OverlapOrDefault(),
		TopK:         cfg.Retrieval.TopK,
		IndexType:    cfg.Index.Type,
		SnapshotPath: cfg.Storage.SnapshotPath,
		EmbedTimeout: cfg.Embedding.Timeout(),
	}, embedder, engine.WithLogger(logger), engine.WithSnapshotStore(c.Snapshots))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	c.Engine = eng
	if logger != nil {
		logger.Info("vector index initialized",
			zap.String("type", cfg.Index.Type),
			zap.Bool("faiss_available", vector.IsFAISSAvailable()),
		)
	}

	idxOpts := []indexer.IndexerOption{}
	if debug && logger != nil {
		idxOpts = append(idxOpts, indexer.WithLogger(logger))
	}
	c.Indexer = indexer.NewIndexer(eng, catalog, extract.NewExtractor(), indexer.Config{
		Extensions: cfg.Corpus.Extensions,
		Recursive:  cfg.Corpus.RecursiveOrDefault(),
	}, idxOpts...)

	gen, err := answer.FromConfig(cfg.Generation, answer.WithLogger(logger))
	switch {
	case err == nil:
		c.Generator = gen
	case errors.Is(err, answer.ErrNotConfigured):
		if logger != nil {
			logger.Debug("answer generation disabled", zap.Error(err))
		}
	default:
		c.Close()
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}
	return c, nil
}

func printUsage() {
	fmt.Println(`gakumon - Local academic document retrieval and question answering

Usage:
  gakumon server [flags]               Start the HTTP server
  gakumon retrieve [flags] <query>     Return the passages most similar to a query
  gakumon ask [flags] <question>       Answer a question from retrieved passages
  gakumon add [flags] <path>...        Add files or directories to the index
  gakumon add [flags] --text "..."     Add raw text to the index
  gakumon rebuild [flags]              Re-embed every chunk and save a fresh snapshot
  gakumon status [flags]               Show engine, snapshot and catalog status
  gakumon init [--config path]         Write a config file with defaults
  gakumon version                      Show version
  gakumon help                         Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/gakumon/config.yaml)
  --debug            Enable debug logging

Client Flags (retrieve, ask, add, rebuild, status):
  --server string    Server URL (default: host and port from config, or http://localhost:8080).
                     Use --server "" to work on
                     the snapshot directly when the server is not running.
  --config string    Config file path (direct mode only)
  --format string    Output format: text or json (default: text)

Retrieve/Ask Flags:
  --k int            Number of passages (default from config)

Add Flags:
  --text string      Raw text to add
  --title string     Title for --text

Rebuild Flags:
  --from-corpus      Direct mode: ignore the snapshot and re-index the corpus directories

Examples:
  gakumon server
  gakumon retrieve "gradient descent convergence"
  gakumon retrieve --k 3 --format json attention mechanism
  gakumon ask "What is the main contribution of the paper?"
  gakumon add papers/transformers.pdf notes.md
  gakumon add --title "Lecture 4" --text "Backpropagation computes gradients..."
  gakumon rebuild
  gakumon rebuild --server "" --from-corpus
  gakumon status --format json`)
}
