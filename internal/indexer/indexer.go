// Package indexer feeds source documents into the retrieval engine and keeps the document
// catalog in step with what the engine has ingested.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hyperjump/gakumon/internal/docid"
	"github.com/hyperjump/gakumon/internal/engine"
	"github.com/hyperjump/gakumon/internal/extract"
	"github.com/hyperjump/gakumon/internal/models"
	"github.com/hyperjump/gakumon/internal/storage"
	"go.uber.org/zap"
)

// Skip reasons reported in models.AddResponse.
const (
	ReasonUnchanged = "unchanged"
	ReasonDuplicate = "duplicate content"
	ReasonEmpty     = "no text"
)

// Engine is the part of the retrieval engine the indexer drives.
type Engine interface {
	Chunk(text string) []string
	AddDocuments(ctx context.Context, texts ...string) (*engine.AddResult, error)
	Status() engine.Status
}

// Config selects which files are picked up.
type Config struct {
	// Extensions allowed for corpus and watched files; empty means every extension the
	// extractor supports.
	Extensions []string
	Recursive  bool
}

// Indexer ingests files and raw text.
type Indexer struct {
	engine     Engine
	catalog    storage.Catalog
	extractor  *extract.Extractor
	extensions []string
	recursive  bool
	logger     *zap.Logger // optional; when set, logs debug events
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file indexed, file skipped, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer. extractor may be nil, in which case a default one is used.
func NewIndexer(eng Engine, catalog storage.Catalog, extractor *extract.Extractor, cfg Config, opts ...IndexerOption) *Indexer {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	idx := &Indexer{
		engine:     eng,
		catalog:    catalog,
		extractor:  extractor,
		extensions: cfg.Extensions,
		recursive:  cfg.Recursive,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// SourceDocument is one file read by LoadCorpus.
type SourceDocument struct {
	Path   string
	Text   string
	SHA256 string
	Mtime  int64
	Size   int64
	Chunks int
}

// Corpus is the chunk sequence handed to engine.Start along with the files it came from.
type Corpus struct {
	Documents []SourceDocument
	Chunks    []string
}

// LoadCorpus reads every allowed file under dirs in lexical order and chunks it. Files that
// fail to extract or hold no text are logged and skipped; a missing directory is an error.
func (idx *Indexer) LoadCorpus(ctx context.Context, dirs ...string) (*Corpus, error) {
	corpus := &Corpus{}
	for _, dir := range dirs {
		paths, err := idx.listFiles(dir)
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			doc, err := idx.readSource(path)
			if err != nil {
				if idx.logger != nil {
					idx.logger.Warn("skipping unreadable corpus file", zap.String("path", path), zap.Error(err))
				}
				continue
			}
			chunks := idx.engine.Chunk(doc.Text)
			if len(chunks) == 0 {
				continue
			}
			doc.Chunks = len(chunks)
			corpus.Documents = append(corpus.Documents, *doc)
			corpus.Chunks = append(corpus.Chunks, chunks...)
		}
	}
	if idx.logger != nil {
		idx.logger.Debug("corpus loaded", zap.Int("documents", len(corpus.Documents)), zap.Int("chunks", len(corpus.Chunks)))
	}
	return corpus, nil
}

// RecordCorpus writes catalog entries for documents passed to engine.Start so later
// IndexFile calls recognize them as already ingested.
func (idx *Indexer) RecordCorpus(ctx context.Context, corpus *Corpus) error {
	for _, d := range corpus.Documents {
		doc := &models.Document{
			ID:            docid.FromPath(d.Path),
			Title:         filepath.Base(d.Path),
			SourcePath:    d.Path,
			ContentSHA256: d.SHA256,
			ChunkCount:    d.Chunks,
			SourceMtime:   d.Mtime,
			SourceSize:    d.Size,
		}
		if prev, err := idx.catalog.Get(ctx, doc.ID); err == nil {
			doc.CreatedAt = prev.CreatedAt
			doc.NewChunks = prev.NewChunks
		}
		if err := idx.catalog.Record(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

// IndexFile ingests one file. It is skipped when the catalog already holds the same path
// with the same mtime and size, or any document with identical extracted text. Otherwise
// the text is added to the engine and recorded. Chunks are append-only: a modified file
// adds its new chunks and the old ones stay retrievable.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (*models.AddResponse, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	if !idx.Allowed(absPath) {
		return nil, fmt.Errorf("extension %q not in allowed list", filepath.Ext(absPath))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}

	prev, err := idx.findByPath(ctx, absPath)
	if err != nil {
		return nil, err
	}
	if prev != nil && prev.SourceMtime == info.ModTime().UnixNano() && prev.SourceSize == info.Size() {
		return idx.skipped(prev, ReasonUnchanged), nil
	}

	src, err := idx.readSource(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}
	doc := &models.Document{
		ID:            docid.FromPath(absPath),
		Title:         filepath.Base(absPath),
		SourcePath:    absPath,
		ContentSHA256: src.SHA256,
		SourceMtime:   src.Mtime,
		SourceSize:    src.Size,
	}
	if prev != nil {
		doc.CreatedAt = prev.CreatedAt
	}
	return idx.ingest(ctx, doc, src.Text)
}

// IndexText ingests raw text submitted without a source file.
func (idx *Indexer) IndexText(ctx context.Context, input models.DocumentInput) (*models.AddResponse, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, fmt.Errorf("document content is empty: %w", engine.ErrEmptyInput)
	}
	if input.ID == "" {
		input.ID = docid.NewText()
	}
	doc := &models.Document{
		ID:            input.ID,
		Title:         input.Title,
		ContentSHA256: docid.ContentHash(input.Content),
	}
	return idx.ingest(ctx, doc, input.Content)
}

func (idx *Indexer) ingest(ctx context.Context, doc *models.Document, text string) (*models.AddResponse, error) {
	dup, err := idx.catalog.FindByContentHash(ctx, doc.ContentSHA256)
	switch {
	case err == nil && dup.ID != doc.ID:
		doc.ChunkCount = dup.ChunkCount
		if err := idx.catalog.Record(ctx, doc); err != nil {
			return nil, err
		}
		return idx.skipped(doc, ReasonDuplicate), nil
	case err == nil:
		// Same document, same text: only the file stats moved.
		doc.ChunkCount, doc.NewChunks = dup.ChunkCount, dup.NewChunks
		if err := idx.catalog.Record(ctx, doc); err != nil {
			return nil, err
		}
		return idx.skipped(doc, ReasonUnchanged), nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	if len(idx.engine.Chunk(text)) == 0 {
		return idx.skipped(doc, ReasonEmpty), nil
	}
	res, err := idx.engine.AddDocuments(ctx, text)
	if err != nil {
		return nil, err
	}
	doc.ChunkCount = res.Chunks
	doc.NewChunks = res.Chunks
	if err := idx.catalog.Record(ctx, doc); err != nil {
		// Chunks are already in the snapshot at this point.
		return nil, fmt.Errorf("record document: %w", err)
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer document indexed",
			zap.String("doc_id", doc.ID), zap.String("path", doc.SourcePath), zap.Int("chunks", res.Chunks))
	}
	return &models.AddResponse{Document: doc, Size: res.Size}, nil
}

func (idx *Indexer) skipped(doc *models.Document, reason string) *models.AddResponse {
	if idx.logger != nil {
		idx.logger.Debug("indexer skipping document",
			zap.String("doc_id", doc.ID), zap.String("path", doc.SourcePath), zap.String("reason", reason))
	}
	return &models.AddResponse{Document: doc, Skipped: true, Reason: reason, Size: idx.engine.Status().Size}
}

func (idx *Indexer) findByPath(ctx context.Context, absPath string) (*models.Document, error) {
	doc, err := idx.catalog.FindByPath(ctx, absPath)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

// IndexDirectory indexes each allowed file under dir and returns how many were added
// (skipped files are not counted) and the first error encountered, if any.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string) (n int, err error) {
	paths, err := idx.listFiles(dir)
	if err != nil {
		return 0, err
	}
	for _, path := range paths {
		res, err := idx.IndexFile(ctx, path)
		if err != nil {
			return n, fmt.Errorf("index %s: %w", path, err)
		}
		if !res.Skipped {
			n++
		}
	}
	return n, nil
}

// Allowed reports whether path has an extension the indexer ingests.
func (idx *Indexer) Allowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !idx.extractor.Supports(ext) || ext == "" {
		return false
	}
	return len(idx.extensions) == 0 || extensionAllowed(ext, idx.extensions)
}

// listFiles returns the allowed regular files under dir, sorted, descending into
// subdirectories only when recursive is set.
func (idx *Indexer) listFiles(dir string) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}
	var paths []string
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != absDir && (!idx.recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !idx.Allowed(path) {
			return nil
		}
		// Resolve symlinks so only regular files are read.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)
	return paths, nil
}

func (idx *Indexer) readSource(path string) (*SourceDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	text, err := idx.extractor.Extract(path)
	if err != nil {
		return nil, err
	}
	return &SourceDocument{
		Path:   path,
		Text:   text,
		SHA256: docid.ContentHash(text),
		Mtime:  info.ModTime().UnixNano(),
		Size:   info.Size(),
	}, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
