// Package engine is the retrieval engine: it owns one vector index and one chunk store,
// keeps them aligned position for position, persists them together, and answers top-k
// queries.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hyperjump/gakumon/internal/chunker"
	"github.com/hyperjump/gakumon/internal/chunkstore"
	"github.com/hyperjump/gakumon/internal/embedding"
	"github.com/hyperjump/gakumon/internal/models"
	"github.com/hyperjump/gakumon/internal/snapshot"
	"github.com/hyperjump/gakumon/internal/vector"
)

var (
	// ErrNotReady is returned by operations that need a started engine.
	ErrNotReady = errors.New("engine not ready")
	// ErrEmptyInput is returned when there is nothing to index.
	ErrEmptyInput = vector.ErrEmptyInput
)

// DefaultTopK is the number of passages returned when k <= 0.
const DefaultTopK = 8

// State is the engine lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "uninitialized"
}

// Config holds engine settings.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	// IndexType selects the vector backend ("flat" or "faiss").
	IndexType string
	// SnapshotPath is the base path of the persisted snapshot.
	SnapshotPath string
	// EmbedTimeout bounds each embedding call; 0 means no timeout.
	EmbedTimeout time.Duration
}

// Engine is the retrieval engine. Create with New, then Start.
//
// writeMu serializes Start, AddDocuments, and Rebuild. mu guards index, chunks and state:
// searches hold it for reading, structural changes and the snapshot save hold it for
// writing. Embedding happens under writeMu only, so searches keep running meanwhile.
type Engine struct {
	cfg       Config
	chunker   *chunker.Chunker
	embedder  *embedding.Adapter
	snapshots *snapshot.Store
	logger    *zap.Logger // optional

	writeMu sync.Mutex

	mu     sync.RWMutex
	state  State
	index  vector.Index
	chunks *chunkstore.Store
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSnapshotStore replaces the snapshot store built from Config.SnapshotPath.
func WithSnapshotStore(s *snapshot.Store) Option {
	return func(e *Engine) { e.snapshots = s }
}

// StartReport describes what Start did.
type StartReport struct {
	// Warm is true when the engine started from a snapshot.
	Warm bool `json:"warm"`
	// Loaded is the number of chunks read from the snapshot.
	Loaded int `json:"loaded"`
	// Added is the number of chunks embedded and indexed by this start.
	Added int `json:"added"`
	// Retained counts snapshot chunks absent from the incoming corpus. They stay indexed.
	Retained int `json:"retained"`
	Size     int `json:"size"`
}

// AddResult describes a successful AddDocuments call.
type AddResult struct {
	Chunks        int `json:"chunks"`
	FirstPosition int `json:"first_position"`
	Size          int `json:"size"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	State          State
	Size           int
	Dimensions     int
	Model          string
	IndexType      string
	SnapshotIndex  string
	SnapshotChunks string
}

// New validates cfg and returns an uninitialized engine. An invalid chunking
// configuration fails with chunker.ErrInvalidConfiguration.
func New(cfg Config, embedder embedding.Embedder, opts ...Option) (*Engine, error) {
	ch, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, errors.New("engine requires an embedder")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.IndexType == "" {
		cfg.IndexType = string(vector.IndexTypeFlat)
	}
	e := &Engine{
		cfg:      cfg,
		chunker:  ch,
		embedder: embedding.NewAdapter(embedder, cfg.EmbedTimeout),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.snapshots == nil {
		if cfg.SnapshotPath == "" {
			return nil, errors.New("engine requires a snapshot path")
		}
		e.snapshots = snapshot.New(cfg.SnapshotPath, snapshot.WithLogger(e.logger))
	}
	if _, err := vector.NewIndex(cfg.IndexType); err != nil {
		return nil, err
	}
	return e, nil
}

// Chunk splits text with the engine's chunking parameters.
func (e *Engine) Chunk(text string) []string {
	return e.chunker.Chunk(text)
}

// Start brings the engine to Ready.
//
// With useCache and an existing snapshot (warm start), the snapshot is loaded and only
// incoming chunks not already stored are embedded and appended; when there are none the
// snapshot is used as is and nothing is written. Stored chunks missing from the incoming
// corpus are kept and counted in Retained.
//
// Otherwise (cold start) all incoming chunks are embedded, indexed and saved. A cold start
// with no chunks fails with ErrEmptyInput. A corrupt snapshot is returned as an error and
// never replaced implicitly; call Start with useCache=false to rebuild over it.
func (e *Engine) Start(ctx context.Context, chunks []string, useCache bool) (*StartReport, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	chunks = validUTF8(chunks)
	if useCache {
		snap, err := e.snapshots.Load(e.cfg.IndexType)
		switch {
		case err == nil:
			return e.warmStart(ctx, snap, chunks)
		case errors.Is(err, snapshot.ErrSnapshotNotFound):
			if e.logger != nil {
				e.logger.Info("no snapshot found, building index", zap.String("path", e.cfg.SnapshotPath))
			}
		default:
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
	}
	return e.coldStart(ctx, chunks)
}

func (e *Engine) warmStart(ctx context.Context, snap *snapshot.Snapshot, incoming []string) (*StartReport, error) {
	if model := e.embedder.Model(); snap.Meta.Model != "" && snap.Meta.Model != model && e.logger != nil {
		e.logger.Warn("snapshot was built with a different embedding model; consider rebuild",
			zap.String("snapshot_model", snap.Meta.Model), zap.String("model", model))
	}

	store := chunkstore.New(snap.Chunks)
	fresh := store.Difference(incoming)
	report := &StartReport{
		Warm:     true,
		Loaded:   len(snap.Chunks),
		Added:    len(fresh),
		Retained: store.Missing(incoming),
	}

	if len(fresh) > 0 {
		vecs, err := e.embedder.EmbedBatch(ctx, fresh)
		if err != nil {
			snap.Index.Close()
			return nil, err
		}
		if snap.Index.Size() == 0 {
			err = snap.Index.Build(ctx, vecs)
		} else {
			err = snap.Index.Insert(ctx, vecs)
		}
		if err != nil {
			snap.Index.Close()
			return nil, fmt.Errorf("index new chunks: %w", err)
		}
		store.Append(fresh...)
		if err := e.snapshots.Save(snap.Index, store.Texts(), e.embedder.Model()); err != nil {
			snap.Index.Close()
			return nil, fmt.Errorf("save snapshot: %w", err)
		}
	}

	report.Size = store.Len()
	e.publish(snap.Index, store)
	if e.logger != nil {
		e.logger.Info("engine started from snapshot",
			zap.Int("loaded", report.Loaded), zap.Int("added", report.Added),
			zap.Int("retained", report.Retained), zap.Int("size", report.Size))
	}
	return report, nil
}

func (e *Engine) coldStart(ctx context.Context, chunks []string) (*StartReport, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("start: no chunks to index: %w", ErrEmptyInput)
	}
	vecs, err := e.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, err
	}
	index, err := vector.NewIndex(e.cfg.IndexType)
	if err != nil {
		return nil, err
	}
	if err := index.Build(ctx, vecs); err != nil {
		index.Close()
		return nil, fmt.Errorf("build index: %w", err)
	}
	store := chunkstore.New(chunks)
	if err := e.snapshots.Save(index, store.Texts(), e.embedder.Model()); err != nil {
		index.Close()
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	e.publish(index, store)
	if e.logger != nil {
		e.logger.Info("engine built index", zap.Int("size", store.Len()), zap.Int("dimensions", index.Dimensions()))
	}
	return &StartReport{Added: len(chunks), Size: store.Len()}, nil
}

// validUTF8 replaces invalid byte sequences with U+FFFD so that chunks persist and
// reload byte for byte. texts is not modified.
func validUTF8(texts []string) []string {
	var out []string
	for i, t := range texts {
		if utf8.ValidString(t) {
			if out != nil {
				out[i] = t
			}
			continue
		}
		if out == nil {
			out = make([]string, len(texts))
			copy(out, texts[:i])
		}
		out[i] = strings.ToValidUTF8(t, "\uFFFD")
	}
	if out == nil {
		return texts
	}
	return out
}

// publish swaps in a new index and store and marks the engine ready.
func (e *Engine) publish(index vector.Index, store *chunkstore.Store) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.index != nil && e.index != index {
		e.index.Close()
	}
	e.index = index
	e.chunks = store
	e.state = StateReady
}

func (e *Engine) ready() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state != StateReady {
		return ErrNotReady
	}
	return nil
}

// AddDocuments chunks, embeds, indexes and persists texts as one unit. On any failure
// the index, the chunk store, and the snapshot are left as they were.
func (e *Engine) AddDocuments(ctx context.Context, texts ...string) (*AddResult, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.ready(); err != nil {
		return nil, err
	}
	chunks := e.chunker.ChunkAll(validUTF8(texts))
	if len(chunks) == 0 {
		return nil, fmt.Errorf("add documents: text produced no chunks: %w", ErrEmptyInput)
	}
	vecs, err := e.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	before := e.chunks.Len()
	if e.index.Size() != before {
		return nil, fmt.Errorf("index holds %d vectors for %d chunks; rebuild required", e.index.Size(), before)
	}
	if err := e.index.Insert(ctx, vecs); err != nil {
		e.rollback(before)
		return nil, fmt.Errorf("insert vectors: %w", err)
	}
	first := e.chunks.Append(chunks...)
	if e.index.Size() != e.chunks.Len() {
		e.rollback(before)
		return nil, fmt.Errorf("index and chunk store diverged during add")
	}
	if err := e.snapshots.Save(e.index, e.chunks.Texts(), e.embedder.Model()); err != nil {
		e.rollback(before)
		// Best effort: put the previous pair back in case the failure left the files torn.
		if rerr := e.snapshots.Save(e.index, e.chunks.Texts(), e.embedder.Model()); rerr != nil && e.logger != nil {
			e.logger.Error("failed to restore snapshot after rollback", zap.Error(rerr))
		}
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	if e.logger != nil {
		e.logger.Debug("documents added", zap.Int("documents", len(texts)), zap.Int("chunks", len(chunks)), zap.Int("size", e.chunks.Len()))
	}
	return &AddResult{Chunks: len(chunks), FirstPosition: first, Size: e.chunks.Len()}, nil
}

// rollback truncates index and chunk store back to n entries. Caller holds mu.
func (e *Engine) rollback(n int) {
	if e.index.Size() > n {
		if err := e.index.Truncate(n); err != nil && e.logger != nil {
			e.logger.Error("failed to roll back index", zap.Error(err))
		}
	}
	if e.chunks.Len() > n {
		if err := e.chunks.Truncate(n); err != nil && e.logger != nil {
			e.logger.Error("failed to roll back chunk store", zap.Error(err))
		}
	}
}

// Search returns up to k passages ranked by similarity to query. k <= 0 uses the
// configured top_k.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]models.Passage, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = e.cfg.TopK
	}
	q, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	results, err := e.index.Search(ctx, q, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	passages := make([]models.Passage, 0, len(results))
	for i, r := range results {
		text, err := e.chunks.Get(r.Position)
		if err != nil {
			return nil, fmt.Errorf("map search result: %w", err)
		}
		passages = append(passages, models.Passage{Rank: i + 1, Position: r.Position, Score: r.Score, Text: text})
	}
	return passages, nil
}

// Retrieve returns the texts of the top-k chunks for query, best first.
func (e *Engine) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	passages, err := e.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	return texts, nil
}

// Rebuild re-embeds every stored chunk into a fresh index, swaps it in and saves.
// If anything fails, the previous index stays in place.
func (e *Engine) Rebuild(ctx context.Context) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.ready(); err != nil {
		return err
	}
	texts := e.chunks.Texts()
	vecs, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	index, err := vector.NewIndex(e.cfg.IndexType)
	if err != nil {
		return err
	}
	if err := index.Build(ctx, vecs); err != nil {
		index.Close()
		return fmt.Errorf("build index: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	old := e.index
	e.index = index
	if err := e.snapshots.Save(e.index, e.chunks.Texts(), e.embedder.Model()); err != nil {
		e.index = old
		index.Close()
		return fmt.Errorf("save snapshot: %w", err)
	}
	old.Close()
	if e.logger != nil {
		e.logger.Info("index rebuilt", zap.Int("size", index.Size()), zap.Int("dimensions", index.Dimensions()))
	}
	return nil
}

// Status returns the current engine state.
func (e *Engine) Status() Status {
	indexPath, chunksPath := e.snapshots.Paths()
	st := Status{
		Model:          e.embedder.Model(),
		IndexType:      e.cfg.IndexType,
		SnapshotIndex:  indexPath,
		SnapshotChunks: chunksPath,
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	st.State = e.state
	if e.index != nil {
		st.Size = e.chunks.Len()
		st.Dimensions = e.index.Dimensions()
	}
	return st
}

// Close releases the index. The engine returns to Uninitialized.
func (e *Engine) Close() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateUninitialized
	if e.index == nil {
		return nil
	}
	err := e.index.Close()
	e.index = nil
	e.chunks = nil
	return err
}
