// Package snapshot persists the vector index and chunk sequence as a pair of artifacts
// and detects torn or partial pairs on load.
//
// Layout for base path B:
//
//	B.index        header (magic, version, chunk count, chunk-sequence digest) + vector blob
//	B_chunks.json  {"version", "model", "count", "saved_at", "chunks": [...]}
//
// Both files are written to temporaries in the same directory, fsynced, then renamed:
// chunks first, index last. A reader that lands between the two renames sees a digest
// mismatch, which Load retries a bounded number of times.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hyperjump/gakumon/internal/chunkstore"
	"github.com/hyperjump/gakumon/internal/vector"
)

var (
	// ErrSnapshotNotFound is returned when either artifact is missing.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrSnapshotCorrupt is returned when the artifacts cannot be decoded or disagree.
	ErrSnapshotCorrupt = errors.New("snapshot corrupt")

	// ErrInvalidText is returned by Save for a chunk that is not valid UTF-8.
	ErrInvalidText = errors.New("chunk is not valid UTF-8")

	errTorn = errors.New("index and chunks describe different sequences")
)

var indexMagic = [4]byte{'G', 'K', 'S', 'N'}

const formatVersion = 1

type indexHeader struct {
	Magic   [4]byte
	Version uint16
	Count   uint64
	Digest  chunkstore.Hash
}

type chunksFile struct {
	Version int       `json:"version"`
	Model   string    `json:"model"`
	Count   int       `json:"count"`
	SavedAt time.Time `json:"saved_at"`
	Chunks  []string  `json:"chunks"`
}

// Meta describes a snapshot.
type Meta struct {
	Model      string
	Dimensions int
	Count      int
	SavedAt    time.Time
}

// Snapshot is a loaded (index, chunks) pair.
type Snapshot struct {
	Index  vector.Index
	Chunks []string
	Meta   Meta
}

// Store reads and writes the snapshot at one base path.
type Store struct {
	base       string
	retries    int
	retryDelay time.Duration
	logger     *zap.Logger // optional
	mu         sync.RWMutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a logger for save/load events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithRetry sets how many times a torn pair is re-read before Load reports corruption.
func WithRetry(retries int, delay time.Duration) Option {
	return func(s *Store) {
		s.retries = retries
		s.retryDelay = delay
	}
}

// New returns a Store for base. The directory is created on first Save.
func New(base string, opts ...Option) *Store {
	s := &Store{base: base, retries: 3, retryDelay: 10 * time.Millisecond}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Paths returns the index and chunks artifact paths.
func (s *Store) Paths() (indexPath, chunksPath string) {
	return s.base + ".index", s.base + "_chunks.json"
}

// Exists reports whether both artifacts are present.
func (s *Store) Exists() bool {
	indexPath, chunksPath := s.Paths()
	if _, err := os.Stat(indexPath); err != nil {
		return false
	}
	_, err := os.Stat(chunksPath)
	return err == nil
}

// Remove deletes both artifacts. Missing files are not an error.
func (s *Store) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	indexPath, chunksPath := s.Paths()
	for _, p := range []string{indexPath, chunksPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// Save writes index and chunks as a new snapshot. index.Size() must equal len(chunks),
// and every chunk must be valid UTF-8 so that it reads back byte for byte.
func (s *Store) Save(index vector.Index, chunks []string, model string) error {
	if index.Size() != len(chunks) {
		return fmt.Errorf("save snapshot: index has %d vectors but %d chunks", index.Size(), len(chunks))
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			return fmt.Errorf("save snapshot: chunk %d: %w", i, ErrInvalidText)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	indexPath, chunksPath := s.Paths()
	dir := filepath.Dir(indexPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	chunksTmp, err := writeTemp(dir, filepath.Base(chunksPath), func(w io.Writer) error {
		return json.NewEncoder(w).Encode(chunksFile{
			Version: formatVersion,
			Model:   model,
			Count:   len(chunks),
			SavedAt: time.Now().UTC(),
			Chunks:  chunks,
		})
	})
	if err != nil {
		return fmt.Errorf("write chunks: %w", err)
	}
	indexTmp, err := writeTemp(dir, filepath.Base(indexPath), func(w io.Writer) error {
		h := indexHeader{
			Magic:   indexMagic,
			Version: formatVersion,
			Count:   uint64(len(chunks)),
			Digest:  chunkstore.Digest(chunks),
		}
		if err := binary.Write(w, binary.LittleEndian, h); err != nil {
			return err
		}
		_, err := index.WriteTo(w)
		return err
	})
	if err != nil {
		os.Remove(chunksTmp)
		return fmt.Errorf("write index: %w", err)
	}

	if err := os.Rename(chunksTmp, chunksPath); err != nil {
		os.Remove(chunksTmp)
		os.Remove(indexTmp)
		return fmt.Errorf("rename chunks: %w", err)
	}
	if err := os.Rename(indexTmp, indexPath); err != nil {
		os.Remove(indexTmp)
		return fmt.Errorf("rename index: %w", err)
	}
	syncDir(dir)

	if s.logger != nil {
		s.logger.Debug("snapshot saved", zap.String("path", s.base), zap.Int("chunks", len(chunks)), zap.String("model", model))
	}
	return nil
}

// writeTemp writes a temporary file next to the target, fsyncs and closes it.
func writeTemp(dir, name string, write func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", err
	}
	bw := bufio.NewWriter(f)
	err = write(bw)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// Load reads the snapshot into a new index of indexType.
func (s *Store) Load(indexType string) (*Snapshot, error) {
	for attempt := 0; ; attempt++ {
		snap, err := s.loadOnce(indexType)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, errTorn) {
			return nil, err
		}
		if attempt >= s.retries {
			return nil, fmt.Errorf("%w: %w", ErrSnapshotCorrupt, err)
		}
		if s.logger != nil {
			s.logger.Warn("snapshot artifacts disagree, retrying", zap.String("path", s.base), zap.Int("attempt", attempt+1))
		}
		time.Sleep(s.retryDelay)
	}
}

func (s *Store) loadOnce(indexType string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	indexPath, chunksPath := s.Paths()
	for _, p := range []string{indexPath, chunksPath} {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, p)
			}
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
	}

	cf, err := readChunks(chunksPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat index: %w", err)
	}
	r := bufio.NewReader(f)

	var h indexHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: read index header: %w", ErrSnapshotCorrupt, err)
	}
	if h.Magic != indexMagic || h.Version != formatVersion {
		return nil, fmt.Errorf("%w: unrecognized index header", ErrSnapshotCorrupt)
	}
	if h.Count != uint64(len(cf.Chunks)) || h.Digest != chunkstore.Digest(cf.Chunks) {
		return nil, fmt.Errorf("%w: index expects %d chunks, chunks file has %d", errTorn, h.Count, len(cf.Chunks))
	}

	if err := checkBlob(r, h.Count, fi.Size()); err != nil {
		return nil, err
	}

	index, err := vector.NewIndex(indexType)
	if err != nil {
		return nil, err
	}
	if _, err := index.ReadFrom(r); err != nil {
		index.Close()
		return nil, fmt.Errorf("%w: decode index: %w", ErrSnapshotCorrupt, err)
	}
	if index.Size() != len(cf.Chunks) {
		index.Close()
		return nil, fmt.Errorf("%w: index holds %d vectors for %d chunks", ErrSnapshotCorrupt, index.Size(), len(cf.Chunks))
	}

	return &Snapshot{
		Index:  index,
		Chunks: cf.Chunks,
		Meta: Meta{
			Model:      cf.Model,
			Dimensions: index.Dimensions(),
			Count:      len(cf.Chunks),
			SavedAt:    cf.SavedAt,
		},
	}, nil
}

// checkBlob validates the vector blob header against the snapshot header and the
// file size before anything is decoded. The blob must end exactly at end of file.
func checkBlob(r *bufio.Reader, count uint64, fileSize int64) error {
	p, err := r.Peek(vector.BlobHeaderSize)
	if err != nil {
		return fmt.Errorf("%w: read vector header: %w", ErrSnapshotCorrupt, err)
	}
	info, err := vector.ParseHeader(p)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotCorrupt, err)
	}
	if info.Count != count {
		return fmt.Errorf("%w: vector blob declares %d rows, header declares %d", ErrSnapshotCorrupt, info.Count, count)
	}
	want := uint64(binary.Size(indexHeader{})) + uint64(vector.BlobHeaderSize) + info.PayloadSize()
	if uint64(fileSize) != want {
		return fmt.Errorf("%w: index file is %d bytes, expected %d", ErrSnapshotCorrupt, fileSize, want)
	}
	return nil
}

func readChunks(path string) (*chunksFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	var cf chunksFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("%w: decode chunks: %w", ErrSnapshotCorrupt, err)
	}
	if cf.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported chunks version %d", ErrSnapshotCorrupt, cf.Version)
	}
	if cf.Count != len(cf.Chunks) {
		return nil, fmt.Errorf("%w: chunks file declares %d chunks, holds %d", ErrSnapshotCorrupt, cf.Count, len(cf.Chunks))
	}
	return &cf, nil
}
