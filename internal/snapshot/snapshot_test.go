package snapshot

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/gakumon/internal/vector"
)

func buildIndex(t *testing.T, vecs [][]float32) vector.Index {
	t.Helper()
	idx := vector.NewFlatIndex()
	if err := idx.Build(context.Background(), vecs); err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestStore_SaveLoad(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "faiss_index")
	s := New(base)
	if s.Exists() {
		t.Fatal("fresh store should not exist")
	}
	chunks := []string{"alpha beta", "gamma", "delta epsilon"}
	idx := buildIndex(t, [][]float32{{1, 0}, {0, 1}, {1, 1}})
	if err := s.Save(idx, chunks, "hash-bow"); err != nil {
		t.Fatal(err)
	}
	if !s.Exists() {
		t.Fatal("Exists should be true after Save")
	}
	indexPath, chunksPath := s.Paths()
	if indexPath != base+".index" || chunksPath != base+"_chunks.json" {
		t.Errorf("Paths = %s, %s", indexPath, chunksPath)
	}

	snap, err := s.Load("flat")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(snap.Chunks, chunks) {
		t.Errorf("chunks = %v", snap.Chunks)
	}
	if snap.Index.Size() != 3 || snap.Meta.Dimensions != 2 || snap.Meta.Model != "hash-bow" || snap.Meta.Count != 3 {
		t.Errorf("meta = %+v size=%d", snap.Meta, snap.Index.Size())
	}
	results, err := snap.Index.Search(context.Background(), []float32{0, 1}, 1)
	if err != nil || results[0].Position != 1 {
		t.Errorf("search after load = %v, %v", results, err)
	}

	entries, _ := os.ReadDir(filepath.Dir(base))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "idx"))
	if err := s.Save(buildIndex(t, [][]float32{{1, 0}}), []string{"one"}, "m"); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(buildIndex(t, [][]float32{{1, 0}, {0, 1}}), []string{"one", "two"}, "m"); err != nil {
		t.Fatal(err)
	}
	snap, err := s.Load("flat")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Chunks) != 2 || snap.Index.Size() != 2 {
		t.Errorf("loaded %d chunks, %d vectors", len(snap.Chunks), snap.Index.Size())
	}
}

func TestStore_SaveRejectsMisalignedState(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "idx"))
	err := s.Save(buildIndex(t, [][]float32{{1, 0}}), []string{"a", "b"}, "m")
	if err == nil {
		t.Fatal("expected error for index/chunk count mismatch")
	}
	if s.Exists() {
		t.Error("nothing should be written")
	}
}

func TestStore_LoadNotFound(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "idx"))
	if _, err := s.Load("flat"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("err = %v, want ErrSnapshotNotFound", err)
	}

	if err := s.Save(buildIndex(t, [][]float32{{1}}), []string{"a"}, "m"); err != nil {
		t.Fatal(err)
	}
	_, chunksPath := s.Paths()
	os.Remove(chunksPath)
	if _, err := s.Load("flat"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("missing chunks file: err = %v, want ErrSnapshotNotFound", err)
	}
}

func TestStore_LoadCorrupt(t *testing.T) {
	tests := []struct {
		name   string
		damage func(t *testing.T, indexPath, chunksPath string)
	}{
		{"chunks not json", func(t *testing.T, _, chunksPath string) {
			writeFile(t, chunksPath, "{not json")
		}},
		{"chunks count disagrees with list", func(t *testing.T, _, chunksPath string) {
			writeFile(t, chunksPath, `{"version":1,"model":"m","count":5,"chunks":["a","b"]}`)
		}},
		{"truncated index", func(t *testing.T, indexPath, _ string) {
			data, _ := os.ReadFile(indexPath)
			writeFile(t, indexPath, string(data[:len(data)-5]))
		}},
		{"index header garbage", func(t *testing.T, indexPath, _ string) {
			writeFile(t, indexPath, "garbage")
		}},
		{"torn pair", func(t *testing.T, _, chunksPath string) {
			writeFile(t, chunksPath, `{"version":1,"model":"m","count":2,"chunks":["a","c"]}`)
		}},
		{"fewer chunks than vectors", func(t *testing.T, _, chunksPath string) {
			writeFile(t, chunksPath, `{"version":1,"model":"m","count":1,"chunks":["a"]}`)
		}},
		{"blob count inflated", func(t *testing.T, indexPath, _ string) {
			patchBlob(t, indexPath, func(blob []byte) {
				binary.LittleEndian.PutUint32(blob[6:], 8)
				binary.LittleEndian.PutUint64(blob[10:], 1<<31)
			})
		}},
		{"blob count disagrees with header", func(t *testing.T, indexPath, _ string) {
			patchBlob(t, indexPath, func(blob []byte) {
				binary.LittleEndian.PutUint64(blob[10:], 3)
			})
		}},
		{"blob dims inflated", func(t *testing.T, indexPath, _ string) {
			patchBlob(t, indexPath, func(blob []byte) {
				binary.LittleEndian.PutUint32(blob[6:], 1<<20)
			})
		}},
		{"nan in vectors", func(t *testing.T, indexPath, _ string) {
			patchBlob(t, indexPath, func(blob []byte) {
				binary.LittleEndian.PutUint32(blob[vector.BlobHeaderSize:], math.Float32bits(float32(math.NaN())))
			})
		}},
		{"trailing bytes", func(t *testing.T, indexPath, _ string) {
			data, _ := os.ReadFile(indexPath)
			writeFile(t, indexPath, string(data)+"junk")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(filepath.Join(t.TempDir(), "idx"), WithRetry(1, time.Millisecond))
			if err := s.Save(buildIndex(t, [][]float32{{1, 0}, {0, 1}}), []string{"a", "b"}, "m"); err != nil {
				t.Fatal(err)
			}
			indexPath, chunksPath := s.Paths()
			tt.damage(t, indexPath, chunksPath)
			if _, err := s.Load("flat"); !errors.Is(err, ErrSnapshotCorrupt) {
				t.Errorf("err = %v, want ErrSnapshotCorrupt", err)
			}
		})
	}
}

func TestStore_SaveRejectsInvalidUTF8(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "idx"))
	err := s.Save(buildIndex(t, [][]float32{{1, 0}, {0, 1}}), []string{"ok", "caf\xe9"}, "m")
	if !errors.Is(err, ErrInvalidText) {
		t.Fatalf("err = %v, want ErrInvalidText", err)
	}
	if s.Exists() {
		t.Error("nothing should be written")
	}
}

func TestStore_SaveLoadNonASCII(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "idx"))
	chunks := []string{"café au lait", "数学 の ノート", "caf\uFFFD notes"}
	if err := s.Save(buildIndex(t, [][]float32{{1, 0}, {0, 1}, {1, 1}}), chunks, "m"); err != nil {
		t.Fatal(err)
	}
	snap, err := s.Load("flat")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(snap.Chunks, chunks) {
		t.Errorf("chunks = %q", snap.Chunks)
	}
}

func TestStore_LoadRetriesTornPair(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "idx"), WithRetry(50, 10*time.Millisecond))
	idx := buildIndex(t, [][]float32{{1, 0}, {0, 1}})
	if err := s.Save(idx, []string{"a", "b"}, "m"); err != nil {
		t.Fatal(err)
	}
	_, chunksPath := s.Paths()
	good, err := os.ReadFile(chunksPath)
	if err != nil {
		t.Fatal(err)
	}
	// Simulate a writer that has renamed the chunks file but not yet the index.
	writeFile(t, chunksPath, `{"version":1,"model":"m","count":3,"chunks":["a","b","c"]}`)
	go func() {
		time.Sleep(40 * time.Millisecond)
		tmp := chunksPath + ".restore"
		_ = os.WriteFile(tmp, good, 0644)
		_ = os.Rename(tmp, chunksPath)
	}()

	snap, err := s.Load("flat")
	if err != nil {
		t.Fatalf("Load should succeed once the pair is consistent: %v", err)
	}
	if len(snap.Chunks) != 2 {
		t.Errorf("chunks = %v", snap.Chunks)
	}
}

func TestStore_Remove(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "idx"))
	if err := s.Remove(); err != nil {
		t.Errorf("Remove on empty store: %v", err)
	}
	if err := s.Save(buildIndex(t, [][]float32{{1}}), []string{"a"}, "m"); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(); err != nil {
		t.Fatal(err)
	}
	if s.Exists() {
		t.Error("snapshot should be gone")
	}
}

// patchBlob rewrites the vector blob that follows the index header in place.
func patchBlob(t *testing.T, indexPath string, patch func(blob []byte)) {
	t.Helper()
	data, err := os.ReadFile(indexPath)
	if err != nil {
		t.Fatal(err)
	}
	patch(data[binary.Size(indexHeader{}):])
	writeFile(t, indexPath, string(data))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}
