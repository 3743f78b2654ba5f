//go:build faiss && cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/impl/AuxIndexStructures_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"unsafe"
)

// FAISSIndex stores vectors in a FAISS IndexFlatIP. Inner product over normalized
// vectors equals cosine similarity, so results match FlatIndex.
type FAISSIndex struct {
	index      *C.FaissIndex
	dimensions int
	mu         sync.RWMutex
}

// NewFAISSIndex creates an empty FAISS-backed index. The FAISS index itself is
// allocated on Build or ReadFrom, once the dimension is known.
func NewFAISSIndex() (*FAISSIndex, error) {
	return &FAISSIndex{}, nil
}

// faissLastError returns the last FAISS error message.
func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

func newFlatIP(dims int) (*C.FaissIndex, error) {
	var index *C.FaissIndexFlatIP
	if ret := C.faiss_IndexFlatIP_new_with(&index, C.idx_t(dims)); ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	return (*C.FaissIndex)(unsafe.Pointer(index)), nil
}

func (f *FAISSIndex) add(data []float32) error {
	n := len(data) / f.dimensions
	if n == 0 {
		return nil
	}
	if ret := C.faiss_Index_add(f.index, C.idx_t(n), (*C.float)(unsafe.Pointer(&data[0]))); ret != 0 {
		return fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
	}
	return nil
}

// replace swaps in a fresh FAISS index holding data.
func (f *FAISSIndex) replace(dims int, data []float32) error {
	index, err := newFlatIP(dims)
	if err != nil {
		return err
	}
	old, oldDims := f.index, f.dimensions
	f.index, f.dimensions = index, dims
	if err := f.add(data); err != nil {
		C.faiss_Index_free(index)
		f.index, f.dimensions = old, oldDims
		return err
	}
	if old != nil {
		C.faiss_Index_free(old)
	}
	return nil
}

// Build replaces the index content with vectors.
func (f *FAISSIndex) Build(ctx context.Context, vectors [][]float32) error {
	if len(vectors) == 0 {
		return fmt.Errorf("build: %w", ErrEmptyInput)
	}
	dims := len(vectors[0])
	if dims == 0 {
		return fmt.Errorf("build: zero-length vector: %w", ErrDimensionMismatch)
	}
	data, err := flatten(ctx, vectors, dims)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replace(dims, data)
}

// Insert appends vectors.
func (f *FAISSIndex) Insert(ctx context.Context, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index == nil {
		return fmt.Errorf("insert: %w", ErrIndexNotInitialized)
	}
	if len(vectors) == 0 {
		return nil
	}
	data, err := flatten(ctx, vectors, f.dimensions)
	if err != nil {
		return err
	}
	return f.add(data)
}

// Search returns the top-k positions by inner product with the normalized query.
// FAISS does not order ties; results are re-sorted so equal scores list the lower
// position first.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := f.size()
	if n == 0 {
		return nil, fmt.Errorf("search: %w", ErrIndexNotInitialized)
	}
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w", len(query), f.dimensions, ErrDimensionMismatch)
	}
	if k <= 0 {
		return []Result{}, nil
	}
	k = min(k, n)

	q, err := flatten(ctx, [][]float32{query}, f.dimensions)
	if err != nil {
		return nil, err
	}
	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&q[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}

	results := make([]Result, 0, k)
	for i := 0; i < k; i++ {
		if labels[i] < 0 {
			continue
		}
		results = append(results, Result{Position: int(labels[i]), Score: float64(distances[i])})
	}
	slices.SortFunc(results, func(a, b Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})
	return results, nil
}

// Truncate removes every vector at position >= n. IndexFlat compacts on removal, so
// the remaining positions are unchanged.
func (f *FAISSIndex) Truncate(n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	size := f.size()
	if n < 0 || n > size {
		return fmt.Errorf("truncate to %d: index has %d vectors", n, size)
	}
	if n == size {
		return nil
	}
	var sel *C.FaissIDSelectorRange
	if ret := C.faiss_IDSelectorRange_new(&sel, C.idx_t(n), C.idx_t(size)); ret != 0 {
		return fmt.Errorf("failed to create id selector: %s", faissLastError())
	}
	defer C.faiss_IDSelectorRange_free(sel)
	var removed C.size_t
	if ret := C.faiss_Index_remove_ids(f.index, (*C.FaissIDSelector)(unsafe.Pointer(sel)), &removed); ret != 0 {
		return fmt.Errorf("failed to truncate FAISS index: %s", faissLastError())
	}
	return nil
}

// vectors copies the stored (already normalized) vectors out of FAISS.
func (f *FAISSIndex) vectors() []float32 {
	if f.index == nil {
		return nil
	}
	var xb *C.float
	var count C.size_t
	C.faiss_IndexFlat_xb((*C.FaissIndexFlat)(unsafe.Pointer(f.index)), &xb, &count)
	if count == 0 || xb == nil {
		return nil
	}
	out := make([]float32, int(count))
	copy(out, unsafe.Slice((*float32)(unsafe.Pointer(xb)), int(count)))
	return out
}

// WriteTo serializes the index in the shared blob format.
func (f *FAISSIndex) WriteTo(w io.Writer) (int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Encode(w, f.dimensions, f.vectors())
}

// ReadFrom replaces the index content with a serialized blob.
func (f *FAISSIndex) ReadFrom(r io.Reader) (int64, error) {
	dims, data, n, err := Decode(r)
	if err != nil {
		return n, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if dims == 0 {
		if f.index != nil {
			C.faiss_Index_free(f.index)
		}
		f.index, f.dimensions = nil, 0
		return n, nil
	}
	return n, f.replace(dims, data)
}

// Size returns the number of vectors in the index.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.size()
}

func (f *FAISSIndex) size() int {
	if f.index == nil {
		return 0
	}
	return int(C.faiss_Index_ntotal(f.index))
}

// Dimensions returns the vector dimension, or 0 before Build.
func (f *FAISSIndex) Dimensions() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dimensions
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
