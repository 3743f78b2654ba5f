package vector

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
)

var _ Index = (*FlatIndex)(nil)
var _ Index = (*FAISSIndex)(nil)

// runIndexContract exercises the behavior every backend must share.
func runIndexContract(t *testing.T, newIndex func() Index) {
	ctx := context.Background()

	t.Run("search_before_build", func(t *testing.T) {
		idx := newIndex()
		defer idx.Close()
		if _, err := idx.Search(ctx, []float32{1, 0}, 1); !errors.Is(err, ErrIndexNotInitialized) {
			t.Errorf("err = %v, want ErrIndexNotInitialized", err)
		}
	})

	t.Run("insert_before_build", func(t *testing.T) {
		idx := newIndex()
		defer idx.Close()
		if err := idx.Insert(ctx, [][]float32{{1, 0}}); !errors.Is(err, ErrIndexNotInitialized) {
			t.Errorf("err = %v, want ErrIndexNotInitialized", err)
		}
	})

	t.Run("build_empty", func(t *testing.T) {
		idx := newIndex()
		defer idx.Close()
		if err := idx.Build(ctx, nil); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("err = %v, want ErrEmptyInput", err)
		}
	})

	t.Run("build_mixed_dimensions", func(t *testing.T) {
		idx := newIndex()
		defer idx.Close()
		err := idx.Build(ctx, [][]float32{{1, 0, 0}, {1, 0}})
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("err = %v, want ErrDimensionMismatch", err)
		}
		if idx.Size() != 0 {
			t.Errorf("failed build should leave index empty, size=%d", idx.Size())
		}
	})

	t.Run("build_search", func(t *testing.T) {
		idx := newIndex()
		defer idx.Close()
		if err := idx.Build(ctx, [][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0, 1, 0}}); err != nil {
			t.Fatal(err)
		}
		if idx.Size() != 3 || idx.Dimensions() != 3 {
			t.Fatalf("size=%d dims=%d", idx.Size(), idx.Dimensions())
		}
		results, err := idx.Search(ctx, []float32{2, 0, 0}, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
		if results[0].Position != 0 || results[1].Position != 1 {
			t.Errorf("order = %v, want positions 0, 1", results)
		}
		if math.Abs(results[0].Score-1) > 1e-5 {
			t.Errorf("unnormalized query should still score 1 against itself, got %f", results[0].Score)
		}
		if results[0].Score < results[1].Score {
			t.Error("scores should be descending")
		}
	})

	t.Run("k_clamped_and_nonpositive", func(t *testing.T) {
		idx := newIndex()
		defer idx.Close()
		_ = idx.Build(ctx, [][]float32{{1, 0}, {0, 1}})
		results, err := idx.Search(ctx, []float32{1, 1}, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 2 {
			t.Errorf("k should clamp to size, got %d results", len(results))
		}
		results, err = idx.Search(ctx, []float32{1, 1}, 0)
		if err != nil || len(results) != 0 {
			t.Errorf("k=0: %v, %v", results, err)
		}
	})

	t.Run("ties_prefer_lower_position", func(t *testing.T) {
		idx := newIndex()
		defer idx.Close()
		_ = idx.Build(ctx, [][]float32{{0, 1}, {1, 0}, {1, 0}, {1, 0}})
		results, err := idx.Search(ctx, []float32{1, 0}, 3)
		if err != nil {
			t.Fatal(err)
		}
		for i, want := range []int{1, 2, 3} {
			if results[i].Position != want {
				t.Errorf("result %d position = %d, want %d", i, results[i].Position, want)
			}
		}
	})

	t.Run("query_dimension_mismatch", func(t *testing.T) {
		idx := newIndex()
		defer idx.Close()
		_ = idx.Build(ctx, [][]float32{{1, 0}})
		if _, err := idx.Search(ctx, []float32{1, 0, 0}, 1); !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("err = %v, want ErrDimensionMismatch", err)
		}
	})

	t.Run("insert_appends_positions", func(t *testing.T) {
		idx := newIndex()
		defer idx.Close()
		_ = idx.Build(ctx, [][]float32{{1, 0, 0}})
		if err := idx.Insert(ctx, [][]float32{{0, 1, 0}, {0, 0, 1}}); err != nil {
			t.Fatal(err)
		}
		if idx.Size() != 3 {
			t.Fatalf("size = %d", idx.Size())
		}
		results, _ := idx.Search(ctx, []float32{0, 0, 1}, 1)
		if results[0].Position != 2 {
			t.Errorf("inserted vector at position %d, want 2", results[0].Position)
		}
		if err := idx.Insert(ctx, [][]float32{{1, 0}}); !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("err = %v, want ErrDimensionMismatch", err)
		}
		if idx.Size() != 3 {
			t.Error("rejected insert should not change size")
		}
	})

	t.Run("build_replaces", func(t *testing.T) {
		idx := newIndex()
		defer idx.Close()
		_ = idx.Build(ctx, [][]float32{{1, 0}, {0, 1}})
		if err := idx.Build(ctx, [][]float32{{1, 0, 0}}); err != nil {
			t.Fatal(err)
		}
		if idx.Size() != 1 || idx.Dimensions() != 3 {
			t.Errorf("size=%d dims=%d after rebuild", idx.Size(), idx.Dimensions())
		}
	})

	t.Run("truncate", func(t *testing.T) {
		idx := newIndex()
		defer idx.Close()
		_ = idx.Build(ctx, [][]float32{{1, 0}, {0, 1}, {1, 1}})
		if err := idx.Truncate(1); err != nil {
			t.Fatal(err)
		}
		if idx.Size() != 1 {
			t.Errorf("size after truncate = %d", idx.Size())
		}
		results, _ := idx.Search(ctx, []float32{0, 1}, 5)
		if len(results) != 1 || results[0].Position != 0 {
			t.Errorf("search after truncate = %v", results)
		}
		if err := idx.Truncate(5); err == nil {
			t.Error("truncate beyond size should fail")
		}
	})

	t.Run("write_read_roundtrip", func(t *testing.T) {
		idx := newIndex()
		defer idx.Close()
		_ = idx.Build(ctx, [][]float32{{3, 4}, {0, 2}, {1, 1}})
		var buf bytes.Buffer
		if _, err := idx.WriteTo(&buf); err != nil {
			t.Fatal(err)
		}
		loaded := newIndex()
		defer loaded.Close()
		if _, err := loaded.ReadFrom(&buf); err != nil {
			t.Fatal(err)
		}
		if loaded.Size() != 3 || loaded.Dimensions() != 2 {
			t.Fatalf("loaded size=%d dims=%d", loaded.Size(), loaded.Dimensions())
		}
		for _, q := range [][]float32{{1, 0}, {0, 1}, {1, 1}} {
			a, _ := idx.Search(ctx, q, 3)
			b, _ := loaded.Search(ctx, q, 3)
			for i := range a {
				if a[i].Position != b[i].Position || math.Abs(a[i].Score-b[i].Score) > 1e-6 {
					t.Errorf("query %v: %v != %v", q, a, b)
				}
			}
		}
		if err := loaded.Insert(ctx, [][]float32{{1, 0}}); err != nil {
			t.Errorf("loaded index should accept inserts: %v", err)
		}
	})
}
