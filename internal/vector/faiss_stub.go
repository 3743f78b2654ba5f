//go:build !faiss || !cgo

package vector

import (
	"context"
	"errors"
	"io"
)

var errFAISSUnavailable = errors.New("FAISS not available: build with -tags=faiss and install FAISS library")

// FAISSIndex is a stub that returns an error when FAISS is not available.
// Build with -tags=faiss to enable FAISS support.
type FAISSIndex struct{}

// NewFAISSIndex returns an error because FAISS is not available.
func NewFAISSIndex() (*FAISSIndex, error) {
	return nil, errFAISSUnavailable
}

func (f *FAISSIndex) Build(context.Context, [][]float32) error  { return errFAISSUnavailable }
func (f *FAISSIndex) Insert(context.Context, [][]float32) error { return errFAISSUnavailable }

func (f *FAISSIndex) Search(context.Context, []float32, int) ([]Result, error) {
	return nil, errFAISSUnavailable
}

func (f *FAISSIndex) Truncate(int) error                { return errFAISSUnavailable }
func (f *FAISSIndex) WriteTo(io.Writer) (int64, error)  { return 0, errFAISSUnavailable }
func (f *FAISSIndex) ReadFrom(io.Reader) (int64, error) { return 0, errFAISSUnavailable }
func (f *FAISSIndex) Size() int                         { return 0 }
func (f *FAISSIndex) Dimensions() int                   { return 0 }
func (f *FAISSIndex) Close() error                      { return nil }

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
