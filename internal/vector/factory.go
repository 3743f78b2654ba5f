package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeFlat is exact brute-force search in pure Go.
	IndexTypeFlat IndexType = "flat"
	// IndexTypeFAISS uses a FAISS IndexFlatIP through cgo.
	// Requires the FAISS C library and build tag -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// NewIndex creates an empty vector index of the given type.
// Supported types: "flat" (default; "memory" is accepted as an alias), "faiss".
func NewIndex(indexType string) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeFlat, "memory", "":
		return NewFlatIndex(), nil
	case IndexTypeFAISS:
		idx, err := NewFAISSIndex()
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat, faiss)", indexType)
	}
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex()
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
