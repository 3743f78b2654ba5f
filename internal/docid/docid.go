// Package docid derives stable catalog IDs and content hashes for ingested documents.
package docid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	filePrefix = "file:"
	textPrefix = "text:"
)

// FromPath returns a stable document ID for a source file. Callers pass absolute paths;
// the path is cleaned so equivalent spellings map to one ID.
func FromPath(path string) string {
	return filePrefix + ContentHash(filepath.Clean(path))
}

// NewText returns a fresh ID for text submitted without a source file.
func NewText() string {
	return textPrefix + uuid.NewString()
}

// ContentHash returns the hex SHA-256 of extracted text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
