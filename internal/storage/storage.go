// Package storage persists the document catalog: which sources were ingested and how many
// chunks each contributed. Chunk text and vectors live in the engine snapshot, not here.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/gakumon/internal/models"
)

// ErrNotFound is returned when no catalog record matches.
var ErrNotFound = errors.New("document not found")

// Catalog defines document catalog operations.
type Catalog interface {
	// Record inserts the document or replaces the record with the same ID.
	Record(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, id string) (*models.Document, error)
	FindByContentHash(ctx context.Context, sha string) (*models.Document, error)
	FindByPath(ctx context.Context, path string) (*models.Document, error)
	List(ctx context.Context, offset, limit int) ([]*models.Document, error)
	Count(ctx context.Context) (int64, error)

	Close() error
}
