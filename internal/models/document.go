// Package models defines the data structures shared by the engine, catalog, and HTTP API.
package models

import "time"

// Document is a catalog record of an ingested source. Its text lives in the chunk store,
// not in the catalog.
type Document struct {
	ID            string    `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	SourcePath    string    `json:"source_path,omitempty" db:"source_path"`
	ContentSHA256 string    `json:"content_sha256" db:"content_sha256"`
	ChunkCount    int       `json:"chunk_count" db:"chunk_count"`
	NewChunks     int       `json:"new_chunks" db:"new_chunks"`
	SourceMtime   int64     `json:"source_mtime,omitempty" db:"source_mtime"`
	SourceSize    int64     `json:"source_size,omitempty" db:"source_size"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// DocumentInput is raw text submitted for ingestion.
type DocumentInput struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// DocumentList is the response for listing catalog documents.
type DocumentList struct {
	Documents []*Document `json:"documents"`
	Total     int         `json:"total"`
}
