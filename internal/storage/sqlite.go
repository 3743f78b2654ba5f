package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/gakumon/internal/models"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT,
		source_path TEXT,
		content_sha256 TEXT NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		new_chunks INTEGER NOT NULL DEFAULT 0,
		source_mtime INTEGER NOT NULL DEFAULT 0,
		source_size INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);
	CREATE INDEX IF NOT EXISTS idx_documents_sha ON documents(content_sha256);
	CREATE INDEX IF NOT EXISTS idx_documents_source_path ON documents(source_path);
	`
	_, err := db.Exec(schema)
	return err
}

const documentColumns = `id, title, source_path, content_sha256, chunk_count, new_chunks,
	source_mtime, source_size, created_at`

// Record inserts or replaces a document. CreatedAt is set when zero.
func (s *SQLiteCatalog) Record(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			source_path = excluded.source_path,
			content_sha256 = excluded.content_sha256,
			chunk_count = excluded.chunk_count,
			new_chunks = excluded.new_chunks,
			source_mtime = excluded.source_mtime,
			source_size = excluded.source_size,
			created_at = excluded.created_at`,
		doc.ID, doc.Title, doc.SourcePath, doc.ContentSHA256, doc.ChunkCount, doc.NewChunks,
		doc.SourceMtime, doc.SourceSize, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record document: %w", err)
	}
	return nil
}

// Get returns a document by ID.
func (s *SQLiteCatalog) Get(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.queryOne(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc, err
}

// FindByContentHash returns the oldest document whose extracted text has the given SHA-256.
func (s *SQLiteCatalog) FindByContentHash(ctx context.Context, sha string) (*models.Document, error) {
	return s.queryOne(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE content_sha256 = ?
		 ORDER BY created_at ASC LIMIT 1`, sha)
}

// FindByPath returns the most recent document recorded for an absolute source path.
func (s *SQLiteCatalog) FindByPath(ctx context.Context, path string) (*models.Document, error) {
	return s.queryOne(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE source_path = ?
		 ORDER BY created_at DESC LIMIT 1`, path)
}

// List returns documents newest first with offset and limit.
func (s *SQLiteCatalog) List(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+`
		 FROM documents ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []*models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Count returns the number of recorded documents.
func (s *SQLiteCatalog) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}

func (s *SQLiteCatalog) queryOne(ctx context.Context, query string, args ...any) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*models.Document, error) {
	var doc models.Document
	var title, sourcePath sql.NullString
	err := row.Scan(&doc.ID, &title, &sourcePath, &doc.ContentSHA256, &doc.ChunkCount, &doc.NewChunks,
		&doc.SourceMtime, &doc.SourceSize, &doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	doc.Title = title.String
	doc.SourcePath = sourcePath.String
	return &doc, nil
}
