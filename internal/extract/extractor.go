// Package extract turns source documents into plain text ready for chunking.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for extensions no reader is registered for.
var ErrUnsupportedFormat = errors.New("unsupported document format")

type readerFunc func(content []byte) (string, error)

// Extractor extracts plain text from document files by extension.
type Extractor struct {
	readers map[string]readerFunc
}

// NewExtractor returns an Extractor for plain text, Markdown, reStructuredText, PDF, DOCX and XLSX.
func NewExtractor() *Extractor {
	return &Extractor{readers: map[string]readerFunc{
		".txt":  extractPlain,
		".md":   extractPlain,
		".rst":  extractPlain,
		"":      extractPlain,
		".pdf":  extractPDF,
		".docx": extractDOCX,
		".xlsx": extractExcel,
	}}
}

// Supports reports whether ext (with or without the leading dot) can be extracted.
func (e *Extractor) Supports(ext string) bool {
	_, ok := e.readers[normalizeExt(ext)]
	return ok
}

// Extensions returns the registered extensions, excluding the empty one.
func (e *Extractor) Extensions() []string {
	out := make([]string, 0, len(e.readers))
	for ext := range e.readers {
		if ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	ext := normalizeExt(filepath.Ext(path))
	if !e.Supports(ext) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on the given extension (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	read, ok := e.readers[normalizeExt(ext)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return read(content)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
