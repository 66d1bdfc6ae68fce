// Package document defines the indexed unit: a chunk of a workspace file with metadata and embedding.
package document

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Metadata describes where a document came from.
type Metadata struct {
	FilePath  string
	StartLine int
	EndLine   int
	Language  string
	Extra     map[string]any
}

// Document is an immutable value object. Replacing a document means delete + insert.
type Document struct {
	id        string
	text      string
	metadata  Metadata
	embedding []float32
}

// NewID returns a fresh random document identifier.
func NewID() string { return uuid.NewString() }

// New validates and creates a Document without an embedding.
func New(id, text string, meta Metadata) (Document, error) {
	if id == "" {
		return Document{}, fmt.Errorf("document ID is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return Document{}, fmt.Errorf("document ID must be a UUID: %w", err)
	}
	if text == "" {
		return Document{}, fmt.Errorf("text is required")
	}
	if meta.FilePath == "" {
		return Document{}, fmt.Errorf("metadata.filePath is required")
	}
	if meta.StartLine > 0 && meta.EndLine > 0 && meta.StartLine > meta.EndLine {
		return Document{}, fmt.Errorf("startLine %d is after endLine %d", meta.StartLine, meta.EndLine)
	}
	return Document{id: id, text: text, metadata: cloneMetadata(meta)}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(id, text string, meta Metadata, embedding []float32) Document {
	return Document{id: id, text: text, metadata: meta, embedding: embedding}
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Text returns the chunk text.
func (d *Document) Text() string { return d.text }

// Metadata returns a copy of the metadata.
func (d *Document) Metadata() Metadata { return cloneMetadata(d.metadata) }

// FilePath is a shortcut for Metadata().FilePath without copying.
func (d *Document) FilePath() string { return d.metadata.FilePath }

// Embedding returns the embedding vector, nil when not embedded yet.
func (d *Document) Embedding() []float32 { return d.embedding }

// Dim returns the embedding dimension.
func (d *Document) Dim() int { return len(d.embedding) }

// WithEmbedding returns a copy with the given embedding set.
func (d *Document) WithEmbedding(v []float32) Document {
	return Document{id: d.id, text: d.text, metadata: d.metadata, embedding: v}
}

// Field resolves a flat or dotted metadata path. A leading "metadata." is optional.
// Known keys are filePath, startLine, endLine and language; anything else is
// looked up in Extra, descending into nested maps on dots.
func (d *Document) Field(path string) (any, bool) {
	path = strings.TrimPrefix(path, "metadata.")
	switch path {
	case "id":
		return d.id, true
	case "filePath":
		return d.metadata.FilePath, true
	case "startLine":
		return d.metadata.StartLine, d.metadata.StartLine > 0
	case "endLine":
		return d.metadata.EndLine, d.metadata.EndLine > 0
	case "language":
		return d.metadata.Language, d.metadata.Language != ""
	}

	path = strings.TrimPrefix(path, "extra.")
	if v, ok := d.metadata.Extra[path]; ok {
		return v, true
	}

	var cur any = d.metadata.Extra
	for _, seg := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	}
	return nil, false
}

func cloneMetadata(m Metadata) Metadata {
	if m.Extra == nil {
		return m
	}
	extra := make(map[string]any, len(m.Extra))
	for k, v := range m.Extra {
		extra[k] = v
	}
	m.Extra = extra
	return m
}
