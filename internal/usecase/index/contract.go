package index

import (
	"context"
	"io/fs"

	"github.com/kailas-cloud/coderag/internal/domain/document"
	"github.com/kailas-cloud/coderag/internal/domain/search/filter"
)

// VectorStore stores embedded chunks.
type VectorStore interface {
	AddDocuments(ctx context.Context, docs []document.Document) error
	DeleteDocuments(ctx context.Context, f filter.Filter) (int, error)
	Files() []string
	Count() int
}

// Files reads the workspace tree.
type Files interface {
	Rel(p string) string
	Read(ctx context.Context, p string) (string, error)
	Stat(p string) (fs.FileInfo, error)
	Walk(ctx context.Context, skipDir func(name string) bool, fn func(rel string, info fs.FileInfo) error) error
}
