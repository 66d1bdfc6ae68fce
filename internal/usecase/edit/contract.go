package edit

import (
	"context"

	"github.com/kailas-cloud/coderag/internal/domain/batch"
)

// Files reads and writes workspace files.
type Files interface {
	Rel(p string) string
	Read(ctx context.Context, p string) (string, error)
	Exists(p string) bool
	Write(ctx context.Context, p, content string, overwrite bool) error
}

// Reindexer refreshes the index entries of a written file.
type Reindexer interface {
	ReindexFile(ctx context.Context, p string) batch.Result
}
