package chi

import (
	"context"

	"github.com/kailas-cloud/coderag/internal/domain"
	"github.com/kailas-cloud/coderag/internal/domain/batch"
	"github.com/kailas-cloud/coderag/internal/domain/search/filter"
	"github.com/kailas-cloud/coderag/internal/usecase/edit"
	"github.com/kailas-cloud/coderag/internal/usecase/health"
	"github.com/kailas-cloud/coderag/internal/usecase/index"
	"github.com/kailas-cloud/coderag/internal/usecase/retrieval"
)

// Indexer runs workspace indexing.
type Indexer interface {
	IndexWorkspace(ctx context.Context) (index.Report, error)
	ReindexFile(ctx context.Context, p string) batch.Result
	RemoveFile(ctx context.Context, p string) (int, error)
}

// Querier answers questions against the index.
type Querier interface {
	Query(ctx context.Context, req retrieval.Request) (retrieval.Response, error)
	QueryStream(ctx context.Context, req retrieval.Request, onChunk func(domain.StreamChunk)) (retrieval.Response, error)
}

// Editor applies edits to the workspace.
type Editor interface {
	Preview(ctx context.Context, p, proposed string) (edit.Preview, error)
	ApplyProposal(ctx context.Context, p, proposed string, create bool) (edit.Change, error)
	ApplyPatch(ctx context.Context, diffText string) (edit.Report, error)
	ApplyResponse(ctx context.Context, text string) (edit.Report, error)
}

// Documents exposes the indexed chunk store.
type Documents interface {
	DeleteDocuments(ctx context.Context, f filter.Filter) (int, error)
	Count() int
	Files() []string
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}
