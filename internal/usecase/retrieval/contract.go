package retrieval

import (
	"context"
	"time"

	"github.com/kailas-cloud/coderag/internal/domain/search/request"
	"github.com/kailas-cloud/coderag/internal/domain/search/result"
)

// Searcher runs similarity search over indexed chunks.
type Searcher interface {
	SimilaritySearch(ctx context.Context, embedding []float32, opts request.Options) ([]result.Result, error)
}

// ResponseCache memoizes generated answers.
type ResponseCache interface {
	Get(ctx context.Context, key string, persistent bool) (string, bool)
	Set(ctx context.Context, key string, value string, ttl time.Duration, persistent bool)
}

// modelNamer is implemented by generators that expose their model.
type modelNamer interface {
	Model() string
}
