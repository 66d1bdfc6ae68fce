package embcache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderag/internal/domain"
)

type mockEmbedder struct {
	result      domain.EmbeddingResult
	err         error
	batchResult domain.BatchEmbeddingResult
	batchErr    error
	batchCalls  int
	batchTexts  []string
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return m.result, m.err
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	m.batchTexts = append(m.batchTexts, texts...)
	if m.batchErr != nil {
		return domain.BatchEmbeddingResult{}, m.batchErr
	}
	if m.batchResult.Embeddings != nil {
		return m.batchResult, nil
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = m.result.Embedding
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: m.result.PromptTokens * len(texts),
		TotalTokens:  m.result.TotalTokens * len(texts),
		Degraded:     m.result.Degraded,
	}, nil
}

// mockCache implements vectorCache for tests.
type mockCache struct {
	getFn func(ctx context.Context, key string, persistent bool) ([]float32, bool)
	setFn func(ctx context.Context, key string, value []float32, ttl time.Duration, persistent bool)
}

func (m *mockCache) Get(ctx context.Context, key string, persistent bool) ([]float32, bool) {
	if m.getFn != nil {
		return m.getFn(ctx, key, persistent)
	}
	return nil, false
}

func (m *mockCache) Set(ctx context.Context, key string, value []float32, ttl time.Duration, persistent bool) {
	if m.setFn != nil {
		m.setFn(ctx, key, value, ttl, persistent)
	}
}

func newTestCachedEmbedder(t *testing.T, inner *mockEmbedder) (*CachedEmbedder, *mockCache) {
	t.Helper()
	mc := &mockCache{}
	ce := New(inner, mc, Options{Model: "test-model", Persistent: true}, zap.NewNop())
	return ce, mc
}
