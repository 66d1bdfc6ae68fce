package embedding

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderag/internal/domain"
	"github.com/kailas-cloud/coderag/internal/metrics"
)

// FallbackEmbedder substitutes unit-length random vectors when the inner
// provider fails. Results are flagged Degraded so they are never cached and
// documents built from them can be tagged. Only the index path uses it.
type FallbackEmbedder struct {
	inner  domain.Embedder
	dim    func() int
	logger *zap.Logger
}

// NewFallbackEmbedder wraps inner. dim reports the vector size to generate and
// may return 0 when unknown, in which case the provider error is returned.
func NewFallbackEmbedder(inner domain.Embedder, dim func() int, logger *zap.Logger) *FallbackEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackEmbedder{inner: inner, dim: dim, logger: logger}
}

// Embed delegates and falls back on provider failure.
func (f *FallbackEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := f.inner.Embed(ctx, text)
	if err == nil {
		return res, nil
	}
	vecs, ferr := f.random(ctx, 1, err)
	if ferr != nil {
		return domain.EmbeddingResult{}, ferr
	}
	return domain.EmbeddingResult{Embedding: vecs[0], Degraded: true}, nil
}

// BatchEmbed delegates and falls back for the whole batch on provider failure.
func (f *FallbackEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	res, err := domain.BatchEmbed(ctx, f.inner, texts)
	if err == nil {
		return res, nil
	}
	vecs, ferr := f.random(ctx, len(texts), err)
	if ferr != nil {
		return domain.BatchEmbeddingResult{}, ferr
	}
	return domain.BatchEmbeddingResult{Embeddings: vecs, Degraded: true}, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (f *FallbackEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := f.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (f *FallbackEmbedder) random(ctx context.Context, n int, cause error) ([][]float32, error) {
	if ctx.Err() != nil || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return nil, cause
	}
	dim := 0
	if f.dim != nil {
		dim = f.dim()
	}
	if dim <= 0 {
		return nil, cause
	}

	f.logger.Warn("embedding provider failed, storing random placeholder vectors",
		zap.Int("count", n),
		zap.Int("dimensions", dim),
		zap.Error(cause),
	)
	metrics.EmbeddingDegradedTotal.Add(float64(n))

	out := make([][]float32, n)
	for i := range out {
		out[i] = randomUnit(dim)
	}
	return out, nil
}

func randomUnit(dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		x := rand.NormFloat64()
		v[i] = float32(x)
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		v[0] = 1
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
