// Package embcache memoizes embedding vectors per model and text.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderag/internal/domain"
)

// DefaultTTL keeps embeddings for a week.
const DefaultTTL = 7 * 24 * time.Hour

// vectorCache is the consumer interface over cache.Cache[[]float32].
type vectorCache interface {
	Get(ctx context.Context, key string, persistent bool) ([]float32, bool)
	Set(ctx context.Context, key string, value []float32, ttl time.Duration, persistent bool)
}

// Options configures a CachedEmbedder.
type Options struct {
	// Model namespaces keys so switching models never serves stale vectors.
	Model      string
	TTL        time.Duration
	Persistent bool
}

// CachedEmbedder caches embeddings in a two-tier cache.
type CachedEmbedder struct {
	inner      domain.Embedder
	cache      vectorCache
	model      string
	ttl        time.Duration
	persistent bool
	logger     *zap.Logger
}

// New creates a caching decorator.
func New(inner domain.Embedder, c vectorCache, opts Options, logger *zap.Logger) *CachedEmbedder {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		inner:      inner,
		cache:      c,
		model:      opts.Model,
		ttl:        opts.TTL,
		persistent: opts.Persistent,
		logger:     logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
// Degraded vectors are never cached.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(text)

	if vec, ok := c.cache.Get(ctx, key, c.persistent); ok {
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	if !result.Degraded {
		c.cache.Set(ctx, key, result.Embedding, c.ttl, c.persistent)
	}
	return result, nil
}

// BatchEmbed serves hits from the cache and embeds all misses in one inner batch.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	embeddings := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		keys[i] = c.cacheKey(text)
		if vec, ok := c.cache.Get(ctx, keys[i], c.persistent); ok {
			embeddings[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
	}

	res, err := domain.BatchEmbed(ctx, c.inner, missTexts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed %d misses: %w", len(missTexts), err)
	}
	if len(res.Embeddings) != len(missTexts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("%w: expected %d embeddings, got %d",
			domain.ErrEmbeddingProviderError, len(missTexts), len(res.Embeddings))
	}

	for j, i := range missIdx {
		embeddings[i] = res.Embeddings[j]
		if !res.Degraded {
			c.cache.Set(ctx, keys[i], res.Embeddings[j], c.ttl, c.persistent)
		}
	}

	c.logger.Debug("batch embed",
		zap.Int("texts", len(texts)),
		zap.Int("cache_hits", len(texts)-len(missTexts)),
	)

	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
		Degraded:     res.Degraded,
	}, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return c.model + ":" + hex.EncodeToString(h[:])
}
