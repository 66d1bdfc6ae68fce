package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderag/internal/cache"
	"github.com/kailas-cloud/coderag/internal/config"
	"github.com/kailas-cloud/coderag/internal/db"
	dbBolt "github.com/kailas-cloud/coderag/internal/db/bolt"
	dbFile "github.com/kailas-cloud/coderag/internal/db/file"
	dbRedis "github.com/kailas-cloud/coderag/internal/db/redis"
	"github.com/kailas-cloud/coderag/internal/domain"
	"github.com/kailas-cloud/coderag/internal/domain/chunk"
	"github.com/kailas-cloud/coderag/internal/domain/diff"
	"github.com/kailas-cloud/coderag/internal/domain/diff/block"
	"github.com/kailas-cloud/coderag/internal/domain/retrieval/mode"
	"github.com/kailas-cloud/coderag/internal/metrics"
	"github.com/kailas-cloud/coderag/internal/repository/embcache"
	"github.com/kailas-cloud/coderag/internal/repository/vector"
	ollamaProv "github.com/kailas-cloud/coderag/internal/transport/ollama"
	openaiProv "github.com/kailas-cloud/coderag/internal/transport/openai"
	edituc "github.com/kailas-cloud/coderag/internal/usecase/edit"
	embeddinguc "github.com/kailas-cloud/coderag/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/coderag/internal/usecase/health"
	indexuc "github.com/kailas-cloud/coderag/internal/usecase/index"
	retrievaluc "github.com/kailas-cloud/coderag/internal/usecase/retrieval"
	"github.com/kailas-cloud/coderag/internal/workspace"
)

// app is the composition root shared by every command.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	vectors   *vector.Store
	indexer   *indexuc.Service
	editor    *edituc.Service
	retrieval *retrievaluc.Service
	health    *healthuc.Service

	closers []func()
}

var metricsOnce sync.Once

func registerMetrics() {
	metricsOnce.Do(func() {
		metrics.RegisterEmbeddingMetrics()
		metrics.RegisterCacheMetrics()
		metrics.RegisterGenerationMetrics()
		metrics.RegisterRetrievalMetrics()
	})
}

// buildApp wires storage, caches, providers and use cases from cfg.
func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *app, err error) {
	registerMetrics()

	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := os.MkdirAll(cfg.Workspace.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	fsys, err := workspace.New(cfg.Workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	// Vector store
	var vectorPinger healthuc.Pinger
	var persister vector.Persister
	if cfg.Storage.Driver == "bolt" {
		bs, err := dbBolt.Open(cfg.Storage.Path, time.Duration(cfg.Storage.TimeoutSec)*time.Second)
		if err != nil {
			return nil, fmt.Errorf("open vector storage: %w", err)
		}
		a.closers = append(a.closers, func() { _ = bs.Close() })
		persister = vector.NewBucketPersister(bs, vector.DefaultBucket, logger)
		vectorPinger = bs
	}
	metric, err := vector.ParseMetric(cfg.Retrieval.Similarity)
	if err != nil {
		return nil, err
	}
	a.vectors = vector.New(vector.Options{
		Dimension: cfg.Embedding.Dimensions,
		Metric:    metric,
		Persister: persister,
		Logger:    logger,
	})
	loaded, err := a.vectors.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}
	logger.Info("Vector store ready",
		zap.String("driver", cfg.Storage.Driver),
		zap.Int("documents", loaded),
	)

	// Two-tier caches
	blob, err := a.openBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	persistent := cfg.Cache.Persistent && blob != nil
	cacheOpts := func(name string) cache.Options {
		return cache.Options{
			Name:          name,
			MaxEntries:    cfg.Cache.MaxEntries,
			SweepInterval: time.Duration(cfg.Cache.SweepIntervalMin) * time.Minute,
		}
	}
	vectorCache := cache.New[[]float32](blob, logger, cacheOpts("embeddings"))
	responseCache := cache.New[string](blob, logger, cacheOpts("responses"))
	vectorCache.Start(ctx)
	responseCache.Start(ctx)
	a.closers = append(a.closers, vectorCache.Close, responseCache.Close)

	// Embedders: provider -> cache -> instrumented [-> fallback] -> instruction
	base, err := buildProviderEmbedder(cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}
	var chain domain.Embedder = embcache.New(base, vectorCache, embcache.Options{
		Model:      cfg.Embedding.Model,
		TTL:        time.Duration(cfg.Cache.EmbeddingTTLHrs) * time.Hour,
		Persistent: persistent,
	}, logger)
	chain = embeddinguc.NewInstrumentedEmbedder(chain, cfg.Embedding.Provider, cfg.Embedding.Model, logger)

	indexEmbedder := chain
	if cfg.Embedding.FallbackEnabled() {
		indexEmbedder = embeddinguc.NewFallbackEmbedder(chain, a.vectors.Dimension, logger)
	}
	indexEmbedder = withInstruction(indexEmbedder, cfg.Embedding.DocumentInstruction)
	queryEmbedder := withInstruction(chain, cfg.Embedding.QueryInstruction)

	// Generator is optional.
	gen, genChecker, err := buildGenerator(cfg.Generation, cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}

	// Use cases
	excludes := cfg.Index.ExcludeDirs
	if excludes == nil {
		excludes = append([]string(nil), indexuc.DefaultExcludeDirs...)
	}
	excludes = append(excludes, filepath.Base(cfg.Workspace.DataDir))

	a.indexer = indexuc.New(a.vectors, fsys, indexEmbedder, indexuc.Config{
		IncludeExtensions: cfg.Index.IncludeExtensions,
		ExcludeDirs:       excludes,
		MaxFileSize:       int64(cfg.Index.MaxFileSizeKB) * 1024,
		BatchSize:         cfg.Index.BatchSize,
		Chunk: chunk.Options{
			ChunkSize:    cfg.Index.ChunkSize,
			ChunkOverlap: cfg.Index.ChunkOverlap,
			MinChunkSize: cfg.Index.MinChunkSize,
		},
		LockPath: filepath.Join(cfg.Workspace.DataDir, "index.lock"),
	}, logger)

	a.editor = edituc.New(fsys, diff.NewApplier(block.DefaultRegistry()), a.indexer, logger)

	genMode, err := mode.Parse(cfg.Generation.Mode)
	if err != nil {
		return nil, err
	}
	a.retrieval = retrievaluc.New(queryEmbedder, a.vectors, gen, responseCache, retrievaluc.Config{
		MinScore:         cfg.Retrieval.MinScore,
		FallbackMinScore: cfg.Retrieval.FallbackMinScore,
		MinResults:       cfg.Retrieval.MinResults,
		Limit:            cfg.Retrieval.Limit,
		Mode:             genMode,
		SystemPrompt:     cfg.Generation.SystemPrompt,
		CacheTTL:         time.Duration(cfg.Cache.ResponseTTLMin) * time.Minute,
		CachePersistent:  persistent,
	}, logger)

	deps := healthuc.Deps{Vectors: vectorPinger, Generation: genChecker}
	if blob != nil {
		deps.Cache = blob
	}
	if hc, ok := queryEmbedder.(domain.HealthChecker); ok {
		deps.Embedding = hc
	}
	a.health = healthuc.New(deps)

	logger.Info("coderag ready",
		zap.String("workspace", fsys.Root()),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("generation_provider", cfg.Generation.Provider),
		zap.String("mode", string(genMode)),
		zap.String("cache_driver", cfg.Cache.Driver),
	)
	return a, nil
}

// openBlobStore returns the persistent cache tier, or nil for the "none" driver.
func (a *app) openBlobStore(ctx context.Context) (db.BlobStore, error) {
	cfg := a.cfg.Cache
	switch cfg.Driver {
	case "file":
		s, err := dbFile.NewStore(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("open cache dir: %w", err)
		}
		return s, nil
	case "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:      cfg.Addrs,
			Username:   cfg.Username,
			Password:   cfg.Password,
			DB:         cfg.DB,
			Standalone: cfg.Standalone,
			KeyPrefix:  cfg.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis cache: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		if err := s.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
			return nil, fmt.Errorf("redis cache not ready: %w", err)
		}
		a.logger.Info("Connected to redis cache", zap.Strings("addrs", cfg.Addrs))
		return s, nil
	default:
		return nil, nil
	}
}

// Close releases caches and storage in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func buildProviderEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (domain.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		e, err := ollamaProv.NewEmbedder(ollamaProv.Config{
			Host:      cfg.Host,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}
		return e, nil
	default:
		return openaiProv.NewEmbedder(&openaiProv.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Provider:   cfg.Provider,
			Logger:     logger,
		}), nil
	}
}

// buildGenerator returns a nil generator when generation is not configured.
// Credentials fall back to the embedding provider's.
func buildGenerator(
	cfg config.GenerationConfig, emb config.EmbeddingConfig, logger *zap.Logger,
) (domain.Generator, healthuc.ProviderChecker, error) {
	apiKey, baseURL, host := cfg.APIKey, cfg.BaseURL, cfg.Host
	if cfg.Provider == emb.Provider {
		if apiKey == "" {
			apiKey = emb.APIKey
		}
		if baseURL == "" {
			baseURL = emb.BaseURL
		}
		if host == "" {
			host = emb.Host
		}
	}

	switch cfg.Provider {
	case "openai":
		g := openaiProv.NewGenerator(&openaiProv.Config{
			APIKey:   apiKey,
			BaseURL:  baseURL,
			Model:    cfg.Model,
			Provider: cfg.Provider,
			Logger:   logger,
		})
		return g, g, nil
	case "ollama":
		g, err := ollamaProv.NewGenerator(ollamaProv.Config{Host: host, Model: cfg.Model, Logger: logger})
		if err != nil {
			return nil, nil, fmt.Errorf("create ollama generator: %w", err)
		}
		return g, g, nil
	default:
		return nil, nil, nil
	}
}

func withInstruction(e domain.Embedder, instruction string) domain.Embedder {
	if instruction == "" {
		return e
	}
	return domain.NewInstructionEmbedder(e, instruction)
}
