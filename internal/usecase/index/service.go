// Package index turns workspace files into embedded chunks in the vector store.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/kailas-cloud/coderag/internal/domain"
	"github.com/kailas-cloud/coderag/internal/domain/batch"
	"github.com/kailas-cloud/coderag/internal/domain/chunk"
	"github.com/kailas-cloud/coderag/internal/domain/document"
	"github.com/kailas-cloud/coderag/internal/domain/search/filter"
	"github.com/kailas-cloud/coderag/internal/metrics"
)

// Defaults.
const (
	DefaultMaxFileSize = 1 << 20
	DefaultBatchSize   = 10
)

// DefaultExcludeDirs are never descended into.
var DefaultExcludeDirs = []string{".git", "node_modules", "vendor", "dist", "build", ".idea", ".vscode", "__pycache__"}

// Skip reasons reported in batch results.
const (
	SkipBusy        = "indexing in progress"
	SkipEmpty       = "no content to index"
	SkipTooLarge    = "file too large"
	SkipUnsupported = "unsupported file type"
)

// Config tunes the indexer.
type Config struct {
	// IncludeExtensions limits indexing to these extensions (with dot). Empty means every known language.
	IncludeExtensions []string
	ExcludeDirs       []string
	MaxFileSize       int64
	BatchSize         int
	Chunk             chunk.Options
	// LockPath is an inter-process lock file. Empty disables it.
	LockPath string
}

// Report summarizes an index run.
type Report struct {
	Files    []batch.Result
	Summary  batch.Summary
	Chunks   int
	Degraded int
	Removed  int
	Duration time.Duration
}

// Service indexes workspace files. One run at a time per process and, with a
// lock file, per workspace.
type Service struct {
	store    VectorStore
	files    Files
	embedder domain.Embedder
	cfg      Config
	include  map[string]bool
	exclude  map[string]bool
	busy     atomic.Bool
	logger   *zap.Logger
}

// New creates an index service.
func New(store VectorStore, files Files, embedder domain.Embedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.ExcludeDirs == nil {
		cfg.ExcludeDirs = DefaultExcludeDirs
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		store:    store,
		files:    files,
		embedder: embedder,
		cfg:      cfg,
		include:  make(map[string]bool),
		exclude:  make(map[string]bool),
		logger:   logger,
	}
	for _, ext := range cfg.IncludeExtensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.include[strings.ToLower(ext)] = true
	}
	for _, d := range cfg.ExcludeDirs {
		s.exclude[d] = true
	}
	return s
}

// Busy reports whether an index run is in progress.
func (s *Service) Busy() bool { return s.busy.Load() }

// IndexWorkspace reindexes every eligible file and drops documents of files
// that no longer exist. A concurrent run fails with domain.ErrIndexBusy.
func (s *Service) IndexWorkspace(ctx context.Context) (Report, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return Report{}, domain.ErrIndexBusy
	}
	defer s.busy.Store(false)

	unlock, err := s.lock()
	if err != nil {
		return Report{}, err
	}
	defer unlock()

	start := time.Now()
	var rep Report

	type candidate struct {
		rel  string
		size int64
	}
	var candidates []candidate
	err = s.files.Walk(ctx, func(name string) bool { return s.exclude[name] }, func(rel string, info fs.FileInfo) error {
		if !s.eligible(rel) {
			return nil
		}
		candidates = append(candidates, candidate{rel: rel, size: info.Size()})
		return nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("walk workspace: %w", err)
	}

	present := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		present[c.rel] = true
		if c.size > s.cfg.MaxFileSize {
			res, n := s.tooLarge(ctx, c.rel)
			rep.Files = append(rep.Files, res)
			rep.Removed += n
			continue
		}
		res, st := s.indexFile(ctx, c.rel)
		rep.Files = append(rep.Files, res)
		rep.Chunks += st.chunks
		rep.Degraded += st.degraded
	}

	for _, f := range s.store.Files() {
		if present[f] {
			continue
		}
		n, err := s.store.DeleteDocuments(ctx, filter.ByFilePath(f))
		if err != nil {
			s.logger.Warn("failed to drop documents of removed file", zap.String("file", f), zap.Error(err))
			continue
		}
		rep.Removed += n
	}

	rep.Summary = batch.Summarize(rep.Files)
	rep.Duration = time.Since(start)
	metrics.IndexRunDuration.Observe(rep.Duration.Seconds())

	s.logger.Info("workspace indexed",
		zap.Int("files_ok", rep.Summary.OK),
		zap.Int("files_failed", rep.Summary.Failed),
		zap.Int("files_skipped", rep.Summary.Skipped),
		zap.Int("chunks", rep.Chunks),
		zap.Int("degraded", rep.Degraded),
		zap.Int("removed", rep.Removed),
		zap.Duration("duration", rep.Duration),
	)
	return rep, nil
}

// ReindexFile replaces the documents of one file. While a workspace run is in
// progress the file is skipped, not failed.
func (s *Service) ReindexFile(ctx context.Context, p string) batch.Result {
	rel := s.files.Rel(p)
	if !s.busy.CompareAndSwap(false, true) {
		return s.skipped(rel, SkipBusy)
	}
	defer s.busy.Store(false)

	if !s.eligible(rel) {
		return s.skipped(rel, SkipUnsupported)
	}

	info, err := s.files.Stat(rel)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			n, derr := s.store.DeleteDocuments(ctx, filter.ByFilePath(rel))
			if derr != nil {
				return batch.NewError(rel, derr)
			}
			return batch.NewSkipped(rel, fmt.Sprintf("file removed, %d documents dropped", n))
		}
		return batch.NewError(rel, err)
	}
	if info.Size() > s.cfg.MaxFileSize {
		res, _ := s.tooLarge(ctx, rel)
		return res
	}
	res, _ := s.indexFile(ctx, rel)
	return res
}

// RemoveFile drops every document of a file.
func (s *Service) RemoveFile(ctx context.Context, p string) (int, error) {
	rel := s.files.Rel(p)
	n, err := s.store.DeleteDocuments(ctx, filter.ByFilePath(rel))
	if err != nil {
		return 0, fmt.Errorf("delete documents of %s: %w", rel, err)
	}
	return n, nil
}

type fileStats struct {
	chunks   int
	degraded int
}

func (s *Service) indexFile(ctx context.Context, rel string) (batch.Result, fileStats) {
	var st fileStats
	log := s.logger.With(zap.String("file", rel))

	content, err := s.files.Read(ctx, rel)
	if err != nil {
		return s.failed(rel, err), st
	}

	chunks := chunk.Split(content, s.cfg.Chunk)
	if len(chunks) == 0 {
		if _, err := s.store.DeleteDocuments(ctx, filter.ByFilePath(rel)); err != nil {
			return s.failed(rel, err), st
		}
		return s.skipped(rel, SkipEmpty), st
	}

	sum := sha256.Sum256([]byte(content))
	fileHash := hex.EncodeToString(sum[:])
	lang := document.LanguageForPath(rel)

	docs := make([]document.Document, 0, len(chunks))
	for start := 0; start < len(chunks); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		res, err := domain.BatchEmbed(ctx, s.embedder, texts)
		if err != nil {
			return s.failed(rel, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)), fileStats{}
		}
		if len(res.Embeddings) != len(texts) {
			return s.failed(rel, fmt.Errorf("%w: expected %d embeddings, got %d",
				domain.ErrEmbeddingProviderError, len(texts), len(res.Embeddings))), fileStats{}
		}

		for i, c := range chunks[start:end] {
			extra := map[string]any{
				"chunkIndex":  start + i,
				"totalChunks": len(chunks),
				"fileHash":    fileHash,
			}
			if res.Degraded {
				extra["degraded"] = true
				st.degraded++
			}
			d, err := document.New(document.NewID(), c.Text, document.Metadata{
				FilePath:  rel,
				StartLine: c.StartLine,
				EndLine:   c.EndLine,
				Language:  lang,
				Extra:     extra,
			})
			if err != nil {
				return s.failed(rel, fmt.Errorf("build document: %w", err)), fileStats{}
			}
			docs = append(docs, d.WithEmbedding(res.Embeddings[i]))
		}
	}

	if _, err := s.store.DeleteDocuments(ctx, filter.ByFilePath(rel)); err != nil {
		return s.failed(rel, fmt.Errorf("drop previous documents: %w", err)), fileStats{}
	}
	if err := s.store.AddDocuments(ctx, docs); err != nil {
		return s.failed(rel, fmt.Errorf("store documents: %w", err)), fileStats{}
	}

	st.chunks = len(docs)
	metrics.IndexedFilesTotal.WithLabelValues("ok").Inc()
	metrics.IndexedChunksTotal.Add(float64(len(docs)))
	if st.degraded > 0 {
		log.Warn("file indexed with placeholder vectors", zap.Int("degraded", st.degraded))
	}
	log.Debug("file indexed", zap.Int("chunks", len(docs)))

	return batch.NewOK(rel).WithDetail(fmt.Sprintf("%d chunks", len(docs))), st
}

func (s *Service) eligible(rel string) bool {
	name := path.Base(rel)
	if len(s.include) == 0 {
		return document.LanguageForPath(name) != ""
	}
	return s.include[strings.ToLower(path.Ext(name))]
}

func (s *Service) lock() (func(), error) {
	if s.cfg.LockPath == "" {
		return func() {}, nil
	}
	fl := flock.New(s.cfg.LockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire index lock %s: %w", s.cfg.LockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: lock %s held by another process", domain.ErrIndexBusy, s.cfg.LockPath)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.logger.Warn("failed to release index lock", zap.String("path", s.cfg.LockPath), zap.Error(err))
		}
	}, nil
}

func (s *Service) failed(rel string, err error) batch.Result {
	metrics.IndexedFilesTotal.WithLabelValues("error").Inc()
	s.logger.Warn("failed to index file", zap.String("file", rel), zap.Error(err))
	return batch.NewError(rel, err)
}

// tooLarge skips an oversized file and drops the documents it had while it fit.
func (s *Service) tooLarge(ctx context.Context, rel string) (batch.Result, int) {
	n, err := s.store.DeleteDocuments(ctx, filter.ByFilePath(rel))
	if err != nil {
		s.logger.Warn("failed to drop documents of oversized file", zap.String("file", rel), zap.Error(err))
	}
	return s.skipped(rel, SkipTooLarge), n
}

func (s *Service) skipped(rel, reason string) batch.Result {
	metrics.IndexedFilesTotal.WithLabelValues("skipped").Inc()
	return batch.NewSkipped(rel, reason)
}
