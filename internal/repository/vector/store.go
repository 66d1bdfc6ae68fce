// Package vector is the in-memory similarity index over documents with an
// optional write-through persister.
package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderag/internal/domain"
	"github.com/kailas-cloud/coderag/internal/domain/document"
	"github.com/kailas-cloud/coderag/internal/domain/search/filter"
	"github.com/kailas-cloud/coderag/internal/domain/search/request"
	"github.com/kailas-cloud/coderag/internal/domain/search/result"
	"github.com/kailas-cloud/coderag/internal/metrics"
)

// Persister mirrors store mutations to durable storage.
type Persister interface {
	Put(ctx context.Context, docs []document.Document) error
	Delete(ctx context.Context, ids []string) error
	LoadAll(ctx context.Context) ([]document.Document, error)
}

// Options configures a Store.
type Options struct {
	// Dimension fixes the vector size up front. Zero takes it from the first insert.
	Dimension int
	Metric    Metric
	Persister Persister
	Logger    *zap.Logger
}

// Store is safe for concurrent use.
type Store struct {
	metric    Metric
	persister Persister
	logger    *zap.Logger

	// fixedDim is Options.Dimension; zero lets the dimension follow the contents.
	fixedDim int

	mu   sync.RWMutex
	dim  int
	docs []document.Document
}

// New creates an empty store.
func New(opts Options) *Store {
	if opts.Metric == "" {
		opts.Metric = MetricAbsolute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store{
		metric:    opts.Metric,
		persister: opts.Persister,
		logger:    opts.Logger,
		fixedDim:  opts.Dimension,
		dim:       opts.Dimension,
	}
}

// Load replaces the contents with everything the persister holds.
// Documents whose dimension disagrees with the first loaded one are skipped.
func (s *Store) Load(ctx context.Context) (int, error) {
	if s.persister == nil {
		return 0, nil
	}
	docs, err := s.persister.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load documents: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs = s.docs[:0]
	s.dim = s.fixedDim
	skipped := 0
	for _, d := range docs {
		if d.Dim() == 0 || (s.dim != 0 && d.Dim() != s.dim) {
			skipped++
			continue
		}
		if s.dim == 0 {
			s.dim = d.Dim()
		}
		s.docs = append(s.docs, d)
	}
	if skipped > 0 {
		s.logger.Warn("skipped persisted documents with foreign dimension",
			zap.Int("skipped", skipped), zap.Int("dimension", s.dim))
	}
	metrics.VectorStoreDocuments.Set(float64(len(s.docs)))
	return len(s.docs), nil
}

// AddDocuments appends docs. The whole batch is validated before any of it is stored.
func (s *Store) AddDocuments(ctx context.Context, docs []document.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	dim := s.dim
	if dim == 0 {
		dim = docs[0].Dim()
	}
	for i, d := range docs {
		if d.Dim() == 0 {
			s.mu.Unlock()
			return domain.InvalidInputf("document %d (%s) has no embedding", i, d.ID())
		}
		if d.Dim() != dim {
			s.mu.Unlock()
			return fmt.Errorf("document %d (%s): %w", i, d.ID(), domain.NewDimMismatch(dim, d.Dim()))
		}
	}
	s.dim = dim
	s.docs = append(s.docs, docs...)
	metrics.VectorStoreDocuments.Set(float64(len(s.docs)))
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.Put(ctx, docs); err != nil {
			s.logger.Warn("persist documents failed", zap.Int("count", len(docs)), zap.Error(err))
		}
	}
	return nil
}

// SimilaritySearch scores every document matching opts.Filter and returns the
// best ones in descending score order. Equal scores keep insertion order.
func (s *Store) SimilaritySearch(ctx context.Context, embedding []float32, opts request.Options) ([]result.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := opts.EffectiveLimit()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.docs) == 0 {
		return nil, nil
	}
	if len(embedding) != s.dim {
		return nil, domain.NewDimMismatch(s.dim, len(embedding))
	}

	var out []result.Result
	for _, d := range s.docs {
		if !opts.Filter.Matches(&d) {
			continue
		}
		score := s.metric.Score(embedding, d.Embedding())
		if opts.MinScore > 0 && score < opts.MinScore {
			continue
		}
		out = append(out, result.New(d, score))
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score() > out[j].Score() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteDocuments removes every document matching f and returns how many were
// removed. An empty filter removes everything. An emptied store without a
// fixed dimension accepts vectors of any size again.
func (s *Store) DeleteDocuments(ctx context.Context, f filter.Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	kept := s.docs[:0]
	var ids []string
	for _, d := range s.docs {
		if f.Matches(&d) {
			ids = append(ids, d.ID())
			continue
		}
		kept = append(kept, d)
	}
	for i := len(kept); i < len(s.docs); i++ {
		s.docs[i] = document.Document{}
	}
	s.docs = kept
	if len(kept) == 0 {
		s.dim = s.fixedDim
	}
	metrics.VectorStoreDocuments.Set(float64(len(s.docs)))
	s.mu.Unlock()

	if s.persister != nil && len(ids) > 0 {
		if err := s.persister.Delete(ctx, ids); err != nil {
			s.logger.Warn("persist deletion failed", zap.Int("count", len(ids)), zap.Error(err))
		}
	}
	return len(ids), nil
}

// Count returns the number of stored documents.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Dimension returns the fixed vector size, zero while the store is unset.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Files returns the distinct file paths in the store.
func (s *Store) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var files []string
	for _, d := range s.docs {
		p := d.FilePath()
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}
	sort.Strings(files)
	return files
}
