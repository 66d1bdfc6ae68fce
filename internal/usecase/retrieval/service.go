// Package retrieval answers natural-language questions about the workspace
// from indexed chunks, optionally through a generation provider.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderag/internal/domain"
	"github.com/kailas-cloud/coderag/internal/domain/retrieval/mode"
	"github.com/kailas-cloud/coderag/internal/domain/search/filter"
	"github.com/kailas-cloud/coderag/internal/domain/search/request"
	"github.com/kailas-cloud/coderag/internal/domain/search/result"
	"github.com/kailas-cloud/coderag/internal/metrics"
)

// Outcome is the terminal state of a query.
type Outcome string

// Query outcomes.
const (
	OutcomeDirect    Outcome = "direct"
	OutcomeRAGOnly   Outcome = "rag_only"
	OutcomeNoContext Outcome = "no_context"
	OutcomeError     Outcome = "error"
)

// Defaults.
const (
	DefaultMinScore         = 0.25
	DefaultFallbackMinScore = 0.1
	DefaultMinResults       = 2
	DefaultCacheTTL         = 24 * time.Hour
	DefaultAvailabilityTTL  = 30 * time.Second
)

// Config tunes retrieval.
type Config struct {
	MinScore         float64
	FallbackMinScore float64
	// MinResults below which the fallback search runs.
	MinResults   int
	Limit        int
	Mode         mode.Mode
	SystemPrompt string
	CacheTTL     time.Duration
	// CachePersistent stores answers in the persistent cache tier too.
	CachePersistent bool
	// AvailabilityTTL bounds how long a generation health probe is trusted.
	AvailabilityTTL time.Duration
}

// Request is one query.
type Request struct {
	Query  string
	Filter filter.Filter
	Limit  int
}

// Response is the query answer with the chunks it was built from.
type Response struct {
	Outcome Outcome
	Answer  string
	Sources []result.Result
	Model   string
	// Note explains degraded outcomes.
	Note     string
	Cached   bool
	Fallback bool
}

// Service orchestrates embed, search and answer.
type Service struct {
	embedder  domain.Embedder
	searcher  Searcher
	generator domain.Generator
	cache     ResponseCache
	cfg       Config
	logger    *zap.Logger

	mu          sync.Mutex
	available   bool
	availableAt time.Time
	now         func() time.Time
}

// New creates a retrieval service. generator and cache may be nil.
func New(
	embedder domain.Embedder, searcher Searcher, generator domain.Generator,
	cache ResponseCache, cfg Config, logger *zap.Logger,
) *Service {
	if cfg.MinScore <= 0 {
		cfg.MinScore = DefaultMinScore
	}
	if cfg.FallbackMinScore <= 0 {
		cfg.FallbackMinScore = DefaultFallbackMinScore
	}
	if cfg.MinResults <= 0 {
		cfg.MinResults = DefaultMinResults
	}
	if cfg.Limit <= 0 {
		cfg.Limit = request.DefaultLimit
	}
	if cfg.Mode == "" {
		cfg.Mode = mode.Auto
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = DefaultAvailabilityTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embedder:  embedder,
		searcher:  searcher,
		generator: generator,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Query answers req without streaming.
func (s *Service) Query(ctx context.Context, req Request) (Response, error) {
	return s.run(ctx, req, nil)
}

// QueryStream answers req, forwarding generated text to onChunk as it arrives.
// Non-generated answers are delivered as a single final chunk. No callback is
// made once ctx is done.
func (s *Service) QueryStream(ctx context.Context, req Request, onChunk func(domain.StreamChunk)) (Response, error) {
	emit := func(c domain.StreamChunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		onChunk(c)
		return nil
	}
	return s.run(ctx, req, emit)
}

func (s *Service) run(ctx context.Context, req Request, emit func(domain.StreamChunk) error) (Response, error) {
	start := time.Now()
	resp, err := s.answer(ctx, req, emit)
	if err != nil {
		return Response{}, err
	}

	metrics.QueryOutcomesTotal.WithLabelValues(string(resp.Outcome)).Inc()
	metrics.QueryDuration.WithLabelValues(string(resp.Outcome)).Observe(time.Since(start).Seconds())
	s.logger.Info("query answered",
		zap.String("outcome", string(resp.Outcome)),
		zap.Int("sources", len(resp.Sources)),
		zap.Bool("fallback_search", resp.Fallback),
		zap.Bool("cached", resp.Cached),
		zap.String("note", resp.Note),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

func (s *Service) answer(ctx context.Context, req Request, emit func(domain.StreamChunk) error) (Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Response{}, domain.InvalidInputf("query is empty")
	}

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, ctxErr
		}
		s.logger.Warn("query embedding failed", zap.Error(err))
		return s.final(Response{
			Outcome: OutcomeError,
			Answer:  "The embedding provider is unavailable, so the workspace cannot be searched right now.",
			Note:    err.Error(),
		}, emit)
	}

	results, fallback, err := s.search(ctx, emb.Embedding, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, ctxErr
		}
		s.logger.Warn("similarity search failed", zap.Error(err))
		msg := "The workspace index could not be searched."
		if errors.Is(err, domain.ErrVectorDimMismatch) {
			msg = "The workspace index was built with a different embedding model. Reindex the workspace."
		}
		return s.final(Response{Outcome: OutcomeError, Answer: msg, Note: err.Error()}, emit)
	}

	if len(results) == 0 {
		return s.final(Response{Outcome: OutcomeNoContext, Answer: noContextAnswer, Fallback: fallback}, emit)
	}

	block := contextBlock(results)
	decision := s.decide(ctx)
	if !decision.Generate {
		return s.final(Response{
			Outcome:  OutcomeRAGOnly,
			Answer:   block,
			Sources:  results,
			Note:     decision.Reason,
			Fallback: fallback,
		}, emit)
	}

	messages := buildMessages(s.cfg.SystemPrompt, query, block)
	model := s.modelName()
	key := cacheKey(model, messages)

	if s.cache != nil {
		if answer, ok := s.cache.Get(ctx, key, s.cfg.CachePersistent); ok {
			return s.final(Response{
				Outcome:  OutcomeDirect,
				Answer:   answer,
				Sources:  results,
				Model:    model,
				Cached:   true,
				Fallback: fallback,
			}, emit)
		}
	}

	reply, streamed, err := s.generate(ctx, messages, emit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, ctxErr
		}
		s.setAvailable(false)
		s.logger.Warn("generation failed, returning retrieved context", zap.Error(err))
		resp := Response{
			Outcome:  OutcomeRAGOnly,
			Answer:   block,
			Sources:  results,
			Note:     "generation failed: " + err.Error(),
			Fallback: fallback,
		}
		if streamed {
			// Part of a reply already went out; append the context after it.
			if err := emitFinal(emit, "\n\n---\n"+block); err != nil {
				return Response{}, err
			}
			return resp, nil
		}
		return s.final(resp, emit)
	}

	if s.cache != nil && reply.Content != "" {
		s.cache.Set(ctx, key, reply.Content, s.cfg.CacheTTL, s.cfg.CachePersistent)
	}
	if reply.Model == "" {
		reply.Model = model
	}
	return Response{
		Outcome:  OutcomeDirect,
		Answer:   reply.Content,
		Sources:  results,
		Model:    reply.Model,
		Fallback: fallback,
	}, nil
}

// search runs the primary search and, when it returns too few results, one
// retry at the lower threshold. The retry wins only with strictly more results.
func (s *Service) search(ctx context.Context, emb []float32, req Request) ([]result.Result, bool, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.Limit
	}
	opts := request.Options{Limit: limit, MinScore: s.cfg.MinScore, Filter: req.Filter}

	results, err := s.searcher.SimilaritySearch(ctx, emb, opts)
	if err != nil {
		return nil, false, fmt.Errorf("primary search: %w", err)
	}
	if len(results) >= s.cfg.MinResults || s.cfg.FallbackMinScore >= s.cfg.MinScore {
		return results, false, nil
	}

	opts.MinScore = s.cfg.FallbackMinScore
	retry, err := s.searcher.SimilaritySearch(ctx, emb, opts)
	if err != nil {
		return nil, false, fmt.Errorf("fallback search: %w", err)
	}
	if len(retry) > len(results) {
		metrics.QueryFallbackSearchesTotal.WithLabelValues("true").Inc()
		return retry, true, nil
	}
	metrics.QueryFallbackSearchesTotal.WithLabelValues("false").Inc()
	return results, false, nil
}

// generate calls the provider. streamed reports whether any chunk reached the caller.
func (s *Service) generate(
	ctx context.Context, messages []domain.Message, emit func(domain.StreamChunk) error,
) (domain.Reply, bool, error) {
	if emit == nil {
		reply, err := s.generator.Chat(ctx, messages)
		return reply, false, err
	}

	var sb strings.Builder
	streamed := false
	err := s.generator.ChatStream(ctx, messages, func(c domain.StreamChunk) error {
		if c.Content != "" {
			sb.WriteString(c.Content)
			streamed = true
		}
		return emit(c)
	})
	if err != nil {
		return domain.Reply{}, streamed, err
	}
	return domain.Reply{Content: sb.String()}, streamed, nil
}

// final delivers a non-generated answer to a streaming caller as one chunk.
func (s *Service) final(resp Response, emit func(domain.StreamChunk) error) (Response, error) {
	if err := emitFinal(emit, resp.Answer); err != nil {
		return Response{}, err
	}
	return resp, nil
}

func emitFinal(emit func(domain.StreamChunk) error, content string) error {
	if emit == nil {
		return nil
	}
	return emit(domain.StreamChunk{Content: content, Done: true})
}

func (s *Service) decide(ctx context.Context) mode.Decision {
	configured := s.generator != nil
	available := true
	if configured && s.cfg.Mode == mode.Auto {
		available = s.probe(ctx)
	}
	return mode.Decide(s.cfg.Mode, configured, available)
}

// probe checks generator health, trusting a previous answer for AvailabilityTTL.
func (s *Service) probe(ctx context.Context) bool {
	hc, ok := s.generator.(domain.HealthChecker)
	if !ok {
		return true
	}

	s.mu.Lock()
	if !s.availableAt.IsZero() && s.now().Sub(s.availableAt) < s.cfg.AvailabilityTTL {
		available := s.available
		s.mu.Unlock()
		return available
	}
	s.mu.Unlock()

	err := hc.HealthCheck(ctx)
	if err != nil {
		s.logger.Warn("generation provider unavailable", zap.Error(err))
	}
	s.setAvailable(err == nil)
	return err == nil
}

func (s *Service) setAvailable(v bool) {
	s.mu.Lock()
	s.available = v
	s.availableAt = s.now()
	s.mu.Unlock()
}

func (s *Service) modelName() string {
	if mn, ok := s.generator.(modelNamer); ok {
		return mn.Model()
	}
	return ""
}

func cacheKey(model string, messages []domain.Message) string {
	h := sha256.New()
	h.Write([]byte(model))
	for _, m := range messages {
		h.Write([]byte{0})
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}
