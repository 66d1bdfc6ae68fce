// Package ollama adapts a local Ollama server to the domain embedding and
// generation contracts.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/kailas-cloud/coderag/internal/domain"
	"github.com/kailas-cloud/coderag/internal/metrics"
)

const (
	provider         = "ollama"
	defaultBatchSize = 10
	healthTimeout    = 2 * time.Second
)

// Config holds the Ollama connection settings.
type Config struct {
	Host       string
	Model      string
	BatchSize  int
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type base struct {
	client *api.Client
	model  string
	logger *zap.Logger
}

func newBase(cfg Config) (base, error) {
	u, err := url.Parse(cfg.Host)
	if err != nil {
		return base{}, fmt.Errorf("parse ollama host: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return base{}, fmt.Errorf("ollama host %q must be an absolute URL", cfg.Host)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{client: api.NewClient(u, hc), model: cfg.Model, logger: logger}, nil
}

// HealthCheck verifies the server is reachable.
func (b base) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if _, err := b.client.Version(ctx); err != nil {
		return fmt.Errorf("ollama version: %w", err)
	}
	return nil
}

// Embedder produces embeddings through /api/embed.
type Embedder struct {
	base
	batchSize int
}

// NewEmbedder creates an Ollama embedding provider.
func NewEmbedder(cfg Config) (*Embedder, error) {
	b, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	size := cfg.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	return &Embedder{base: b, batchSize: size}, nil
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.embed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// BatchEmbed implements domain.BatchEmbedder with one request per sub-batch.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		res, err := e.embed(ctx, texts[start:end])
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch [%d:%d]: %w", start, end, err)
		}
		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out, nil
}

func (e *Embedder) embed(ctx context.Context, input []string) (domain.BatchEmbeddingResult, error) {
	start := time.Now()
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: input})
	if err != nil {
		e.fail("api_error")
		return domain.BatchEmbeddingResult{}, fmt.Errorf("ollama embed: %v: %w", err, domain.ErrEmbeddingProviderError)
	}
	if len(resp.Embeddings) != len(input) {
		e.fail("count_mismatch")
		return domain.BatchEmbeddingResult{}, fmt.Errorf("ollama returned %d embeddings for %d inputs: %w",
			len(resp.Embeddings), len(input), domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(provider, e.model).Observe(time.Since(start).Seconds())
	if resp.PromptEvalCount > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(provider, e.model, "prompt").Add(float64(resp.PromptEvalCount))
		metrics.EmbeddingTokensTotal.WithLabelValues(provider, e.model, "total").Add(float64(resp.PromptEvalCount))
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   resp.Embeddings,
		PromptTokens: resp.PromptEvalCount,
		TotalTokens:  resp.PromptEvalCount,
	}, nil
}

func (e *Embedder) fail(errorType string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.model, "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(provider, e.model, errorType).Inc()
}

// Generator talks to /api/chat.
type Generator struct {
	base
}

// NewGenerator creates an Ollama chat provider.
func NewGenerator(cfg Config) (*Generator, error) {
	b, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	return &Generator{base: b}, nil
}

// Model returns the configured model name.
func (g *Generator) Model() string { return g.model }

// Chat implements domain.Generator.
func (g *Generator) Chat(ctx context.Context, messages []domain.Message) (domain.Reply, error) {
	start := time.Now()
	stream := false
	var reply domain.Reply
	err := g.client.Chat(ctx, g.request(messages, &stream), func(r api.ChatResponse) error {
		reply.Content += r.Message.Content
		reply.Model = r.Model
		return nil
	})
	if err != nil {
		g.done("sync", "error", start)
		return domain.Reply{}, fmt.Errorf("ollama chat: %v: %w", err, domain.ErrGenerationProviderError)
	}
	g.done("sync", "success", start)
	if reply.Model == "" {
		reply.Model = g.model
	}
	return reply, nil
}

// ChatStream implements domain.Generator.
func (g *Generator) ChatStream(ctx context.Context, messages []domain.Message, fn func(domain.StreamChunk) error) error {
	start := time.Now()
	stream := true
	var cbErr error
	err := g.client.Chat(ctx, g.request(messages, &stream), func(r api.ChatResponse) error {
		if r.Message.Content != "" {
			if err := fn(domain.StreamChunk{Content: r.Message.Content}); err != nil {
				cbErr = err
				return err
			}
		}
		if r.Done {
			if err := fn(domain.StreamChunk{Done: true}); err != nil {
				cbErr = err
				return err
			}
		}
		return nil
	})
	switch {
	case cbErr != nil && errors.Is(err, cbErr):
		g.done("stream", "aborted", start)
		return cbErr
	case err != nil:
		g.done("stream", "error", start)
		return fmt.Errorf("ollama chat stream: %v: %w", err, domain.ErrGenerationProviderError)
	}
	g.done("stream", "success", start)
	return nil
}

func (g *Generator) request(messages []domain.Message, stream *bool) *api.ChatRequest {
	msgs := make([]api.Message, len(messages))
	for i, m := range messages {
		msgs[i] = api.Message{Role: m.Role, Content: m.Content}
	}
	return &api.ChatRequest{Model: g.model, Messages: msgs, Stream: stream}
}

func (g *Generator) done(mode, status string, start time.Time) {
	metrics.GenerationRequestsTotal.WithLabelValues(provider, g.model, mode, status).Inc()
	if status == "success" {
		metrics.GenerationRequestDuration.WithLabelValues(provider, g.model, mode).Observe(time.Since(start).Seconds())
	}
}
