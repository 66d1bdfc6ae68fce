package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/coderag/internal/domain"
	"github.com/kailas-cloud/coderag/internal/metrics"
)

// Generator is a chat completion provider using the OpenAI-compatible API.
type Generator struct {
	client   *openai.Client
	model    string
	user     string
	provider string
	logger   *zap.Logger
}

// NewGenerator creates an OpenAI-compatible chat provider.
func NewGenerator(cfg *Config) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client:   newClient(cfg),
		model:    cfg.Model,
		user:     cfg.User,
		provider: cfg.Provider,
		logger:   logger,
	}
}

// Chat implements domain.Generator.
func (g *Generator) Chat(ctx context.Context, messages []domain.Message) (domain.Reply, error) {
	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, g.request(messages, false))
	if err != nil {
		g.done("sync", "error", start)
		return domain.Reply{}, parseAPIError(err, domain.ErrGenerationProviderError)
	}
	if len(resp.Choices) == 0 {
		g.done("sync", "error", start)
		return domain.Reply{}, fmt.Errorf("empty chat response: %w", domain.ErrGenerationProviderError)
	}
	g.done("sync", "success", start)

	model := resp.Model
	if model == "" {
		model = g.model
	}
	return domain.Reply{Content: resp.Choices[0].Message.Content, Model: model}, nil
}

// ChatStream implements domain.Generator. The final callback carries Done.
func (g *Generator) ChatStream(ctx context.Context, messages []domain.Message, fn func(domain.StreamChunk) error) error {
	start := time.Now()
	stream, err := g.client.CreateChatCompletionStream(ctx, g.request(messages, true))
	if err != nil {
		g.done("stream", "error", start)
		return parseAPIError(err, domain.ErrGenerationProviderError)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			g.done("stream", "success", start)
			return fn(domain.StreamChunk{Done: true})
		}
		if err != nil {
			g.done("stream", "error", start)
			return parseAPIError(err, domain.ErrGenerationProviderError)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		if err := fn(domain.StreamChunk{Content: resp.Choices[0].Delta.Content}); err != nil {
			g.done("stream", "aborted", start)
			return err
		}
	}
}

// HealthCheck verifies API availability via ListModels.
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Model returns the configured model name.
func (g *Generator) Model() string { return g.model }

func (g *Generator) request(messages []domain.Message, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: msgs,
		Stream:   stream,
		User:     g.user,
	}
}

func (g *Generator) done(mode, status string, start time.Time) {
	metrics.GenerationRequestsTotal.WithLabelValues(g.provider, g.model, mode, status).Inc()
	if status == "success" {
		metrics.GenerationRequestDuration.WithLabelValues(g.provider, g.model, mode).Observe(time.Since(start).Seconds())
	}
	if status == "error" {
		g.logger.Warn("chat completion failed", zap.String("model", g.model), zap.String("mode", mode))
	}
}
