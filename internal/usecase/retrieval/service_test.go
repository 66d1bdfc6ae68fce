package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/coderag/internal/domain"
	"github.com/kailas-cloud/coderag/internal/domain/retrieval/mode"
	"github.com/kailas-cloud/coderag/internal/domain/search/request"
	"github.com/kailas-cloud/coderag/internal/domain/search/result"
)

func TestQuery_EmptyQuery(t *testing.T) {
	svc := New(&mockEmbedder{}, &mockSearcher{}, nil, nil, Config{}, nil)

	_, err := svc.Query(context.Background(), Request{Query: "   "})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestQuery_EmbedFailureIsErrorOutcome(t *testing.T) {
	emb := &mockEmbedder{embedFn: func(context.Context, string) (domain.EmbeddingResult, error) {
		return domain.EmbeddingResult{}, errProvider
	}}
	searcher := &mockSearcher{}
	svc := New(emb, searcher, nil, nil, Config{}, nil)

	resp, err := svc.Query(context.Background(), Request{Query: "where is main"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outcome != OutcomeError {
		t.Errorf("outcome = %s, want error", resp.Outcome)
	}
	if resp.Answer == "" {
		t.Error("expected a degraded message")
	}
	if len(searcher.calls) != 0 {
		t.Errorf("search must not run, got %d calls", len(searcher.calls))
	}
}

func TestQuery_CanceledEmbedReturnsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	emb := &mockEmbedder{embedFn: func(ctx context.Context, _ string) (domain.EmbeddingResult, error) {
		return domain.EmbeddingResult{}, ctx.Err()
	}}
	svc := New(emb, &mockSearcher{}, nil, nil, Config{}, nil)

	_, err := svc.Query(ctx, Request{Query: "q"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestQuery_NoContext(t *testing.T) {
	gen := &mockGenerator{}
	searcher := &mockSearcher{}
	svc := New(&mockEmbedder{}, searcher, gen, nil, Config{}, nil)

	resp, err := svc.Query(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outcome != OutcomeNoContext {
		t.Errorf("outcome = %s, want no_context", resp.Outcome)
	}
	if gen.chatCalls != 0 {
		t.Error("generator must not be called without context")
	}
	if len(searcher.calls) != 2 {
		t.Errorf("expected primary and fallback searches, got %d", len(searcher.calls))
	}
}

func TestQuery_DefaultSearchOptions(t *testing.T) {
	searcher := &mockSearcher{searchFn: scored(0.9, 0.8)}
	svc := New(&mockEmbedder{}, searcher, nil, nil, Config{}, nil)

	if _, err := svc.Query(context.Background(), Request{Query: "q"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(searcher.calls) != 1 {
		t.Fatalf("expected 1 search, got %d", len(searcher.calls))
	}
	opts := searcher.calls[0]
	if opts.MinScore != DefaultMinScore || opts.Limit != request.DefaultLimit {
		t.Errorf("opts = %+v", opts)
	}
}

func TestQuery_FallbackSearch(t *testing.T) {
	tests := []struct {
		name         string
		scores       []float64
		wantSearches int
		wantResults  int
		wantFallback bool
	}{
		{"enough primary results", []float64{0.9, 0.5}, 1, 2, false},
		{"fallback finds more", []float64{0.9, 0.2, 0.15}, 2, 3, true},
		{"fallback finds nothing new", []float64{0.9, 0.05}, 2, 1, false},
		{"only fallback finds results", []float64{0.2}, 2, 1, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			searcher := &mockSearcher{searchFn: scored(tc.scores...)}
			svc := New(&mockEmbedder{}, searcher, nil, nil, Config{Mode: mode.RAGOnly}, nil)

			resp, err := svc.Query(context.Background(), Request{Query: "q"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(searcher.calls) != tc.wantSearches {
				t.Errorf("searches = %d, want %d", len(searcher.calls), tc.wantSearches)
			}
			if len(resp.Sources) != tc.wantResults {
				t.Errorf("sources = %d, want %d", len(resp.Sources), tc.wantResults)
			}
			if resp.Fallback != tc.wantFallback {
				t.Errorf("fallback = %v, want %v", resp.Fallback, tc.wantFallback)
			}
			if tc.wantSearches == 2 && searcher.calls[1].MinScore != DefaultFallbackMinScore {
				t.Errorf("fallback min score = %v", searcher.calls[1].MinScore)
			}
		})
	}
}

func TestQuery_RequestLimit(t *testing.T) {
	searcher := &mockSearcher{searchFn: scored(0.9, 0.9, 0.9)}
	svc := New(&mockEmbedder{}, searcher, nil, nil, Config{}, nil)

	if _, err := svc.Query(context.Background(), Request{Query: "q", Limit: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if searcher.calls[0].Limit != 3 {
		t.Errorf("limit = %d, want 3", searcher.calls[0].Limit)
	}
}

func TestQuery_SearchDimMismatch(t *testing.T) {
	searcher := &mockSearcher{searchFn: func(context.Context, []float32, request.Options) ([]result.Result, error) {
		return nil, domain.NewDimMismatch(768, 2)
	}}
	svc := New(&mockEmbedder{}, searcher, nil, nil, Config{}, nil)

	resp, err := svc.Query(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outcome != OutcomeError {
		t.Errorf("outcome = %s, want error", resp.Outcome)
	}
	if !strings.Contains(resp.Answer, "Reindex") {
		t.Errorf("answer = %q", resp.Answer)
	}
}

func TestQuery_RAGOnlyWithoutGenerator(t *testing.T) {
	searcher := &mockSearcher{searchFn: scored(0.83, 0.5)}
	svc := New(&mockEmbedder{}, searcher, nil, nil, Config{}, nil)

	resp, err := svc.Query(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outcome != OutcomeRAGOnly {
		t.Fatalf("outcome = %s, want rag_only", resp.Outcome)
	}
	if resp.Note != "no generation provider configured" {
		t.Errorf("note = %q", resp.Note)
	}
	if !strings.Contains(resp.Answer, "[1] pkg/file.go:1-9 (go, score 0.83)") {
		t.Errorf("context block missing header:\n%s", resp.Answer)
	}
	first := strings.Index(resp.Answer, "[1]")
	second := strings.Index(resp.Answer, "[2]")
	if first < 0 || second < first {
		t.Errorf("results out of order:\n%s", resp.Answer)
	}
}

func TestQuery_Direct(t *testing.T) {
	gen := &mockGenerator{model: "llama3"}
	svc := New(&mockEmbedder{}, &mockSearcher{searchFn: scored(0.9, 0.8)}, gen, nil, Config{}, nil)

	resp, err := svc.Query(context.Background(), Request{Query: "how does it work"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outcome != OutcomeDirect || resp.Answer != "generated answer" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Model != "llama3" {
		t.Errorf("model = %q", resp.Model)
	}
	if len(gen.lastMsgs) != 2 || gen.lastMsgs[0].Role != domain.RoleSystem {
		t.Fatalf("messages = %+v", gen.lastMsgs)
	}
	user := gen.lastMsgs[1].Content
	if !strings.HasPrefix(user, "Context:\n[1] ") || !strings.HasSuffix(user, "Query: how does it work") {
		t.Errorf("user prompt = %q", user)
	}
}

func TestQuery_GenerationFailureDegrades(t *testing.T) {
	gen := &mockGenerator{chatFn: func(context.Context, []domain.Message) (domain.Reply, error) {
		return domain.Reply{}, errProvider
	}}
	svc := New(&mockEmbedder{}, &mockSearcher{searchFn: scored(0.9, 0.8)}, gen, nil, Config{}, nil)

	resp, err := svc.Query(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outcome != OutcomeRAGOnly {
		t.Errorf("outcome = %s, want rag_only", resp.Outcome)
	}
	if !strings.Contains(resp.Note, "provider down") {
		t.Errorf("note = %q", resp.Note)
	}
	if len(resp.Sources) != 2 {
		t.Errorf("sources = %d", len(resp.Sources))
	}
}

func TestQuery_UnavailableGeneratorInAutoMode(t *testing.T) {
	gen := &mockGenerator{healthFn: func(context.Context) error { return errProvider }}
	svc := New(&mockEmbedder{}, &mockSearcher{searchFn: scored(0.9, 0.8)}, gen, nil, Config{}, nil)

	resp, err := svc.Query(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outcome != OutcomeRAGOnly || resp.Note != "generation provider unavailable" {
		t.Errorf("resp = %+v", resp)
	}
	if gen.chatCalls != 0 {
		t.Error("unavailable generator must not be called")
	}
}

func TestQuery_AvailabilityProbeIsCached(t *testing.T) {
	gen := &mockGenerator{}
	svc := New(&mockEmbedder{}, &mockSearcher{searchFn: scored(0.9, 0.8)}, gen, nil, Config{}, nil)
	now := time.Unix(1000, 0)
	svc.now = func() time.Time { return now }

	for range 3 {
		if _, err := svc.Query(context.Background(), Request{Query: "q"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if gen.healthCalls != 1 {
		t.Errorf("health calls = %d, want 1", gen.healthCalls)
	}

	now = now.Add(DefaultAvailabilityTTL)
	if _, err := svc.Query(context.Background(), Request{Query: "q"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.healthCalls != 2 {
		t.Errorf("health calls = %d, want 2 after TTL", gen.healthCalls)
	}
}

func TestQuery_ForcedGenerationSkipsProbe(t *testing.T) {
	gen := &mockGenerator{}
	svc := New(&mockEmbedder{}, &mockSearcher{searchFn: scored(0.9, 0.8)}, gen, nil,
		Config{Mode: mode.Generation}, nil)

	resp, err := svc.Query(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outcome != OutcomeDirect {
		t.Errorf("outcome = %s", resp.Outcome)
	}
	if gen.healthCalls != 0 {
		t.Errorf("health calls = %d, want 0", gen.healthCalls)
	}
}

func TestQuery_ResponseCache(t *testing.T) {
	gen := &mockGenerator{model: "m1"}
	cache := newMockCache()
	svc := New(&mockEmbedder{}, &mockSearcher{searchFn: scored(0.9, 0.8)}, gen, cache, Config{}, nil)

	first, err := svc.Query(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Query(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.Cached || !second.Cached {
		t.Errorf("cached flags = %v, %v", first.Cached, second.Cached)
	}
	if second.Answer != first.Answer {
		t.Errorf("cached answer = %q", second.Answer)
	}
	if gen.chatCalls != 1 {
		t.Errorf("chat calls = %d, want 1", gen.chatCalls)
	}

	gen.model = "m2"
	if _, err := svc.Query(context.Background(), Request{Query: "q"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.chatCalls != 2 {
		t.Errorf("another model must miss the cache, chat calls = %d", gen.chatCalls)
	}
}

func TestQueryStream_ForwardsChunks(t *testing.T) {
	gen := &mockGenerator{}
	svc := New(&mockEmbedder{}, &mockSearcher{searchFn: scored(0.9, 0.8)}, gen, nil, Config{}, nil)

	var got []domain.StreamChunk
	resp, err := svc.QueryStream(context.Background(), Request{Query: "q"}, func(c domain.StreamChunk) {
		got = append(got, c)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Answer != "generated answer" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(got) != 3 || !got[2].Done {
		t.Fatalf("chunks = %+v", got)
	}
}

func TestQueryStream_NonGeneratedIsSingleChunk(t *testing.T) {
	svc := New(&mockEmbedder{}, &mockSearcher{}, nil, nil, Config{}, nil)

	var got []domain.StreamChunk
	resp, err := svc.QueryStream(context.Background(), Request{Query: "q"}, func(c domain.StreamChunk) {
		got = append(got, c)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || !got[0].Done || got[0].Content != resp.Answer {
		t.Errorf("chunks = %+v", got)
	}
}

func TestQueryStream_StopsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen := &mockGenerator{streamFn: func(_ context.Context, _ []domain.Message, fn func(domain.StreamChunk) error) error {
		for _, part := range []string{"a", "b", "c", "d"} {
			if err := fn(domain.StreamChunk{Content: part}); err != nil {
				return err
			}
		}
		return fn(domain.StreamChunk{Done: true})
	}}
	svc := New(&mockEmbedder{}, &mockSearcher{searchFn: scored(0.9, 0.8)}, gen, nil,
		Config{Mode: mode.Generation}, nil)

	var got []string
	_, err := svc.QueryStream(ctx, Request{Query: "q"}, func(c domain.StreamChunk) {
		got = append(got, c.Content)
		if len(got) == 2 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(got) != 2 {
		t.Errorf("callbacks after cancel: %v", got)
	}
}

func TestQueryStream_FailureAfterPartialReply(t *testing.T) {
	gen := &mockGenerator{streamFn: func(_ context.Context, _ []domain.Message, fn func(domain.StreamChunk) error) error {
		if err := fn(domain.StreamChunk{Content: "partial"}); err != nil {
			return err
		}
		return errProvider
	}}
	svc := New(&mockEmbedder{}, &mockSearcher{searchFn: scored(0.9, 0.8)}, gen, nil,
		Config{Mode: mode.Generation}, nil)

	var got []domain.StreamChunk
	resp, err := svc.QueryStream(context.Background(), Request{Query: "q"}, func(c domain.StreamChunk) {
		got = append(got, c)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outcome != OutcomeRAGOnly {
		t.Errorf("outcome = %s", resp.Outcome)
	}
	if len(got) != 2 || got[0].Content != "partial" || !got[1].Done {
		t.Fatalf("chunks = %+v", got)
	}
	if !strings.Contains(got[1].Content, "[1] pkg/file.go") {
		t.Errorf("final chunk should carry the context block: %q", got[1].Content)
	}
}
