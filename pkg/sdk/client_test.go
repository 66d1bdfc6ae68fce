package coderag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		addr string
	}{
		{"empty", ""},
		{"no scheme", "localhost:8080"},
		{"unsupported scheme", "ftp://localhost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.addr); err == nil {
				t.Errorf("New(%q): expected error", tt.addr)
			}
		})
	}
}

func TestClientOptions(t *testing.T) {
	cfg := &clientConfig{}

	WithAPIKey("secret").apply(cfg)
	if cfg.apiKey != "secret" {
		t.Errorf("apiKey = %q, want secret", cfg.apiKey)
	}

	hc := &http.Client{}
	WithHTTPClient(hc).apply(cfg)
	if cfg.httpClient != hc {
		t.Error("expected http client to be set")
	}

	WithTimeout(5 * time.Second).apply(cfg)
	if cfg.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", cfg.timeout)
	}

	logger := slog.Default()
	WithLogger(logger).apply(cfg)
	if cfg.logger != logger {
		t.Error("expected logger to be set")
	}

	reg := prometheus.NewRegistry()
	WithPrometheus(reg).apply(cfg)
	if cfg.metricsReg != reg {
		t.Error("expected metricsReg to be set")
	}
}

func TestClient_SendsBearerToken(t *testing.T) {
	var got string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"count":3,"files":["a.go"]}`)
	}, WithAPIKey("k1"))

	st, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if got != "Bearer k1" {
		t.Errorf("Authorization = %q", got)
	}
	if st.Count != 3 || len(st.Files) != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"not found", 404, `{"code":"not_found","message":"a.go: not found"}`, ErrNotFound},
		{"exists", 409, `{"code":"file_exists","message":"x"}`, ErrFileExists},
		{"busy", 409, `{"code":"index_busy","message":"index busy"}`, ErrIndexBusy},
		{"validation", 400, `{"code":"validation_failed","message":"path is required"}`, ErrValidation},
		{"unauthorized", 401, `{"code":"unauthorized","message":"invalid api key"}`, ErrUnauthorized},
		{"provider", 502, `{"code":"embedding_provider_error","message":"x"}`, ErrEmbeddingProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := c.ApplyEdit(context.Background(), "a.go", "x", false)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.status {
				t.Errorf("api error = %+v", apiErr)
			}
		})
	}
}

func TestClient_NonJSONError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	_, err := c.IndexWorkspace(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Code != "" || apiErr.Message != "bad gateway" {
		t.Errorf("api error = %+v", apiErr)
	}
}

func TestClient_RemoveFileEscapesPath(t *testing.T) {
	var gotPath, gotMethod string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Query().Get("path")
		fmt.Fprint(w, `{"removed":2}`)
	})
	n, err := c.RemoveFile(context.Background(), "dir/a b&c.go")
	if err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
	if n != 2 || gotMethod != http.MethodDelete || gotPath != "dir/a b&c.go" {
		t.Errorf("n=%d method=%s path=%q", n, gotMethod, gotPath)
	}
}

func TestClient_QueryStream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: chunk\ndata: {\"content\":\"hello \",\"done\":false}\n\n")
		fmt.Fprint(w, "event: chunk\ndata: {\"content\":\"world\",\"done\":false}\n\n")
		fmt.Fprint(w, "event: chunk\ndata: {\"content\":\"\",\"done\":true}\n\n")
		fmt.Fprint(w, "event: result\ndata: {\"outcome\":\"direct\",\"answer\":\"hello world\",\"sources\":[]}\n\n")
	})

	var sb strings.Builder
	ans, err := c.QueryStream(context.Background(), QueryRequest{Query: "q"}, func(s string) { sb.WriteString(s) })
	if err != nil {
		t.Fatalf("QueryStream: %v", err)
	}
	if sb.String() != "hello world" {
		t.Errorf("streamed = %q", sb.String())
	}
	if ans.Outcome != OutcomeDirect || ans.Answer != "hello world" {
		t.Errorf("answer = %+v", ans)
	}
}

func TestClient_QueryStreamErrorEvent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "event: chunk\ndata: {\"content\":\"par\"}\n\n")
		fmt.Fprint(w, "event: error\ndata: {\"code\":\"generation_provider_error\",\"message\":\"generation provider error\"}\n\n")
	})
	_, err := c.QueryStream(context.Background(), QueryRequest{Query: "q"}, nil)
	if !errors.Is(err, ErrGenerationProvider) {
		t.Errorf("err = %v", err)
	}
}

func TestClient_QueryStreamTruncated(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "event: chunk\ndata: {\"content\":\"par\"}\n\n")
	})
	_, err := c.QueryStream(context.Background(), QueryRequest{Query: "q"}, nil)
	if err == nil || !strings.Contains(err.Error(), "without a result") {
		t.Errorf("err = %v", err)
	}
}

func TestClient_HealthDegradedIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"status":"degraded","checks":{"embedding":"ok","cache_store":"error"}}`)
	})
	hs, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if hs.Status != "degraded" || hs.Checks["cache_store"] != "error" {
		t.Errorf("health = %+v", hs)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestObserver_NilSafe(t *testing.T) {
	var obs *observer
	obs.observe("test", time.Now(), nil)
	obs.observe("test", time.Now(), errors.New("err"))
}

func TestObserver_WithPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := newObserver(nil, reg)
	if err != nil {
		t.Fatalf("newObserver: %v", err)
	}

	obs.observe("query", time.Now().Add(-10*time.Millisecond), nil)
	obs.observe("query", time.Now(), errors.New("fail"))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "coderag_client_operations_total" {
			found = true
			if len(f.GetMetric()) != 2 {
				t.Errorf("expected 2 metric samples, got %d", len(f.GetMetric()))
			}
		}
	}
	if !found {
		t.Error("coderag_client_operations_total not found")
	}
}

func TestObserver_ReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := newObserver(nil, reg); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := newObserver(nil, reg); err != nil {
		t.Fatalf("second client on the same registry: %v", err)
	}
}

func TestObserver_WithLogger(t *testing.T) {
	obs, err := newObserver(slog.Default(), nil)
	if err != nil {
		t.Fatalf("newObserver: %v", err)
	}
	obs.observe("test.op", time.Now(), nil)
	obs.observe("test.op", time.Now(), errors.New("test error"))
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{errors.New("dial tcp: refused"), "error"},
		{fmt.Errorf("query: %w", &APIError{Code: "index_busy"}), "index_busy"},
		{&APIError{StatusCode: 502, Message: "bad gateway"}, "error"},
	}
	for _, tt := range tests {
		if got := statusLabel(tt.err); got != tt.want {
			t.Errorf("statusLabel(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
