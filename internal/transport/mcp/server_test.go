package mcp

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kailas-cloud/coderag/internal/usecase/retrieval"
)

func connect(t *testing.T, f *fixture) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	if _, err := NewServer(f.h, "test").Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestServer_ListsTools(t *testing.T) {
	session := connect(t, newFixture())

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	want := "apply_edit,apply_patch,apply_response,code_search,compute_diff,index_status,index_workspace,preview_edit"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("tools = %s, want %s", got, want)
	}
}

func TestServer_CallCodeSearch(t *testing.T) {
	f := newFixture()
	f.querier.resp = retrieval.Response{Outcome: retrieval.OutcomeNoContext, Answer: "No relevant code found."}
	session := connect(t, f)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "code_search",
		Arguments: map[string]any{"query": "where is main", "limit": 2},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %q", getText(res))
	}
	if getText(res) != "No relevant code found." {
		t.Errorf("text = %q", getText(res))
	}
	if f.querier.last.Limit != 2 {
		t.Errorf("limit = %d", f.querier.last.Limit)
	}
}

func TestServer_ToolErrorIsReported(t *testing.T) {
	session := connect(t, newFixture())

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "apply_patch",
		Arguments: map[string]any{"diff": ""},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Error("expected IsError for blank diff")
	}
}
