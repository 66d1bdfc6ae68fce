package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kailas-cloud/coderag/internal/domain"
	"github.com/kailas-cloud/coderag/internal/domain/batch"
	"github.com/kailas-cloud/coderag/internal/domain/document"
	"github.com/kailas-cloud/coderag/internal/domain/search/result"
	"github.com/kailas-cloud/coderag/internal/usecase/edit"
	"github.com/kailas-cloud/coderag/internal/usecase/index"
	"github.com/kailas-cloud/coderag/internal/usecase/retrieval"
)

// --- Mock implementations ---

type mockIndexer struct {
	report  index.Report
	err     error
	reindex batch.Result
	paths   []string
}

func (m *mockIndexer) IndexWorkspace(context.Context) (index.Report, error) { return m.report, m.err }

func (m *mockIndexer) ReindexFile(_ context.Context, p string) batch.Result {
	m.paths = append(m.paths, p)
	return m.reindex
}

type mockQuerier struct {
	resp retrieval.Response
	err  error
	last retrieval.Request
}

func (m *mockQuerier) Query(_ context.Context, req retrieval.Request) (retrieval.Response, error) {
	m.last = req
	return m.resp, m.err
}

type mockEditor struct {
	preview edit.Preview
	change  edit.Change
	report  edit.Report
	err     error
	create  bool
	text    string
}

func (m *mockEditor) Preview(_ context.Context, p, _ string) (edit.Preview, error) {
	m.preview.Path = p
	return m.preview, m.err
}

func (m *mockEditor) ApplyProposal(_ context.Context, p, _ string, create bool) (edit.Change, error) {
	m.create = create
	m.change.Path = p
	return m.change, m.err
}

func (m *mockEditor) ApplyPatch(_ context.Context, d string) (edit.Report, error) {
	m.text = d
	return m.report, m.err
}

func (m *mockEditor) ApplyResponse(_ context.Context, t string) (edit.Report, error) {
	m.text = t
	return m.report, m.err
}

type mockDocuments struct {
	count int
	files []string
}

func (m *mockDocuments) Count() int      { return m.count }
func (m *mockDocuments) Files() []string { return m.files }

type fixture struct {
	h         *Handlers
	indexer   *mockIndexer
	querier   *mockQuerier
	editor    *mockEditor
	documents *mockDocuments
}

func newFixture() *fixture {
	f := &fixture{
		indexer:   &mockIndexer{reindex: batch.NewOK("a.go")},
		querier:   &mockQuerier{},
		editor:    &mockEditor{},
		documents: &mockDocuments{},
	}
	f.h = NewHandlers(Deps{
		Indexer:   f.indexer,
		Querier:   f.querier,
		Editor:    f.editor,
		Documents: f.documents,
	}, nil)
	return f
}

// getText extracts text content from an MCP result.
func getText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	if tc, ok := r.Content[0].(*mcp.TextContent); ok {
		return tc.Text
	}
	return ""
}

func source(path string, start, end int, score float64) result.Result {
	doc := document.Reconstruct(document.NewID(), "code", document.Metadata{
		FilePath: path, StartLine: start, EndLine: end, Language: "go",
	}, nil)
	return result.New(doc, score)
}

// --- Tests ---

func TestCodeSearch_Direct(t *testing.T) {
	f := newFixture()
	f.querier.resp = retrieval.Response{
		Outcome: retrieval.OutcomeDirect,
		Answer:  "main is in cmd/main.go",
		Sources: []result.Result{source("cmd/main.go", 1, 20, 0.91)},
	}

	res, _, err := f.h.CodeSearch(context.Background(), nil, SearchArgs{Query: " where is main ", Language: "go", Limit: 3})
	if err != nil {
		t.Fatalf("CodeSearch: %v", err)
	}

	got := getText(res)
	if !strings.HasPrefix(got, "main is in cmd/main.go") {
		t.Errorf("answer = %q", got)
	}
	if !strings.Contains(got, "- cmd/main.go:1-20 (score 0.91)") {
		t.Errorf("missing source list: %q", got)
	}
	if f.querier.last.Query != "where is main" || f.querier.last.Limit != 3 {
		t.Errorf("request = %+v", f.querier.last)
	}
	conds := f.querier.last.Filter.Conditions()
	if len(conds) != 1 || conds[0].Key() != "language" {
		t.Errorf("filter = %v", f.querier.last.Filter)
	}
}

func TestCodeSearch_RAGOnlyHasNoSourceList(t *testing.T) {
	f := newFixture()
	f.querier.resp = retrieval.Response{
		Outcome: retrieval.OutcomeRAGOnly,
		Answer:  "[1] a.go:1-2 (go, score 0.50)",
		Sources: []result.Result{source("a.go", 1, 2, 0.5)},
		Note:    "generation unavailable",
	}

	res, _, err := f.h.CodeSearch(context.Background(), nil, SearchArgs{Query: "q"})
	if err != nil {
		t.Fatal(err)
	}
	got := getText(res)
	if strings.Contains(got, "Sources:") {
		t.Errorf("context block already lists sources: %q", got)
	}
	if !strings.HasSuffix(got, "(generation unavailable)") {
		t.Errorf("note missing: %q", got)
	}
}

func TestCodeSearch_Errors(t *testing.T) {
	tests := []struct {
		name string
		args SearchArgs
		err  error
	}{
		{"empty query", SearchArgs{Query: "  "}, nil},
		{"limit too large", SearchArgs{Query: "q", Limit: 1000}, nil},
		{"provider", SearchArgs{Query: "q"}, domain.ErrEmbeddingProviderError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.querier.err = tc.err
			_, _, err := f.h.CodeSearch(context.Background(), nil, tc.args)
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.err != nil && !errors.Is(err, tc.err) {
				t.Errorf("err = %v, want %v", err, tc.err)
			}
		})
	}
}

func TestIndexWorkspace_Summary(t *testing.T) {
	f := newFixture()
	files := []batch.Result{
		batch.NewOK("a.go"),
		batch.NewSkipped("big.go", index.SkipTooLarge),
		batch.NewError("b.go", domain.ErrEmbeddingProviderError),
	}
	f.indexer.report = index.Report{Files: files, Summary: batch.Summarize(files), Chunks: 12, Degraded: 2}

	res, _, err := f.h.IndexWorkspace(context.Background(), nil, IndexArgs{})
	if err != nil {
		t.Fatal(err)
	}
	got := getText(res)
	for _, want := range []string{
		"Indexed 1 files (1 failed, 1 skipped), 12 chunks, 2 with placeholder embeddings",
		"- big.go: skipped (file too large)",
		"- b.go: error: ",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
	if strings.Contains(got, "- a.go") {
		t.Errorf("ok files should not be listed: %q", got)
	}
}

func TestIndexWorkspace_SingleFile(t *testing.T) {
	f := newFixture()
	res, _, err := f.h.IndexWorkspace(context.Background(), nil, IndexArgs{Path: "a.go"})
	if err != nil {
		t.Fatal(err)
	}
	if getText(res) != "a.go: ok" || len(f.indexer.paths) != 1 {
		t.Errorf("text = %q paths = %v", getText(res), f.indexer.paths)
	}

	f.indexer.reindex = batch.NewError("a.go", domain.ErrNotFound)
	if _, _, err := f.h.IndexWorkspace(context.Background(), nil, IndexArgs{Path: "a.go"}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestIndexWorkspace_Busy(t *testing.T) {
	f := newFixture()
	f.indexer.err = domain.ErrIndexBusy
	if _, _, err := f.h.IndexWorkspace(context.Background(), nil, IndexArgs{}); !errors.Is(err, domain.ErrIndexBusy) {
		t.Errorf("err = %v", err)
	}
}

func TestIndexStatus_CapsFileList(t *testing.T) {
	f := newFixture()
	f.documents.count = 300
	for i := 0; i < 60; i++ {
		f.documents.files = append(f.documents.files, "f.go")
	}

	res, _, err := f.h.IndexStatus(context.Background(), nil, struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	got := getText(res)
	if !strings.Contains(got, `"chunks": 300`) || !strings.Contains(got, `"files": 60`) {
		t.Errorf("status = %s", got)
	}
	if n := strings.Count(got, `"f.go"`); n != maxListedFiles {
		t.Errorf("listed %d paths, want %d", n, maxListedFiles)
	}
}

func TestComputeDiff(t *testing.T) {
	f := newFixture()
	res, _, err := f.h.ComputeDiff(context.Background(), nil, DiffArgs{
		Original: "a\nb\nc\n", Updated: "a\nx\nc\n", Path: "f.txt",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "--- a/f.txt\n+++ b/f.txt\n@@ -1,3 +1,3 @@\n a\n-b\n+x\n c\n"
	if got := getText(res); got != want {
		t.Errorf("diff =\n%s\nwant\n%s", got, want)
	}
}

func TestPreviewEdit(t *testing.T) {
	f := newFixture()
	f.editor.preview = edit.Preview{Diff: "--- a/a.go\n"}
	res, _, err := f.h.PreviewEdit(context.Background(), nil, EditArgs{Path: "a.go", Content: "x"})
	if err != nil || getText(res) != "--- a/a.go\n" {
		t.Fatalf("res = %q err = %v", getText(res), err)
	}

	f.editor.preview = edit.Preview{NoOp: true}
	res, _, _ = f.h.PreviewEdit(context.Background(), nil, EditArgs{Path: "a.go", Content: "x"})
	if getText(res) != "a.go: no changes" {
		t.Errorf("noop = %q", getText(res))
	}

	if _, _, err := f.h.PreviewEdit(context.Background(), nil, EditArgs{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestApplyEdit(t *testing.T) {
	f := newFixture()
	f.editor.change = edit.Change{
		Created:    true,
		Edits:      2,
		Reconciled: 1,
		Fallbacks:  []string{"hunk 2: selector .btn not found"},
	}

	res, _, err := f.h.ApplyEdit(context.Background(), nil, EditArgs{Path: "styles.css", Content: "x", Create: true})
	if err != nil {
		t.Fatal(err)
	}
	got := getText(res)
	want := "created styles.css (2 hunks, 1 reconciled), not reindexed\n  warning: hunk 2: selector .btn not found\n"
	if got != want {
		t.Errorf("text = %q, want %q", got, want)
	}
	if !f.editor.create {
		t.Error("create flag not forwarded")
	}

	f.editor.err = domain.ErrFileExists
	if _, _, err := f.h.ApplyEdit(context.Background(), nil, EditArgs{Path: "a.go"}); !errors.Is(err, domain.ErrFileExists) {
		t.Errorf("err = %v", err)
	}
}

func TestApplyPatchAndResponse(t *testing.T) {
	f := newFixture()
	files := []batch.Result{batch.NewOK("a.txt"), batch.NewSkipped("old.txt", edit.SkipDeletion)}
	f.editor.report = edit.Report{
		Files:   files,
		Changes: []edit.Change{{Path: "a.txt", Edits: 1, Reindexed: true}},
		Summary: batch.Summarize(files),
	}

	res, _, err := f.h.ApplyPatch(context.Background(), nil, PatchArgs{Diff: "--- a/a.txt\n"})
	if err != nil {
		t.Fatal(err)
	}
	got := getText(res)
	if !strings.HasPrefix(got, "Applied 1 files (0 failed, 1 skipped)\nupdated a.txt (1 hunks)\n") {
		t.Errorf("text = %q", got)
	}
	if !strings.Contains(got, "- old.txt: skipped (") {
		t.Errorf("skipped file missing: %q", got)
	}

	if _, _, err := f.h.ApplyResponse(context.Background(), nil, ResponseArgs{Text: "reply"}); err != nil || f.editor.text != "reply" {
		t.Errorf("err = %v text = %q", err, f.editor.text)
	}

	if _, _, err := f.h.ApplyPatch(context.Background(), nil, PatchArgs{Diff: " "}); err == nil {
		t.Error("expected error for blank diff")
	}
	if _, _, err := f.h.ApplyResponse(context.Background(), nil, ResponseArgs{}); err == nil {
		t.Error("expected error for empty text")
	}
}
