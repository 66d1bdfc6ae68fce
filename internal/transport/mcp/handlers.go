// Package mcp exposes the coderag use cases as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/coderag/internal/domain/batch"
	"github.com/kailas-cloud/coderag/internal/domain/diff"
	"github.com/kailas-cloud/coderag/internal/domain/search/filter"
	"github.com/kailas-cloud/coderag/internal/domain/search/request"
	"github.com/kailas-cloud/coderag/internal/usecase/edit"
	"github.com/kailas-cloud/coderag/internal/usecase/retrieval"
)

// maxListedFiles caps the file list returned by index_status.
const maxListedFiles = 50

// SearchArgs defines the arguments for the code_search tool.
type SearchArgs struct {
	Query    string `json:"query" jsonschema_description:"Natural language question about the codebase"`
	Language string `json:"language,omitempty" jsonschema_description:"Only search chunks of this language (e.g. go, css)"`
	Path     string `json:"path,omitempty" jsonschema_description:"Only search chunks of this workspace-relative file"`
	Limit    int    `json:"limit,omitempty" jsonschema_description:"Maximum number of chunks to retrieve (default 5)"`
}

// IndexArgs defines the arguments for the index_workspace tool.
type IndexArgs struct {
	Path string `json:"path,omitempty" jsonschema_description:"Reindex only this file; omit to index the whole workspace"`
}

// DiffArgs defines the arguments for the compute_diff tool.
type DiffArgs struct {
	Original string `json:"original" jsonschema_description:"Original file content"`
	Updated  string `json:"updated" jsonschema_description:"Updated file content"`
	Path     string `json:"path,omitempty" jsonschema_description:"File path used in the diff header"`
}

// EditArgs defines the arguments for the preview_edit and apply_edit tools.
type EditArgs struct {
	Path    string `json:"path" jsonschema_description:"Workspace-relative file path"`
	Content string `json:"content" jsonschema_description:"Full proposed file content"`
	Create  bool   `json:"create,omitempty" jsonschema_description:"Create the file if it does not exist"`
}

// PatchArgs defines the arguments for the apply_patch tool.
type PatchArgs struct {
	Diff string `json:"diff" jsonschema_description:"Unified diff, possibly spanning several files"`
}

// ResponseArgs defines the arguments for the apply_response tool.
type ResponseArgs struct {
	Text string `json:"text" jsonschema_description:"Model reply containing diff blocks or fenced files with paths"`
}

// Handlers adapts the use cases to MCP tool handlers.
type Handlers struct {
	indexer   Indexer
	query     Querier
	editor    Editor
	documents Documents
	logger    *zap.Logger
}

// Deps lists the services behind the tools.
type Deps struct {
	Indexer   Indexer
	Querier   Querier
	Editor    Editor
	Documents Documents
}

// NewHandlers creates tool handlers.
func NewHandlers(deps Deps, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		indexer:   deps.Indexer,
		query:     deps.Querier,
		editor:    deps.Editor,
		documents: deps.Documents,
		logger:    logger,
	}
}

// CodeSearch handles the code_search tool call.
func (h *Handlers) CodeSearch(
	ctx context.Context, _ *mcp.CallToolRequest, args SearchArgs,
) (*mcp.CallToolResult, any, error) {
	q := strings.TrimSpace(args.Query)
	if q == "" {
		return nil, nil, fmt.Errorf("query is required")
	}
	if args.Limit < 0 || args.Limit > request.MaxLimit {
		return nil, nil, fmt.Errorf("limit must be between 1 and %d", request.MaxLimit)
	}

	f, err := searchFilter(args)
	if err != nil {
		return nil, nil, err
	}

	resp, err := h.query.Query(ctx, retrieval.Request{Query: q, Filter: f, Limit: args.Limit})
	if err != nil {
		h.logger.Error("code_search failed", zap.Error(err))
		return nil, nil, err
	}

	h.logger.Info("code_search",
		zap.String("outcome", string(resp.Outcome)),
		zap.Int("sources", len(resp.Sources)),
		zap.Bool("cached", resp.Cached),
	)
	return text(renderAnswer(resp)), nil, nil
}

// IndexWorkspace handles the index_workspace tool call.
func (h *Handlers) IndexWorkspace(
	ctx context.Context, _ *mcp.CallToolRequest, args IndexArgs,
) (*mcp.CallToolResult, any, error) {
	if p := strings.TrimSpace(args.Path); p != "" {
		res := h.indexer.ReindexFile(ctx, p)
		if res.Err() != nil {
			return nil, nil, res.Err()
		}
		return text(fmt.Sprintf("%s: %s", p, describe(res))), nil, nil
	}

	rep, err := h.indexer.IndexWorkspace(ctx)
	if err != nil {
		h.logger.Error("index_workspace failed", zap.Error(err))
		return nil, nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Indexed %d files (%d failed, %d skipped), %d chunks",
		rep.Summary.OK, rep.Summary.Failed, rep.Summary.Skipped, rep.Chunks)
	if rep.Degraded > 0 {
		fmt.Fprintf(&sb, ", %d with placeholder embeddings", rep.Degraded)
	}
	if rep.Removed > 0 {
		fmt.Fprintf(&sb, ", %d stale chunks removed", rep.Removed)
	}
	sb.WriteString("\n")
	writeFailures(&sb, rep.Files)
	return text(sb.String()), nil, nil
}

// IndexStatus handles the index_status tool call.
func (h *Handlers) IndexStatus(
	_ context.Context, _ *mcp.CallToolRequest, _ struct{},
) (*mcp.CallToolResult, any, error) {
	files := h.documents.Files()
	shown := files
	if len(shown) > maxListedFiles {
		shown = shown[:maxListedFiles]
	}

	data, err := json.MarshalIndent(map[string]any{
		"chunks": h.documents.Count(),
		"files":  len(files),
		"paths":  shown,
	}, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal status: %w", err)
	}
	return text(string(data)), nil, nil
}

// ComputeDiff handles the compute_diff tool call.
func (h *Handlers) ComputeDiff(
	_ context.Context, _ *mcp.CallToolRequest, args DiffArgs,
) (*mcp.CallToolResult, any, error) {
	return text(diff.Compute(args.Original, args.Updated, args.Path)), nil, nil
}

// PreviewEdit handles the preview_edit tool call.
func (h *Handlers) PreviewEdit(
	ctx context.Context, _ *mcp.CallToolRequest, args EditArgs,
) (*mcp.CallToolResult, any, error) {
	if args.Path == "" {
		return nil, nil, fmt.Errorf("path is required")
	}
	p, err := h.editor.Preview(ctx, args.Path, args.Content)
	if err != nil {
		return nil, nil, err
	}
	if p.NoOp {
		return text(fmt.Sprintf("%s: no changes", p.Path)), nil, nil
	}
	return text(p.Diff), nil, nil
}

// ApplyEdit handles the apply_edit tool call.
func (h *Handlers) ApplyEdit(
	ctx context.Context, _ *mcp.CallToolRequest, args EditArgs,
) (*mcp.CallToolResult, any, error) {
	if args.Path == "" {
		return nil, nil, fmt.Errorf("path is required")
	}
	c, err := h.editor.ApplyProposal(ctx, args.Path, args.Content, args.Create)
	if err != nil {
		h.logger.Warn("apply_edit failed", zap.String("path", args.Path), zap.Error(err))
		return nil, nil, err
	}
	return text(renderChange(c)), nil, nil
}

// ApplyPatch handles the apply_patch tool call.
func (h *Handlers) ApplyPatch(
	ctx context.Context, _ *mcp.CallToolRequest, args PatchArgs,
) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Diff) == "" {
		return nil, nil, fmt.Errorf("diff is required")
	}
	rep, err := h.editor.ApplyPatch(ctx, args.Diff)
	if err != nil {
		return nil, nil, err
	}
	return text(renderReport(rep)), nil, nil
}

// ApplyResponse handles the apply_response tool call.
func (h *Handlers) ApplyResponse(
	ctx context.Context, _ *mcp.CallToolRequest, args ResponseArgs,
) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Text) == "" {
		return nil, nil, fmt.Errorf("text is required")
	}
	rep, err := h.editor.ApplyResponse(ctx, args.Text)
	if err != nil {
		return nil, nil, err
	}
	return text(renderReport(rep)), nil, nil
}

func searchFilter(args SearchArgs) (filter.Filter, error) {
	m := map[string]any{}
	if args.Language != "" {
		m["language"] = args.Language
	}
	if args.Path != "" {
		m["filePath"] = args.Path
	}
	f, err := filter.New(m)
	if err != nil {
		return filter.Filter{}, fmt.Errorf("filter: %w", err)
	}
	return f, nil
}

func text(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: s}}}
}

func renderAnswer(resp retrieval.Response) string {
	var sb strings.Builder
	sb.WriteString(resp.Answer)
	if resp.Note != "" {
		fmt.Fprintf(&sb, "\n\n(%s)", resp.Note)
	}
	if resp.Outcome == retrieval.OutcomeDirect && len(resp.Sources) > 0 {
		sb.WriteString("\n\nSources:\n")
		for i := range resp.Sources {
			d := resp.Sources[i].Document()
			m := d.Metadata()
			fmt.Fprintf(&sb, "- %s:%d-%d (score %.2f)\n", m.FilePath, m.StartLine, m.EndLine, resp.Sources[i].Score())
		}
	}
	return sb.String()
}

func renderChange(c edit.Change) string {
	var sb strings.Builder
	verb := "updated"
	if c.Created {
		verb = "created"
	}
	fmt.Fprintf(&sb, "%s %s (%d hunks", verb, c.Path, c.Edits)
	if c.Reconciled > 0 {
		fmt.Fprintf(&sb, ", %d reconciled", c.Reconciled)
	}
	sb.WriteString(")")
	if !c.Reindexed {
		sb.WriteString(", not reindexed")
	}
	sb.WriteString("\n")
	for _, f := range c.Fallbacks {
		fmt.Fprintf(&sb, "  warning: %s\n", f)
	}
	return sb.String()
}

func renderReport(rep edit.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Applied %d files (%d failed, %d skipped)\n",
		rep.Summary.OK, rep.Summary.Failed, rep.Summary.Skipped)
	for _, c := range rep.Changes {
		sb.WriteString(renderChange(c))
	}
	writeFailures(&sb, rep.Files)
	return sb.String()
}

func writeFailures(sb *strings.Builder, results []batch.Result) {
	for _, r := range results {
		if r.Status() == batch.StatusOK {
			continue
		}
		fmt.Fprintf(sb, "- %s: %s\n", r.ID(), describe(r))
	}
}

func describe(r batch.Result) string {
	switch {
	case r.Err() != nil:
		return "error: " + r.Err().Error()
	case r.Detail() != "":
		return string(r.Status()) + " (" + r.Detail() + ")"
	default:
		return string(r.Status())
	}
}
