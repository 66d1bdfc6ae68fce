package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverName = "coderag"

const instructions = "Run index_workspace once, then code_search to ask questions about the code. " +
	"Use preview_edit before apply_edit; apply_patch and apply_response write to the workspace and reindex changed files."

// NewServer creates an MCP server with every coderag tool registered.
func NewServer(h *Handlers, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: version,
	}, &mcp.ServerOptions{Instructions: instructions})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "code_search",
		Description: "Answer a question about the workspace code using retrieved chunks. Falls back to the raw chunks when no model is available.",
	}, h.CodeSearch)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "index_workspace",
		Description: "Index the workspace, or reindex one file when path is given.",
	}, h.IndexWorkspace)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "index_status",
		Description: "Report how many chunks and files are indexed.",
	}, h.IndexStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "compute_diff",
		Description: "Compute a unified diff between two texts.",
	}, h.ComputeDiff)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "preview_edit",
		Description: "Show the unified diff that apply_edit would write, without touching the file.",
	}, h.PreviewEdit)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "apply_edit",
		Description: "Write full proposed content to a file through the diff engine and reindex it.",
	}, h.ApplyEdit)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "apply_patch",
		Description: "Apply a unified diff to the workspace. Files are applied independently.",
	}, h.ApplyPatch)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "apply_response",
		Description: "Extract diff blocks or fenced files with paths from a model reply and apply them.",
	}, h.ApplyResponse)

	return server
}
