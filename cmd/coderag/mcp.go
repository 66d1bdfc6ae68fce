package main

import (
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	mcpTransport "github.com/kailas-cloud/coderag/internal/transport/mcp"
	"github.com/kailas-cloud/coderag/internal/version"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP server on stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout exposing code_search,
index_workspace, index_status, compute_diff and the edit tools.

Logs go to stderr; stdout is reserved for the protocol.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	handlers := mcpTransport.NewHandlers(mcpTransport.Deps{
		Indexer:   a.indexer,
		Querier:   a.retrieval,
		Editor:    a.editor,
		Documents: a.vectors,
	}, logger)
	server := mcpTransport.NewServer(handlers, version.Version)

	logger.Info("MCP server ready, waiting for requests")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		logger.Error("MCP server error", zap.Error(err))
		return err
	}
	return nil
}
