package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/coderag/internal/config"
	logpkg "github.com/kailas-cloud/coderag/internal/logger"
)

var (
	flagConfig   string
	flagEnv      string
	flagLogLevel string
	flagRoot     string
)

var rootCmd = &cobra.Command{
	Use:          "coderag",
	Short:        "Code-aware retrieval and diff-based editing for a workspace",
	SilenceUsage: true,
	Long: `coderag chunks and embeds the files of a workspace, answers questions
from the retrieved code, and applies proposed edits as unified diffs.

Run "coderag serve" for the HTTP API or "coderag mcp" for an MCP stdio server.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: config/<env>.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagEnv, "env", "", "Environment name (default: $ENV or local)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Override the log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "", "Workspace root (overrides workspace.root)")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func environment() string {
	if flagEnv != "" {
		return flagEnv
	}
	return config.GetEnv()
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if flagConfig != "" {
		cfg, err = config.LoadFile(flagConfig)
	} else {
		cfg, err = config.Load(environment())
	}
	if err != nil {
		return config.Config{}, err
	}

	if flagRoot != "" {
		root, err := filepath.Abs(flagRoot)
		if err != nil {
			return config.Config{}, fmt.Errorf("resolve root: %w", err)
		}
		cfg.Workspace.Root = root
		cfg.Workspace.DataDir = ""
		cfg.Cache.Dir = ""
		cfg.Storage.Path = ""
		cfg.ApplyDefaults()
	}
	return cfg, nil
}

// newLogger builds the process logger. One-shot commands and the MCP server
// log to stderr so stdout carries only their output.
func newLogger(cfg config.Config, interactive bool) (*zap.Logger, error) {
	env := environment()
	if interactive {
		env = "cli"
	}
	level := cfg.Logging.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	return logpkg.NewLogger(env, level)
}
