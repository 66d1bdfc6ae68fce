package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/coderag/internal/domain/diff"
)

var flagDiffLabel string

var diffCmd = &cobra.Command{
	Use:   "diff <original> <updated>",
	Short: "Print the unified diff between two files",
	Long: `Print the unified diff that turns <original> into <updated>.

The diff carries a single hunk spanning the first to the last changed line,
labelled with --label or the original file name.`,
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().StringVar(&flagDiffLabel, "label", "", "Path written to the diff header (default: <original>)")
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	original, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read original: %w", err)
	}
	updated, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read updated: %w", err)
	}

	label := flagDiffLabel
	if label == "" {
		label = args[0]
	}
	fmt.Fprint(cmd.OutOrStdout(), diff.Compute(string(original), string(updated), label))
	return nil
}
