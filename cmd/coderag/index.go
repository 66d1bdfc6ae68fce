package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/coderag/internal/domain/batch"
)

var flagIndexVerbose bool

var indexCmd = &cobra.Command{
	Use:   "index [path...]",
	Short: "Index the workspace, or reindex the given files",
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVarP(&flagIndexVerbose, "verbose", "v", false, "List every file, not only failures")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	a, err := setupOneShot(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	if len(args) > 0 {
		results := make([]batch.Result, 0, len(args))
		for _, p := range args {
			results = append(results, a.indexer.ReindexFile(ctx, p))
		}
		printResults(out, results, true)
		if s := batch.Summarize(results); s.Failed > 0 {
			return fmt.Errorf("%d of %d files failed", s.Failed, len(results))
		}
		return nil
	}

	rep, err := a.indexer.IndexWorkspace(ctx)
	if err != nil {
		return err
	}
	printResults(out, rep.Files, flagIndexVerbose)
	fmt.Fprintf(out, "Indexed %d files (%d failed, %d skipped): %d chunks", rep.Summary.OK, rep.Summary.Failed, rep.Summary.Skipped, rep.Chunks)
	if rep.Degraded > 0 {
		fmt.Fprintf(out, ", %d with placeholder embeddings", rep.Degraded)
	}
	if rep.Removed > 0 {
		fmt.Fprintf(out, ", %d stale chunks removed", rep.Removed)
	}
	fmt.Fprintf(out, " in %s\n", rep.Duration.Round(time.Millisecond))
	return nil
}

func printResults(out io.Writer, results []batch.Result, verbose bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, r := range results {
		if r.Status() == batch.StatusOK && !verbose {
			continue
		}
		note := r.Detail()
		if r.Err() != nil {
			note = r.Err().Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Status(), r.ID(), note)
	}
	_ = w.Flush()
}
