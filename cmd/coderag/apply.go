package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/coderag/internal/domain/batch"
	"github.com/kailas-cloud/coderag/internal/usecase/edit"
)

var (
	flagApplyResponse bool
	flagApplyTo       string
	flagApplyCreate   bool
	flagApplyDryRun   bool
)

var applyCmd = &cobra.Command{
	Use:   "apply [file]",
	Short: "Apply a unified diff, a model reply or proposed content to the workspace",
	Long: `Apply edits to the workspace and reindex the changed files.

Input is read from [file] or stdin and is treated as:
  a unified diff (default), possibly spanning several files;
  a model reply with --response: diff blocks or fenced files with paths;
  the full new content of one file with --to <path>.

CSS-like files are reconciled block by block so hunks with stale line
numbers still land on the right rule.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&flagApplyResponse, "response", false, "Treat input as a model reply and extract the edits from it")
	applyCmd.Flags().StringVar(&flagApplyTo, "to", "", "Treat input as the full new content of this workspace file")
	applyCmd.Flags().BoolVar(&flagApplyCreate, "create", false, "With --to, create the file if it does not exist")
	applyCmd.Flags().BoolVar(&flagApplyDryRun, "dry-run", false, "With --to, print the diff without writing")
	applyCmd.MarkFlagsMutuallyExclusive("response", "to")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	if (flagApplyCreate || flagApplyDryRun) && flagApplyTo == "" {
		return errors.New("--create and --dry-run require --to")
	}

	input, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	a, err := setupOneShot(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case flagApplyTo != "" && flagApplyDryRun:
		p, err := a.editor.Preview(ctx, flagApplyTo, input)
		if err != nil {
			return err
		}
		if p.NoOp {
			fmt.Fprintf(out, "%s: no changes\n", p.Path)
			return nil
		}
		fmt.Fprint(out, p.Diff)
		return nil
	case flagApplyTo != "":
		c, err := a.editor.ApplyProposal(ctx, flagApplyTo, input, flagApplyCreate)
		if err != nil {
			return err
		}
		printChange(out, c)
		return nil
	}

	var rep edit.Report
	if flagApplyResponse {
		rep, err = a.editor.ApplyResponse(ctx, input)
	} else {
		rep, err = a.editor.ApplyPatch(ctx, input)
	}
	if err != nil {
		return err
	}

	for _, c := range rep.Changes {
		printChange(out, c)
	}
	printResults(out, failedOrSkipped(rep.Files), true)
	fmt.Fprintf(out, "Applied %d files (%d failed, %d skipped)\n", rep.Summary.OK, rep.Summary.Failed, rep.Summary.Skipped)
	if rep.Summary.Failed > 0 {
		return fmt.Errorf("%d files could not be applied", rep.Summary.Failed)
	}
	return nil
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}

func printChange(out io.Writer, c edit.Change) {
	verb := "updated"
	if c.Created {
		verb = "created"
	}
	fmt.Fprintf(out, "%s %s: %d hunks", verb, c.Path, c.Edits)
	if c.Reconciled > 0 {
		fmt.Fprintf(out, ", %d reconciled", c.Reconciled)
	}
	if !c.Reindexed {
		fmt.Fprint(out, ", not reindexed")
	}
	fmt.Fprintln(out)
	for _, f := range c.Fallbacks {
		fmt.Fprintf(out, "  warning: %s\n", f)
	}
}

func failedOrSkipped(results []batch.Result) []batch.Result {
	var out []batch.Result
	for _, r := range results {
		if r.Status() != batch.StatusOK {
			out = append(out, r)
		}
	}
	return out
}
