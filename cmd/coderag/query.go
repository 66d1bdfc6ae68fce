package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/coderag/internal/domain"
	"github.com/kailas-cloud/coderag/internal/domain/search/filter"
	"github.com/kailas-cloud/coderag/internal/usecase/retrieval"
	coderag "github.com/kailas-cloud/coderag/pkg/sdk"
)

var (
	flagQueryLimit    int
	flagQueryLanguage string
	flagQueryPath     string
	flagQueryStream   bool
	flagQueryJSON     bool
	flagQueryServer   string
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question about the indexed code",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&flagQueryLimit, "limit", "k", 0, "Maximum number of chunks to retrieve (default from config)")
	queryCmd.Flags().StringVar(&flagQueryLanguage, "language", "", "Only search chunks of this language")
	queryCmd.Flags().StringVar(&flagQueryPath, "path", "", "Only search chunks of this file")
	queryCmd.Flags().BoolVar(&flagQueryStream, "stream", false, "Print the answer as it is generated")
	queryCmd.Flags().BoolVar(&flagQueryJSON, "json", false, "Print the full response as JSON")
	queryCmd.Flags().StringVar(&flagQueryServer, "server", "", "Ask a running \"coderag serve\" at this URL instead of the local index (API key from $CODERAG_API_KEY)")
	queryCmd.MarkFlagsMutuallyExclusive("stream", "json")
	rootCmd.AddCommand(queryCmd)
}

type sourceJSON struct {
	FilePath  string  `json:"filePath"`
	StartLine int     `json:"startLine"`
	EndLine   int     `json:"endLine"`
	Score     float64 `json:"score"`
}

type queryJSON struct {
	Outcome retrieval.Outcome `json:"outcome"`
	Answer  string            `json:"answer"`
	Model   string            `json:"model,omitempty"`
	Note    string            `json:"note,omitempty"`
	Cached  bool              `json:"cached"`
	Sources []sourceJSON      `json:"sources"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	conds := map[string]any{}
	if flagQueryLanguage != "" {
		conds["language"] = flagQueryLanguage
	}
	if flagQueryPath != "" {
		conds["filePath"] = flagQueryPath
	}
	f, err := filter.New(conds)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	if flagQueryServer != "" {
		return runRemoteQuery(cmd, coderag.QueryRequest{
			Query:  strings.Join(args, " "),
			Filter: conds,
			Limit:  flagQueryLimit,
		})
	}

	a, err := setupOneShot(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	req := retrieval.Request{Query: strings.Join(args, " "), Filter: f, Limit: flagQueryLimit}

	if flagQueryStream {
		resp, err := a.retrieval.QueryStream(cmd.Context(), req, func(c domain.StreamChunk) {
			fmt.Fprint(out, c.Content)
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		printNote(cmd, resp)
		return nil
	}

	resp, err := a.retrieval.Query(cmd.Context(), req)
	if err != nil {
		return err
	}

	if flagQueryJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(toQueryJSON(resp))
	}

	fmt.Fprintln(out, resp.Answer)
	printNote(cmd, resp)
	return nil
}

// printNote reports degradations on stderr so stdout holds only the answer.
func printNote(cmd *cobra.Command, resp retrieval.Response) {
	if resp.Note != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "note: %s\n", resp.Note)
	}
}

func toQueryJSON(resp retrieval.Response) queryJSON {
	out := queryJSON{
		Outcome: resp.Outcome,
		Answer:  resp.Answer,
		Model:   resp.Model,
		Note:    resp.Note,
		Cached:  resp.Cached,
		Sources: make([]sourceJSON, 0, len(resp.Sources)),
	}
	for i := range resp.Sources {
		d := resp.Sources[i].Document()
		m := d.Metadata()
		out.Sources = append(out.Sources, sourceJSON{
			FilePath:  m.FilePath,
			StartLine: m.StartLine,
			EndLine:   m.EndLine,
			Score:     resp.Sources[i].Score(),
		})
	}
	return out
}

// runRemoteQuery sends the question to a coderag server over HTTP.
func runRemoteQuery(cmd *cobra.Command, req coderag.QueryRequest) error {
	client, err := coderag.New(flagQueryServer, coderag.WithAPIKey(os.Getenv("CODERAG_API_KEY")))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	var ans coderag.Answer
	if flagQueryStream {
		ans, err = client.QueryStream(cmd.Context(), req, func(s string) { fmt.Fprint(out, s) })
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
	} else {
		ans, err = client.Query(cmd.Context(), req)
		if err != nil {
			return err
		}
		if flagQueryJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(ans)
		}
		fmt.Fprintln(out, ans.Answer)
	}
	if ans.Note != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "note: %s\n", ans.Note)
	}
	return nil
}
