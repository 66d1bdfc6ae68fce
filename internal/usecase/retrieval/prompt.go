package retrieval

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/coderag/internal/domain"
	"github.com/kailas-cloud/coderag/internal/domain/search/result"
)

// DefaultSystemPrompt frames generation around the retrieved code.
const DefaultSystemPrompt = "You are a coding assistant working inside the user's workspace. " +
	"Answer using the code context provided. Reference files as path:line. " +
	"If the context does not contain the answer, say so instead of guessing."

const noContextAnswer = "No relevant code was found in the indexed workspace for this query. " +
	"Try rephrasing it or reindexing the workspace."

// contextBlock renders results in descending score order, numbered from 1.
func contextBlock(results []result.Result) string {
	var sb strings.Builder
	for i, r := range results {
		d := r.Document()
		m := d.Metadata()
		lang := m.Language
		if lang == "" {
			lang = "text"
		}
		fmt.Fprintf(&sb, "[%d] %s:%d-%d (%s, score %.2f)\n", i+1, m.FilePath, m.StartLine, m.EndLine, lang, r.Score())
		sb.WriteString("```" + m.Language + "\n")
		sb.WriteString(strings.TrimRight(d.Text(), "\n"))
		sb.WriteString("\n```\n")
		if i < len(results)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func buildMessages(system, query, block string) []domain.Message {
	return []domain.Message{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: "Context:\n" + block + "\nQuery: " + query},
	}
}
