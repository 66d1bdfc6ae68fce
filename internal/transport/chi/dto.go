package chi

import (
	"github.com/kailas-cloud/coderag/internal/domain/batch"
	"github.com/kailas-cloud/coderag/internal/domain/search/result"
	"github.com/kailas-cloud/coderag/internal/usecase/edit"
	"github.com/kailas-cloud/coderag/internal/usecase/index"
	"github.com/kailas-cloud/coderag/internal/usecase/retrieval"
)

// SourceResponse is one retrieved chunk.
type SourceResponse struct {
	FilePath  string  `json:"filePath"`
	StartLine int     `json:"startLine"`
	EndLine   int     `json:"endLine"`
	Language  string  `json:"language,omitempty"`
	Score     float64 `json:"score"`
	Text      string  `json:"text"`
}

// QueryResponse is the answer to a query.
type QueryResponse struct {
	Outcome        retrieval.Outcome `json:"outcome"`
	Answer         string            `json:"answer"`
	Model          string            `json:"model,omitempty"`
	Note           string            `json:"note,omitempty"`
	Cached         bool              `json:"cached"`
	FallbackSearch bool              `json:"fallbackSearch"`
	Sources        []SourceResponse  `json:"sources"`
}

// BatchItem is the per-item outcome of a batch operation.
type BatchItem struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Detail string         `json:"detail,omitempty"`
	Error  *ErrorResponse `json:"error,omitempty"`
}

// Summary counts batch outcomes.
type Summary struct {
	OK      int `json:"ok"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// IndexResponse reports a workspace index run.
type IndexResponse struct {
	Files      []BatchItem `json:"files"`
	Summary    Summary     `json:"summary"`
	Chunks     int         `json:"chunks"`
	Degraded   int         `json:"degraded"`
	Removed    int         `json:"removed"`
	DurationMs int64       `json:"durationMs"`
}

// EditResponse reports a multi-file apply.
type EditResponse struct {
	Files   []BatchItem   `json:"files"`
	Changes []edit.Change `json:"changes"`
	Summary Summary       `json:"summary"`
}

func queryToResponse(r retrieval.Response) QueryResponse {
	sources := make([]SourceResponse, len(r.Sources))
	for i := range r.Sources {
		sources[i] = sourceToResponse(&r.Sources[i])
	}
	return QueryResponse{
		Outcome:        r.Outcome,
		Answer:         r.Answer,
		Model:          r.Model,
		Note:           r.Note,
		Cached:         r.Cached,
		FallbackSearch: r.Fallback,
		Sources:        sources,
	}
}

func sourceToResponse(r *result.Result) SourceResponse {
	d := r.Document()
	m := d.Metadata()
	return SourceResponse{
		FilePath:  m.FilePath,
		StartLine: m.StartLine,
		EndLine:   m.EndLine,
		Language:  m.Language,
		Score:     r.Score(),
		Text:      d.Text(),
	}
}

func batchToItems(results []batch.Result) []BatchItem {
	items := make([]BatchItem, len(results))
	for i, r := range results {
		items[i] = BatchItem{ID: r.ID(), Status: string(r.Status()), Detail: r.Detail()}
		if r.Err() != nil {
			_, code, msg := classify(r.Err())
			items[i].Error = &ErrorResponse{Code: code, Message: msg}
		}
	}
	return items
}

func summaryToResponse(s batch.Summary) Summary {
	return Summary{OK: s.OK, Failed: s.Failed, Skipped: s.Skipped}
}

func indexToResponse(r index.Report) IndexResponse {
	return IndexResponse{
		Files:      batchToItems(r.Files),
		Summary:    summaryToResponse(r.Summary),
		Chunks:     r.Chunks,
		Degraded:   r.Degraded,
		Removed:    r.Removed,
		DurationMs: r.Duration.Milliseconds(),
	}
}

func editToResponse(r edit.Report) EditResponse {
	changes := r.Changes
	if changes == nil {
		changes = []edit.Change{}
	}
	return EditResponse{
		Files:   batchToItems(r.Files),
		Changes: changes,
		Summary: summaryToResponse(r.Summary),
	}
}
