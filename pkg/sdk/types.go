package coderag

// Outcome is the terminal state of a query.
type Outcome string

// Query outcomes.
const (
	OutcomeDirect    Outcome = "direct"     // answer generated from retrieved code
	OutcomeRAGOnly   Outcome = "rag_only"   // retrieved code returned without generation
	OutcomeNoContext Outcome = "no_context" // nothing relevant was found
	OutcomeError     Outcome = "error"
)

// QueryRequest is a question over the indexed code.
// Filter keys are "language" and "filePath".
type QueryRequest struct {
	Query  string         `json:"query"`
	Filter map[string]any `json:"filter,omitempty"`
	Limit  int            `json:"limit,omitempty"`
	Stream bool           `json:"stream,omitempty"`
}

// Source is one retrieved chunk.
type Source struct {
	FilePath  string  `json:"filePath"`
	StartLine int     `json:"startLine"`
	EndLine   int     `json:"endLine"`
	Language  string  `json:"language,omitempty"`
	Score     float64 `json:"score"`
	Text      string  `json:"text"`
}

// Answer is the response to a query.
type Answer struct {
	Outcome        Outcome  `json:"outcome"`
	Answer         string   `json:"answer"`
	Model          string   `json:"model,omitempty"`
	Note           string   `json:"note,omitempty"`
	Cached         bool     `json:"cached"`
	FallbackSearch bool     `json:"fallbackSearch"`
	Sources        []Source `json:"sources"`
}

// FileResult is the per-file outcome of a batch operation.
type FileResult struct {
	ID     string    `json:"id"`
	Status string    `json:"status"`
	Detail string    `json:"detail,omitempty"`
	Error  *APIError `json:"error,omitempty"`
}

// OK reports whether the file was processed.
func (r FileResult) OK() bool { return r.Status == "ok" }

// Summary counts batch outcomes.
type Summary struct {
	OK      int `json:"ok"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// IndexReport reports a workspace index run.
type IndexReport struct {
	Files      []FileResult `json:"files"`
	Summary    Summary      `json:"summary"`
	Chunks     int          `json:"chunks"`
	Degraded   int          `json:"degraded"`
	Removed    int          `json:"removed"`
	DurationMs int64        `json:"durationMs"`
}

// IndexStats describes the vector store contents.
type IndexStats struct {
	Count int      `json:"count"`
	Files []string `json:"files"`
}

// LineDiff is one line of a hunk.
type LineDiff struct {
	Type          string `json:"type"`
	Content       string `json:"content"`
	OldLineNumber int    `json:"oldLineNumber,omitempty"`
	NewLineNumber int    `json:"newLineNumber,omitempty"`
}

// Hunk is one contiguous change region.
type Hunk struct {
	OldStart     int        `json:"oldStart"`
	OldLines     int        `json:"oldLines"`
	NewStart     int        `json:"newStart"`
	NewLines     int        `json:"newLines"`
	LineDiffs    []LineDiff `json:"lineDiffs"`
	OldNoNewline bool       `json:"oldNoNewline,omitempty"`
	NewNoNewline bool       `json:"newNoNewline,omitempty"`
}

// FileDiff is one file section of a parsed unified diff.
type FileDiff struct {
	OldPath  string `json:"oldPath,omitempty"`
	NewPath  string `json:"newPath,omitempty"`
	Hunks    []Hunk `json:"hunks"`
	Language string `json:"language,omitempty"`
}

// Diff is a computed unified diff with its parsed hunks.
type Diff struct {
	Diff  string `json:"diff"`
	Hunks []Hunk `json:"hunks"`
}

// Preview is the diff a proposed file content would produce.
type Preview struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
	Diff   string `json:"diff"`
	Hunks  []Hunk `json:"hunks"`
	NoOp   bool   `json:"noop"`
}

// Change reports one applied file.
type Change struct {
	Path       string   `json:"path"`
	Created    bool     `json:"created"`
	Diff       string   `json:"diff"`
	Edits      int      `json:"edits"`
	Reconciled int      `json:"reconciled"`
	Fallbacks  []string `json:"fallbacks,omitempty"`
	Reindexed  bool     `json:"reindexed"`
}

// EditReport reports a multi-file apply.
type EditReport struct {
	Files   []FileResult `json:"files"`
	Changes []Change     `json:"changes"`
	Summary Summary      `json:"summary"`
}

// HealthStatus represents the aggregated server health.
type HealthStatus struct {
	Status string            `json:"status"` // "ok", "degraded", "error"
	Checks map[string]string `json:"checks"` // component → "ok"/"error"
}
