// Package diff computes, parses and applies unified diffs.
//
// Compute reduces a change to the longest common prefix and suffix and emits a
// single hunk around the rest, so two disjoint edits become one wide hunk.
// Parse and Apply accept any unified diff, including multi-hunk ones.
package diff

// LineType classifies a hunk body line.
type LineType string

// Line types.
const (
	LineAdd     LineType = "add"
	LineRemove  LineType = "remove"
	LineContext LineType = "context"
)

// LineDiff is one hunk body line. Line numbers are 1-based and zero when the
// line does not exist on that side.
type LineDiff struct {
	Type          LineType `json:"type"`
	Content       string   `json:"content"`
	OldLineNumber int      `json:"oldLineNumber,omitempty"`
	NewLineNumber int      `json:"newLineNumber,omitempty"`
}

// Hunk is one contiguous changed region.
type Hunk struct {
	OldStart  int        `json:"oldStart"`
	OldLines  int        `json:"oldLines"`
	NewStart  int        `json:"newStart"`
	NewLines  int        `json:"newLines"`
	LineDiffs []LineDiff `json:"lineDiffs"`
	// OldNoNewline and NewNoNewline mirror "\ No newline at end of file" markers.
	OldNoNewline bool `json:"oldNoNewline,omitempty"`
	NewNoNewline bool `json:"newNoNewline,omitempty"`
}

// IsNoop reports whether the hunk carries no change.
func (h Hunk) IsNoop() bool {
	return h.OldLines == 0 && h.NewLines == 0 && len(h.LineDiffs) == 0
}

// ParsedDiff is one file section of a unified diff.
type ParsedDiff struct {
	OldPath  string `json:"oldPath,omitempty"`
	NewPath  string `json:"newPath,omitempty"`
	Hunks    []Hunk `json:"hunks"`
	Language string `json:"language,omitempty"`
}

// Path returns the target path: the new path, or the old one for deletions.
func (d ParsedDiff) Path() string {
	if d.NewPath != "" {
		return d.NewPath
	}
	return d.OldPath
}

const (
	contextLines  = 3
	noNewlineText = `\ No newline at end of file`
	noopHunk      = "@@ -0,0 +0,0 @@"
)
