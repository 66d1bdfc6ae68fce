package diff

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/coderag/internal/domain"
	"github.com/kailas-cloud/coderag/internal/domain/diff/block"
)

// defaultFuzz is how far Apply searches around the declared position for matching hunk context.
const defaultFuzz = 50

// Edit is one line-range replacement. Edits are expressed against the content
// produced by the edits before them.
type Edit struct {
	StartLine int      `json:"startLine"`
	OldLines  int      `json:"oldLines"`
	NewLines  []string `json:"newLines"`
}

// Result is the outcome of applying one file diff.
type Result struct {
	Content string
	Edits   []Edit
	// Reconciled counts hunks applied by rule-block reconciliation.
	Reconciled int
	// Fallbacks holds ErrPartialApply errors for hunks that fell back to line-range replacement.
	Fallbacks []error
}

// Applier applies parsed diffs to file content.
type Applier struct {
	registry *block.Registry
	fuzz     int
}

// NewApplier creates an Applier. A nil registry disables block reconciliation.
func NewApplier(registry *block.Registry) *Applier {
	return &Applier{registry: registry, fuzz: defaultFuzz}
}

// Apply applies every hunk of d to content in old-start order.
func (a *Applier) Apply(d ParsedDiff, content string) (Result, error) {
	hunks := make([]Hunk, len(d.Hunks))
	copy(hunks, d.Hunks)
	sort.SliceStable(hunks, func(i, j int) bool { return hunks[i].OldStart < hunks[j].OldStart })

	for _, h := range hunks {
		if h.OldStart < 0 || h.NewStart < 0 || h.OldLines < 0 || h.NewLines < 0 {
			return Result{}, domain.InvalidInputf("hunk @@ -%d,%d +%d,%d @@ has negative range",
				h.OldStart, h.OldLines, h.NewStart, h.NewLines)
		}
	}

	format, hasFormat := a.registry.For(d.Path())
	t := splitText(content)
	crlf := t.crlf()
	var (
		res    Result
		offset int
	)
	for _, h := range hunks {
		if h.IsNoop() {
			continue
		}

		if hasFormat {
			edit, err := a.reconcile(format, t.lines, h, offset)
			switch {
			case err == nil:
				offset += splice(&t, edit, false, false)
				res.Edits = append(res.Edits, edit)
				res.Reconciled++
				continue
			case errors.Is(err, domain.ErrPartialApply):
				res.Fallbacks = append(res.Fallbacks,
					fmt.Errorf("hunk @@ -%d,%d @@: %w", h.OldStart, h.OldLines, err))
			}
		}

		edit := a.baseline(t.lines, h, offset, crlf && !h.hasCR())
		offset += splice(&t, edit, true, !h.NewNoNewline)
		res.Edits = append(res.Edits, edit)
	}

	res.Content = t.String()
	return res, nil
}

// ApplyContent diffs original against updated and applies the result back onto original.
func (a *Applier) ApplyContent(original, updated, path string) (Result, error) {
	diffs := Parse(Compute(original, updated, path))
	if len(diffs) == 0 {
		return Result{}, domain.InvalidInputf("computed diff for %q did not parse", path)
	}
	return a.Apply(diffs[0], original)
}

// baseline replaces the hunk's old side at its located position. Matched
// context keeps the file's own lines. With addCR, inserted lines get the "\r"
// of a CRLF file.
func (a *Applier) baseline(lines []string, h Hunk, offset int, addCR bool) Edit {
	oldSide := h.oldSide()
	oldCount := len(oldSide)
	if len(h.LineDiffs) == 0 {
		oldCount = h.OldLines
	}

	pos := h.OldStart - 1 + offset
	if h.OldLines == 0 {
		pos = h.OldStart + offset
	}
	pos = max(0, min(pos, len(lines)))
	matched := false
	if len(oldSide) > 0 {
		pos = locate(lines, oldSide, pos, a.fuzz)
		matched = matchAt(lines, oldSide, pos)
	}
	oldCount = min(oldCount, len(lines)-pos)

	var newSide []string
	k := 0
	for i, ld := range h.LineDiffs {
		switch ld.Type {
		case LineContext:
			if matched {
				newSide = append(newSide, lines[pos+k])
			} else {
				newSide = append(newSide, ld.Content)
			}
			k++
		case LineRemove:
			k++
		case LineAdd:
			line := ld.Content
			last := h.NewNoNewline && i == len(h.LineDiffs)-1
			if addCR && !last && !strings.HasSuffix(line, "\r") {
				line += "\r"
			}
			newSide = append(newSide, line)
		}
	}

	return Edit{StartLine: pos + 1, OldLines: oldCount, NewLines: newSide}
}

// splice applies e to t and returns the line delta. When setNewline is set and the
// edit reaches the end of the content, the trailing newline flag becomes newline.
func splice(t *text, e Edit, setNewline, newline bool) int {
	start := e.StartLine - 1
	end := start + e.OldLines
	touchesEnd := end >= len(t.lines)

	out := make([]string, 0, len(t.lines)-e.OldLines+len(e.NewLines))
	out = append(out, t.lines[:start]...)
	out = append(out, e.NewLines...)
	out = append(out, t.lines[end:]...)
	t.lines = out

	if setNewline && touchesEnd {
		t.trailingNewline = newline
	}
	return len(e.NewLines) - e.OldLines
}

func (h Hunk) oldSide() []string {
	var out []string
	for _, ld := range h.LineDiffs {
		if ld.Type != LineAdd {
			out = append(out, ld.Content)
		}
	}
	return out
}

// hasCR reports whether any body line carries its own "\r".
func (h Hunk) hasCR() bool {
	for _, ld := range h.LineDiffs {
		if strings.HasSuffix(ld.Content, "\r") {
			return true
		}
	}
	return false
}

// locate finds want at pos, or the nearest position within fuzz lines. Falls back to pos.
func locate(lines, want []string, pos, fuzz int) int {
	if matchAt(lines, want, pos) {
		return pos
	}
	for d := 1; d <= fuzz; d++ {
		if matchAt(lines, want, pos-d) {
			return pos - d
		}
		if matchAt(lines, want, pos+d) {
			return pos + d
		}
	}
	return pos
}

func matchAt(lines, want []string, pos int) bool {
	if pos < 0 || pos+len(want) > len(lines) {
		return false
	}
	for i, w := range want {
		if !sameLine(lines[pos+i], w) {
			return false
		}
	}
	return true
}
