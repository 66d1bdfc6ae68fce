package diff

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/kailas-cloud/coderag/internal/domain/document"
)

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

var errMalformed = errors.New("malformed diff")

// Parse reads a unified diff, possibly spanning several files. Malformed input
// yields an empty result; callers treat that as nothing to apply.
func Parse(input string) []ParsedDiff {
	p := parser{lines: splitInput(input)}
	diffs, err := p.run()
	if err != nil {
		return nil
	}
	return diffs
}

// splitInput splits on "\n" only; body lines of a CRLF diff keep their "\r".
func splitInput(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

type parser struct {
	lines []string
	diffs []ParsedDiff
	cur   *ParsedDiff
	hunk  *Hunk

	remOld, remNew int
	oldNo, newNo   int
}

func (p *parser) run() ([]ParsedDiff, error) {
	for i := 0; i < len(p.lines); i++ {
		line := p.lines[i]

		if p.hunk != nil {
			if p.startsSection(i) {
				p.closeHunk()
			} else if p.remOld > 0 || p.remNew > 0 || p.isOverflow(line) {
				if err := p.bodyLine(line); err != nil {
					return nil, err
				}
				continue
			} else if strings.HasPrefix(line, `\`) {
				p.markNoNewline()
				continue
			} else {
				p.closeHunk()
			}
		}

		switch {
		case strings.HasPrefix(line, "diff --git "):
			p.closeFile()
			oldPath, newPath := gitPaths(strings.TrimPrefix(line, "diff --git "))
			p.cur = &ParsedDiff{OldPath: oldPath, NewPath: newPath}
		case strings.HasPrefix(line, "--- "):
			if p.cur == nil || len(p.cur.Hunks) > 0 {
				p.closeFile()
				p.cur = &ParsedDiff{}
			}
			p.cur.OldPath = cleanPath(strings.TrimPrefix(line, "--- "))
		case strings.HasPrefix(line, "+++ "):
			if p.cur == nil {
				p.cur = &ParsedDiff{}
			}
			p.cur.NewPath = cleanPath(strings.TrimPrefix(line, "+++ "))
		case strings.HasPrefix(line, "@@"):
			if err := p.openHunk(line); err != nil {
				return nil, err
			}
		case strings.HasPrefix(line, `\`):
			p.markNoNewline()
		}
	}
	p.closeFile()

	var out []ParsedDiff
	for _, d := range p.diffs {
		if len(d.Hunks) > 0 {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, errMalformed
	}
	return out, nil
}

// startsSection reports whether line i begins a new hunk or file section.
// A "---" line only counts when followed by "+++" and a hunk header, since a
// removed line may itself start with two dashes.
func (p *parser) startsSection(i int) bool {
	line := p.lines[i]
	if strings.HasPrefix(line, "@@ ") || strings.HasPrefix(line, "diff --git ") {
		return true
	}
	return strings.HasPrefix(line, "--- ") &&
		i+2 < len(p.lines) &&
		strings.HasPrefix(p.lines[i+1], "+++ ") &&
		strings.HasPrefix(p.lines[i+2], "@@")
}

// isOverflow accepts body lines past an undercounted header.
func (p *parser) isOverflow(line string) bool {
	if line == "" {
		return false
	}
	switch line[0] {
	case ' ', '-', '+':
		return !strings.HasPrefix(line, "--- ") && !strings.HasPrefix(line, "+++ ")
	}
	return false
}

func (p *parser) openHunk(line string) error {
	m := hunkHeaderRe.FindStringSubmatch(line)
	if m == nil {
		return errMalformed
	}
	if p.cur == nil {
		p.cur = &ParsedDiff{}
	}
	h := Hunk{
		OldStart: atoi(m[1]),
		OldLines: countOrOne(m[2]),
		NewStart: atoi(m[3]),
		NewLines: countOrOne(m[4]),
	}
	p.hunk = &h
	p.remOld, p.remNew = h.OldLines, h.NewLines
	p.oldNo, p.newNo = h.OldStart, h.NewStart
	return nil
}

func (p *parser) bodyLine(line string) error {
	var ld LineDiff
	switch {
	case line == "" || line == "\r":
		ld = LineDiff{Type: LineContext, Content: line}
	case line[0] == ' ':
		ld = LineDiff{Type: LineContext, Content: line[1:]}
	case line[0] == '-':
		ld = LineDiff{Type: LineRemove, Content: line[1:]}
	case line[0] == '+':
		ld = LineDiff{Type: LineAdd, Content: line[1:]}
	case line[0] == '\\':
		p.markNoNewline()
		return nil
	default:
		return errMalformed
	}

	switch ld.Type {
	case LineContext:
		ld.OldLineNumber, ld.NewLineNumber = p.oldNo, p.newNo
		p.oldNo++
		p.newNo++
		p.remOld--
		p.remNew--
	case LineRemove:
		ld.OldLineNumber = p.oldNo
		p.oldNo++
		p.remOld--
	case LineAdd:
		ld.NewLineNumber = p.newNo
		p.newNo++
		p.remNew--
	}
	p.hunk.LineDiffs = append(p.hunk.LineDiffs, ld)
	return nil
}

func (p *parser) markNoNewline() {
	h := p.hunk
	if h == nil && p.cur != nil && len(p.cur.Hunks) > 0 {
		h = &p.cur.Hunks[len(p.cur.Hunks)-1]
	}
	if h == nil || len(h.LineDiffs) == 0 {
		return
	}
	switch h.LineDiffs[len(h.LineDiffs)-1].Type {
	case LineRemove:
		h.OldNoNewline = true
	case LineAdd:
		h.NewNoNewline = true
	case LineContext:
		h.OldNoNewline = true
		h.NewNoNewline = true
	}
}

// closeHunk recomputes counts from the body when the header disagrees with it.
func (p *parser) closeHunk() {
	if p.hunk == nil {
		return
	}
	h := *p.hunk
	var oldN, newN int
	for _, ld := range h.LineDiffs {
		switch ld.Type {
		case LineContext:
			oldN++
			newN++
		case LineRemove:
			oldN++
		case LineAdd:
			newN++
		}
	}
	if oldN != h.OldLines || newN != h.NewLines {
		h.OldLines, h.NewLines = oldN, newN
	}
	p.cur.Hunks = append(p.cur.Hunks, h)
	p.hunk = nil
	p.remOld, p.remNew = 0, 0
}

func (p *parser) closeFile() {
	p.closeHunk()
	if p.cur == nil {
		return
	}
	p.cur.Language = document.LanguageForPath(p.cur.Path())
	p.diffs = append(p.diffs, *p.cur)
	p.cur = nil
}

// cleanPath strips a/ b/ prefixes and trailing timestamps. /dev/null becomes empty.
func cleanPath(raw string) string {
	if i := strings.IndexByte(raw, '\t'); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.TrimSpace(raw)
	if raw == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(raw, "a/") || strings.HasPrefix(raw, "b/") {
		return raw[2:]
	}
	return raw
}

func gitPaths(rest string) (string, string) {
	if i := strings.Index(rest, " b/"); i >= 0 {
		return cleanPath(rest[:i]), cleanPath(rest[i+1:])
	}
	fields := strings.Fields(rest)
	if len(fields) == 2 {
		return cleanPath(fields[0]), cleanPath(fields[1])
	}
	return "", ""
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func countOrOne(s string) int {
	if s == "" {
		return 1
	}
	return atoi(s)
}
