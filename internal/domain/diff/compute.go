package diff

import (
	"fmt"
	"strings"
)

// Compute returns a unified diff turning original into updated, labelled with path.
// Identical inputs yield a single no-op hunk "@@ -0,0 +0,0 @@".
func Compute(original, updated, path string) string {
	if path == "" {
		path = "file"
	}
	a, b := splitText(original), splitText(updated)
	ka, kb := a.keys(), b.keys()

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n+++ b/%s\n", path, path)

	prefix := 0
	for prefix < len(ka) && prefix < len(kb) && ka[prefix] == kb[prefix] {
		prefix++
	}
	if prefix == len(ka) && prefix == len(kb) {
		sb.WriteString(noopHunk + "\n")
		return sb.String()
	}

	shorter := min(len(ka), len(kb))
	suffix := 0
	for suffix < shorter-prefix && ka[len(ka)-1-suffix] == kb[len(kb)-1-suffix] {
		suffix++
	}

	ctxStart := max(0, prefix-contextLines)
	oldEnd, newEnd := len(ka)-suffix, len(kb)-suffix
	trail := min(contextLines, suffix)

	oldCount := (prefix - ctxStart) + (oldEnd - prefix) + trail
	newCount := (prefix - ctxStart) + (newEnd - prefix) + trail
	fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n",
		hunkStart(ctxStart, oldCount), oldCount, hunkStart(ctxStart, newCount), newCount)

	for i := ctxStart; i < prefix; i++ {
		writeLine(&sb, ' ', a.lines[i], a.missingNewlineAt(i))
	}
	for i := prefix; i < oldEnd; i++ {
		writeLine(&sb, '-', a.lines[i], a.missingNewlineAt(i))
	}
	for i := prefix; i < newEnd; i++ {
		writeLine(&sb, '+', b.lines[i], b.missingNewlineAt(i))
	}
	for i := oldEnd; i < oldEnd+trail; i++ {
		writeLine(&sb, ' ', a.lines[i], a.missingNewlineAt(i))
	}
	return sb.String()
}

// hunkStart follows the unified format: an empty side names the line before the change.
func hunkStart(ctxStart, count int) int {
	if count == 0 {
		return ctxStart
	}
	return ctxStart + 1
}

func writeLine(sb *strings.Builder, prefix byte, line string, noNewline bool) {
	sb.WriteByte(prefix)
	sb.WriteString(line)
	sb.WriteByte('\n')
	if noNewline {
		sb.WriteString(noNewlineText + "\n")
	}
}
