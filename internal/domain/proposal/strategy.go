package proposal

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Match is a strategy result. Code may differ from the block code when the
// strategy consumed a marker line.
type Match struct {
	Path string
	Code string
}

// Strategy infers a target path for a block.
type Strategy struct {
	Name  string
	Infer func(b Block) (Match, bool)
}

// DefaultStrategies returns the built-in strategies in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "fence-info", Infer: FromFenceInfo},
		{Name: "leading-comment", Infer: FromLeadingComment},
		{Name: "preceding-line", Infer: FromPrecedingLine},
	}
}

var (
	leadingCommentRe = regexp.MustCompile(`^\s*(?://|#|--|/\*|<!--|;)\s*(?i:(?:file(?:name)?|path)\s*:\s*)?([\w./@-]+)\s*(?:\*/|-->)?\s*$`)
	backtickPathRe   = regexp.MustCompile("`([^`\\s]+)`")
	barePathRe       = regexp.MustCompile(`^(?:[*_#>\s]*)(?i:(?:file(?:name)?|path)\s*:\s*)?([\w./@-]+?)[*_:\s]*$`)
)

// FromFenceInfo reads a path from the fence info string: "go:cmd/main.go",
// "css title=web/site.css" or "ts src/a.ts".
func FromFenceInfo(b Block) (Match, bool) {
	for _, tok := range strings.Fields(b.Info) {
		for _, prefix := range []string{"title=", "path=", "file=", "filename="} {
			tok = strings.TrimPrefix(tok, prefix)
		}
		tok = strings.Trim(tok, `"'`)
		if _, after, ok := strings.Cut(tok, ":"); ok {
			tok = after
		}
		if looksLikePath(tok) {
			return Match{Path: tok, Code: b.Code}, true
		}
	}
	return Match{}, false
}

// FromLeadingComment reads "// path/to/file.go" style first lines and drops that line from the code.
func FromLeadingComment(b Block) (Match, bool) {
	first, rest, _ := strings.Cut(b.Code, "\n")
	m := leadingCommentRe.FindStringSubmatch(first)
	if m == nil || !looksLikePath(m[1]) {
		return Match{}, false
	}
	return Match{Path: m[1], Code: rest}, true
}

// FromPrecedingLine reads the path from the prose line right above the fence,
// either a backticked path or a line that is only a path.
func FromPrecedingLine(b Block) (Match, bool) {
	if len(b.Preceding) == 0 {
		return Match{}, false
	}
	line := b.Preceding[len(b.Preceding)-1]

	for _, m := range backtickPathRe.FindAllStringSubmatch(line, -1) {
		if looksLikePath(m[1]) {
			return Match{Path: m[1], Code: b.Code}, true
		}
	}
	if m := barePathRe.FindStringSubmatch(line); m != nil && looksLikePath(m[1]) {
		return Match{Path: m[1], Code: b.Code}, true
	}
	return Match{}, false
}

func looksLikePath(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t`") || strings.Contains(s, "://") {
		return false
	}
	ext := filepath.Ext(s)
	if len(ext) < 2 || len(ext) > 10 {
		return filepath.Base(s) == "Dockerfile" || filepath.Base(s) == "Makefile"
	}
	if c := ext[1]; !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
		return false
	}
	return strings.TrimSuffix(filepath.Base(s), ext) != ""
}
