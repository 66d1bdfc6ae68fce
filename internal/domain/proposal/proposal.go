// Package proposal extracts file edits proposed as fenced code blocks in free-form model output.
//
// Path inference is best effort: an ordered list of independent strategies is
// tried per block and the first match wins.
package proposal

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// maxPreceding caps the prose lines kept above a block.
const maxPreceding = 3

// Block is one fenced code block and the prose just above it.
type Block struct {
	Info string
	Code string
	// Preceding holds up to three non-empty prose lines before the fence, nearest last.
	Preceding []string
}

// Language is the first word of the fence info string without any path suffix.
func (b Block) Language() string {
	f := strings.Fields(b.Info)
	if len(f) == 0 {
		return ""
	}
	lang, _, _ := strings.Cut(f[0], ":")
	if looksLikePath(lang) {
		return ""
	}
	return strings.ToLower(lang)
}

// IsPatch reports whether the block holds a unified diff.
func (b Block) IsPatch() bool {
	switch b.Language() {
	case "diff", "patch":
		return true
	}
	return strings.HasPrefix(b.Code, "--- ") || strings.HasPrefix(b.Code, "diff --git ")
}

// Proposal is a full-file replacement for Path.
type Proposal struct {
	Path     string
	Language string
	Code     string
	// Strategy names the rule that inferred Path.
	Strategy string
}

// Blocks returns every closed, non-empty fenced block in text, parsed as
// CommonMark so fences nested in lists and quotes are found too.
func Blocks(reply string) []Block {
	src := []byte(strings.ReplaceAll(reply, "\r\n", "\n"))
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var (
		out   []Block
		prose []string
	)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.FencedCodeBlock:
			if code := blockCode(n, src); code != "" && isClosed(n, src) {
				out = append(out, Block{Info: fenceInfo(n, src), Code: code, Preceding: lastN(prose, maxPreceding)})
			}
			prose = nil
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			return ast.WalkSkipChildren, nil
		}
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			if s := strings.TrimSpace(string(seg.Value(src))); s != "" {
				prose = append(prose, s)
			}
		}
		return ast.WalkContinue, nil
	})
	return out
}

func fenceInfo(n *ast.FencedCodeBlock, src []byte) string {
	if n.Info == nil {
		return ""
	}
	return strings.TrimSpace(string(n.Info.Segment.Value(src)))
}

func blockCode(n *ast.FencedCodeBlock, src []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return b.String()
}

// isClosed reports whether a closing fence, possibly quoted, follows the
// block body. CommonMark runs an unclosed fence to the end of the document;
// such blocks are dropped.
func isClosed(n *ast.FencedCodeBlock, src []byte) bool {
	lines := n.Lines()
	rest := src[lines.At(lines.Len()-1).Stop:]
	for len(rest) > 0 {
		line, after, _ := bytes.Cut(rest, []byte("\n"))
		line = bytes.TrimLeft(bytes.TrimSpace(line), "> \t")
		if len(line) > 0 {
			return bytes.HasPrefix(line, []byte("```")) || bytes.HasPrefix(line, []byte("~~~"))
		}
		rest = after
	}
	return false
}

// Extract returns proposals for blocks whose path could be inferred. Patch blocks are skipped.
// Without strategies, DefaultStrategies is used.
func Extract(reply string, strategies ...Strategy) []Proposal {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	var out []Proposal
	for _, b := range Blocks(reply) {
		if b.IsPatch() {
			continue
		}
		for _, s := range strategies {
			m, ok := s.Infer(b)
			if !ok {
				continue
			}
			out = append(out, Proposal{
				Path:     m.Path,
				Language: b.Language(),
				Code:     m.Code,
				Strategy: s.Name,
			})
			break
		}
	}
	return out
}

// Patches returns the bodies of blocks that hold unified diffs.
func Patches(reply string) []string {
	var out []string
	for _, b := range Blocks(reply) {
		if b.IsPatch() {
			out = append(out, b.Code)
		}
	}
	return out
}

func lastN(s []string, n int) []string {
	if len(s) <= n {
		return append([]string(nil), s...)
	}
	return append([]string(nil), s[len(s)-n:]...)
}
