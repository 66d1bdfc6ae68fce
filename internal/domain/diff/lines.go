package diff

import "strings"

// text is file content split on "\n". Lines keep a trailing "\r", so CRLF
// content joins back byte for byte. A final newline is a flag, not an extra empty line.
type text struct {
	lines           []string
	trailingNewline bool
}

func splitText(s string) text {
	if s == "" {
		return text{}
	}
	trailing := strings.HasSuffix(s, "\n")
	return text{
		lines:           strings.Split(strings.TrimSuffix(s, "\n"), "\n"),
		trailingNewline: trailing,
	}
}

func (t text) String() string {
	if len(t.lines) == 0 {
		return ""
	}
	s := strings.Join(t.lines, "\n")
	if t.trailingNewline {
		s += "\n"
	}
	return s
}

// keys returns comparison keys where a last line without newline differs from the same line with one.
func (t text) keys() []string {
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	if n := len(out); n > 0 && !t.trailingNewline {
		out[n-1] += "\x00"
	}
	return out
}

// missingNewlineAt reports whether index i is a last line without newline.
func (t text) missingNewlineAt(i int) bool {
	return !t.trailingNewline && i == len(t.lines)-1
}

// crlf reports whether every terminated line ends in "\r\n".
func (t text) crlf() bool {
	n := len(t.lines)
	if !t.trailingNewline {
		n--
	}
	if n <= 0 {
		return false
	}
	for _, l := range t.lines[:n] {
		if !strings.HasSuffix(l, "\r") {
			return false
		}
	}
	return true
}

// MatchLineEndings rewrites LF-only updated content to CRLF when original uses
// CRLF throughout. Content that already carries "\r" is returned as is.
func MatchLineEndings(original, updated string) string {
	if strings.Contains(updated, "\r") || !splitText(original).crlf() {
		return updated
	}
	return strings.ReplaceAll(updated, "\n", "\r\n")
}

func sameLine(a, b string) bool {
	return strings.TrimRight(a, " \t\r") == strings.TrimRight(b, " \t\r")
}
