package diff

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/kailas-cloud/coderag/internal/domain"
	"github.com/kailas-cloud/coderag/internal/domain/diff/block"
)

const siteCSS = `body {
  margin: 0;
}

.button {
  color: red;
  padding: 4px;
}
`

func TestApply_RoundTrip(t *testing.T) {
	tests := []struct {
		name, orig, upd string
	}{
		{"single change", "a\nb\nc\n", "a\nx\nc\n"},
		{"identical", "same\n", "same\n"},
		{"both empty", "", ""},
		{"from empty", "", "x\ny\n"},
		{"to empty", "x\ny\n", ""},
		{"add final newline", "a\nb", "a\nb\n"},
		{"drop final newline", "a\nb\n", "a\nb"},
		{"insert middle", "a\nb\nc\nd\n", "a\nb\nX\nc\nd\n"},
		{"delete middle", "a\nb\nc\nd\n", "a\nd\n"},
		{"prepend", "b\nc\n", "a\nb\nc\n"},
		{"append without newline", "a\n", "a\nb"},
		{"disjoint edits", "a\nb\nc\nd\ne\nf\ng\nh\n", "a\nB\nc\nd\ne\nf\nG\nh\n"},
		{"blank lines", "a\n\nb\n", "a\n\nc\n"},
		{"dash lines", "--- x\nfoo\n", "foo\n"},
		{"repeated lines", "x\nx\nx\n", "x\nx\nx\nx\n"},
		{"crlf single change", "a\r\nb\r\nc\r\n", "a\r\nx\r\nc\r\n"},
		{"crlf without final newline", "a\r\nb", "a\r\nc"},
		{"crlf to lf", "a\r\nb\r\n", "a\nb\n"},
		{"lf to crlf", "a\nb\n", "a\r\nb\r\n"},
		{"mixed endings", "a\r\nb\nc\r\n", "a\r\nb\nX\r\n"},
	}

	a := NewApplier(nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := a.ApplyContent(tc.orig, tc.upd, "f.txt")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Content != tc.upd {
				t.Errorf("round trip = %q, want %q", res.Content, tc.upd)
			}
		})
	}
}

func TestApply_NoopDiffKeepsContent(t *testing.T) {
	diffs := Parse(Compute("x\n", "x\n", "f"))
	if len(diffs) != 1 {
		t.Fatalf("got %d diffs", len(diffs))
	}
	res, err := NewApplier(nil).Apply(diffs[0], "x\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Content != "x\n" || len(res.Edits) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestApply_MultipleHunksTrackOffset(t *testing.T) {
	var lines []string
	for i := 1; i <= 20; i++ {
		lines = append(lines, "l"+strconv.Itoa(i))
	}
	orig := strings.Join(lines, "\n") + "\n"

	input := "--- a/f\n+++ b/f\n" +
		"@@ -2,1 +2,2 @@\n-l2\n+L2\n+L2b\n" +
		"@@ -10,1 +11,1 @@\n-l10\n+L10\n"
	diffs := Parse(input)
	if len(diffs) != 1 {
		t.Fatalf("got %d diffs", len(diffs))
	}

	res, err := NewApplier(nil).Apply(diffs[0], orig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := strings.Split(res.Content, "\n")
	if got[1] != "L2" || got[2] != "L2b" || got[10] != "L10" || got[11] != "l11" {
		t.Errorf("content = %q", res.Content)
	}
	if len(res.Edits) != 2 {
		t.Errorf("edits = %d, want 2", len(res.Edits))
	}
}

func TestApply_LocatesDriftedContext(t *testing.T) {
	var lines []string
	for i := 1; i <= 12; i++ {
		lines = append(lines, "l"+strconv.Itoa(i))
	}
	orig := strings.Join(lines, "\n") + "\n"

	diffs := Parse("--- a/f\n+++ b/f\n@@ -5,3 +5,3 @@\n l8\n-l9\n+X\n l10\n")
	res, err := NewApplier(nil).Apply(diffs[0], orig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Content, "l8\nX\nl10\n") || strings.Contains(res.Content, "l9\n") {
		t.Errorf("content = %q", res.Content)
	}
}

func TestApply_RejectsNegativeRange(t *testing.T) {
	d := ParsedDiff{NewPath: "f", Hunks: []Hunk{{OldStart: -1, OldLines: 1}}}
	_, err := NewApplier(nil).Apply(d, "a\n")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestApply_ReconcilesCSSRule(t *testing.T) {
	// Header points at the wrong rule; line-range replacement would rewrite "body".
	input := `--- a/site.css
+++ b/site.css
@@ -1,3 +1,4 @@
 .button {
-  color: red;
+  color: blue;
+  border: none;
   padding: 4px;
`
	diffs := Parse(input)
	if len(diffs) != 1 {
		t.Fatalf("got %d diffs", len(diffs))
	}

	res, err := NewApplier(block.DefaultRegistry()).Apply(diffs[0], siteCSS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `body {
  margin: 0;
}

.button {
  color: blue;
  border: none;
  padding: 4px;
}
`
	if res.Content != want {
		t.Errorf("content =\n%s\nwant\n%s", res.Content, want)
	}
	if res.Reconciled != 1 || len(res.Fallbacks) != 0 {
		t.Errorf("reconciled=%d fallbacks=%v", res.Reconciled, res.Fallbacks)
	}
}

func TestApply_ReconcilesWithoutSelectorContext(t *testing.T) {
	input := "--- a/site.css\n+++ b/site.css\n@@ -6,2 +6,3 @@\n   color: red;\n+  margin: 0 auto;\n   padding: 4px;\n"
	res, err := NewApplier(block.DefaultRegistry()).Apply(Parse(input)[0], siteCSS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Content, ".button {\n  color: red;\n  margin: 0 auto;\n  padding: 4px;\n}") {
		t.Errorf("content =\n%s", res.Content)
	}
	if res.Reconciled != 1 {
		t.Errorf("reconciled = %d", res.Reconciled)
	}
}

func TestApply_ReconcileFallsBackToLineRange(t *testing.T) {
	input := "--- a/site.css\n+++ b/site.css\n@@ -1,3 +1,3 @@\n .missing {\n-  color: red;\n+  color: blue;\n }\n"
	res, err := NewApplier(block.DefaultRegistry()).Apply(Parse(input)[0], siteCSS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reconciled != 0 || len(res.Fallbacks) != 1 {
		t.Fatalf("reconciled=%d fallbacks=%v", res.Reconciled, res.Fallbacks)
	}
	if !errors.Is(res.Fallbacks[0], domain.ErrPartialApply) {
		t.Errorf("fallback error = %v", res.Fallbacks[0])
	}
	if !strings.HasPrefix(res.Content, ".missing {\n  color: blue;\n}\n") {
		t.Errorf("content =\n%s", res.Content)
	}
}

func TestApply_CSSRoundTrip(t *testing.T) {
	tests := []struct {
		name, orig, upd string
		reconciled      int
	}{
		{
			name:       "value change",
			orig:       siteCSS,
			upd:        strings.Replace(siteCSS, "color: red;", "color: green;", 1),
			reconciled: 1,
		},
		{
			name:       "declaration on closing line",
			orig:       "a {\n  color: red;\n  margin: 0; }\n",
			upd:        "a {\n  color: blue;\n  margin: 0; }\n",
			reconciled: 1,
		},
		{
			name:       "repeated property name",
			orig:       "a {\n  color: red;\n}\n",
			upd:        "a {\n  color: red;\n  color: rgba(0, 0, 0, 0.5);\n}\n",
			reconciled: 1,
		},
		{
			name:       "drop one of a repeated name",
			orig:       "a {\n  color: red;\n  color: rgba(0, 0, 0, 0.5);\n}\n",
			upd:        "a {\n  color: rgba(0, 0, 0, 0.5);\n}\n",
			reconciled: 1,
		},
		{
			name: "reorder",
			orig: "a {\n  color: red;\n  margin: 0;\n}\n",
			upd:  "a {\n  margin: 0;\n  color: red;\n}\n",
		},
		{
			name:       "rename",
			orig:       "a {\n  color: red;\n  margin: 0;\n}\n",
			upd:        "a {\n  background-color: red;\n  margin: 0;\n}\n",
			reconciled: 1,
		},
		{
			name: "inline rule",
			orig: "a { color: red; }\nb {\n  margin: 0;\n}\n",
			upd:  "a { color: blue; }\nb {\n  margin: 0;\n}\n",
		},
		{
			name:       "crlf stylesheet",
			orig:       "a {\r\n  color: red;\r\n}\r\n",
			upd:        "a {\r\n  color: blue;\r\n  margin: 0;\r\n}\r\n",
			reconciled: 1,
		},
	}

	a := NewApplier(block.DefaultRegistry())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := a.ApplyContent(tc.orig, tc.upd, "site.css")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Content != tc.upd {
				t.Errorf("content = %q, want %q", res.Content, tc.upd)
			}
			if res.Reconciled != tc.reconciled {
				t.Errorf("reconciled = %d, want %d (fallbacks %v)", res.Reconciled, tc.reconciled, res.Fallbacks)
			}
		})
	}
}

func TestApply_ReorderFallsBackToLineRange(t *testing.T) {
	orig := "a {\n  color: red;\n  margin: 0;\n}\n"
	upd := "a {\n  margin: 0;\n  color: red;\n}\n"
	res, err := NewApplier(block.DefaultRegistry()).ApplyContent(orig, upd, "s.css")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Fallbacks) != 1 || !errors.Is(res.Fallbacks[0], domain.ErrPartialApply) {
		t.Errorf("fallbacks = %v", res.Fallbacks)
	}
}

func TestApply_LFPatchKeepsCRLF(t *testing.T) {
	input := "--- a/f.txt\n+++ b/f.txt\n@@ -1,3 +1,4 @@\n a\n-b\n+x\n+y\n c\n"
	res, err := NewApplier(nil).Apply(Parse(input)[0], "a\r\nb\r\nc\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "a\r\nx\r\ny\r\nc\r\n"; res.Content != want {
		t.Errorf("content = %q, want %q", res.Content, want)
	}
}

func TestMatchLineEndings(t *testing.T) {
	tests := []struct {
		orig, upd, want string
	}{
		{"a\r\nb\r\n", "a\nc\n", "a\r\nc\r\n"},
		{"a\r\nb", "a\nc", "a\r\nc"},
		{"a\nb\n", "a\nc\n", "a\nc\n"},
		{"a\r\nb\n", "a\nc\n", "a\nc\n"},
		{"a\r\n", "x\r\ny\n", "x\r\ny\n"},
		{"", "x\n", "x\n"},
	}
	for _, tc := range tests {
		if got := MatchLineEndings(tc.orig, tc.upd); got != tc.want {
			t.Errorf("MatchLineEndings(%q, %q) = %q, want %q", tc.orig, tc.upd, got, tc.want)
		}
	}
}

func TestApply_NonBlockPathUsesLineRange(t *testing.T) {
	input := "--- a/notes.txt\n+++ b/notes.txt\n@@ -1,3 +1,3 @@\n .button {\n-  color: red;\n+  color: blue;\n   padding: 4px;\n"
	res, err := NewApplier(block.DefaultRegistry()).Apply(Parse(input)[0], siteCSS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reconciled != 0 || len(res.Fallbacks) != 0 {
		t.Errorf("reconciled=%d fallbacks=%v", res.Reconciled, res.Fallbacks)
	}
}
