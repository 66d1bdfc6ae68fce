package block

import "testing"

const scss = `.card {
  color: red;
  &:hover {
    color: blue;
  }
}
.tag { margin: 0; padding: 1px; }
`

func TestCSS_ParseProperty(t *testing.T) {
	tests := []struct {
		line      string
		ok        bool
		name, val string
	}{
		{"  color: red;", true, "color", "red"},
		{"--main-color: #fff;", true, "--main-color", "#fff"},
		{"$base: 4px", true, "$base", "4px"},
		{"background: url(http://x/y.png);", true, "background", "url(http://x/y.png)"},
		{"a:hover {", false, "", ""},
		{"a:hover,", false, "", ""},
		{"@include mixin;", false, "", ""},
		{"// note: x", false, "", ""},
		{"}", false, "", ""},
		{"", false, "", ""},
	}
	for _, tc := range tests {
		p, ok := CSS{}.ParseProperty(tc.line)
		if ok != tc.ok {
			t.Errorf("ParseProperty(%q) ok = %v, want %v", tc.line, ok, tc.ok)
			continue
		}
		if ok && (p.Name != tc.name || p.Value != tc.val) {
			t.Errorf("ParseProperty(%q) = %q/%q", tc.line, p.Name, p.Value)
		}
	}
}

func TestCSS_Blocks(t *testing.T) {
	blocks := CSS{}.Blocks(splitLines(scss))
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(blocks))
	}

	card, hover, tag := blocks[0], blocks[1], blocks[2]
	if card.Selector != ".card" || card.Start != 0 || card.End != 5 || !card.Nested {
		t.Errorf("card = %+v", card)
	}
	if hover.Selector != "&:hover" || hover.Start != 2 || hover.End != 4 || hover.Nested {
		t.Errorf("hover = %+v", hover)
	}
	if len(hover.Properties()) != 1 || hover.Properties()[0].Value != "blue" {
		t.Errorf("hover properties = %+v", hover.Properties())
	}
	if !tag.Inline || len(tag.Properties()) != 2 {
		t.Errorf("tag = %+v", tag)
	}
}

func TestCSS_RenderKeepsRawLines(t *testing.T) {
	lines := []string{"a {", "    color: red;", "    /* keep */", "}"}
	b := CSS{}.Blocks(lines)[0]
	b.Items = append(b.Items, Item{Prop: Property{Name: "margin", Value: "0"}, IsProp: true})

	got := CSS{}.Render(b)
	want := []string{"a {", "    color: red;", "    /* keep */", "    margin: 0;", "}"}
	if len(got) != len(want) {
		t.Fatalf("Render() = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCSS_DeclarationOnCloseLine(t *testing.T) {
	lines := []string{"  a {", "    color: red;", "    margin: 0; }"}
	b := CSS{}.Blocks(lines)[0]
	if b.End != 2 || b.Close != "  }" {
		t.Fatalf("block = %+v", b)
	}
	props := b.Properties()
	if len(props) != 2 || props[1].Name != "margin" || !b.Items[1].OnClose {
		t.Fatalf("items = %+v", b.Items)
	}

	got := CSS{}.Render(b)
	if len(got) != 3 || got[2] != "    margin: 0; }" {
		t.Errorf("Render() = %q", got)
	}

	b.Items = append(b.Items, Item{Prop: Property{Name: "padding", Value: "1px"}, IsProp: true})
	got = CSS{}.Render(b)
	want := []string{"  a {", "    color: red;", "    margin: 0;", "    padding: 1px;", "  }"}
	if len(got) != len(want) {
		t.Fatalf("Render() = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCSS_RenderInline(t *testing.T) {
	b := CSS{}.Blocks([]string{"  .tag { margin: 0; padding: 1px; }"})[0]
	got := CSS{}.Render(b)
	if len(got) != 1 || got[0] != "  .tag { margin: 0; padding: 1px; }" {
		t.Errorf("Render() = %q", got)
	}
}

func TestBlock_Indent(t *testing.T) {
	b := Block{Open: "\t.x {"}
	if got := b.Indent(); got != "\t  " {
		t.Errorf("Indent() = %q", got)
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	for _, path := range []string{"a.css", "b/c.SCSS", "d.less"} {
		if _, ok := r.For(path); !ok {
			t.Errorf("For(%q) not found", path)
		}
	}
	if _, ok := r.For("main.go"); ok {
		t.Error("For(main.go) should not match")
	}

	var nilRegistry *Registry
	if _, ok := nilRegistry.For("a.css"); ok {
		t.Error("nil registry should match nothing")
	}
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
