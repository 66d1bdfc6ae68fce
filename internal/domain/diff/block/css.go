package block

import (
	"regexp"
	"strings"
)

var cssPropertyNameRe = regexp.MustCompile(`^(--|\$)?[A-Za-z_][-A-Za-z0-9_]*$`)

// CSS handles CSS, SCSS and Less rule blocks.
type CSS struct{}

// Name returns the format name.
func (CSS) Name() string { return "css" }

// Selector returns the text before "{" when line opens a block.
func (CSS) Selector(line string) (string, bool) {
	i := strings.IndexByte(line, '{')
	if i < 0 {
		return "", false
	}
	sel := strings.TrimSpace(line[:i])
	if sel == "" || strings.HasPrefix(sel, "//") || strings.HasPrefix(sel, "/*") {
		return "", false
	}
	return normalizeSelector(sel), true
}

// ParseProperty parses "name: value;" declarations.
func (CSS) ParseProperty(line string) (Property, bool) {
	s := strings.TrimSpace(line)
	if s == "" || strings.ContainsAny(s, "{}") ||
		strings.HasPrefix(s, "@") || strings.HasPrefix(s, "//") || strings.HasPrefix(s, "/*") {
		return Property{}, false
	}
	s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	i := strings.IndexByte(s, ':')
	if i <= 0 {
		return Property{}, false
	}
	name := strings.TrimSpace(s[:i])
	value := strings.TrimSpace(s[i+1:])
	if value == "" || strings.HasSuffix(value, ",") || !cssPropertyNameRe.MatchString(name) {
		return Property{}, false
	}
	return Property{Name: name, Value: value, Raw: line}, true
}

// RenderProperty formats "name: value;".
func (CSS) RenderProperty(p Property, indent string) string {
	return indent + p.Name + ": " + p.Value + ";"
}

// Blocks scans lines tracking brace depth. Braces inside comments or strings are not special-cased.
func (c CSS) Blocks(lines []string) []Block {
	var (
		out   []Block
		stack []int
	)
	for i, line := range lines {
		opens := strings.Count(line, "{")
		closes := strings.Count(line, "}")

		if opens == 1 && closes == 1 && strings.IndexByte(line, '{') < strings.IndexByte(line, '}') {
			if sel, ok := c.Selector(line); ok {
				b := c.inlineBlock(line, sel, i)
				if len(stack) > 0 {
					out[stack[len(stack)-1]].Nested = true
				}
				out = append(out, b)
				continue
			}
		}

		if opens > 0 {
			if sel, ok := c.Selector(line); ok && opens == 1 && closes == 0 {
				if len(stack) > 0 {
					out[stack[len(stack)-1]].Nested = true
				}
				out = append(out, Block{Selector: sel, Start: i, Open: line})
				stack = append(stack, len(out)-1)
				continue
			}
		}

		if len(stack) == 0 {
			continue
		}
		top := &out[stack[len(stack)-1]]

		if closes > 0 && opens == 0 {
			at := strings.IndexByte(line, '}')
			closeLine := line
			if before := line[:at]; strings.TrimSpace(before) != "" {
				it := c.item(before)
				it.OnClose = true
				top.Items = append(top.Items, it)
				closeLine = leadingSpace(top.Open) + line[at:]
			}
			for n := 0; n < closes && len(stack) > 0; n++ {
				b := &out[stack[len(stack)-1]]
				b.End = i
				b.Close = line
				if n == 0 {
					b.Close = closeLine
				}
				stack = stack[:len(stack)-1]
			}
			continue
		}
		if opens > 0 || closes > 0 {
			top.Nested = true
			continue
		}
		top.Items = append(top.Items, c.item(line))
	}

	// Unterminated blocks are dropped.
	valid := out[:0]
	for _, b := range out {
		if b.End >= b.Start && b.Close != "" {
			valid = append(valid, b)
		}
	}
	return valid
}

// Render returns the block lines, keeping raw text of untouched items.
func (c CSS) Render(b Block) []string {
	if b.Inline {
		decls := make([]string, 0, len(b.Items))
		for _, p := range b.Properties() {
			decls = append(decls, p.Name+": "+p.Value+";")
		}
		body := " "
		if len(decls) > 0 {
			body = " " + strings.Join(decls, " ") + " "
		}
		return []string{leadingSpace(b.Open) + b.Selector + " {" + body + "}"}
	}

	indent := b.Indent()
	out := make([]string, 0, len(b.Items)+2)
	out = append(out, b.Open)
	for i, it := range b.Items {
		var line string
		switch {
		case !it.IsProp:
			line = it.Raw
		case it.Prop.Raw != "":
			line = it.Prop.Raw
		default:
			line = c.RenderProperty(it.Prop, indent)
		}
		if it.OnClose {
			if i == len(b.Items)-1 {
				return append(out, line+strings.TrimLeft(b.Close, " \t"))
			}
			line = strings.TrimRight(line, " \t")
		}
		out = append(out, line)
	}
	return append(out, b.Close)
}

func (c CSS) item(line string) Item {
	if p, ok := c.ParseProperty(line); ok {
		return Item{Prop: p, IsProp: true, Raw: line}
	}
	return Item{Raw: line}
}

func (c CSS) inlineBlock(line, sel string, i int) Block {
	b := Block{Selector: sel, Start: i, End: i, Inline: true, Open: line, Close: line}
	inner := line[strings.IndexByte(line, '{')+1 : strings.IndexByte(line, '}')]
	for _, decl := range strings.Split(inner, ";") {
		if p, ok := c.ParseProperty(decl); ok {
			p.Raw = ""
			b.Items = append(b.Items, Item{Prop: p, IsProp: true})
		}
	}
	return b
}

func normalizeSelector(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
