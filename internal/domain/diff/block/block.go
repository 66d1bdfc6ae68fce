// Package block models rule-block text formats (selector plus property list) so
// diffs against them can be reconciled per rule instead of per line.
package block

import (
	"path/filepath"
	"strings"
)

// Property is one name/value declaration inside a block.
type Property struct {
	Name  string
	Value string
	// Raw is the original source line. Empty for synthesized properties.
	Raw string
}

// Item is a line inside a block body: a property or an opaque raw line such as a comment.
type Item struct {
	Prop   Property
	IsProp bool
	Raw    string
	// OnClose is set when the item shares its line with the closing brace.
	OnClose bool
}

// Block is one rule: selector, body items and the line range it occupies.
type Block struct {
	Selector string
	// Start and End are 0-based line indexes of the opening and closing lines, inclusive.
	Start int
	End   int
	Items []Item
	// Nested is set when the block contains child blocks.
	Nested bool
	// Inline is set for single-line rules.
	Inline bool
	Open   string
	// Close is the closing line. When the last item shares it, Close holds the
	// brace part at the opening indentation and the item carries OnClose.
	Close string
}

// Properties returns the property items in order.
func (b Block) Properties() []Property {
	var out []Property
	for _, it := range b.Items {
		if it.IsProp {
			out = append(out, it.Prop)
		}
	}
	return out
}

// Indent infers body indentation from existing property lines, defaulting to
// the opening line indentation plus two spaces.
func (b Block) Indent() string {
	for _, it := range b.Items {
		if it.IsProp && it.Prop.Raw != "" {
			return leadingSpace(it.Prop.Raw)
		}
	}
	return leadingSpace(b.Open) + "  "
}

// Contains reports whether 0-based line i falls inside the block.
func (b Block) Contains(i int) bool { return i >= b.Start && i <= b.End }

// Format parses and renders one block syntax.
type Format interface {
	Name() string
	// Blocks returns every rule block in lines, outer blocks before inner ones.
	Blocks(lines []string) []Block
	// Selector returns the selector opened on line.
	Selector(line string) (string, bool)
	// ParseProperty parses a declaration line.
	ParseProperty(line string) (Property, bool)
	// RenderProperty formats a declaration with the given indentation.
	RenderProperty(p Property, indent string) string
	// Render returns the lines of b.
	Render(b Block) []string
}

// Registry selects a Format by file extension.
type Registry struct {
	byExt map[string]Format
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Format)}
}

// DefaultRegistry knows the CSS-like formats.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(CSS{}, ".css", ".scss", ".less")
	return r
}

// Register binds f to the given extensions.
func (r *Registry) Register(f Format, exts ...string) {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = f
	}
}

// For returns the format for path, if any.
func (r *Registry) For(path string) (Format, bool) {
	if r == nil {
		return nil, false
	}
	f, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

func leadingSpace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}
