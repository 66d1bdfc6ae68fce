package diff

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/coderag/internal/domain"
	"github.com/kailas-cloud/coderag/internal/domain/diff/block"
)

// errNotBlockEdit means the hunk is not a pure property edit and goes to line-range replacement.
var errNotBlockEdit = errors.New("not a block edit")

// reconcile rewrites the whole rule a property-only hunk targets. It returns
// errNotBlockEdit when the hunk is out of scope and an ErrPartialApply error when
// the rule cannot be located or rebuilt.
func (a *Applier) reconcile(f block.Format, lines []string, h Hunk, offset int) (Edit, error) {
	first, last := -1, -1
	for i, ld := range h.LineDiffs {
		if ld.Type != LineContext {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return Edit{}, errNotBlockEdit
	}
	for _, ld := range h.LineDiffs[first : last+1] {
		if ld.Type == LineContext {
			if _, ok := f.Selector(ld.Content); ok || strings.Contains(ld.Content, "}") {
				return Edit{}, errNotBlockEdit
			}
			continue
		}
		if _, ok := f.ParseProperty(ld.Content); !ok {
			return Edit{}, errNotBlockEdit
		}
	}

	anchor := h.OldStart - 1 + offset
	for _, ld := range h.LineDiffs[:first] {
		if ld.Type != LineAdd {
			anchor++
		}
	}

	b, err := findBlock(f, lines, hunkSelector(f, h.LineDiffs[:first]), anchor)
	if err != nil {
		return Edit{}, err
	}
	if b.Nested {
		return Edit{}, fmt.Errorf("%w: rule %q has nested blocks", domain.ErrPartialApply, b.Selector)
	}

	items, err := rebuild(f, b, h.LineDiffs)
	if err != nil {
		return Edit{}, err
	}
	b.Items = items
	if err := checkOrder(f, b, h.LineDiffs, first, last); err != nil {
		return Edit{}, err
	}

	out := f.Render(b)
	if strings.HasSuffix(b.Open, "\r") {
		for i, l := range out {
			if !strings.HasSuffix(l, "\r") {
				out[i] = l + "\r"
			}
		}
	}
	return Edit{
		StartLine: b.Start + 1,
		OldLines:  b.End - b.Start + 1,
		NewLines:  out,
	}, nil
}

// hunkSelector returns the selector of the nearest rule opened in the leading context.
func hunkSelector(f block.Format, leading []LineDiff) string {
	for i := len(leading) - 1; i >= 0; i-- {
		ld := leading[i]
		if ld.Type == LineAdd {
			continue
		}
		if sel, ok := f.Selector(ld.Content); ok {
			return sel
		}
		if strings.Contains(ld.Content, "}") {
			return ""
		}
	}
	return ""
}

// findBlock picks the rule with selector closest to anchor, or the innermost
// rule around anchor when the hunk context names none.
func findBlock(f block.Format, lines []string, selector string, anchor int) (block.Block, error) {
	blocks := f.Blocks(lines)

	if selector != "" {
		best, bestDist := -1, 0
		for i, b := range blocks {
			if b.Selector != selector {
				continue
			}
			dist := abs(b.Start - anchor)
			if best < 0 || dist < bestDist {
				best, bestDist = i, dist
			}
		}
		if best < 0 {
			return block.Block{}, fmt.Errorf("%w: rule %q not found", domain.ErrPartialApply, selector)
		}
		return blocks[best], nil
	}

	for _, at := range []int{anchor, anchor - 1} {
		best := -1
		for i, b := range blocks {
			if !b.Contains(at) {
				continue
			}
			if best < 0 || b.End-b.Start < blocks[best].End-blocks[best].Start {
				best = i
			}
		}
		if best >= 0 {
			return blocks[best], nil
		}
	}
	return block.Block{}, fmt.Errorf("%w: no rule encloses line %d", domain.ErrPartialApply, anchor+1)
}

// rebuild merges the hunk changes into the rule properties. A removed line
// drops the declaration with the same name and value. When an added line has
// the name of a removed one it takes that declaration's place; other added
// lines are placed next to their hunk neighbours.
func rebuild(f block.Format, b block.Block, lds []LineDiff) ([]block.Item, error) {
	indent := b.Indent()

	type change struct {
		at   int
		prop block.Property
	}
	var removed, added []change
	for i, ld := range lds {
		p, ok := f.ParseProperty(ld.Content)
		if !ok {
			continue
		}
		switch ld.Type {
		case LineRemove:
			removed = append(removed, change{i, p})
		case LineAdd:
			p.Raw = indent + strings.TrimSpace(ld.Content)
			if b.Inline {
				p.Raw = ""
			}
			added = append(added, change{i, p})
		}
	}

	// gone maps an item index to the removal that drops it.
	gone := make(map[int]int, len(removed))
	for ri, r := range removed {
		j := -1
		for k, it := range b.Items {
			if _, taken := gone[k]; !taken && it.IsProp && sameProp(it.Prop, r.prop) {
				j = k
				break
			}
		}
		if j < 0 {
			return nil, fmt.Errorf("%w: property %q not in rule %q", domain.ErrPartialApply,
				r.prop.Name+": "+r.prop.Value, b.Selector)
		}
		gone[j] = ri
	}

	// replaces maps a removal to the added declaration taking its place.
	replaces := make(map[int]int)
	paired := make(map[int]bool)
	for ai, a := range added {
		for ri, r := range removed {
			if _, used := replaces[ri]; !used && r.prop.Name == a.prop.Name {
				replaces[ri] = ai
				paired[ai] = true
				break
			}
		}
	}

	items := make([]block.Item, 0, len(b.Items)+len(added))
	for k, it := range b.Items {
		ri, isGone := gone[k]
		if !isGone {
			items = append(items, it)
			continue
		}
		if ai, ok := replaces[ri]; ok {
			items = append(items, block.Item{Prop: added[ai].prop, IsProp: true, OnClose: it.OnClose})
		}
	}

	for ai, a := range added {
		if paired[ai] {
			continue
		}
		items = insertNear(f, items, lds, a.at, a.prop)
	}
	return items, nil
}

// checkOrder verifies that the hunk's new-side declarations around the change
// appear in the rebuilt rule in hunk order. Context declarations missing from
// the rule are ignored.
func checkOrder(f block.Format, b block.Block, lds []LineDiff, first, last int) error {
	from := 0
	for i := first - 1; i >= 0; i-- {
		if ld := lds[i]; ld.Type != LineAdd && opensOrCloses(f, ld.Content) {
			from = i + 1
			break
		}
	}
	to := len(lds)
	for i := last + 1; i < len(lds); i++ {
		if opensOrCloses(f, lds[i].Content) {
			to = i
			break
		}
	}

	props := b.Properties()
	pos := -1
	for _, ld := range lds[from:to] {
		if ld.Type == LineRemove {
			continue
		}
		want, ok := f.ParseProperty(ld.Content)
		if !ok {
			continue
		}
		next := -1
		for j := pos + 1; j < len(props); j++ {
			if sameProp(props[j], want) {
				next = j
				break
			}
		}
		if next >= 0 {
			pos = next
			continue
		}
		if ld.Type == LineAdd || propIndex(props, want) >= 0 {
			return fmt.Errorf("%w: rule %q does not keep the hunk order of %q", domain.ErrPartialApply,
				b.Selector, want.Name)
		}
	}
	return nil
}

func opensOrCloses(f block.Format, line string) bool {
	_, ok := f.Selector(line)
	return ok || strings.Contains(line, "}")
}

// insertNear places p after the closest preceding hunk property already in items,
// else before the closest following one, else at the end.
func insertNear(f block.Format, items []block.Item, lds []LineDiff, at int, p block.Property) []block.Item {
	item := block.Item{Prop: p, IsProp: true}

	for i := at - 1; i >= 0; i-- {
		if lds[i].Type == LineRemove {
			continue
		}
		if q, ok := f.ParseProperty(lds[i].Content); ok {
			if idx := itemIndex(items, q); idx >= 0 {
				return insertAt(items, idx+1, item)
			}
		}
	}
	for i := at + 1; i < len(lds); i++ {
		if lds[i].Type == LineRemove {
			continue
		}
		if q, ok := f.ParseProperty(lds[i].Content); ok {
			if idx := itemIndex(items, q); idx >= 0 {
				return insertAt(items, idx, item)
			}
		}
	}

	// Keep trailing comments and blank lines after the properties.
	idx := len(items)
	for idx > 0 && !items[idx-1].IsProp {
		idx--
	}
	if idx == 0 {
		idx = len(items)
	}
	return insertAt(items, idx, item)
}

func insertAt(items []block.Item, idx int, it block.Item) []block.Item {
	items = append(items, block.Item{})
	copy(items[idx+1:], items[idx:])
	items[idx] = it
	return items
}

func itemIndex(items []block.Item, p block.Property) int {
	for i, it := range items {
		if it.IsProp && sameProp(it.Prop, p) {
			return i
		}
	}
	return -1
}

func propIndex(props []block.Property, p block.Property) int {
	for i, q := range props {
		if sameProp(q, p) {
			return i
		}
	}
	return -1
}

// sameProp compares name and whitespace-normalized value.
func sameProp(a, b block.Property) bool {
	return a.Name == b.Name && strings.Join(strings.Fields(a.Value), " ") == strings.Join(strings.Fields(b.Value), " ")
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
