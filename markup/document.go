// Package markup holds the structured form of a study section: a tree of
// headings, paragraphs and lists whose inline content is plain text and
// atomic scripture references. It parses the constrained HTML dialect stored
// for each section and serializes trees back to it.
package markup

import (
	"fmt"
	"strings"
)

// BlockKind identifies a block node variant.
type BlockKind int

const (
	BlockHeading BlockKind = iota + 1
	BlockParagraph
	BlockList
	BlockListItem
)

func (k BlockKind) String() string {
	switch k {
	case BlockHeading:
		return "heading"
	case BlockParagraph:
		return "paragraph"
	case BlockList:
		return "list"
	case BlockListItem:
		return "list item"
	}
	return fmt.Sprintf("block(%d)", int(k))
}

// Block is a node of the block tree.
type Block interface {
	Kind() BlockKind
}

// Inline is a node inside a heading, paragraph or list item.
type Inline interface {
	isInline()
}

// Heading is an h1..h6 block.
type Heading struct {
	Level   int
	Inlines []Inline
}

// Paragraph is a p block.
type Paragraph struct {
	Inlines []Inline
}

// List is a ul (Ordered=false) or ol container. It holds list items only.
type List struct {
	Ordered bool
	Items   []*ListItem
}

// ListItem is an li block. Nested lists follow its inline content.
type ListItem struct {
	Inlines []Inline
	Lists   []*List
}

func (*Heading) Kind() BlockKind   { return BlockHeading }
func (*Paragraph) Kind() BlockKind { return BlockParagraph }
func (*List) Kind() BlockKind      { return BlockList }
func (*ListItem) Kind() BlockKind  { return BlockListItem }

// TextRun is a run of plain text.
type TextRun struct {
	Text string
}

// VerseReference is an atomic scripture citation. Reference is the canonical
// reference attribute; Label is the text shown for it, which normally equals
// Reference but is kept separately because generated markup does not always
// agree with its own attribute.
type VerseReference struct {
	Reference string
	Label     string
}

func (*TextRun) isInline()        {}
func (*VerseReference) isInline() {}

// Valid reports whether the reference attribute is present.
func (v *VerseReference) Valid() bool {
	return v != nil && strings.TrimSpace(v.Reference) != ""
}

// DisplayLabel is the visible text of the node.
func (v *VerseReference) DisplayLabel() string {
	if v.Label != "" {
		return v.Label
	}
	return v.Reference
}

// SetReference replaces the reference attribute. The label is left alone.
func (v *VerseReference) SetReference(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return &StructureError{Op: "set reference", Reason: "verse reference must not be empty"}
	}
	v.Reference = ref
	return nil
}

// StructureError reports a tree mutation that would break the node grammar.
type StructureError struct {
	Op     string
	Reason string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("markup: invalid %s: %s", e.Op, e.Reason)
}

// Document is the root of a section tree. The zero value is an empty document.
type Document struct {
	Blocks []Block
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{}
}

// AppendBlock appends a top-level block. List items can only live in lists.
func (d *Document) AppendBlock(b Block) error {
	if err := checkBlock("append block", b); err != nil {
		return err
	}
	if _, ok := b.(*ListItem); ok {
		return &StructureError{Op: "append block", Reason: "list item outside of a list"}
	}
	d.Blocks = append(d.Blocks, b)
	return nil
}

// AppendChild nests child under parent. The only nestings allowed are list
// items in lists and lists in list items.
func AppendChild(parent, child Block) error {
	if err := checkBlock("append child", parent); err != nil {
		return err
	}
	if err := checkBlock("append child", child); err != nil {
		return err
	}
	switch p := parent.(type) {
	case *List:
		item, ok := child.(*ListItem)
		if !ok {
			return &StructureError{Op: "append child", Reason: fmt.Sprintf("%s inside a list", child.Kind())}
		}
		p.Items = append(p.Items, item)
		return nil
	case *ListItem:
		list, ok := child.(*List)
		if !ok {
			return &StructureError{Op: "append child", Reason: fmt.Sprintf("%s inside a list item", child.Kind())}
		}
		p.Lists = append(p.Lists, list)
		return nil
	}
	return &StructureError{Op: "append child", Reason: fmt.Sprintf("%s inside a %s", child.Kind(), parent.Kind())}
}

// AppendInline appends inline content to a heading, paragraph or list item.
// Empty text runs are dropped and adjacent text runs are merged, so every
// tree has a single canonical shape.
func AppendInline(b Block, in Inline) error {
	if err := checkBlock("append inline", b); err != nil {
		return err
	}
	switch v := in.(type) {
	case nil:
		return &StructureError{Op: "append inline", Reason: "nil inline"}
	case *TextRun:
		if v == nil {
			return &StructureError{Op: "append inline", Reason: "nil inline"}
		}
	case *VerseReference:
		if !v.Valid() {
			return &StructureError{Op: "append inline", Reason: "verse reference must not be empty"}
		}
	}
	slot := inlineSlot(b)
	if slot == nil {
		return &StructureError{Op: "append inline", Reason: fmt.Sprintf("%s cannot hold inline content", b.Kind())}
	}
	*slot = appendInline(*slot, in, true)
	return nil
}

func checkBlock(op string, b Block) error {
	switch v := b.(type) {
	case nil:
		return &StructureError{Op: op, Reason: "nil block"}
	case *Heading:
		if v == nil {
			return &StructureError{Op: op, Reason: "nil block"}
		}
		if v.Level < 1 || v.Level > 6 {
			return &StructureError{Op: op, Reason: fmt.Sprintf("heading level %d outside 1..6", v.Level)}
		}
	case *Paragraph:
		if v == nil {
			return &StructureError{Op: op, Reason: "nil block"}
		}
	case *List:
		if v == nil {
			return &StructureError{Op: op, Reason: "nil block"}
		}
	case *ListItem:
		if v == nil {
			return &StructureError{Op: op, Reason: "nil block"}
		}
	}
	return nil
}

func inlineSlot(b Block) *[]Inline {
	switch v := b.(type) {
	case *Heading:
		return &v.Inlines
	case *Paragraph:
		return &v.Inlines
	case *ListItem:
		return &v.Inlines
	}
	return nil
}

// appendInline appends in to list. With merge set, a text run is folded into
// a preceding text run.
func appendInline(list []Inline, in Inline, merge bool) []Inline {
	if t, ok := in.(*TextRun); ok {
		if t.Text == "" {
			return list
		}
		if merge && len(list) > 0 {
			if prev, ok := list[len(list)-1].(*TextRun); ok {
				list[len(list)-1] = &TextRun{Text: prev.Text + t.Text}
				return list
			}
		}
	}
	return append(list, in)
}

// Inlines returns the inline content of b, or nil for lists.
func Inlines(b Block) []Inline {
	if slot := inlineSlot(b); slot != nil {
		return *slot
	}
	return nil
}

// Walk visits every block depth first, parents before children. Returning an
// error stops the walk.
func (d *Document) Walk(fn func(Block) error) error {
	for _, b := range d.Blocks {
		if err := walkBlock(b, fn); err != nil {
			return err
		}
	}
	return nil
}

func walkBlock(b Block, fn func(Block) error) error {
	if err := fn(b); err != nil {
		return err
	}
	switch v := b.(type) {
	case *List:
		for _, item := range v.Items {
			if err := walkBlock(item, fn); err != nil {
				return err
			}
		}
	case *ListItem:
		for _, l := range v.Lists {
			if err := walkBlock(l, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// VerseReferences returns every verse node in document order.
func (d *Document) VerseReferences() []*VerseReference {
	var out []*VerseReference
	_ = d.Walk(func(b Block) error {
		for _, in := range Inlines(b) {
			if v, ok := in.(*VerseReference); ok {
				out = append(out, v)
			}
		}
		return nil
	})
	return out
}

// ReplaceReference rewrites every verse node whose reference equals old and
// returns how many were changed.
func (d *Document) ReplaceReference(old, new string) (int, error) {
	if strings.TrimSpace(new) == "" {
		return 0, &StructureError{Op: "replace reference", Reason: "verse reference must not be empty"}
	}
	n := 0
	for _, v := range d.VerseReferences() {
		if v.Reference == old {
			v.Reference = new
			n++
		}
	}
	return n, nil
}

// PlainText flattens the document to its visible text, one line per block.
func (d *Document) PlainText() string {
	var lines []string
	_ = d.Walk(func(b Block) error {
		if _, ok := b.(*List); ok {
			return nil
		}
		var sb strings.Builder
		for _, in := range Inlines(b) {
			switch v := in.(type) {
			case *TextRun:
				sb.WriteString(v.Text)
			case *VerseReference:
				sb.WriteString(v.DisplayLabel())
			}
		}
		lines = append(lines, sb.String())
		return nil
	})
	return strings.Join(lines, "\n")
}

// Equal reports whether two documents have the same structure, text and
// verse attributes.
func Equal(a, b *Document) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Blocks) != len(b.Blocks) {
		return false
	}
	for i := range a.Blocks {
		if !blockEqual(a.Blocks[i], b.Blocks[i]) {
			return false
		}
	}
	return true
}

func blockEqual(a, b Block) bool {
	switch x := a.(type) {
	case *Heading:
		y, ok := b.(*Heading)
		return ok && x.Level == y.Level && inlinesEqual(x.Inlines, y.Inlines)
	case *Paragraph:
		y, ok := b.(*Paragraph)
		return ok && inlinesEqual(x.Inlines, y.Inlines)
	case *List:
		y, ok := b.(*List)
		if !ok || x.Ordered != y.Ordered || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if !blockEqual(x.Items[i], y.Items[i]) {
				return false
			}
		}
		return true
	case *ListItem:
		y, ok := b.(*ListItem)
		if !ok || !inlinesEqual(x.Inlines, y.Inlines) || len(x.Lists) != len(y.Lists) {
			return false
		}
		for i := range x.Lists {
			if !blockEqual(x.Lists[i], y.Lists[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func inlinesEqual(a, b []Inline) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		switch x := a[i].(type) {
		case *TextRun:
			y, ok := b[i].(*TextRun)
			if !ok || x.Text != y.Text {
				return false
			}
		case *VerseReference:
			y, ok := b[i].(*VerseReference)
			if !ok || x.Reference != y.Reference || x.Label != y.Label {
				return false
			}
		default:
			return false
		}
	}
	return true
}
