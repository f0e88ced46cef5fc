package markup

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Tag and class names of the stored dialect. Both verse tag spellings parse;
// TagVerse is what Serialize writes and what generation prompts ask for.
const (
	TagVerse            = "bible-verse"
	TagVerseShort       = "verse"
	AttrReference       = "reference"
	ClassMissingVerse   = "verse-reference-missing"
	invalidVerseDisplay = "Invalid Verse"
)

// WarningKind classifies a recoverable problem found while parsing.
type WarningKind string

const (
	// WarnVerseAttributeMissing: a verse node without a reference attribute.
	// The node is kept and rendered as an inert error marker.
	WarnVerseAttributeMissing WarningKind = "verse_attribute_missing"
	// WarnUnclosedVerse: a verse tag that never closed. Its raw text is kept
	// as a plain text run.
	WarnUnclosedVerse WarningKind = "unclosed_verse"
)

// Warning describes a malformed span that the parser recovered from.
type Warning struct {
	Kind WarningKind
	// Offset is the byte offset of the offending tag in the input.
	Offset      int
	Near        string
	Description string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s at %d near %q: %s", w.Kind, w.Offset, w.Near, w.Description)
}

// Parse builds a document from markup. It never fails: unknown tags are
// transparent and malformed verse tags degrade to text.
func Parse(s string) *Document {
	doc, _ := ParseWithWarnings(s)
	return doc
}

// ParseWithWarnings is Parse that also reports what it had to repair.
func ParseWithWarnings(s string) (*Document, []Warning) {
	p := &parser{
		z:   html.NewTokenizer(strings.NewReader(s)),
		doc: NewDocument(),
	}
	p.run()
	return p.doc, p.warnings
}

// Normalize reparses markup and serializes it in canonical form.
func Normalize(s string) string {
	return Serialize(Parse(s))
}

type token struct {
	tt     html.TokenType
	tok    html.Token
	raw    string
	offset int
}

type parser struct {
	z        *html.Tokenizer
	doc      *Document
	pos      int
	pending  *token
	warnings []Warning

	// stack holds the open *List and *ListItem frames, innermost last.
	stack []Block
	// cur receives inline content: a root *Heading or *Paragraph, or the
	// innermost *ListItem.
	cur Block
	// afterDegraded keeps the next text run from merging into a degraded one.
	afterDegraded bool
}

func (p *parser) next() (token, bool) {
	if p.pending != nil {
		t := *p.pending
		p.pending = nil
		return t, true
	}
	tt := p.z.Next()
	if tt == html.ErrorToken {
		return token{}, false
	}
	raw := string(p.z.Raw())
	t := token{tt: tt, tok: p.z.Token(), raw: raw, offset: p.pos}
	p.pos += len(raw)
	return t, true
}

func (p *parser) run() {
	for {
		t, ok := p.next()
		if !ok {
			return
		}
		switch t.tt {
		case html.TextToken:
			p.text(t.tok.Data)
		case html.StartTagToken, html.SelfClosingTagToken:
			p.startTag(t)
		case html.EndTagToken:
			p.endTag(t.tok.Data)
		}
	}
}

func (p *parser) text(s string) {
	if p.cur == nil {
		if strings.TrimSpace(s) == "" {
			return
		}
		p.ensureInlineTarget()
	}
	p.appendInline(&TextRun{Text: s})
}

func (p *parser) appendInline(in Inline) {
	slot := inlineSlot(p.cur)
	*slot = appendInline(*slot, in, !p.afterDegraded)
	p.afterDegraded = false
}

// ensureInlineTarget opens an implicit block for stray inline content.
func (p *parser) ensureInlineTarget() {
	if p.cur != nil {
		return
	}
	switch top := p.top().(type) {
	case *ListItem:
		p.cur = top
	case *List:
		item := &ListItem{}
		top.Items = append(top.Items, item)
		p.stack = append(p.stack, item)
		p.cur = item
	default:
		para := &Paragraph{}
		p.doc.Blocks = append(p.doc.Blocks, para)
		p.cur = para
	}
}

func (p *parser) top() Block {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

func (p *parser) startTag(t token) {
	name := t.tok.Data
	if level := headingLevel(name); level > 0 {
		if len(p.stack) > 0 {
			return
		}
		h := &Heading{Level: level}
		p.doc.Blocks = append(p.doc.Blocks, h)
		p.cur = h
		return
	}
	switch name {
	case "p":
		if len(p.stack) > 0 {
			return
		}
		para := &Paragraph{}
		p.doc.Blocks = append(p.doc.Blocks, para)
		p.cur = para
	case "ul", "ol":
		p.openList(name == "ol")
	case "li":
		p.openItem()
	case TagVerse, TagVerseShort:
		p.verse(t, false)
	case "span":
		if hasClass(t.tok, ClassMissingVerse) {
			p.verse(t, true)
		}
	case "br":
		if p.cur != nil {
			p.appendInline(&TextRun{Text: "\n"})
		}
	}
}

func (p *parser) openList(ordered bool) {
	l := &List{Ordered: ordered}
	switch top := p.top().(type) {
	case *ListItem:
		top.Lists = append(top.Lists, l)
	case *List:
		item := &ListItem{Lists: []*List{l}}
		top.Items = append(top.Items, item)
		p.stack = append(p.stack, item)
	default:
		p.doc.Blocks = append(p.doc.Blocks, l)
	}
	p.stack = append(p.stack, l)
	p.cur = nil
}

func (p *parser) openItem() {
	// An li inside an open li closes it, as in HTML.
	if _, ok := p.top().(*ListItem); ok {
		p.stack = p.stack[:len(p.stack)-1]
	}
	list, ok := p.top().(*List)
	if !ok {
		list = &List{}
		p.doc.Blocks = append(p.doc.Blocks, list)
		p.stack = append(p.stack, list)
	}
	item := &ListItem{}
	list.Items = append(list.Items, item)
	p.stack = append(p.stack, item)
	p.cur = item
}

func (p *parser) endTag(name string) {
	if headingLevel(name) > 0 || name == "p" {
		if len(p.stack) == 0 {
			p.cur = nil
		}
		return
	}
	switch name {
	case "li":
		if p.popUntil(BlockListItem) {
			p.cur = nil
		}
	case "ul", "ol":
		if p.popUntil(BlockList) {
			p.cur = nil
			if item, ok := p.top().(*ListItem); ok {
				p.cur = item
			}
		}
	}
}

// popUntil pops frames up to and including the innermost one of kind k. It
// reports false, leaving the stack alone, when no such frame is open.
func (p *parser) popUntil(k BlockKind) bool {
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].Kind() == k {
			p.stack = p.stack[:i]
			return true
		}
	}
	return false
}

// verse consumes a verse element up to its closing tag. Inline formatting
// inside it is dropped. A structural tag or the end of input before the
// closing tag degrades the whole span to text.
func (p *parser) verse(start token, missingMarker bool) {
	ref := ""
	if !missingMarker {
		ref, _ = attr(start.tok, AttrReference)
	}
	if start.tt == html.SelfClosingTagToken {
		p.emitVerse(start, ref, "")
		return
	}

	var label strings.Builder
	for {
		t, ok := p.next()
		if !ok {
			p.degradeVerse(start, label.String())
			return
		}
		name := t.tok.Data
		switch t.tt {
		case html.TextToken:
			label.WriteString(t.tok.Data)
		case html.EndTagToken:
			if closesVerse(name, missingMarker) {
				p.emitVerse(start, ref, label.String())
				return
			}
			if isStructural(name) {
				p.pending = &t
				p.degradeVerse(start, label.String())
				return
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			if isStructural(name) || name == TagVerse || name == TagVerseShort {
				p.pending = &t
				p.degradeVerse(start, label.String())
				return
			}
		}
	}
}

func (p *parser) emitVerse(start token, ref, label string) {
	if strings.TrimSpace(ref) == "" {
		ref = ""
		p.warnings = append(p.warnings, Warning{
			Kind:        WarnVerseAttributeMissing,
			Offset:      start.offset,
			Near:        start.raw,
			Description: "verse reference has no reference attribute",
		})
	}
	p.ensureInlineTarget()
	p.appendInline(&VerseReference{Reference: ref, Label: label})
}

func (p *parser) degradeVerse(start token, text string) {
	p.warnings = append(p.warnings, Warning{
		Kind:        WarnUnclosedVerse,
		Offset:      start.offset,
		Near:        start.raw,
		Description: "verse tag is not closed; kept as text",
	})
	p.ensureInlineTarget()
	slot := inlineSlot(p.cur)
	*slot = appendInline(*slot, &TextRun{Text: start.raw + text}, false)
	p.afterDegraded = true
}

func closesVerse(name string, missingMarker bool) bool {
	if missingMarker {
		return name == "span"
	}
	return name == TagVerse || name == TagVerseShort
}

func isStructural(name string) bool {
	switch name {
	case "p", "ul", "ol", "li":
		return true
	}
	return headingLevel(name) > 0
}

func headingLevel(name string) int {
	if len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6' {
		return int(name[1] - '0')
	}
	return 0
}

func attr(t html.Token, key string) (string, bool) {
	for _, a := range t.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(t html.Token, class string) bool {
	v, ok := attr(t, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}
