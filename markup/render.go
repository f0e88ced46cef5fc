package markup

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/Boniqx/scripture-path/scripture"
)

// PassageURL links a reference to its passage on Bible Gateway.
func PassageURL(ref string) string {
	return "https://www.biblegateway.com/passage/?search=" + url.QueryEscape(ref) + "&version=KJV"
}

// Render writes d as display HTML for read-only pages. Verse nodes become
// linked spans; invalid ones become an inert marker.
func Render(d *Document) string {
	if d == nil {
		return ""
	}
	var sb strings.Builder
	for i, b := range d.Blocks {
		if i > 0 {
			sb.WriteString("\n")
		}
		renderBlock(&sb, b)
	}
	return sb.String()
}

func renderBlock(sb *strings.Builder, b Block) {
	switch v := b.(type) {
	case *Heading:
		tag := "h" + strconv.Itoa(v.Level)
		sb.WriteString("<" + tag + ">")
		renderInlines(sb, v.Inlines)
		sb.WriteString("</" + tag + ">")
	case *Paragraph:
		sb.WriteString("<p>")
		renderInlines(sb, v.Inlines)
		sb.WriteString("</p>")
	case *List:
		tag := "ul"
		if v.Ordered {
			tag = "ol"
		}
		sb.WriteString("<" + tag + ">")
		for _, item := range v.Items {
			renderBlock(sb, item)
		}
		sb.WriteString("</" + tag + ">")
	case *ListItem:
		sb.WriteString("<li>")
		renderInlines(sb, v.Inlines)
		for _, l := range v.Lists {
			renderBlock(sb, l)
		}
		sb.WriteString("</li>")
	}
}

func renderInlines(sb *strings.Builder, inlines []Inline) {
	for _, in := range inlines {
		switch v := in.(type) {
		case *TextRun:
			sb.WriteString(html.EscapeString(v.Text))
		case *VerseReference:
			if !v.Valid() {
				sb.WriteString(`<span class="` + ClassMissingVerse + `">` + invalidVerseDisplay + `</span>`)
				continue
			}
			sb.WriteString(`<span class="bible-verse" data-reference="`)
			sb.WriteString(html.EscapeString(v.Reference))
			sb.WriteString(`"><a href="`)
			sb.WriteString(html.EscapeString(PassageURL(v.Reference)))
			sb.WriteString(`" target="_blank" rel="noopener noreferrer">`)
			sb.WriteString(html.EscapeString(v.DisplayLabel()))
			sb.WriteString("</a></span>")
		}
	}
}

// AutoLink wraps scripture references found in plain text runs into verse
// nodes. Existing verse nodes are left alone. It returns how many references
// were linked.
func AutoLink(d *Document) int {
	if d == nil {
		return 0
	}
	n := 0
	_ = d.Walk(func(b Block) error {
		slot := inlineSlot(b)
		if slot == nil {
			return nil
		}
		var out []Inline
		prevDegraded := false
		for _, in := range *slot {
			t, ok := in.(*TextRun)
			if !ok {
				out = append(out, in)
				prevDegraded = false
				continue
			}
			// Degraded verse runs stay separate from their neighbours.
			degraded := isDegradedVerse(t.Text)
			merge := !degraded && !prevDegraded
			tags := verseTagPattern.FindAllStringIndex(t.Text, -1)
			last := 0
			for _, m := range scripture.Scan(t.Text) {
				if insideSpan(m.Start, m.End, tags) {
					continue
				}
				out = appendInline(out, &TextRun{Text: t.Text[last:m.Start]}, merge)
				out = append(out, &VerseReference{Reference: m.Reference, Label: t.Text[m.Start:m.End]})
				last = m.End
				merge = true
				n++
			}
			out = appendInline(out, &TextRun{Text: t.Text[last:]}, merge)
			prevDegraded = degraded
		}
		*slot = out
		return nil
	})
	return n
}

// verseTagPattern finds literal verse start tags left in text by degraded
// spans. References inside them are attribute text, not prose.
var verseTagPattern = regexp.MustCompile(`(?i)<(?:` + TagVerse + `|` + TagVerseShort + `)\b[^>]*>?`)

func insideSpan(start, end int, spans [][]int) bool {
	for _, sp := range spans {
		if start < sp[1] && end > sp[0] {
			return true
		}
	}
	return false
}

func isDegradedVerse(s string) bool {
	return strings.HasPrefix(s, "<"+TagVerse) || strings.HasPrefix(s, "<"+TagVerseShort)
}
