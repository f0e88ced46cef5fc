package markup

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Serialize writes d in the canonical stored dialect. Parse(Serialize(d)) is
// structurally equal to d for any tree built through the Append functions.
func Serialize(d *Document) string {
	if d == nil {
		return ""
	}
	var sb strings.Builder
	for i, b := range d.Blocks {
		if i > 0 {
			sb.WriteString("\n")
		}
		writeBlock(&sb, b)
	}
	return sb.String()
}

func writeBlock(sb *strings.Builder, b Block) {
	switch v := b.(type) {
	case *Heading:
		tag := "h" + strconv.Itoa(v.Level)
		sb.WriteString("<" + tag + ">")
		writeInlines(sb, v.Inlines)
		sb.WriteString("</" + tag + ">")
	case *Paragraph:
		sb.WriteString("<p>")
		writeInlines(sb, v.Inlines)
		sb.WriteString("</p>")
	case *List:
		tag := "ul"
		if v.Ordered {
			tag = "ol"
		}
		sb.WriteString("<" + tag + ">\n")
		for _, item := range v.Items {
			writeBlock(sb, item)
			sb.WriteString("\n")
		}
		sb.WriteString("</" + tag + ">")
	case *ListItem:
		sb.WriteString("<li>")
		writeInlines(sb, v.Inlines)
		for _, l := range v.Lists {
			writeBlock(sb, l)
		}
		sb.WriteString("</li>")
	}
}

func writeInlines(sb *strings.Builder, inlines []Inline) {
	for _, in := range inlines {
		switch v := in.(type) {
		case *TextRun:
			sb.WriteString(html.EscapeString(v.Text))
		case *VerseReference:
			if !v.Valid() {
				sb.WriteString(`<span class="` + ClassMissingVerse + `">`)
				sb.WriteString(html.EscapeString(v.Label))
				sb.WriteString("</span>")
				continue
			}
			sb.WriteString("<" + TagVerse + " " + AttrReference + `="`)
			sb.WriteString(html.EscapeString(v.Reference))
			sb.WriteString(`">`)
			sb.WriteString(html.EscapeString(v.Label))
			sb.WriteString("</" + TagVerse + ">")
		}
	}
}
