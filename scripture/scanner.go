// Package scripture finds Bible references in free text and reduces them to a
// canonical "Book chapter:verse-verse" form.
package scripture

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Match is one reference found by Scan. Start and End are byte offsets into
// the scanned text.
type Match struct {
	Start     int
	End       int
	Reference string
}

// Submatch groups of referencePattern.
const (
	grpOrdinal = 1 + iota
	grpBook
	grpChapter
	grpVerse
	grpRangeA
	grpRangeB
)

var referencePattern = buildPattern()

func buildPattern() *regexp.Regexp {
	tokens := bookTokens()
	// Longest first so "Song of Solomon" wins over "Song" and "John" over "Jn".
	sort.Slice(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) > len(tokens[j])
		}
		return tokens[i] < tokens[j]
	})
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = regexp.QuoteMeta(t)
	}
	dash := `\s*[-–—]\s*`
	// Verses may carry a part letter ("16a"); it is matched but not kept.
	return regexp.MustCompile(
		`\b(?:(III|II|I|[123])\s?)?` +
			`(?i:(` + strings.Join(quoted, "|") + `))\.?\s+` +
			`(\d{1,3})(?::(\d{1,3})[abc]?)?` +
			`(?:` + dash + `(\d{1,3})(?::(\d{1,3}))?[abc]?)?\b`,
	)
}

// knownTokens holds book names and aliases exactly as they are written.
var knownTokens = func() map[string]bool {
	m := make(map[string]bool)
	for _, t := range bookTokens() {
		m[t] = true
	}
	return m
}()

// Scan returns every scripture reference in text, in order of appearance.
func Scan(text string) []Match {
	var out []Match
	for pos := 0; pos < len(text); {
		loc := referencePattern.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		for i := range loc {
			if loc[i] >= 0 {
				loc[i] += pos
			}
		}
		if m, ok := matchFromIndex(text, loc); ok {
			out = append(out, m)
			pos = loc[1]
			continue
		}
		// A rejected candidate such as "is 1" must not swallow the
		// "1 John" that follows it.
		pos = loc[2*grpBook+1]
	}
	return out
}

// Canonicalize normalizes a single reference such as "1 Cor 13:4–7" to
// "1 Corinthians 13:4-7". It reports false when ref is not one complete
// reference.
func Canonicalize(ref string) (string, bool) {
	trimmed := strings.TrimSpace(ref)
	loc := referencePattern.FindStringSubmatchIndex(trimmed)
	if loc == nil || loc[0] != 0 || loc[1] != len(trimmed) {
		return "", false
	}
	m, ok := matchFromIndex(trimmed, loc)
	if !ok || m.Start != 0 {
		return "", false
	}
	return m.Reference, true
}

func matchFromIndex(text string, loc []int) (Match, bool) {
	group := func(n int) string {
		if loc[2*n] < 0 {
			return ""
		}
		return text[loc[2*n]:loc[2*n+1]]
	}

	start := loc[0]
	ordinal := parseOrdinal(group(grpOrdinal))
	book, ok := LookupBook(ordinal, group(grpBook))
	if !ok && ordinal > 0 {
		// "I Romans 8" or "3 Acts 2": the leading token was not part of the name.
		book, ok = LookupBook(0, group(grpBook))
		start = loc[2*grpBook]
	}
	if !ok {
		return Match{}, false
	}
	// Other casings ("john 3:16") count only for full book names with a
	// verse, so prose such as "is 5" or "numbers 3" stays text.
	if token := group(grpBook); !knownTokens[token] {
		if !strings.EqualFold(token, book.Base) || group(grpVerse) == "" {
			return Match{}, false
		}
	}

	chapter, err := strconv.Atoi(group(grpChapter))
	if err != nil || chapter == 0 {
		return Match{}, false
	}

	var sb strings.Builder
	sb.WriteString(book.Name)
	sb.WriteString(" ")
	sb.WriteString(strconv.Itoa(chapter))
	if v := group(grpVerse); v != "" {
		sb.WriteString(":")
		sb.WriteString(trimZeros(v))
	}
	if a := group(grpRangeA); a != "" {
		sb.WriteString("-")
		sb.WriteString(trimZeros(a))
		if b := group(grpRangeB); b != "" {
			sb.WriteString(":")
			sb.WriteString(trimZeros(b))
		}
	}

	return Match{Start: start, End: loc[1], Reference: sb.String()}, true
}

func parseOrdinal(s string) int {
	switch s {
	case "1", "I":
		return 1
	case "2", "II":
		return 2
	case "3", "III":
		return 3
	}
	return 0
}

func trimZeros(s string) string {
	n, err := strconv.Atoi(s)
	if err != nil {
		return s
	}
	return strconv.Itoa(n)
}
