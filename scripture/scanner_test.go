package scripture

import "testing"

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"John 3:16", "John 3:16", true},
		{"Jn 3:16", "John 3:16", true},
		{"1 Cor 13:4–7", "1 Corinthians 13:4-7", true},
		{"1Cor 13:4", "1 Corinthians 13:4", true},
		{"I Corinthians 13", "1 Corinthians 13", true},
		{"II Tim. 3:16", "2 Timothy 3:16", true},
		{"Gen. 1:1-2:3", "Genesis 1:1-2:3", true},
		{"Ps 23", "Psalms 23", true},
		{"Psalm 119:105", "Psalms 119:105", true},
		{"Song of Songs 2:4", "Song of Solomon 2:4", true},
		{"3 John 4", "3 John 4", true},
		{"  Rev 21:4  ", "Revelation 21:4", true},
		{"Matt 05:03", "Matthew 5:3", true},
		{"John", "", false},
		{"Hezekiah 1:1", "", false},
		{"John 3:16 and more", "", false},
		{"John 0", "", false},
	}
	for _, c := range cases {
		got, ok := Canonicalize(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("Canonicalize(%q) = %q, %v; expected %q, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestScan(t *testing.T) {
	text := "Read Rom 8:28, then 1 Jn 4:8 and Heb 11. Skip John alone."
	matches := Scan(text)
	want := []string{"Romans 8:28", "1 John 4:8", "Hebrews 11"}
	if len(matches) != len(want) {
		t.Fatalf("expected %d matches, got %d: %+v", len(want), len(matches), matches)
	}
	for i, m := range matches {
		if m.Reference != want[i] {
			t.Errorf("match %d: expected %q, got %q", i, want[i], m.Reference)
		}
	}
	if got := text[matches[1].Start:matches[1].End]; got != "1 Jn 4:8" {
		t.Fatalf("unexpected span %q", got)
	}
}

func TestScanOrdinalNotPartOfName(t *testing.T) {
	matches := Scan("chapter 2 Romans 8")
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %+v", matches)
	}
	m := matches[0]
	if m.Reference != "Romans 8" {
		t.Fatalf("unexpected reference %q", m.Reference)
	}
	if got := "chapter 2 Romans 8"[m.Start:m.End]; got != "Romans 8" {
		t.Fatalf("unexpected span %q", got)
	}
}

func TestLookupBook(t *testing.T) {
	b, ok := LookupBook(2, "Kgs.")
	if !ok || b.Name != "2 Kings" {
		t.Fatalf("expected 2 Kings, got %+v %v", b, ok)
	}
	if _, ok := LookupBook(4, "John"); ok {
		t.Fatalf("expected no 4 John")
	}
	if len(Books) != 66 {
		t.Fatalf("expected 66 books, got %d", len(Books))
	}
}

func TestScanCasingAndVerseParts(t *testing.T) {
	cases := []struct {
		text string
		refs []string
		span string
	}{
		{"memorize john 3:16 today", []string{"John 3:16"}, "john 3:16"},
		{"see ROMANS 8:28", []string{"Romans 8:28"}, "ROMANS 8:28"},
		{"John 3:16a is the core", []string{"John 3:16"}, "John 3:16a"},
		{"Gen 1:1-2a", []string{"Genesis 1:1-2"}, "Gen 1:1-2a"},
		{"the numbers 3 and 4", nil, ""},
		{"i am 1 John 4:8 in practice", []string{"1 John 4:8"}, "1 John 4:8"},
		{"read jn 3:16", nil, ""},
	}
	for _, c := range cases {
		matches := Scan(c.text)
		if len(matches) != len(c.refs) {
			t.Fatalf("%q: expected %d matches, got %+v", c.text, len(c.refs), matches)
		}
		for i, m := range matches {
			if m.Reference != c.refs[i] {
				t.Fatalf("%q: expected %q, got %q", c.text, c.refs[i], m.Reference)
			}
		}
		if len(matches) > 0 {
			if got := c.text[matches[0].Start:matches[0].End]; got != c.span {
				t.Fatalf("%q: expected span %q, got %q", c.text, c.span, got)
			}
		}
	}
}
