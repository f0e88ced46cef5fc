package scripture

import "strings"

// Book is one canonical book of the Protestant canon.
type Book struct {
	Name    string   // canonical display name, e.g. "1 Corinthians"
	Number  int      // leading ordinal for numbered books, 0 otherwise
	Base    string   // name without the ordinal, e.g. "Corinthians"
	Aliases []string // abbreviations of Base
}

// Books lists the 66 books in canonical order.
var Books = []Book{
	{Name: "Genesis", Base: "Genesis", Aliases: []string{"Gen", "Ge", "Gn"}},
	{Name: "Exodus", Base: "Exodus", Aliases: []string{"Exod", "Exo", "Ex"}},
	{Name: "Leviticus", Base: "Leviticus", Aliases: []string{"Lev", "Lv"}},
	{Name: "Numbers", Base: "Numbers", Aliases: []string{"Num", "Nm", "Nu"}},
	{Name: "Deuteronomy", Base: "Deuteronomy", Aliases: []string{"Deut", "Dt"}},
	{Name: "Joshua", Base: "Joshua", Aliases: []string{"Josh", "Jos"}},
	{Name: "Judges", Base: "Judges", Aliases: []string{"Judg", "Jdg"}},
	{Name: "Ruth", Base: "Ruth", Aliases: []string{"Rth"}},
	{Name: "1 Samuel", Number: 1, Base: "Samuel", Aliases: []string{"Sam", "Sm"}},
	{Name: "2 Samuel", Number: 2, Base: "Samuel", Aliases: []string{"Sam", "Sm"}},
	{Name: "1 Kings", Number: 1, Base: "Kings", Aliases: []string{"Kgs", "Ki"}},
	{Name: "2 Kings", Number: 2, Base: "Kings", Aliases: []string{"Kgs", "Ki"}},
	{Name: "1 Chronicles", Number: 1, Base: "Chronicles", Aliases: []string{"Chron", "Chr"}},
	{Name: "2 Chronicles", Number: 2, Base: "Chronicles", Aliases: []string{"Chron", "Chr"}},
	{Name: "Ezra", Base: "Ezra", Aliases: []string{"Ezr"}},
	{Name: "Nehemiah", Base: "Nehemiah", Aliases: []string{"Neh"}},
	{Name: "Esther", Base: "Esther", Aliases: []string{"Esth", "Est"}},
	{Name: "Job", Base: "Job", Aliases: []string{"Jb"}},
	{Name: "Psalms", Base: "Psalms", Aliases: []string{"Psalm", "Pss", "Psa", "Ps"}},
	{Name: "Proverbs", Base: "Proverbs", Aliases: []string{"Prov", "Prv", "Pr"}},
	{Name: "Ecclesiastes", Base: "Ecclesiastes", Aliases: []string{"Eccles", "Eccl", "Ecc", "Qoh"}},
	{Name: "Song of Solomon", Base: "Song of Solomon", Aliases: []string{"Song of Songs", "Song", "Sos"}},
	{Name: "Isaiah", Base: "Isaiah", Aliases: []string{"Isa"}},
	{Name: "Jeremiah", Base: "Jeremiah", Aliases: []string{"Jer"}},
	{Name: "Lamentations", Base: "Lamentations", Aliases: []string{"Lam"}},
	{Name: "Ezekiel", Base: "Ezekiel", Aliases: []string{"Ezek", "Eze"}},
	{Name: "Daniel", Base: "Daniel", Aliases: []string{"Dan", "Dn"}},
	{Name: "Hosea", Base: "Hosea", Aliases: []string{"Hos"}},
	{Name: "Joel", Base: "Joel", Aliases: []string{"Jl"}},
	{Name: "Amos", Base: "Amos", Aliases: []string{"Am"}},
	{Name: "Obadiah", Base: "Obadiah", Aliases: []string{"Obad", "Ob"}},
	{Name: "Jonah", Base: "Jonah", Aliases: []string{"Jon"}},
	{Name: "Micah", Base: "Micah", Aliases: []string{"Mic"}},
	{Name: "Nahum", Base: "Nahum", Aliases: []string{"Nah"}},
	{Name: "Habakkuk", Base: "Habakkuk", Aliases: []string{"Hab"}},
	{Name: "Zephaniah", Base: "Zephaniah", Aliases: []string{"Zeph", "Zep"}},
	{Name: "Haggai", Base: "Haggai", Aliases: []string{"Hag"}},
	{Name: "Zechariah", Base: "Zechariah", Aliases: []string{"Zech", "Zec"}},
	{Name: "Malachi", Base: "Malachi", Aliases: []string{"Mal"}},
	{Name: "Matthew", Base: "Matthew", Aliases: []string{"Matt", "Mt"}},
	{Name: "Mark", Base: "Mark", Aliases: []string{"Mk", "Mrk"}},
	{Name: "Luke", Base: "Luke", Aliases: []string{"Lk"}},
	{Name: "John", Base: "John", Aliases: []string{"Jn", "Jhn"}},
	{Name: "Acts", Base: "Acts", Aliases: []string{"Act"}},
	{Name: "Romans", Base: "Romans", Aliases: []string{"Rom", "Rm"}},
	{Name: "1 Corinthians", Number: 1, Base: "Corinthians", Aliases: []string{"Cor", "Co"}},
	{Name: "2 Corinthians", Number: 2, Base: "Corinthians", Aliases: []string{"Cor", "Co"}},
	{Name: "Galatians", Base: "Galatians", Aliases: []string{"Gal"}},
	{Name: "Ephesians", Base: "Ephesians", Aliases: []string{"Eph"}},
	{Name: "Philippians", Base: "Philippians", Aliases: []string{"Phil", "Php"}},
	{Name: "Colossians", Base: "Colossians", Aliases: []string{"Col"}},
	{Name: "1 Thessalonians", Number: 1, Base: "Thessalonians", Aliases: []string{"Thess", "Th"}},
	{Name: "2 Thessalonians", Number: 2, Base: "Thessalonians", Aliases: []string{"Thess", "Th"}},
	{Name: "1 Timothy", Number: 1, Base: "Timothy", Aliases: []string{"Tim", "Ti"}},
	{Name: "2 Timothy", Number: 2, Base: "Timothy", Aliases: []string{"Tim", "Ti"}},
	{Name: "Titus", Base: "Titus", Aliases: []string{"Tit"}},
	{Name: "Philemon", Base: "Philemon", Aliases: []string{"Philem", "Phlm"}},
	{Name: "Hebrews", Base: "Hebrews", Aliases: []string{"Heb"}},
	{Name: "James", Base: "James", Aliases: []string{"Jas"}},
	{Name: "1 Peter", Number: 1, Base: "Peter", Aliases: []string{"Pet", "Pt"}},
	{Name: "2 Peter", Number: 2, Base: "Peter", Aliases: []string{"Pet", "Pt"}},
	{Name: "1 John", Number: 1, Base: "John", Aliases: []string{"Jn", "Jhn"}},
	{Name: "2 John", Number: 2, Base: "John", Aliases: []string{"Jn", "Jhn"}},
	{Name: "3 John", Number: 3, Base: "John", Aliases: []string{"Jn", "Jhn"}},
	{Name: "Jude", Base: "Jude", Aliases: []string{"Jud"}},
	{Name: "Revelation", Base: "Revelation", Aliases: []string{"Rev", "Rv"}},
}

// bookIndex maps "<n> <lowercase token>" (n = 0 for unnumbered books) to a book.
var bookIndex = buildBookIndex()

func buildBookIndex() map[string]*Book {
	idx := make(map[string]*Book)
	for i := range Books {
		b := &Books[i]
		for _, tok := range append([]string{b.Base}, b.Aliases...) {
			idx[bookKey(b.Number, tok)] = b
		}
	}
	return idx
}

func bookKey(n int, token string) string {
	return string(rune('0'+n)) + " " + strings.ToLower(token)
}

// bookTokens returns every distinct name/alias, used to build the scanner pattern.
func bookTokens() []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range Books {
		for _, tok := range append([]string{b.Base}, b.Aliases...) {
			if !seen[tok] {
				seen[tok] = true
				out = append(out, tok)
			}
		}
	}
	return out
}

// LookupBook resolves an ordinal and a book token (full name or alias) to a book.
func LookupBook(number int, token string) (*Book, bool) {
	b, ok := bookIndex[bookKey(number, strings.TrimSuffix(strings.TrimSpace(token), "."))]
	return b, ok
}
