package facet

import (
	"strings"

	"github.com/matst80/slask-archive/pkg/types"
)

const ScriptureTaxonomy = "scripture"

// BibleBooks is the canonical book order used for the scripture taxonomy.
var BibleBooks = []string{
	"Genesis", "Exodus", "Leviticus", "Numbers", "Deuteronomy",
	"Joshua", "Judges", "Ruth", "1 Samuel", "2 Samuel",
	"1 Kings", "2 Kings", "1 Chronicles", "2 Chronicles", "Ezra",
	"Nehemiah", "Esther", "Job", "Psalms", "Proverbs",
	"Ecclesiastes", "Song of Solomon", "Isaiah", "Jeremiah", "Lamentations",
	"Ezekiel", "Daniel", "Hosea", "Joel", "Amos",
	"Obadiah", "Jonah", "Micah", "Nahum", "Habakkuk",
	"Zephaniah", "Haggai", "Zechariah", "Malachi",
	"Matthew", "Mark", "Luke", "John", "Acts",
	"Romans", "1 Corinthians", "2 Corinthians", "Galatians", "Ephesians",
	"Philippians", "Colossians", "1 Thessalonians", "2 Thessalonians", "1 Timothy",
	"2 Timothy", "Titus", "Philemon", "Hebrews", "James",
	"1 Peter", "2 Peter", "1 John", "2 John", "3 John",
	"Jude", "Revelation",
}

var bookIndex = func() map[string]int {
	m := make(map[string]int, len(BibleBooks))
	for i, b := range BibleBooks {
		m[strings.ToLower(b)] = i
	}
	return m
}()

// IsScriptureBook reports whether an option title names a canonical book.
func IsScriptureBook(o types.Option) bool {
	_, ok := bookIndex[strings.ToLower(strings.TrimSpace(o.Title))]
	return ok
}

// CompareScripture orders by canonical book position. A title that is not a
// book compares equal to everything.
func CompareScripture(a, b types.Option) int {
	ai, aok := bookIndex[strings.ToLower(strings.TrimSpace(a.Title))]
	bi, bok := bookIndex[strings.ToLower(strings.TrimSpace(b.Title))]
	if !aok || !bok {
		return 0
	}
	return ai - bi
}
