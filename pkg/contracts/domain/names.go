package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var countySuffixes = []string{" county", " parish", " borough", " census area", " municipality", " city and borough"}

// FoldCountyName reduces a county name to a join key: diacritics, case,
// periods and apostrophes are removed, whitespace collapsed and a trailing
// "County"-style suffix dropped. "St. Mary’s County" and "st marys" fold alike.
func FoldCountyName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)
	folded = strings.NewReplacer(".", "", "'", "", "’", "", ",", "").Replace(folded)
	folded = strings.Join(strings.Fields(folded), " ")

	// checked from the end so "city and borough" wins over "borough"
	for i := len(countySuffixes) - 1; i >= 0; i-- {
		if s := countySuffixes[i]; strings.HasSuffix(folded, s) && len(folded) > len(s) {
			folded = strings.TrimSuffix(folded, s)
			break
		}
	}
	return folded
}
