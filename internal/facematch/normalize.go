package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeSearchTerm normalizes dashboard search input and searchable fields
// (lowercase, no diacritics, spaces for dashes and underscores, trimmed).
func NormalizeSearchTerm(s string) string {
	s = RemoveDiacritics(s)
	s = strings.ToLower(s)
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.TrimSpace(s)
}

// MatchesSearch reports whether any of the fields contains the normalized term.
// An empty term matches everything.
func MatchesSearch(term string, fields ...string) bool {
	term = NormalizeSearchTerm(term)
	if term == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(NormalizeSearchTerm(f), term) {
			return true
		}
	}
	return false
}
