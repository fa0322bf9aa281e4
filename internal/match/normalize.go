// Package match provides text normalization, per-field similarity functions
// and the hard-constraint validator used to pick the best candidate record
// for a citation.
package match

import (
	"strings"
	"unicode"
)

// NormalizeText lowercases a string, strips punctuation, collapses runs of
// whitespace and trims the result. Empty input normalizes to "".
func NormalizeText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	s = strings.ToLower(s)

	var sb strings.Builder
	sb.Grow(len(s))
	prevSpace := false

	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r):
			if !prevSpace && sb.Len() > 0 {
				sb.WriteRune(' ')
				prevSpace = true
			}
		default:
			// Punctuation separates tokens rather than joining them:
			// "Smith, J." must keep "smith" and "j" apart.
			if !prevSpace && sb.Len() > 0 {
				sb.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimRight(sb.String(), " ")
}

// NormalizeAuthor normalizes an author name for overlap comparison. It
// reorders "Last, First" to "First Last" before applying the general text
// normalization, so name tokens survive in a comparable form.
func NormalizeAuthor(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	if idx := strings.Index(name, ","); idx >= 0 {
		last := strings.TrimSpace(name[:idx])
		first := strings.TrimSpace(name[idx+1:])
		if first != "" {
			name = first + " " + last
		} else {
			name = last
		}
	}

	return NormalizeText(name)
}

// IsAbbreviation reports whether a name looks like an abbreviated form:
// period-terminated short tokens ("Proc. Natl. Acad. Sci.", "J."), a short
// all-caps token ("PNAS"), or a short token with multiple embedded capitals
// ("NeurIPS"). Full multi-word names and empty input return false.
func IsAbbreviation(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}

	// Any short capital-initial token terminated by a period, such as
	// "Proc." or a bare initial "J.".
	for _, tok := range strings.Fields(name) {
		if isAbbrevToken(tok) {
			return true
		}
	}

	runes := []rune(name)

	// Short all-caps token.
	if len(runes) <= 10 && !strings.ContainsRune(name, ' ') {
		allUpper := true
		hasLetter := false
		capitals := 0
		for _, r := range runes {
			if unicode.IsLetter(r) {
				hasLetter = true
				if unicode.IsUpper(r) {
					capitals++
				} else {
					allUpper = false
				}
			}
		}
		if hasLetter && allUpper {
			return true
		}
		// Short token with multiple embedded capitals, e.g. "NeurIPS".
		if capitals >= 2 {
			return true
		}
	}

	return false
}

// isAbbrevToken reports whether tok is a truncated word of the form
// "Proc." or "J.": an uppercase initial, at most three lowercase letters
// and a terminating period.
func isAbbrevToken(tok string) bool {
	runes := []rune(tok)
	if len(runes) < 2 || len(runes) > 5 {
		return false
	}
	if !unicode.IsUpper(runes[0]) || runes[len(runes)-1] != '.' {
		return false
	}
	for _, r := range runes[1 : len(runes)-1] {
		if !unicode.IsLower(r) {
			return false
		}
	}
	return true
}

// tokenSet returns the set of normalized tokens in s and the token sequence.
func tokenSet(s string) (map[string]struct{}, []string) {
	tokens := strings.Fields(s)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set, tokens
}

// sharesLongToken reports whether two normalized names share a token longer
// than one character. Single-letter initials are excluded so that bare
// initials alone never establish an author match.
func sharesLongToken(a, b string) bool {
	setA, _ := tokenSet(a)
	for _, t := range strings.Fields(b) {
		if len(t) <= 1 {
			continue
		}
		if _, ok := setA[t]; ok {
			return true
		}
	}
	return false
}
