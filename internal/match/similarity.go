package match

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/helixir/citation-resolver/internal/domain"
)

// firstAuthorWeight is the pairing weight of the first author position.
// Later positions carry weight 1.
const firstAuthorWeight = 2.0

// Title compares two titles and returns a similarity in [0,1].
// Equal normalized forms score 1.0. Otherwise the score combines token
// containment, Jaccard overlap and token order, so a reordering is partially
// penalized and a subtitle addition still scores above 0.8. Either side
// empty scores 0.0.
func Title(a, b string) float64 {
	na := NormalizeText(a)
	nb := NormalizeText(b)
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}

	setA, seqA := tokenSet(na)
	setB, seqB := tokenSet(nb)
	if len(seqA) == 0 || len(seqB) == 0 {
		return 0.0
	}

	overlap := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			overlap++
		}
	}

	minLen := len(setA)
	if len(setB) < minLen {
		minLen = len(setB)
	}
	union := len(setA) + len(setB) - overlap

	containment := float64(overlap) / float64(minLen)
	jaccard := float64(overlap) / float64(union)

	maxSeq := len(seqA)
	if len(seqB) > maxSeq {
		maxSeq = len(seqB)
	}
	order := float64(longestCommonSubsequence(seqA, seqB)) / float64(maxSeq)

	score := 0.5*containment + 0.3*jaccard + 0.2*order

	// One title being a strict token subset of the other is the subtitle
	// case. Floor the score so the relationship survives regardless of how
	// long the subtitle is.
	if containment == 1.0 && len(setA) != len(setB) {
		if floor := 0.8 + 0.2*jaccard; floor > score {
			score = floor
		}
	}

	return score
}

// Authors compares two ordered author lists and returns a similarity in
// [0,1]. The first author position is weighted higher than later positions.
// An entry matches a counterpart when the normalized names are equal or
// share a token longer than one character, which tolerates "Smith, J."
// against "Smith, John". Unmatched extra authors reduce but do not zero the
// score. Either list empty scores 0.0.
func Authors(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	normA := make([]string, len(a))
	for i, name := range a {
		normA[i] = NormalizeAuthor(name)
	}
	normB := make([]string, len(b))
	for i, name := range b {
		normB[i] = NormalizeAuthor(name)
	}

	used := make([]bool, len(normB))
	matched := 0.0
	for i, nameA := range normA {
		for j, nameB := range normB {
			if used[j] {
				continue
			}
			if authorsEqual(nameA, nameB) {
				used[j] = true
				matched += positionWeight(i)
				break
			}
		}
	}

	// The denominator spans the longer list so extra unmatched authors on
	// either side degrade the score.
	longer := len(normA)
	if len(normB) > longer {
		longer = len(normB)
	}
	total := 0.0
	for i := 0; i < longer; i++ {
		total += positionWeight(i)
	}
	if total == 0 {
		return 0.0
	}

	return matched / total
}

// Year compares two publication years: exact 1.0, off by one 0.8, off by two
// 0.4, further apart 0.0. A missing year on either side scores 0.0.
func Year(a, b int) float64 {
	if a == 0 || b == 0 {
		return 0.0
	}
	delta := a - b
	if delta < 0 {
		delta = -delta
	}
	switch delta {
	case 0:
		return 1.0
	case 1:
		return 0.8
	case 2:
		return 0.4
	default:
		return 0.0
	}
}

// Journal compares two journal or venue names and returns a similarity in
// [0,1]. Equal normalized forms score 1.0. Otherwise the score is the best
// of token overlap and normalized edit distance, with relaxed prefix
// matching when one side is an abbreviated form. Either side empty scores
// 0.0. Callers treat a result below 0.3 as a contradiction.
func Journal(a, b string) float64 {
	na := NormalizeText(a)
	nb := NormalizeText(b)
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}

	setA, seqA := tokenSet(na)
	setB, seqB := tokenSet(nb)

	overlap := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			overlap++
		}
	}
	union := len(setA) + len(setB) - overlap
	tokenScore := 0.0
	if union > 0 {
		tokenScore = float64(overlap) / float64(union)
	}

	maxLen := len(na)
	if len(nb) > maxLen {
		maxLen = len(nb)
	}
	editScore := 1.0 - float64(levenshtein.ComputeDistance(na, nb))/float64(maxLen)
	if editScore < 0 {
		editScore = 0
	}

	score := tokenScore
	if editScore > score {
		score = editScore
	}

	// Abbreviation relaxation: "proc natl acad sci" should match its
	// expansion by token prefixes even though edit distance is large.
	if IsAbbreviation(a) != IsAbbreviation(b) {
		abbrevSeq, fullSeq := seqA, seqB
		if IsAbbreviation(b) {
			abbrevSeq, fullSeq = seqB, seqA
		}
		if prefixed := prefixCoverage(abbrevSeq, fullSeq); prefixed > 0 {
			boosted := 0.4 + 0.6*prefixed
			if boosted > score {
				score = boosted
			}
		}
	}

	return score
}

// FuzzyScore computes all four component similarities and their fixed
// weighted combination. It returns the scalar overall score together with
// the component map for diagnostics and logging.
func FuzzyScore(title1, title2 string, authors1, authors2 []string, year1, year2 int, journal1, journal2 string) (float64, domain.ComponentScores) {
	scores := domain.ComponentScores{
		Title:   Title(title1, title2),
		Authors: Authors(authors1, authors2),
		Year:    Year(year1, year2),
		Journal: Journal(journal1, journal2),
	}
	scores.Combine()
	return scores.Overall, scores
}

func positionWeight(i int) float64 {
	if i == 0 {
		return firstAuthorWeight
	}
	return 1.0
}

// authorsEqual reports whether two normalized author names denote the same
// person for matching purposes.
func authorsEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return sharesLongToken(a, b)
}

// prefixCoverage returns the fraction of abbreviated tokens that are a
// prefix of some token in the full form. Single-letter stopword initials
// still count; ordering is not enforced.
func prefixCoverage(abbrev, full []string) float64 {
	if len(abbrev) == 0 {
		return 0.0
	}
	covered := 0
	for _, at := range abbrev {
		for _, ft := range full {
			if strings.HasPrefix(ft, at) {
				covered++
				break
			}
		}
	}
	return float64(covered) / float64(len(abbrev))
}

// longestCommonSubsequence returns the LCS length of two token sequences.
func longestCommonSubsequence(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
