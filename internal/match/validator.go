package match

import (
	"fmt"

	"github.com/helixir/citation-resolver/internal/domain"
)

// Rejection reasons surfaced on candidates that fail hard constraints.
const (
	ReasonYearDifference  = "Year difference too large"
	ReasonNoAuthorOverlap = "No author overlap found"
	ReasonJournalConflict = "Journal names contradictory"
	ReasonScoringError    = "Scoring error"
)

// maxYearDelta is the largest publication-year difference a candidate may
// have from the citation before it is disqualified outright.
const maxYearDelta = 5

// journalContradictionThreshold is the journal similarity below which two
// populated journal names are considered contradictory.
const journalContradictionThreshold = 0.3

// CheckHardConstraints applies the binary disqualification rules to a
// candidate and records the outcome on it. A rule fires only when both
// sides populate the field it inspects; missing fields never disqualify.
// Returns true when the candidate passes all constraints.
func CheckHardConstraints(input *domain.Citation, candidate *domain.MatchCandidate) bool {
	if input.Year != 0 && candidate.Year != 0 {
		delta := input.Year - candidate.Year
		if delta < 0 {
			delta = -delta
		}
		if delta > maxYearDelta {
			candidate.Reject(ReasonYearDifference)
			return false
		}
	}

	if len(input.Authors) > 0 && len(candidate.Authors) > 0 {
		if !anyAuthorOverlap(input.Authors, candidate.Authors) {
			candidate.Reject(ReasonNoAuthorOverlap)
			return false
		}
	}

	if input.Journal != "" && candidate.Journal != "" {
		if Journal(input.Journal, candidate.Journal) < journalContradictionThreshold {
			candidate.Reject(ReasonJournalConflict)
			return false
		}
	}

	candidate.PassedConstraints = true
	candidate.RejectionReason = ""
	return true
}

// ValidateMatch runs hard constraints first for fast rejection, then scores
// the candidate with the weighted fuzzy combination. On rejection the
// candidate's scores are zeroed and 0.0 is returned. A panic during scoring
// is recovered and reported as a rejection.
func ValidateMatch(input *domain.Citation, candidate *domain.MatchCandidate) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			candidate.Reject(fmt.Sprintf("%s: %v", ReasonScoringError, r))
			score = 0.0
		}
	}()

	if !CheckHardConstraints(input, candidate) {
		return 0.0
	}

	overall, scores := FuzzyScore(
		input.Title, candidate.Title,
		input.Authors, candidate.Authors,
		input.Year, candidate.Year,
		input.Journal, candidate.Journal,
	)
	candidate.Scores = scores
	return overall
}

// BestMatch returns the passing candidate with the highest overall score,
// or nil when no candidate passed constraints. Ties resolve to the first
// candidate in input order.
func BestMatch(candidates []*domain.MatchCandidate) *domain.MatchCandidate {
	var best *domain.MatchCandidate
	for _, c := range candidates {
		if c == nil || !c.PassedConstraints {
			continue
		}
		if best == nil || c.OverallScore() > best.OverallScore() {
			best = c
		}
	}
	return best
}

// anyAuthorOverlap reports whether any pair of names across the two lists
// is an exact normalized match or shares a token longer than one character.
func anyAuthorOverlap(a, b []string) bool {
	normB := make([]string, len(b))
	for i, name := range b {
		normB[i] = NormalizeAuthor(name)
	}
	for _, nameA := range a {
		na := NormalizeAuthor(nameA)
		for _, nb := range normB {
			if authorsEqual(na, nb) {
				return true
			}
		}
	}
	return false
}
