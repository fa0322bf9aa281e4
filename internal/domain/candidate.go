package domain

// Fixed weights of the convex score combination. Title similarity dominates;
// the remaining weight is split across authors, year and journal.
const (
	WeightTitle   = 0.45
	WeightAuthors = 0.25
	WeightYear    = 0.15
	WeightJournal = 0.15
)

// ComponentScores holds the per-field similarities and their weighted
// combination, all in [0,1]. When a candidate fails hard constraints the
// whole struct is zeroed.
type ComponentScores struct {
	Title   float64 `json:"title"`
	Authors float64 `json:"authors"`
	Year    float64 `json:"year"`
	Journal float64 `json:"journal"`
	Overall float64 `json:"overall"`
}

// Combine computes the weighted overall score from the component fields and
// stores it in Overall.
func (s *ComponentScores) Combine() {
	s.Overall = WeightTitle*s.Title + WeightAuthors*s.Authors + WeightYear*s.Year + WeightJournal*s.Journal
}

// MatchCandidate is a bibliographic record proposed by one source as a match
// for a citation. Candidates live for the duration of a single resolution
// call and are discarded after best-match selection.
type MatchCandidate struct {
	Source string `json:"source"`

	Title   string   `json:"title,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Year    int      `json:"year,omitempty"`
	Journal string   `json:"journal,omitempty"`

	DOI      string `json:"doi,omitempty"`
	BackupID string `json:"backup_id,omitempty"`
	URL      string `json:"url,omitempty"`
	PDFURL   string `json:"pdf_url,omitempty"`
	Abstract string `json:"abstract,omitempty"`

	CitationCount            int      `json:"citation_count,omitempty"`
	ReferenceCount           int      `json:"reference_count,omitempty"`
	InfluentialCitationCount int      `json:"influential_citation_count,omitempty"`
	OpenAccess               bool     `json:"open_access,omitempty"`
	FieldsOfStudy            []string `json:"fields_of_study,omitempty"`

	// SourceScore is the relevance score reported by the source itself
	// (e.g. Crossref's ranking score), independent of the fuzzy matcher.
	SourceScore float64 `json:"source_score,omitempty"`

	Scores            ComponentScores `json:"scores"`
	PassedConstraints bool            `json:"passed_constraints"`
	RejectionReason   string          `json:"rejection_reason,omitempty"`
}

// OverallScore returns the combined fuzzy score. It is zero whenever the
// candidate failed hard constraints.
func (m *MatchCandidate) OverallScore() float64 {
	return m.Scores.Overall
}

// Reject marks the candidate as failing hard constraints with a
// human-readable reason and zeroes its scores.
func (m *MatchCandidate) Reject(reason string) {
	m.PassedConstraints = false
	m.RejectionReason = reason
	m.Scores = ComponentScores{}
}
