// Package domain defines the core types of the citation resolution engine:
// the mutable Citation record, transient MatchCandidate records produced by
// source resolvers, and the error taxonomy shared by all components.
package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Citation is a bibliographic record under resolution. Fields are optional;
// the zero value of a field means "unknown". Citations are created upstream
// by an extraction stage, passed by reference through the engine, and mutated
// in place. Enrichment writes a field only when it is currently empty;
// already-populated fields are never overwritten.
type Citation struct {
	// ID identifies the record in logs and batch result maps.
	ID uuid.UUID `json:"id"`

	Title   string   `json:"title,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Year    int      `json:"year,omitempty"`
	Journal string   `json:"journal,omitempty"`

	// DOI is stored normalized: lowercase, without a https://doi.org/ prefix.
	DOI string `json:"doi,omitempty"`

	// BackupID is an alternative identifier with a scheme prefix,
	// e.g. "arxiv:2301.07041" or "isbn:9780262046305".
	BackupID string `json:"backup_id,omitempty"`

	URL      string `json:"url,omitempty"`
	PDFURL   string `json:"pdf_url,omitempty"`
	Abstract string `json:"abstract,omitempty"`

	CitationCount            int      `json:"citation_count,omitempty"`
	ReferenceCount           int      `json:"reference_count,omitempty"`
	InfluentialCitationCount int      `json:"influential_citation_count,omitempty"`
	OpenAccess               bool     `json:"open_access,omitempty"`
	FieldsOfStudy            []string `json:"fields_of_study,omitempty"`
}

// NewCitation creates a citation with a fresh ID and the given title.
func NewCitation(title string) *Citation {
	return &Citation{
		ID:    uuid.New(),
		Title: title,
	}
}

// HasIdentifier returns true if the citation carries a DOI or a backup
// identifier that a source can look up directly.
func (c *Citation) HasIdentifier() bool {
	return c.DOI != "" || c.BackupID != ""
}

// ArXivID returns the arXiv identifier from BackupID, or "" if the backup
// identifier is absent or uses a different scheme.
func (c *Citation) ArXivID() string {
	if scheme, value := ParseBackupID(c.BackupID); scheme == "arxiv" {
		return value
	}
	return ""
}

// HasMissingFields returns true if any of the fields the enhancer targets
// (authors, year, venue, URL) is still empty.
func (c *Citation) HasMissingFields() bool {
	return len(c.Authors) == 0 || c.Year == 0 || c.Journal == "" || c.URL == ""
}

// FillTitle sets the title only if it is currently empty.
func (c *Citation) FillTitle(title string) {
	if c.Title == "" && title != "" {
		c.Title = title
	}
}

// FillAuthors sets the author list only if it is currently empty.
func (c *Citation) FillAuthors(authors []string) {
	if len(c.Authors) == 0 && len(authors) > 0 {
		c.Authors = authors
	}
}

// FillYear sets the year only if it is currently unset.
func (c *Citation) FillYear(year int) {
	if c.Year == 0 && year != 0 {
		c.Year = year
	}
}

// FillJournal sets the journal only if it is currently empty.
func (c *Citation) FillJournal(journal string) {
	if c.Journal == "" && journal != "" {
		c.Journal = journal
	}
}

// FillDOI sets the DOI only if it is currently empty. The value is
// normalized before assignment.
func (c *Citation) FillDOI(doi string) {
	if c.DOI == "" {
		c.DOI = NormalizeDOI(doi)
	}
}

// FillBackupID sets the backup identifier only if it is currently empty.
func (c *Citation) FillBackupID(id string) {
	if c.BackupID == "" && id != "" {
		c.BackupID = id
	}
}

// FillURL sets the URL only if it is currently empty.
func (c *Citation) FillURL(u string) {
	if c.URL == "" && u != "" {
		c.URL = u
	}
}

// FillPDFURL sets the PDF URL only if it is currently empty.
func (c *Citation) FillPDFURL(u string) {
	if c.PDFURL == "" && u != "" {
		c.PDFURL = u
	}
}

// FillAbstract sets the abstract only if it is currently empty.
func (c *Citation) FillAbstract(abstract string) {
	if c.Abstract == "" && abstract != "" {
		c.Abstract = abstract
	}
}

// FillCitationCount sets the citation count only if it is currently unset.
func (c *Citation) FillCitationCount(n int) {
	if c.CitationCount == 0 && n > 0 {
		c.CitationCount = n
	}
}

// FillReferenceCount sets the reference count only if it is currently unset.
func (c *Citation) FillReferenceCount(n int) {
	if c.ReferenceCount == 0 && n > 0 {
		c.ReferenceCount = n
	}
}

// FillInfluentialCitationCount sets the influential citation count only if
// it is currently unset.
func (c *Citation) FillInfluentialCitationCount(n int) {
	if c.InfluentialCitationCount == 0 && n > 0 {
		c.InfluentialCitationCount = n
	}
}

// FillFieldsOfStudy sets the field classification only if currently empty.
func (c *Citation) FillFieldsOfStudy(fields []string) {
	if len(c.FieldsOfStudy) == 0 && len(fields) > 0 {
		c.FieldsOfStudy = fields
	}
}

// MergeFromCandidate copies every field the candidate provides into the
// citation, writing only fields that are still empty. Running the merge
// twice with the same candidate is a no-op the second time.
func (c *Citation) MergeFromCandidate(cand *MatchCandidate) {
	if cand == nil {
		return
	}
	c.FillTitle(cand.Title)
	c.FillAuthors(cand.Authors)
	c.FillYear(cand.Year)
	c.FillJournal(cand.Journal)
	c.FillDOI(cand.DOI)
	c.FillBackupID(cand.BackupID)
	c.FillURL(cand.URL)
	c.FillPDFURL(cand.PDFURL)
	c.FillAbstract(cand.Abstract)
	c.FillCitationCount(cand.CitationCount)
	c.FillReferenceCount(cand.ReferenceCount)
	c.FillInfluentialCitationCount(cand.InfluentialCitationCount)
	c.FillFieldsOfStudy(cand.FieldsOfStudy)
}

// FirstAuthor returns the first author, or "" if the list is empty.
func (c *Citation) FirstAuthor() string {
	if len(c.Authors) == 0 {
		return ""
	}
	return c.Authors[0]
}

// ParseBackupID splits a backup identifier into its lowercase scheme
// ("arxiv", "isbn", "pmid") and value. Identifiers without a scheme prefix
// yield an empty scheme with the raw value.
func ParseBackupID(id string) (scheme, value string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ""
	}
	scheme, value, found := strings.Cut(id, ":")
	if !found {
		return "", id
	}
	return strings.ToLower(strings.TrimSpace(scheme)), strings.TrimSpace(value)
}

// NormalizeDOI strips URL and scheme prefixes from a DOI and lowercases it.
// Returns "" for empty input.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return ""
	}
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.ToLower(strings.TrimSpace(doi))
}
