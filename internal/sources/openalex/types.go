// Package openalex implements the sources.Resolver contract against the
// OpenAlex works API.
//
// API documentation: https://docs.openalex.org/
package openalex

// searchResponse is the top-level response of the works search endpoint.
type searchResponse struct {
	Meta    Meta   `json:"meta"`
	Results []Work `json:"results"`
}

// Meta contains result metadata including pagination info.
type Meta struct {
	Count   int `json:"count"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Work is a scholarly work in OpenAlex, restricted to the fields the
// resolver selects.
type Work struct {
	ID              string       `json:"id"`
	DOI             string       `json:"doi"`
	Title           string       `json:"title"`
	DisplayName     string       `json:"display_name"`
	PublicationYear int          `json:"publication_year"`
	CitedByCount    int          `json:"cited_by_count"`
	OpenAccess      *OpenAccess  `json:"open_access"`
	Authorships     []Authorship `json:"authorships"`
	PrimaryLocation *Location    `json:"primary_location"`

	// Abstracts arrive as an inverted index mapping words to positions
	// and are reconstructed client-side.
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

// OpenAccess contains open access information for a work.
type OpenAccess struct {
	IsOA     bool   `json:"is_oa"`
	OAURL    string `json:"oa_url"`
	OAStatus string `json:"oa_status"`
}

// Authorship represents an author's contribution to a work.
type Authorship struct {
	AuthorPosition string     `json:"author_position"`
	Author         AuthorInfo `json:"author"`
}

// AuthorInfo contains basic author information.
type AuthorInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Location represents where a work is available.
type Location struct {
	Source *Source `json:"source"`
	PDFURL string  `json:"pdf_url"`
}

// Source represents a publication venue (journal, repository, etc.).
type Source struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}
