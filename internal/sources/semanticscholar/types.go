package semanticscholar

// searchResponse is the response from the paper search endpoint.
type searchResponse struct {
	Total int     `json:"total"`
	Next  int     `json:"next"`
	Data  []Paper `json:"data"`
}

// Paper is a single paper record from the Graph API.
type Paper struct {
	PaperID                  string       `json:"paperId"`
	ExternalIDs              *ExternalIDs `json:"externalIds"`
	Title                    string       `json:"title"`
	Abstract                 string       `json:"abstract"`
	Year                     int          `json:"year"`
	Venue                    string       `json:"venue"`
	Journal                  *Journal     `json:"journal"`
	Authors                  []Author     `json:"authors"`
	CitationCount            int          `json:"citationCount"`
	ReferenceCount           int          `json:"referenceCount"`
	InfluentialCitationCount int          `json:"influentialCitationCount"`
	IsOpenAccess             bool         `json:"isOpenAccess"`
	OpenAccessPDF            *OpenAccess  `json:"openAccessPdf"`
	FieldsOfStudy            []string     `json:"fieldsOfStudy"`
	URL                      string       `json:"url"`
}

// ExternalIDs holds external identifiers for a paper.
type ExternalIDs struct {
	DOI   string `json:"DOI"`
	ArXiv string `json:"ArXiv"`
}

// Journal holds publication venue details.
type Journal struct {
	Name   string `json:"name"`
	Volume string `json:"volume"`
	Pages  string `json:"pages"`
}

// Author is a paper author.
type Author struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

// OpenAccess holds the open access PDF location.
type OpenAccess struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

// errorResponse is the error payload returned by the API.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// batchRequest is the request body for the paper batch endpoint.
type batchRequest struct {
	IDs []string `json:"ids"`
}
