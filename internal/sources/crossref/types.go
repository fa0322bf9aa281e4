package crossref

// worksResponse is the envelope of the Crossref /works endpoint.
type worksResponse struct {
	Status  string       `json:"status"`
	Message worksMessage `json:"message"`
}

type worksMessage struct {
	TotalResults int    `json:"total-results"`
	Items        []Work `json:"items"`
}

// Work is a single Crossref work record. Crossref wraps most scalar fields
// in arrays.
type Work struct {
	DOI            string     `json:"DOI"`
	Title          []string   `json:"title"`
	ContainerTitle []string   `json:"container-title"`
	Author         []Author   `json:"author"`
	Published      *DateParts `json:"published"`
	PublishedPrint *DateParts `json:"published-print"`
	PublishedOn    *DateParts `json:"published-online"`
	Page           string     `json:"page"`
	URL            string     `json:"URL"`
	Abstract       string     `json:"abstract"`
	IsReferencedBy int        `json:"is-referenced-by-count"`
	Score          float64    `json:"score"`
	Link           []Link     `json:"link"`
}

// Author is a Crossref contributor with split given/family names.
type Author struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"`
}

// DateParts is Crossref's nested date representation: [[year, month, day]].
type DateParts struct {
	DateParts [][]int `json:"date-parts"`
}

// Year returns the year component, or 0 when absent.
func (d *DateParts) Year() int {
	if d == nil || len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
		return 0
	}
	return d.DateParts[0][0]
}

// Link is a full-text link attached to a work.
type Link struct {
	URL                 string `json:"URL"`
	ContentType         string `json:"content-type"`
	IntendedApplication string `json:"intended-application"`
}
