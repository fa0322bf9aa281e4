package opencitations

// record is a single entry from the COCI metadata endpoint. The API returns
// every field as a string, including numeric ones.
type record struct {
	DOI           string `json:"doi"`
	Title         string `json:"title"`
	Author        string `json:"author"` // "Family, Given; Family, Given"
	Year          string `json:"year"`
	SourceTitle   string `json:"source_title"`
	Volume        string `json:"volume"`
	Page          string `json:"page"`
	OALink        string `json:"oa_link"`
	CitationCount string `json:"citation_count"`
	Reference     string `json:"reference"` // semicolon-separated DOIs
}
