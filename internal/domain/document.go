package domain

// KeyPrefix namespaces all Redis keys owned by geopard.
const KeyPrefix = "geopard:"

// Document is an immutable geodata catalog record. Created during ingestion
// (outside this service); read-only here.
type Document struct {
	ID                 string   `json:"id"`
	MetaUID            string   `json:"metauid"`
	Title              string   `json:"title"`
	Abstract           string   `json:"abstract"`
	Content            string   `json:"content"`
	Keywords           []string `json:"keywords,omitempty"`
	DataType           string   `json:"data_type,omitempty"`
	DistributorFormats []string `json:"distributor_formats,omitempty"`
	OpenlyURL          string   `json:"openly_url,omitempty"`
	WebappURL          string   `json:"webapp_url,omitempty"`
}
