// Package document holds the page and chunk types that flow through ingestion.
package document

// Metadata describes where a piece of content came from. ContentLength is a
// word count kept for diagnostics only.
type Metadata struct {
	Source        string `json:"source"`
	Title         string `json:"title,omitempty"`
	Date          string `json:"date,omitempty"`
	ContentLength int    `json:"content_length,omitempty"`
}

// Document is the normalized text of one fetched URL.
type Document struct {
	PageContent string
	Metadata    Metadata
}

// Chunk is a retrievable span of a document. SiteID is the tenant tag and is
// required before a chunk can be stored.
type Chunk struct {
	ID       string
	SiteID   string
	JobID    string
	Index    int
	Content  string
	Metadata Metadata
}
