package domain

import (
	"net/url"
	"strings"
)

// IngestSource is a document to ingest: either inline bytes with a
// filename, or a remote URL. Exactly one form should be populated.
type IngestSource struct {
	// Filename is the original name of an uploaded file.
	Filename string

	// Content is the raw bytes of an uploaded file.
	Content []byte

	// URL is the location of a remote document.
	URL string
}

// IsRemote returns true if the source must be fetched.
func (s IngestSource) IsRemote() bool {
	return s.URL != "" && len(s.Content) == 0 && s.Filename == ""
}

// Name returns the provenance label recorded on chunks.
func (s IngestSource) Name() string {
	if s.IsRemote() {
		return s.URL
	}
	return s.Filename
}

// Normalised returns the source with surrounding whitespace removed from
// the URL. Callers validate and fetch the normalised form.
func (s IngestSource) Normalised() IngestSource {
	s.URL = strings.TrimSpace(s.URL)
	return s
}

// Validate checks the source without side effects.
func (s IngestSource) Validate() error {
	if s.IsRemote() {
		u, err := url.Parse(s.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return ErrInvalidSourceURL
		}
		return nil
	}
	if len(s.Content) == 0 {
		return ErrEmptyUpload
	}
	if strings.TrimSpace(s.Filename) == "" {
		return ErrMissingFilename
	}
	return nil
}

// IngestResult reports the outcome of an ingestion.
type IngestResult struct {
	// ChunkCount is the number of chunks added to the session.
	ChunkCount int

	// Recovered is true if a corrupt index was replaced during the merge.
	Recovered bool
}
