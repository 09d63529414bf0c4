package domain

import (
	"strings"
	"time"
)

// ExtractedText is the plain text recovered from a source document.
type ExtractedText struct {
	// Pages holds the text of each page in document order.
	// Extractors that cannot split pages return a single entry.
	Pages []string
}

// IsEmpty returns true if no page contains anything but whitespace.
func (e *ExtractedText) IsEmpty() bool {
	if e == nil {
		return true
	}
	for _, p := range e.Pages {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	return true
}

// TextSpan is a contiguous piece of text produced by the chunker.
// Start and End are byte offsets into the text that was split.
type TextSpan struct {
	Content string
	Start   int
	End     int
}

// ChunkMetadata records where a chunk came from.
// It is returned to callers as the provenance of an answer.
type ChunkMetadata struct {
	// Source is the upload filename or the URL the document was fetched from.
	Source string `json:"source"`

	// Page is the zero-based page the chunk was extracted from.
	Page int `json:"page"`

	// ChunkIndex is the position of the chunk within its ingestion.
	ChunkIndex int `json:"chunk_index"`

	// SessionID is the session the chunk was ingested into.
	SessionID string `json:"session_id"`

	// IngestedAt is when the chunk was produced.
	IngestedAt time.Time `json:"ingested_at"`
}

// Chunk represents a retrievable unit of a document.
// Chunks exist only between chunking and merge; the index keeps
// their embedded form as IndexEntry values.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// Content is the text content of this chunk. Never empty.
	Content string

	// Position is the ordinal position within the ingestion.
	Position int

	// Metadata is the provenance of the chunk.
	Metadata ChunkMetadata
}
