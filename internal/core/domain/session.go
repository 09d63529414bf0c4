package domain

import "time"

// IndexEntry is one stored passage of a session index.
type IndexEntry struct {
	// ID is the chunk identifier, also used as the vector key.
	ID string

	// Content is the passage text returned as retrieval context.
	Content string

	// Metadata is the provenance of the passage.
	Metadata ChunkMetadata

	// Embedding is the vector the passage was indexed with.
	Embedding []float32
}

// IndexSnapshot is the complete persisted state of one session index.
// Stores always read and write whole snapshots.
type IndexSnapshot struct {
	// SessionID identifies the owning session.
	SessionID string

	// Model is the embedding model that produced the vectors.
	Model string

	// Dimensions is the length of every embedding.
	Dimensions int

	// Entries holds the passages in insertion order.
	Entries []IndexEntry

	// CreatedAt is when the session index was first written.
	CreatedAt time.Time

	// UpdatedAt is when the session index was last written.
	UpdatedAt time.Time
}

// Validate checks the snapshot's structural invariants.
// A snapshot failing validation must be treated as corrupt.
func (s *IndexSnapshot) Validate() error {
	if s == nil {
		return ErrIndexCorrupt
	}
	if s.Dimensions <= 0 {
		return ErrIndexCorrupt
	}
	for _, e := range s.Entries {
		if e.ID == "" || e.Content == "" || len(e.Embedding) != s.Dimensions {
			return ErrIndexCorrupt
		}
	}
	return nil
}

// MergeResult reports the outcome of merging chunks into a session.
type MergeResult struct {
	// Added is the number of chunks appended by this merge.
	Added int

	// Total is the number of passages in the session after the merge.
	Total int

	// Created is true if the merge created the session index.
	Created bool

	// Recovered is true if the previous index could not be loaded and
	// was replaced by one built from this merge alone.
	Recovered bool
}

// SessionStatus summarises a session's index.
type SessionStatus struct {
	SessionID string    `json:"session_id"`
	Exists    bool      `json:"exists"`
	Chunks    int       `json:"chunks"`
	Sources   []string  `json:"sources"`
	Model     string    `json:"model,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}
