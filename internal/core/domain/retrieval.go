package domain

// DefaultTopK is the number of passages retrieved per question.
const DefaultTopK = 4

// NoDocumentsAnswer is returned when a session has no index.
const NoDocumentsAnswer = "No documents have been uploaded for this session. Please upload a PDF first."

// RetrievedPassage is a passage returned by similarity search.
type RetrievedPassage struct {
	Content  string
	Metadata ChunkMetadata

	// Score is the cosine similarity to the query, higher is closer.
	Score float64
}

// Answer is a generated answer together with the provenance of the
// passages used as context, in ranked order.
type Answer struct {
	Text    string          `json:"answer"`
	Sources []ChunkMetadata `json:"sources"`
}
