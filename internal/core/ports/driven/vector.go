package driven

import "context"

// VectorIndex ranks the passages of a single session by similarity to a
// query vector. Implementations must return the exact top k; retrieval
// quality depends on no relevant passage being skipped.
//
// Implementations are not safe for concurrent mutation; the session
// manager serialises writers per session.
type VectorIndex interface {
	// Add inserts a vector for the given chunk ID.
	Add(ctx context.Context, chunkID string, embedding []float32) error

	// Search finds the k nearest neighbours to the query vector,
	// closest first.
	Search(ctx context.Context, query []float32, k int) ([]VectorHit, error)

	// Len returns the number of vectors in the index.
	Len() int

	// Dimensions returns the vector size the index accepts.
	Dimensions() int

	// Close releases resources.
	Close() error
}

// VectorIndexFactory creates an empty index for vectors of the given size.
type VectorIndexFactory func(dimensions int) (VectorIndex, error)

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Similarity is the cosine similarity score (-1 to 1).
	Similarity float64
}
