package driven

import "context"

// EmbeddingService turns passage and query text into vectors. Every
// session index stores vectors from exactly one model, so Dimensions and
// ModelName are recorded with each snapshot and checked when it is loaded.
//
// Adapters: OpenAI, Ollama and an offline feature-hashing embedder.
type EmbeddingService interface {
	// Embed returns the vector for a single query or passage.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the length of every vector the model produces.
	Dimensions() int

	// ModelName identifies the model recorded in session snapshots.
	ModelName() string

	// Ping makes a lightweight request to confirm the provider is usable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
