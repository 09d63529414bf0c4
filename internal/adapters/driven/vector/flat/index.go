package flat

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var (
	_ driven.VectorIndex        = (*Index)(nil)
	_ driven.VectorIndexFactory = New
)

// errClosed is returned by operations on a closed index.
var errClosed = errors.New("flat: index is closed")

// Index scores queries against every stored vector.
// Vectors are normalised on insert so a search is a dot product per entry.
type Index struct {
	mu        sync.RWMutex
	ids       []string
	vectors   [][]float32
	positions map[string]int
	dimension int
	closed    bool
}

// New creates an empty index for vectors of the given dimension.
func New(dimension int) (driven.VectorIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("flat: invalid dimension %d", dimension)
	}
	return &Index{
		positions: make(map[string]int),
		dimension: dimension,
	}, nil
}

// Add inserts a vector for the given chunk ID. Adding an existing ID
// replaces its vector.
func (idx *Index) Add(ctx context.Context, chunkID string, embedding []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(embedding) != idx.dimension {
		return fmt.Errorf("flat: %w: got %d, want %d", domain.ErrDimensionMismatch, len(embedding), idx.dimension)
	}
	vec, ok := normalise(embedding)
	if !ok {
		return errors.New("flat: zero vector cannot be indexed with cosine similarity")
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return errClosed
	}
	if pos, ok := idx.positions[chunkID]; ok {
		idx.vectors[pos] = vec
		return nil
	}
	idx.positions[chunkID] = len(idx.ids)
	idx.ids = append(idx.ids, chunkID)
	idx.vectors = append(idx.vectors, vec)
	return nil
}

// Search returns the k stored vectors most similar to the query, closest
// first. Ties are ordered by chunk ID.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("flat: query %w: got %d, want %d", domain.ErrDimensionMismatch, len(query), idx.dimension)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, errClosed
	}
	q, ok := normalise(query)
	if k <= 0 || len(idx.ids) == 0 || !ok {
		return nil, nil
	}

	hits := make([]driven.VectorHit, len(idx.ids))
	for i, vec := range idx.vectors {
		hits[i] = driven.VectorHit{ChunkID: idx.ids[i], Similarity: dot(q, vec)}
	}
	slices.SortFunc(hits, func(a, b driven.VectorHit) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.ChunkID, b.ChunkID)
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of vectors in the index.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.ids)
}

// Dimensions returns the vector size the index accepts.
func (idx *Index) Dimensions() int {
	return idx.dimension
}

// Close releases the stored vectors.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.closed = true
	idx.ids = nil
	idx.vectors = nil
	idx.positions = nil
	return nil
}

// normalise returns a unit-length copy of v, or false for a zero vector.
func normalise(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, false
	}
	n := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out, true
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
