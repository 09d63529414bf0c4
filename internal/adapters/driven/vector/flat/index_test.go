package flat

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

func unit(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func randomVector(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return v
}

// bruteForceScores returns the cosine similarity of every vector to the
// query, computed directly in float64.
func bruteForceScores(query []float32, ids []string, vectors [][]float32) map[string]float64 {
	scores := make(map[string]float64, len(ids))
	for i := range ids {
		var d, nq, nv float64
		for j := range query {
			d += float64(query[j]) * float64(vectors[i][j])
			nq += float64(query[j]) * float64(query[j])
			nv += float64(vectors[i][j]) * float64(vectors[i][j])
		}
		scores[ids[i]] = d / (math.Sqrt(nq) * math.Sqrt(nv))
	}
	return scores
}

// kthBest returns the k-th highest score.
func kthBest(scores map[string]float64, k int) float64 {
	all := make([]float64, 0, len(scores))
	for _, s := range scores {
		all = append(all, s)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(all)))
	return all[k-1]
}

func TestNew_InvalidDimension(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
}

func TestIndex_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	idx, err := New(4)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Add(ctx, "a", unit(4, 0)))
	require.NoError(t, idx.Add(ctx, "b", unit(4, 1)))
	require.NoError(t, idx.Add(ctx, "c", []float32{0.9, 0.1, 0, 0}))
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 4, idx.Dimensions())

	hits, err := idx.Search(ctx, unit(4, 0), 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, "c", hits[1].ChunkID)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestIndex_AddReplacesExistingID(t *testing.T) {
	ctx := context.Background()
	idx, err := New(2)
	require.NoError(t, err)

	require.NoError(t, idx.Add(ctx, "a", []float32{1, 0}))
	require.NoError(t, idx.Add(ctx, "a", []float32{0, 1}))
	assert.Equal(t, 1, idx.Len())

	hits, err := idx.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
}

func TestIndex_SearchEmpty(t *testing.T) {
	idx, err := New(3)
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), unit(3, 0), 4)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_SearchKLargerThanIndex(t *testing.T) {
	ctx := context.Background()
	idx, err := New(3)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, "only", unit(3, 2)))

	hits, err := idx.Search(ctx, unit(3, 2), 4)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "only", hits[0].ChunkID)
}

func TestIndex_TiesOrderedByID(t *testing.T) {
	ctx := context.Background()
	idx, err := New(2)
	require.NoError(t, err)
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, idx.Add(ctx, id, []float32{1, 1}))
	}

	hits, err := idx.Search(ctx, []float32{1, 1}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{hits[0].ChunkID, hits[1].ChunkID, hits[2].ChunkID})
}

func TestIndex_MatchesBruteForce(t *testing.T) {
	for _, n := range []int{100, 500, 2000} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			ctx := context.Background()
			r := rand.New(rand.NewSource(int64(n)))
			const dim, k = 256, 4

			idx, err := New(dim)
			require.NoError(t, err)
			ids := make([]string, n)
			vectors := make([][]float32, n)
			for i := range ids {
				ids[i] = fmt.Sprintf("chunk-%04d", i)
				vectors[i] = randomVector(r, dim)
				require.NoError(t, idx.Add(ctx, ids[i], vectors[i]))
			}

			for q := 0; q < 50; q++ {
				query := randomVector(r, dim)
				hits, err := idx.Search(ctx, query, k)
				require.NoError(t, err)

				require.Len(t, hits, k)

				// Every hit is among the true top k, up to float32 rounding.
				scores := bruteForceScores(query, ids, vectors)
				cutoff := kthBest(scores, k)
				for _, h := range hits {
					assert.GreaterOrEqual(t, scores[h.ChunkID], cutoff-1e-6, "query %d: %s not in top %d", q, h.ChunkID, k)
					assert.InDelta(t, scores[h.ChunkID], h.Similarity, 1e-5)
				}
				for i := 1; i < len(hits); i++ {
					assert.GreaterOrEqual(t, hits[i-1].Similarity, hits[i].Similarity)
				}
			}
		})
	}
}

func TestIndex_EveryStoredVectorFindsItself(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(7))
	const n, dim = 500, 64

	idx, err := New(dim)
	require.NoError(t, err)
	vectors := make([][]float32, n)
	for i := range vectors {
		vectors[i] = randomVector(r, dim)
		require.NoError(t, idx.Add(ctx, fmt.Sprintf("chunk-%d", i), vectors[i]))
	}

	for i, v := range vectors {
		hits, err := idx.Search(ctx, v, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, fmt.Sprintf("chunk-%d", i), hits[0].ChunkID)
	}
}

func TestIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx, err := New(3)
	require.NoError(t, err)

	err = idx.Add(ctx, "x", []float32{1, 0})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestIndex_RejectsZeroVector(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)
	assert.Error(t, idx.Add(context.Background(), "zero", []float32{0, 0}))
	assert.Equal(t, 0, idx.Len())
}

func TestIndex_ZeroQueryHasNoHits(t *testing.T) {
	ctx := context.Background()
	idx, err := New(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, "a", []float32{1, 0}))

	hits, err := idx.Search(ctx, []float32{0, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_Closed(t *testing.T) {
	ctx := context.Background()
	idx, err := New(2)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	assert.Error(t, idx.Add(ctx, "a", []float32{1, 0}))
	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	assert.Error(t, err)
	assert.Equal(t, 0, idx.Len())
}

func TestIndex_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	idx, err := New(2)
	require.NoError(t, err)
	assert.ErrorIs(t, idx.Add(ctx, "a", []float32{1, 0}), context.Canceled)
	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
