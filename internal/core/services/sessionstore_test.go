package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/adapters/driven/embedding/hashing"
	"github.com/custodia-labs/docqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docqa/internal/adapters/driven/vector/flat"
	"github.com/custodia-labs/docqa/internal/core/domain"
)

func TestSessionStore_MergeCreatesThenAppends(t *testing.T) {
	env := newTestEnv(t.TempDir())
	ctx := context.Background()

	res, err := env.sessions.MergeAppend(ctx, "s1", testChunks("s1", "alpha passage", "beta passage"))
	require.NoError(t, err)
	assert.Equal(t, domain.MergeResult{Added: 2, Total: 2, Created: true}, res)

	res, err = env.sessions.MergeAppend(ctx, "s1", testChunks("s1b", "gamma passage"))
	require.NoError(t, err)
	assert.Equal(t, domain.MergeResult{Added: 1, Total: 3}, res)

	idx, err := env.sessions.Load(ctx, "s1")
	require.NoError(t, err)
	defer idx.Close()
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 3, env.telemetry.chunks)
}

func TestSessionStore_MergeZeroChunksIsNoop(t *testing.T) {
	env := newTestEnv(t.TempDir())
	ctx := context.Background()

	res, err := env.sessions.MergeAppend(ctx, "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.MergeResult{}, res)

	exists, err := env.sessions.Exists(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSessionStore_MergeRequiresSession(t *testing.T) {
	env := newTestEnv(t.TempDir())

	_, err := env.sessions.MergeAppend(context.Background(), "", testChunks("x", "a"))
	assert.ErrorIs(t, err, domain.ErrMissingSessionID)
}

func TestSessionStore_MergeRecoversCorruptIndex(t *testing.T) {
	env := newTestEnv(t.TempDir())
	ctx := context.Background()

	_, err := env.sessions.MergeAppend(ctx, "s1", testChunks("old", "old passage one", "old passage two"))
	require.NoError(t, err)
	env.store.markCorrupt("s1")

	_, err = env.sessions.Load(ctx, "s1")
	require.ErrorIs(t, err, domain.ErrIndexCorrupt)

	res, err := env.sessions.MergeAppend(ctx, "s1", testChunks("new", "new passage"))
	require.NoError(t, err)
	assert.True(t, res.Recovered)
	assert.False(t, res.Created)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, env.telemetry.recovered)

	snapshot, err := env.store.Read(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, snapshot.Entries, 1)
	assert.Equal(t, "new passage", snapshot.Entries[0].Content)
}

func TestSessionStore_MergeRecoversDimensionMismatch(t *testing.T) {
	store := memory.NewIndexStore()
	ctx := context.Background()

	small := NewSessionStore(store, hashing.NewEmbeddingService(8), flat.New, nil)
	_, err := small.MergeAppend(ctx, "s1", testChunks("s1", "eight dims"))
	require.NoError(t, err)

	large := NewSessionStore(store, hashing.NewEmbeddingService(16), flat.New, nil)
	_, err = large.Load(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	res, err := large.MergeAppend(ctx, "s1", testChunks("s2", "sixteen dims"))
	require.NoError(t, err)
	assert.True(t, res.Recovered)
	assert.Equal(t, 1, res.Total)
}

func TestSessionStore_MergeEmbeddingFailure(t *testing.T) {
	store := memory.NewIndexStore()
	embedder := &failingEmbedder{EmbeddingService: hashing.NewEmbeddingService(8), err: errBoom}
	sessions := NewSessionStore(store, embedder, flat.New, nil)

	_, err := sessions.MergeAppend(context.Background(), "s1", testChunks("s1", "a"))
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailed)
	assert.ErrorIs(t, err, errBoom)

	exists, err := store.Exists(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSessionStore_LoadBuildsIndexFromStoredEmbeddings(t *testing.T) {
	env := newTestEnv(t.TempDir())
	ctx := context.Background()

	_, err := env.sessions.MergeAppend(ctx, "s1", testChunks("s1", "alpha", "beta", "gamma"))
	require.NoError(t, err)

	// Replace one stored embedding; search must follow the stored vectors.
	snapshot, err := env.store.Read(ctx, "s1")
	require.NoError(t, err)
	betaVec, err := env.embedder.Embed(ctx, "beta")
	require.NoError(t, err)
	snapshot.Entries[2].Embedding = betaVec
	require.NoError(t, env.store.Write(ctx, snapshot))

	idx, err := env.sessions.Load(ctx, "s1")
	require.NoError(t, err)
	defer idx.Close()
	assert.Equal(t, 3, idx.Len())

	passages, err := idx.Search(ctx, betaVec, 2)
	require.NoError(t, err)
	require.Len(t, passages, 2)
	contents := []string{passages[0].Content, passages[1].Content}
	assert.ElementsMatch(t, []string{"beta", "gamma"}, contents)
}

func TestSessionStore_ConcurrentMergesLoseNothing(t *testing.T) {
	env := newTestEnv(t.TempDir())
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chunks := testChunks(fmt.Sprintf("w%d", i), fmt.Sprintf("writer %d first", i), fmt.Sprintf("writer %d second", i))
			_, err := env.sessions.MergeAppend(ctx, "shared", chunks)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snapshot, err := env.store.Read(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, snapshot.Entries, writers*2)
	assert.Equal(t, 0, env.sessions.locks.size())
}

func TestSessionStore_ReplicasSharingStoreLoseNothing(t *testing.T) {
	ctx := context.Background()
	shared := &lockingStore{IndexStore: memory.NewIndexStore(), locks: newKeyedLocker()}
	embedder := hashing.NewEmbeddingService(testDimensions)
	replicas := []*SessionStore{
		NewSessionStore(shared, embedder, flat.New, nil),
		NewSessionStore(shared, embedder, flat.New, nil),
	}

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chunks := testChunks(fmt.Sprintf("w%d", i), fmt.Sprintf("writer %d passage", i))
			_, err := replicas[i%2].MergeAppend(ctx, "shared", chunks)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snapshot, err := shared.Read(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, snapshot.Entries, writers)
	assert.Equal(t, writers, shared.locked)

	require.NoError(t, replicas[1].Delete(ctx, "shared"))
	assert.Equal(t, writers+1, shared.locked)
}

func TestSessionStore_StoreLockFailure(t *testing.T) {
	ctx := context.Background()
	shared := &lockingStore{
		IndexStore: memory.NewIndexStore(),
		locks:      newKeyedLocker(),
		lockErr:    errors.New("lock server down"),
	}
	sessions := NewSessionStore(shared, hashing.NewEmbeddingService(testDimensions), flat.New, nil)

	_, err := sessions.MergeAppend(ctx, "s1", testChunks("s1", "alpha passage"))
	assert.ErrorContains(t, err, "lock server down")
	assert.Equal(t, 0, sessions.locks.size())

	exists, err := shared.Exists(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSessionStore_DeleteIdempotent(t *testing.T) {
	env := newTestEnv(t.TempDir())
	ctx := context.Background()

	require.NoError(t, env.sessions.Delete(ctx, "missing"))
	assert.Equal(t, 0, env.telemetry.deleted)

	_, err := env.sessions.MergeAppend(ctx, "s1", testChunks("s1", "a"))
	require.NoError(t, err)
	require.NoError(t, env.sessions.Delete(ctx, "s1"))
	require.NoError(t, env.sessions.Delete(ctx, "s1"))
	assert.Equal(t, 1, env.telemetry.deleted)

	_, err = env.sessions.Load(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionStore_DeleteBefore(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewIndexStore(memory.WithClock(func() time.Time { return now }))
	sessions := NewSessionStore(store, hashing.NewEmbeddingService(8), flat.New, nil)
	ctx := context.Background()

	_, err := sessions.MergeAppend(ctx, "old", testChunks("old", "a"))
	require.NoError(t, err)
	now = now.Add(2 * time.Hour)
	_, err = sessions.MergeAppend(ctx, "fresh", testChunks("fresh", "b"))
	require.NoError(t, err)

	deleted, err := sessions.DeleteBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, deleted)

	exists, err := sessions.Exists(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSessionStore_DeleteBeforeSkipsRefreshedSession(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewIndexStore(memory.WithClock(func() time.Time { return now }))
	sessions := NewSessionStore(store, hashing.NewEmbeddingService(8), flat.New, nil)
	ctx := context.Background()

	_, err := sessions.MergeAppend(ctx, "s1", testChunks("s1", "a"))
	require.NoError(t, err)
	cutoff := now.Add(time.Minute)

	// Refreshed while the sweep holds only the listing.
	listed, err := store.ListModifiedBefore(ctx, cutoff)
	require.NoError(t, err)
	require.Equal(t, []string{"s1"}, listed)
	now = now.Add(time.Hour)
	_, err = sessions.MergeAppend(ctx, "s1", testChunks("s1b", "b"))
	require.NoError(t, err)

	ok, err := sessions.deleteIfStale(ctx, "s1", cutoff)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionStore_ResetDuringMergeNeverResurrectsOldData(t *testing.T) {
	env := newTestEnv(t.TempDir())
	ctx := context.Background()

	_, err := env.sessions.MergeAppend(ctx, "s1", testChunks("old", "old content"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := env.sessions.MergeAppend(ctx, "s1", testChunks("new", "new content"))
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, env.sessions.Delete(ctx, "s1"))
	}()
	wg.Wait()

	snapshot, err := env.store.Read(ctx, "s1")
	if err != nil {
		// Delete ran last.
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		return
	}
	// Merge ran last, so it recreated the session from its own chunks.
	for _, e := range snapshot.Entries {
		assert.Equal(t, "new content", e.Content)
	}
}
