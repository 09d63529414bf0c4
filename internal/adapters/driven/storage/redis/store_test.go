package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// setupRedis starts a disposable Redis container and returns a store with
// a unique key prefix.
func setupRedis(t *testing.T) (*Store, *goredis.Client) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx := context.Background()
	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = redisC.Terminate(ctx) })

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	store, err := New(ctx, Config{Addr: host + ":" + port.Port(), KeyPrefix: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	client := goredis.NewClient(&goredis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { _ = client.Close() })

	return store, client
}

func testSnapshot(sessionID string) *domain.IndexSnapshot {
	now := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	return &domain.IndexSnapshot{
		SessionID:  sessionID,
		Model:      "hashing-3",
		Dimensions: 3,
		Entries: []domain.IndexEntry{
			{
				ID:      "c1",
				Content: "revenue was 12M",
				Metadata: domain.ChunkMetadata{
					Source: "report.pdf", Page: 2, SessionID: sessionID, IngestedAt: now,
				},
				Embedding: []float32{0.5, 0.25, -1},
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStore_Integration(t *testing.T) {
	store, client := setupRedis(t)
	ctx := context.Background()

	t.Run("missing session", func(t *testing.T) {
		exists, err := store.Exists(ctx, "s0")
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = store.Read(ctx, "s0")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("write and read", func(t *testing.T) {
		require.NoError(t, store.Write(ctx, testSnapshot("s1")))

		exists, err := store.Exists(ctx, "s1")
		require.NoError(t, err)
		assert.True(t, exists)

		got, err := store.Read(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, testSnapshot("s1"), got)
	})

	t.Run("corrupt value", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "test:index:bad", "{not json", 0).Err())

		_, err := store.Read(ctx, "bad")
		assert.ErrorIs(t, err, domain.ErrIndexCorrupt)
	})

	t.Run("modified before", func(t *testing.T) {
		old := time.Now().Add(-48 * time.Hour)
		store.now = func() time.Time { return old }
		require.NoError(t, store.Write(ctx, testSnapshot("stale")))
		store.now = time.Now

		mtime, err := store.ModifiedAt(ctx, "stale")
		require.NoError(t, err)
		assert.Equal(t, old.UnixMilli(), mtime.UnixMilli())

		sessions, err := store.ListModifiedBefore(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, []string{"stale"}, sessions)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "s1"))
		require.NoError(t, store.Delete(ctx, "s1"))

		exists, err := store.Exists(ctx, "s1")
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = store.ModifiedAt(ctx, "s1")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

func TestStore_LockSession(t *testing.T) {
	store, client := setupRedis(t)
	ctx := context.Background()

	t.Run("exclusive until released", func(t *testing.T) {
		unlock, err := store.LockSession(ctx, "s1")
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()
		_, err = store.LockSession(waitCtx, "s1")
		assert.Error(t, err)

		other, err := store.LockSession(ctx, "s2")
		require.NoError(t, err)
		other()

		unlock()
		exists, err := client.Exists(ctx, "test:lock:s1").Result()
		require.NoError(t, err)
		assert.Zero(t, exists)

		again, err := store.LockSession(ctx, "s1")
		require.NoError(t, err)
		again()
	})

	t.Run("two stores share the lock", func(t *testing.T) {
		replica := NewWithClient(client, "test")
		unlock, err := store.LockSession(ctx, "shared")
		require.NoError(t, err)

		acquired := make(chan func(), 1)
		go func() {
			u, err := replica.LockSession(ctx, "shared")
			assert.NoError(t, err)
			acquired <- u
		}()

		select {
		case <-acquired:
			t.Fatal("replica acquired a held lock")
		case <-time.After(150 * time.Millisecond):
		}
		unlock()

		select {
		case u := <-acquired:
			u()
		case <-time.After(5 * time.Second):
			t.Fatal("replica never acquired the released lock")
		}
	})

	t.Run("expired lock is taken over", func(t *testing.T) {
		short := NewWithClient(client, "test")
		short.lockTTL = 100 * time.Millisecond
		stale, err := short.LockSession(ctx, "crashed")
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		unlock, err := store.LockSession(waitCtx, "crashed")
		require.NoError(t, err)

		// Releasing the expired lock must not drop the new holder's.
		stale()
		exists, err := client.Exists(ctx, "test:lock:crashed").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)
		unlock()
	})
}

func TestStore_Keys(t *testing.T) {
	s := NewWithClient(nil, "")
	assert.Equal(t, "docqa:index:abc", s.snapshotKey("abc"))
	assert.Equal(t, "docqa:index-modified", s.modifiedKey())
	assert.Equal(t, "docqa:lock:abc", s.lockKey("abc"))
	assert.Equal(t, DefaultLockTTL, s.lockTTL)
	assert.NoError(t, s.Close())
}
