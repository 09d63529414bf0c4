package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/adapters/driven/embedding/hashing"
	"github.com/custodia-labs/docqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docqa/internal/adapters/driven/vector/flat"
	"github.com/custodia-labs/docqa/internal/core/domain"
)

func TestBlobPrefix(t *testing.T) {
	assert.Equal(t, "pdfs/abc-123", BlobPrefix("abc-123"))
}

func TestSessionService_ResetRemovesIndexAndBlobs(t *testing.T) {
	env := newTestEnv(t.TempDir())
	ctx := context.Background()

	_, err := env.upload(ctx, "s1", "a.pdf", "some content")
	require.NoError(t, err)
	env.blobs.objects["pdfs/s1"] = []string{"pdfs/s1/a.pdf", "pdfs/s1/b.pdf"}

	require.NoError(t, env.session.Reset(ctx, "s1"))

	exists, err := env.sessions.Exists(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, []string{"pdfs/s1/a.pdf", "pdfs/s1/b.pdf"}, env.blobs.removed)
	assert.Zero(t, env.telemetry.blobFailures)
}

func TestSessionService_ResetIsIdempotent(t *testing.T) {
	env := newTestEnv(t.TempDir())
	ctx := context.Background()

	require.NoError(t, env.session.Reset(ctx, "never-existed"))
	require.NoError(t, env.session.Reset(ctx, "never-existed"))
	assert.Empty(t, env.blobs.removed)
}

func TestSessionService_ResetRequiresSession(t *testing.T) {
	env := newTestEnv(t.TempDir())

	err := env.session.Reset(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrMissingSessionID)
}

func TestSessionService_BlobFailuresAreSwallowed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*mockBlobStore)
	}{
		{"list fails", func(b *mockBlobStore) { b.listErr = errBoom }},
		{"remove fails", func(b *mockBlobStore) {
			b.objects["pdfs/s1"] = []string{"pdfs/s1/a.pdf"}
			b.removeErr = errBoom
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t.TempDir())
			ctx := context.Background()
			_, err := env.upload(ctx, "s1", "a.pdf", "some content")
			require.NoError(t, err)
			tt.setup(env.blobs)

			require.NoError(t, env.session.Reset(ctx, "s1"))

			exists, err := env.sessions.Exists(ctx, "s1")
			require.NoError(t, err)
			assert.False(t, exists)
			assert.Equal(t, 1, env.telemetry.blobFailures)
		})
	}
}

func TestSessionService_WithoutBlobStore(t *testing.T) {
	env := newTestEnv(t.TempDir())
	ctx := context.Background()
	svc := NewSessionService(env.sessions, nil, nil)

	_, err := env.upload(ctx, "s1", "a.pdf", "some content")
	require.NoError(t, err)
	require.NoError(t, svc.Reset(ctx, "s1"))

	exists, err := env.sessions.Exists(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSessionService_ClearRequiresTarget(t *testing.T) {
	env := newTestEnv(t.TempDir())

	_, err := env.session.Clear(context.Background(), "", nil)
	assert.ErrorIs(t, err, domain.ErrMissingResetTarget)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSessionService_ClearAndExpire(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewIndexStore(memory.WithClock(func() time.Time { return now }))
	sessions := NewSessionStore(store, hashing.NewEmbeddingService(8), flat.New, nil)
	blobs := &mockBlobStore{objects: map[string][]string{
		"pdfs/stale": {"pdfs/stale/old.pdf"},
	}}
	svc := NewSessionService(sessions, blobs, nil)
	ctx := context.Background()

	for _, id := range []string{"stale", "target"} {
		_, err := sessions.MergeAppend(ctx, id, testChunks(id, "content"))
		require.NoError(t, err)
	}
	now = now.Add(3 * time.Hour)
	_, err := sessions.MergeAppend(ctx, "fresh", testChunks("fresh", "content"))
	require.NoError(t, err)

	// target is removed explicitly, stale by the cutoff.
	cutoff := now.Add(-time.Hour)
	deleted, err := svc.Clear(ctx, "target", &cutoff)
	require.NoError(t, err)
	assert.Equal(t, []string{"target", "stale"}, deleted)
	assert.Equal(t, []string{"pdfs/stale/old.pdf"}, blobs.removed)

	exists, err := sessions.Exists(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, exists)

	// Nothing left to expire.
	deleted, err = svc.Expire(ctx, cutoff)
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestSessionService_Status(t *testing.T) {
	env := newTestEnv(t.TempDir())
	ctx := context.Background()

	status, err := env.session.Status(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, status.Exists)
	assert.Empty(t, status.Sources)

	_, err = env.upload(ctx, "s1", "a.pdf", "First document text.")
	require.NoError(t, err)
	_, err = env.upload(ctx, "s1", "b.pdf", "Second document text.", "More of it.")
	require.NoError(t, err)

	status, err = env.session.Status(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.Equal(t, 3, status.Chunks)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, status.Sources)
	assert.Equal(t, "hashing-64", status.Model)
	assert.False(t, status.UpdatedAt.IsZero())

	_, err = env.session.Status(ctx, "")
	assert.ErrorIs(t, err, domain.ErrMissingSessionID)
}
