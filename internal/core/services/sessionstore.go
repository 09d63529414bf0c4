package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/logger"
)

// SessionIndex is a loaded, searchable session snapshot.
type SessionIndex struct {
	snapshot *domain.IndexSnapshot
	entries  map[string]*domain.IndexEntry
	vectors  driven.VectorIndex
}

// Len returns the number of passages in the index.
func (i *SessionIndex) Len() int {
	return len(i.snapshot.Entries)
}

// Search returns up to k passages closest to the query vector, best first.
func (i *SessionIndex) Search(ctx context.Context, query []float32, k int) ([]domain.RetrievedPassage, error) {
	hits, err := i.vectors.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("search session index: %w", err)
	}

	passages := make([]domain.RetrievedPassage, 0, len(hits))
	for _, hit := range hits {
		entry, ok := i.entries[hit.ChunkID]
		if !ok {
			continue
		}
		passages = append(passages, domain.RetrievedPassage{
			Content:  entry.Content,
			Metadata: entry.Metadata,
			Score:    hit.Similarity,
		})
	}
	return passages, nil
}

// Close releases the vector index.
func (i *SessionIndex) Close() error {
	return i.vectors.Close()
}

// SessionStore manages per-session indexes on top of an IndexStore.
// Merges and deletes of one session are serialised by a keyed lock, and
// across processes by the store when it implements driven.SessionLocker.
// Readers rely on the store publishing snapshots atomically.
type SessionStore struct {
	store     driven.IndexStore
	embedder  driven.EmbeddingService
	newIndex  driven.VectorIndexFactory
	telemetry driven.Telemetry
	locks     *keyedLocker
	log       *slog.Logger
	now       func() time.Time
}

// NewSessionStore creates a session store manager.
// A nil telemetry sink discards events.
func NewSessionStore(
	store driven.IndexStore,
	embedder driven.EmbeddingService,
	newIndex driven.VectorIndexFactory,
	telemetry driven.Telemetry,
) *SessionStore {
	if telemetry == nil {
		telemetry = driven.NopTelemetry{}
	}
	return &SessionStore{
		store:     store,
		embedder:  embedder,
		newIndex:  newIndex,
		telemetry: telemetry,
		locks:     newKeyedLocker(),
		log:       logger.Module("services", "sessions"),
		now:       time.Now,
	}
}

// Exists reports whether the session has a stored index.
func (s *SessionStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, domain.ErrMissingSessionID
	}
	return s.store.Exists(ctx, sessionID)
}

// Load reads the session snapshot and rebuilds its vector index.
// Returns domain.ErrSessionNotFound if the session has no index and an
// error wrapping domain.ErrIndexCorrupt if it cannot be used.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (*SessionIndex, error) {
	if sessionID == "" {
		return nil, domain.ErrMissingSessionID
	}
	snapshot, err := s.store.Read(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, snapshot)
}

// Stat summarises the session without opening its vector index.
// An absent session is reported with Exists false.
func (s *SessionStore) Stat(ctx context.Context, sessionID string) (*domain.SessionStatus, error) {
	if sessionID == "" {
		return nil, domain.ErrMissingSessionID
	}
	status := &domain.SessionStatus{SessionID: sessionID, Sources: []string{}}

	snapshot, err := s.store.Read(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return status, nil
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, e := range snapshot.Entries {
		if !seen[e.Metadata.Source] {
			seen[e.Metadata.Source] = true
			status.Sources = append(status.Sources, e.Metadata.Source)
		}
	}
	status.Exists = true
	status.Chunks = len(snapshot.Entries)
	status.Model = snapshot.Model
	status.UpdatedAt = snapshot.UpdatedAt
	return status, nil
}

// MergeAppend embeds chunks and appends them to the session index,
// creating the index if absent. A corrupt index is replaced by one built
// from these chunks alone and the result is marked Recovered.
// Zero chunks is a no-op.
func (s *SessionStore) MergeAppend(ctx context.Context, sessionID string, chunks []domain.Chunk) (domain.MergeResult, error) {
	if sessionID == "" {
		return domain.MergeResult{}, domain.ErrMissingSessionID
	}
	if len(chunks) == 0 {
		return domain.MergeResult{}, nil
	}

	entries, err := s.embed(ctx, chunks)
	if err != nil {
		return domain.MergeResult{}, err
	}

	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return domain.MergeResult{}, fmt.Errorf("lock session: %w", err)
	}
	defer unlock()

	var result domain.MergeResult
	now := s.now().UTC()

	idx, err := s.Load(ctx, sessionID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrSessionNotFound):
		result.Created = true
	case errors.Is(err, domain.ErrIndexCorrupt):
		result.Recovered = true
		s.log.Warn("session index unreadable, rebuilding from new chunks only",
			"session_id", sessionID, "error", err)
		s.telemetry.IndexRecovered()
	default:
		return domain.MergeResult{}, fmt.Errorf("read session index: %w", err)
	}
	if idx == nil {
		if idx, err = s.open(ctx, s.emptySnapshot(sessionID, now)); err != nil {
			return domain.MergeResult{}, err
		}
	}
	defer idx.Close()
	snapshot := idx.snapshot

	for _, entry := range entries {
		if err := idx.vectors.Add(ctx, entry.ID, entry.Embedding); err != nil {
			return domain.MergeResult{}, fmt.Errorf("index chunk %s: %w", entry.ID, err)
		}
	}
	snapshot.Entries = append(snapshot.Entries, entries...)

	snapshot.UpdatedAt = now

	if err := s.store.Write(ctx, snapshot); err != nil {
		return domain.MergeResult{}, fmt.Errorf("write session index: %w", err)
	}

	result.Added = len(entries)
	result.Total = len(snapshot.Entries)
	s.telemetry.ChunksIngested(result.Added)
	s.log.Debug("merged chunks into session",
		"session_id", sessionID, "chunks", result.Added, "total", result.Total,
		"created", result.Created, "recovered", result.Recovered)

	return result, nil
}

// Delete removes the session index. Deleting a missing session is not an error.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return domain.ErrMissingSessionID
	}

	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("lock session: %w", err)
	}
	defer unlock()

	exists, err := s.store.Exists(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("check session index: %w", err)
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session index: %w", err)
	}
	if exists {
		s.telemetry.SessionsDeleted(1)
		s.log.Debug("deleted session index", "session_id", sessionID)
	}
	return nil
}

// DeleteBefore removes every session last written before cutoff and
// returns the deleted session IDs. A session written again after it was
// listed is kept. Failures on one session do not stop the others.
func (s *SessionStore) DeleteBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	candidates, err := s.store.ListModifiedBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var (
		deleted []string
		errs    []error
	)
	for _, sessionID := range candidates {
		ok, err := s.deleteIfStale(ctx, sessionID, cutoff)
		if err != nil {
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				break
			}
			errs = append(errs, fmt.Errorf("session %s: %w", sessionID, err))
			continue
		}
		if ok {
			deleted = append(deleted, sessionID)
		}
	}

	if len(deleted) > 0 {
		s.telemetry.SessionsDeleted(len(deleted))
		s.log.Info("deleted stale sessions", "count", len(deleted), "cutoff", cutoff)
	}
	return deleted, errors.Join(errs...)
}

func (s *SessionStore) deleteIfStale(ctx context.Context, sessionID string, cutoff time.Time) (bool, error) {
	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return false, err
	}
	defer unlock()

	modified, err := s.store.ModifiedAt(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !modified.Before(cutoff) {
		return false, nil
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return false, err
	}
	return true, nil
}

// lock takes the in-process session lock, then the store's lock if it
// has one.
func (s *SessionStore) lock(ctx context.Context, sessionID string) (func(), error) {
	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	locker, ok := s.store.(driven.SessionLocker)
	if !ok {
		return unlock, nil
	}
	unlockStore, err := locker.LockSession(ctx, sessionID)
	if err != nil {
		unlock()
		return nil, err
	}
	return func() {
		unlockStore()
		unlock()
	}, nil
}

// embed computes embeddings for chunks and converts them to index entries.
func (s *SessionStore) embed(ctx context.Context, chunks []domain.Chunk) ([]domain.IndexEntry, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d chunks",
			domain.ErrEmbeddingFailed, len(vectors), len(chunks))
	}

	dims := s.embedder.Dimensions()
	entries := make([]domain.IndexEntry, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != dims {
			return nil, fmt.Errorf("%w: %w: chunk %s has %d dimensions, want %d",
				domain.ErrEmbeddingFailed, domain.ErrDimensionMismatch, c.ID, len(vectors[i]), dims)
		}
		entries[i] = domain.IndexEntry{
			ID:        c.ID,
			Content:   c.Content,
			Metadata:  c.Metadata,
			Embedding: vectors[i],
		}
	}
	return entries, nil
}

// checkCompatible rejects snapshots built with a different embedding size.
// Their vectors cannot be searched with the current embedder.
func (s *SessionStore) checkCompatible(snapshot *domain.IndexSnapshot) error {
	if dims := s.embedder.Dimensions(); snapshot.Dimensions != dims {
		return fmt.Errorf("%w: %w: index has %d dimensions, embedder produces %d",
			domain.ErrIndexCorrupt, domain.ErrDimensionMismatch, snapshot.Dimensions, dims)
	}
	return nil
}

func (s *SessionStore) emptySnapshot(sessionID string, now time.Time) *domain.IndexSnapshot {
	return &domain.IndexSnapshot{
		SessionID:  sessionID,
		Model:      s.embedder.ModelName(),
		Dimensions: s.embedder.Dimensions(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// open builds a searchable index from the embeddings stored in a snapshot.
func (s *SessionStore) open(ctx context.Context, snapshot *domain.IndexSnapshot) (*SessionIndex, error) {
	if err := s.checkCompatible(snapshot); err != nil {
		return nil, err
	}

	vectors, err := s.newIndex(snapshot.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("create vector index: %w", err)
	}

	entries := make(map[string]*domain.IndexEntry, len(snapshot.Entries))
	for i := range snapshot.Entries {
		e := &snapshot.Entries[i]
		entries[e.ID] = e
		if err := vectors.Add(ctx, e.ID, e.Embedding); err != nil {
			vectors.Close()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: entry %s: %w", domain.ErrIndexCorrupt, e.ID, err)
		}
	}
	return &SessionIndex{snapshot: snapshot, entries: entries, vectors: vectors}, nil
}
