package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure IndexStore implements the interface.
var _ driven.IndexStore = (*IndexStore)(nil)

// IndexStore is an in-memory implementation of driven.IndexStore.
// Snapshots are copied on the way in and out so callers cannot mutate
// stored state.
type IndexStore struct {
	mu        sync.RWMutex
	snapshots map[string]storedSnapshot
	now       func() time.Time
}

type storedSnapshot struct {
	snapshot   domain.IndexSnapshot
	modifiedAt time.Time
}

// IndexStoreOption configures the in-memory index store.
type IndexStoreOption func(*IndexStore)

// WithClock sets the clock used for modification times.
func WithClock(now func() time.Time) IndexStoreOption {
	return func(s *IndexStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewIndexStore creates a new in-memory index store.
func NewIndexStore(opts ...IndexStoreOption) *IndexStore {
	s := &IndexStore{
		snapshots: make(map[string]storedSnapshot),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Exists returns true if a snapshot is stored for the session.
func (s *IndexStore) Exists(_ context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.snapshots[sessionID]
	return ok, nil
}

// Read returns a copy of the session snapshot.
func (s *IndexStore) Read(_ context.Context, sessionID string) (*domain.IndexSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.snapshots[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return copySnapshot(&stored.snapshot), nil
}

// Write replaces the session snapshot.
func (s *IndexStore) Write(_ context.Context, snapshot *domain.IndexSnapshot) error {
	if snapshot == nil || snapshot.SessionID == "" {
		return domain.ErrMissingSessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.SessionID] = storedSnapshot{
		snapshot:   *copySnapshot(snapshot),
		modifiedAt: s.now(),
	}
	return nil
}

// Delete removes the session snapshot.
func (s *IndexStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, sessionID)
	return nil
}

// ModifiedAt returns when the session snapshot was last written.
func (s *IndexStore) ModifiedAt(_ context.Context, sessionID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.snapshots[sessionID]
	if !ok {
		return time.Time{}, domain.ErrSessionNotFound
	}
	return stored.modifiedAt, nil
}

// ListModifiedBefore returns sessions last written before the cutoff, sorted by ID.
func (s *IndexStore) ListModifiedBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sessions []string
	for id, stored := range s.snapshots {
		if stored.modifiedAt.Before(cutoff) {
			sessions = append(sessions, id)
		}
	}
	sort.Strings(sessions)
	return sessions, nil
}

// Close is a no-op for the in-memory store.
func (s *IndexStore) Close() error {
	return nil
}

func copySnapshot(src *domain.IndexSnapshot) *domain.IndexSnapshot {
	dst := *src
	if src.Entries != nil {
		dst.Entries = make([]domain.IndexEntry, len(src.Entries))
		for i, e := range src.Entries {
			e.Embedding = append([]float32(nil), e.Embedding...)
			dst.Entries[i] = e
		}
	}
	return &dst
}
