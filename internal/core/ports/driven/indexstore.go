package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// IndexStore persists one complete index snapshot per session.
//
// Writes must be atomic: a concurrent or subsequent Read observes either
// the previous snapshot or the new one, never a mix. The session manager
// serialises writers within one process; stores shared between processes
// also implement SessionLocker.
type IndexStore interface {
	// Exists returns true if a snapshot is stored for the session.
	Exists(ctx context.Context, sessionID string) (bool, error)

	// Read loads the session snapshot.
	// Returns domain.ErrSessionNotFound if none is stored and an error
	// wrapping domain.ErrIndexCorrupt if the stored data is unreadable.
	Read(ctx context.Context, sessionID string) (*domain.IndexSnapshot, error)

	// Write replaces the session snapshot atomically.
	Write(ctx context.Context, snapshot *domain.IndexSnapshot) error

	// Delete removes the session snapshot. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// ModifiedAt returns when the session snapshot was last written.
	ModifiedAt(ctx context.Context, sessionID string) (time.Time, error)

	// ListModifiedBefore returns sessions last written before the cutoff.
	ListModifiedBefore(ctx context.Context, cutoff time.Time) ([]string, error)

	// Close releases resources.
	Close() error
}

// SessionLocker is implemented by index stores that several processes
// share. LockSession blocks until the caller holds the session exclusively
// or ctx is done. The returned function releases the lock.
type SessionLocker interface {
	LockSession(ctx context.Context, sessionID string) (unlock func(), err error)
}
