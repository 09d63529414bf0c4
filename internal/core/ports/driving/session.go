package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// SessionService tears down session state.
type SessionService interface {
	// Reset deletes the session index and its companion blobs.
	// Resetting an unknown session succeeds.
	Reset(ctx context.Context, sessionID string) error

	// Clear deletes by session, by cutoff, or both.
	// At least one of sessionID and before must be set.
	Clear(ctx context.Context, sessionID string, before *time.Time) ([]string, error)

	// Status summarises the session's index. Unknown sessions are
	// reported with Exists false.
	Status(ctx context.Context, sessionID string) (*domain.SessionStatus, error)

	// Expire deletes every session last modified before the cutoff.
	Expire(ctx context.Context, cutoff time.Time) ([]string, error)
}
