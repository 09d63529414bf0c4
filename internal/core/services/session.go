package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
	"github.com/custodia-labs/docqa/internal/logger"
)

// Ensure SessionService implements the interface.
var _ driving.SessionService = (*SessionService)(nil)

// BlobPrefix returns the object storage folder holding a session's uploads.
func BlobPrefix(sessionID string) string {
	return "pdfs/" + sessionID
}

// SessionService resets and expires sessions. Deleting the index is the
// operation that matters; companion blob cleanup is best effort.
type SessionService struct {
	sessions  *SessionStore
	blobs     driven.BlobStore
	telemetry driven.Telemetry
	log       *slog.Logger
}

// NewSessionService creates the session lifecycle service.
// A nil blob store skips companion cleanup.
func NewSessionService(sessions *SessionStore, blobs driven.BlobStore, telemetry driven.Telemetry) *SessionService {
	if telemetry == nil {
		telemetry = driven.NopTelemetry{}
	}
	return &SessionService{
		sessions:  sessions,
		blobs:     blobs,
		telemetry: telemetry,
		log:       logger.Module("services", "session"),
	}
}

// Reset deletes the session index, then its uploaded blobs.
// Resetting a session that does not exist succeeds.
func (s *SessionService) Reset(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return domain.ErrMissingSessionID
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("reset session %s: %w", sessionID, err)
	}
	s.cleanupBlobs(ctx, sessionID)
	s.log.Info("session reset", "session_id", sessionID)
	return nil
}

// Status reports whether the session has documents and where they came from.
func (s *SessionService) Status(ctx context.Context, sessionID string) (*domain.SessionStatus, error) {
	return s.sessions.Stat(ctx, sessionID)
}

// Clear deletes one session, every session last written before a cutoff,
// or both. At least one target is required. Returns the deleted sessions.
func (s *SessionService) Clear(ctx context.Context, sessionID string, before *time.Time) ([]string, error) {
	if sessionID == "" && before == nil {
		return nil, domain.ErrMissingResetTarget
	}

	var deleted []string
	if sessionID != "" {
		if err := s.Reset(ctx, sessionID); err != nil {
			return nil, err
		}
		deleted = append(deleted, sessionID)
	}

	if before != nil {
		expired, err := s.Expire(ctx, *before)
		deleted = append(deleted, expired...)
		if err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

// Expire deletes every session last written before cutoff, with the
// same blob cleanup as Reset for each one.
func (s *SessionService) Expire(ctx context.Context, cutoff time.Time) ([]string, error) {
	deleted, err := s.sessions.DeleteBefore(ctx, cutoff)
	for _, sessionID := range deleted {
		s.cleanupBlobs(ctx, sessionID)
	}
	if err != nil {
		return deleted, fmt.Errorf("expire sessions: %w", err)
	}
	return deleted, nil
}

// cleanupBlobs removes the session's uploads from object storage.
// Failures are logged and counted, never returned.
func (s *SessionService) cleanupBlobs(ctx context.Context, sessionID string) {
	if s.blobs == nil {
		return
	}

	prefix := BlobPrefix(sessionID)
	paths, err := s.blobs.List(ctx, prefix)
	if err != nil {
		s.blobFailed(sessionID, "list", err)
		return
	}
	if len(paths) == 0 {
		return
	}
	if err := s.blobs.Remove(ctx, paths); err != nil {
		s.blobFailed(sessionID, "remove", err)
		return
	}
	s.log.Debug("removed session blobs", "session_id", sessionID, "count", len(paths))
}

func (s *SessionService) blobFailed(sessionID, op string, err error) {
	s.telemetry.BlobCleanupFailed()
	s.log.Warn("blob cleanup failed", "session_id", sessionID, "op", op, "error", err)
}
