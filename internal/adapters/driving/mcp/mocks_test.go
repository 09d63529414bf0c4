package mcp

import (
	"context"
	"time"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	answer    *domain.Answer
	err       error
	query     string
	sessionID string
}

func (m *mockQueryService) Answer(_ context.Context, query, sessionID string) (*domain.Answer, error) {
	m.query, m.sessionID = query, sessionID
	if m.err != nil {
		return nil, m.err
	}
	return m.answer, nil
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	source    domain.IngestSource
	sessionID string
	result    *domain.IngestResult
	err       error
}

func (m *mockIngestService) Ingest(_ context.Context, source domain.IngestSource, sessionID string) (*domain.IngestResult, error) {
	m.source, m.sessionID = source, sessionID
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockSessionService is a mock implementation of driving.SessionService.
type mockSessionService struct {
	status  *domain.SessionStatus
	resetID string
	err     error
}

func (m *mockSessionService) Reset(_ context.Context, sessionID string) error {
	m.resetID = sessionID
	return m.err
}

func (m *mockSessionService) Clear(_ context.Context, _ string, _ *time.Time) ([]string, error) {
	return nil, m.err
}

func (m *mockSessionService) Status(_ context.Context, _ string) (*domain.SessionStatus, error) {
	return m.status, m.err
}

func (m *mockSessionService) Expire(_ context.Context, _ time.Time) ([]string, error) {
	return nil, m.err
}
