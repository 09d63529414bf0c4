package driving

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// IngestService adds documents to a session's retrieval index.
type IngestService interface {
	// Ingest extracts, chunks and indexes the source into the session.
	Ingest(ctx context.Context, source domain.IngestSource, sessionID string) (*domain.IngestResult, error)
}
