package driving

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// QueryService answers questions grounded in a session's documents.
type QueryService interface {
	// Answer retrieves passages relevant to query and generates an answer.
	// A session without documents yields domain.NoDocumentsAnswer.
	Answer(ctx context.Context, query, sessionID string) (*domain.Answer, error)
}
