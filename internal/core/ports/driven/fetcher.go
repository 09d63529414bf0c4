package driven

import (
	"context"
	"io"
)

// SourceFetcher downloads remote documents.
type SourceFetcher interface {
	// Fetch streams the document at url into w and returns the bytes written.
	// Network failures and unsuccessful responses wrap domain.ErrSourceUnreachable;
	// deadline expiry wraps domain.ErrTimeout.
	Fetch(ctx context.Context, url string, w io.Writer) (int64, error)
}
