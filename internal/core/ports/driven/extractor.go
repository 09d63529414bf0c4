package driven

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// TextExtractor recovers plain text from a document on disk.
type TextExtractor interface {
	// Extract reads the file at path and returns its text by page.
	Extract(ctx context.Context, path string) (*domain.ExtractedText, error)

	// Name identifies the extractor in logs.
	Name() string
}

// TextSplitter divides text into bounded, overlapping spans.
type TextSplitter interface {
	// Split returns the spans of text in order. Empty input yields no spans
	// and no span is ever empty.
	Split(text string) []domain.TextSpan
}
