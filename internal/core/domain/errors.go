package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	// Every client input error below wraps it.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown provider or backend type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// Client Input Errors.

	// ErrMissingSessionID indicates a request without a session identifier.
	ErrMissingSessionID = fmt.Errorf("%w: session_id is required", ErrInvalidInput)

	// ErrEmptyQuery indicates a question that is empty or whitespace.
	ErrEmptyQuery = fmt.Errorf("%w: query is required", ErrInvalidInput)

	// ErrEmptyUpload indicates an uploaded file with no content.
	ErrEmptyUpload = fmt.Errorf("%w: uploaded file is empty", ErrInvalidInput)

	// ErrMissingFilename indicates an uploaded file without a name.
	ErrMissingFilename = fmt.Errorf("%w: uploaded file has no filename", ErrInvalidInput)

	// ErrInvalidSourceURL indicates a remote source URL that cannot be fetched.
	ErrInvalidSourceURL = fmt.Errorf("%w: file_url must be an absolute http(s) URL", ErrInvalidInput)

	// ErrMissingResetTarget indicates a bulk deletion with neither a
	// session nor a cutoff.
	ErrMissingResetTarget = fmt.Errorf("%w: session_id or before is required", ErrInvalidInput)

	// Pipeline Errors.

	// ErrSourceUnreachable indicates a remote source could not be downloaded.
	ErrSourceUnreachable = errors.New("source unreachable")

	// ErrExtractionFailed indicates text could not be extracted from a document.
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrEmbeddingFailed indicates the embedding service rejected or failed a request.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrGenerationFailed indicates the LLM failed to produce an answer.
	ErrGenerationFailed = errors.New("answer generation failed")

	// ErrTimeout indicates an external call exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrTransient indicates a failure that may succeed if retried,
	// such as a rate limit or a 5xx response.
	ErrTransient = errors.New("transient failure")

	// Index Errors.

	// ErrSessionNotFound indicates no index exists for a session.
	ErrSessionNotFound = fmt.Errorf("session index %w", ErrNotFound)

	// ErrIndexCorrupt indicates a persisted session index could not be loaded.
	ErrIndexCorrupt = errors.New("session index corrupt")

	// ErrDimensionMismatch indicates an embedding of the wrong length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
