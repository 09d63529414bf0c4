package driven

import "time"

// Telemetry receives operational events from the core services.
// Implementations must be safe for concurrent use and must not block.
type Telemetry interface {
	// ChunksIngested records chunks merged into a session.
	ChunksIngested(n int)

	// IndexRecovered records a corrupt index replaced during a merge.
	IndexRecovered()

	// QueryAnswered records a question and whether the session had documents.
	QueryAnswered(hadDocuments bool, elapsed time.Duration)

	// SessionsDeleted records removed session indexes.
	SessionsDeleted(n int)

	// BlobCleanupFailed records a swallowed companion blob cleanup failure.
	BlobCleanupFailed()

	// LLMRetried records a retried generation attempt.
	LLMRetried()
}

// NopTelemetry discards every event.
type NopTelemetry struct{}

func (NopTelemetry) ChunksIngested(int)                {}
func (NopTelemetry) IndexRecovered()                   {}
func (NopTelemetry) QueryAnswered(bool, time.Duration) {}
func (NopTelemetry) SessionsDeleted(int)               {}
func (NopTelemetry) BlobCleanupFailed()                {}
func (NopTelemetry) LLMRetried()                       {}

var _ Telemetry = NopTelemetry{}
