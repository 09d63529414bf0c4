// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - IndexStore: Session index snapshot persistence (SQLite, Redis, memory)
//   - VectorIndexFactory: Creates exact similarity indexes over session vectors
//   - EmbeddingService: Generates vector embeddings for passages and questions
//   - TextExtractor: Recovers text from uploaded documents (pdftotext, pure Go)
//   - TextSplitter: Splits extracted text into bounded chunks
//   - SourceFetcher: Downloads remote documents
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - LLMService: Answer generation. Without it, questions fail with ErrLLMUnavailable.
//   - BlobStore: Companion file storage cleaned up on reset. Without it, cleanup is skipped.
//   - Telemetry: Operational counters. Without it, events are only logged.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or infrastructure package
package driven
