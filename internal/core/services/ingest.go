package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
	"github.com/custodia-labs/docqa/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// DefaultFetchTimeout bounds downloading a remote source.
const DefaultFetchTimeout = 30 * time.Second

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	// TempDir holds documents while they are extracted. Empty uses os.TempDir.
	TempDir string

	// FetchTimeout bounds downloading a remote source.
	FetchTimeout time.Duration
}

// IngestService turns uploaded or fetched PDFs into session chunks.
type IngestService struct {
	sessions  *SessionStore
	extractor driven.TextExtractor
	splitter  driven.TextSplitter
	fetcher   driven.SourceFetcher
	cfg       IngestConfig
	log       *slog.Logger
	now       func() time.Time
}

// NewIngestService creates the ingestion pipeline.
// The fetcher may be nil, in which case URL sources are rejected.
func NewIngestService(
	sessions *SessionStore,
	extractor driven.TextExtractor,
	splitter driven.TextSplitter,
	fetcher driven.SourceFetcher,
	cfg IngestConfig,
) *IngestService {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	return &IngestService{
		sessions:  sessions,
		extractor: extractor,
		splitter:  splitter,
		fetcher:   fetcher,
		cfg:       cfg,
		log:       logger.Module("services", "ingest"),
		now:       time.Now,
	}
}

// Ingest extracts, chunks, embeds and merges a document into the session.
// The document is staged in a temporary file that is always removed.
func (s *IngestService) Ingest(ctx context.Context, source domain.IngestSource, sessionID string) (*domain.IngestResult, error) {
	if sessionID == "" {
		return nil, domain.ErrMissingSessionID
	}
	source = source.Normalised()
	if err := source.Validate(); err != nil {
		return nil, err
	}
	if source.IsRemote() && s.fetcher == nil {
		return nil, fmt.Errorf("%w: remote sources are not enabled", domain.ErrInvalidSourceURL)
	}

	text, err := s.extract(ctx, source)
	if err != nil {
		return nil, err
	}
	if text.IsEmpty() {
		s.log.Warn("document has no extractable text", "session_id", sessionID, "source", source.Name())
		return &domain.IngestResult{}, nil
	}

	chunks := s.chunk(text, source.Name(), sessionID)
	s.log.Debug("chunked document",
		"session_id", sessionID, "source", source.Name(), "pages", len(text.Pages), "chunks", len(chunks))

	merge, err := s.sessions.MergeAppend(ctx, sessionID, chunks)
	if err != nil {
		return nil, err
	}

	s.log.Info("ingested document",
		"session_id", sessionID, "source", source.Name(), "chunks", len(chunks), "recovered", merge.Recovered)

	return &domain.IngestResult{ChunkCount: len(chunks), Recovered: merge.Recovered}, nil
}

// extract stages the source in a temporary file and reads its text.
func (s *IngestService) extract(ctx context.Context, source domain.IngestSource) (*domain.ExtractedText, error) {
	tmp, err := os.CreateTemp(s.cfg.TempDir, "docqa-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if source.IsRemote() {
		if err := s.fetch(ctx, source.URL, tmp); err != nil {
			return nil, err
		}
	} else if _, err := tmp.Write(source.Content); err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	text, err := s.extractor.Extract(ctx, tmp.Name())
	if err != nil {
		if errors.Is(err, domain.ErrExtractionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrExtractionFailed, source.Name(), err)
	}
	return text, nil
}

func (s *IngestService) fetch(ctx context.Context, url string, tmp *os.File) error {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	n, err := s.fetcher.Fetch(fetchCtx, url, tmp)
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
			return fmt.Errorf("%w: fetching %s: %w", domain.ErrTimeout, url, err)
		}
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s returned an empty body", domain.ErrSourceUnreachable, url)
	}
	s.log.Debug("fetched remote source", "url", url, "bytes", n)
	return nil
}

// chunk splits each page and stamps chunks with their provenance.
func (s *IngestService) chunk(text *domain.ExtractedText, source, sessionID string) []domain.Chunk {
	now := s.now().UTC()
	var chunks []domain.Chunk
	for page, content := range text.Pages {
		for _, span := range s.splitter.Split(content) {
			chunks = append(chunks, domain.Chunk{
				ID:       uuid.NewString(),
				Content:  span.Content,
				Position: len(chunks),
				Metadata: domain.ChunkMetadata{
					Source:     source,
					Page:       page,
					ChunkIndex: len(chunks),
					SessionID:  sessionID,
					IngestedAt: now,
				},
			})
		}
	}
	return chunks
}
