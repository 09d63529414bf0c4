package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
	"github.com/custodia-labs/docqa/internal/logger"
)

// Ensure AnswerService implements the interface.
var _ driving.QueryService = (*AnswerService)(nil)

// Default generation settings.
const (
	DefaultLLMTimeout      = 60 * time.Second
	DefaultLLMMaxRetries   = 2
	DefaultRetryBackoff    = 500 * time.Millisecond
	DefaultAnswerMaxTokens = 1024
)

// passageSeparator joins retrieved passages in the prompt context.
const passageSeparator = "\n\n"

// promptTemplate frames the question with the retrieved context.
// The first %s is the context, the second the question.
const promptTemplate = `You are a helpful assistant that answers questions about the user's uploaded PDF documents. Answer using only the context provided, in plain text without formatting symbols.

CONTEXT:
%s

QUESTION:
%s

ANSWER:
`

// AnswerConfig tunes retrieval and generation.
type AnswerConfig struct {
	// TopK is the number of passages retrieved per question.
	TopK int

	// Timeout bounds each generation attempt.
	Timeout time.Duration

	// MaxRetries is the number of retries after a transient failure.
	MaxRetries int

	// RetryBackoff is the initial wait between attempts.
	RetryBackoff time.Duration

	// Generate is passed to the LLM on every attempt.
	Generate driven.GenerateOptions
}

// DefaultAnswerConfig returns the standard retrieval settings.
func DefaultAnswerConfig() AnswerConfig {
	return AnswerConfig{
		TopK:         domain.DefaultTopK,
		Timeout:      DefaultLLMTimeout,
		MaxRetries:   DefaultLLMMaxRetries,
		RetryBackoff: DefaultRetryBackoff,
		Generate:     driven.GenerateOptions{MaxTokens: DefaultAnswerMaxTokens},
	}
}

// AnswerService answers questions from a session's uploaded documents.
type AnswerService struct {
	sessions  *SessionStore
	embedder  driven.EmbeddingService
	llm       driven.LLMService
	telemetry driven.Telemetry
	cfg       AnswerConfig
	log       *slog.Logger
	now       func() time.Time
}

// NewAnswerService creates the retrieval orchestrator.
// The llm may be nil, in which case questions against non-empty sessions
// fail with domain.ErrLLMUnavailable.
func NewAnswerService(
	sessions *SessionStore,
	embedder driven.EmbeddingService,
	llm driven.LLMService,
	telemetry driven.Telemetry,
	cfg AnswerConfig,
) *AnswerService {
	if telemetry == nil {
		telemetry = driven.NopTelemetry{}
	}
	defaults := DefaultAnswerConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = defaults.TopK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaults.RetryBackoff
	}
	return &AnswerService{
		sessions:  sessions,
		embedder:  embedder,
		llm:       llm,
		telemetry: telemetry,
		cfg:       cfg,
		log:       logger.Module("services", "answer"),
		now:       time.Now,
	}
}

// Answer retrieves the passages most similar to the query and asks the
// LLM to answer from them. A session without documents gets
// domain.NoDocumentsAnswer and no sources.
func (s *AnswerService) Answer(ctx context.Context, query, sessionID string) (*domain.Answer, error) {
	if sessionID == "" {
		return nil, domain.ErrMissingSessionID
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	start := s.now()

	idx, err := s.sessions.Load(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		s.telemetry.QueryAnswered(false, s.now().Sub(start))
		return noDocuments(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session index: %w", err)
	}
	defer idx.Close()

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", domain.ErrEmbeddingFailed, err)
	}

	passages, err := idx.Search(ctx, vector, s.cfg.TopK)
	if err != nil {
		return nil, err
	}
	if len(passages) == 0 {
		s.telemetry.QueryAnswered(false, s.now().Sub(start))
		return noDocuments(), nil
	}

	if s.llm == nil {
		return nil, domain.ErrLLMUnavailable
	}

	contexts := make([]string, len(passages))
	sources := make([]domain.ChunkMetadata, len(passages))
	for i, p := range passages {
		contexts[i] = p.Content
		sources[i] = p.Metadata
	}

	text, err := s.generate(ctx, BuildPrompt(contexts, query))
	if err != nil {
		return nil, err
	}

	s.telemetry.QueryAnswered(true, s.now().Sub(start))
	s.log.Debug("answered query",
		"session_id", sessionID, "passages", len(passages), "elapsed", s.now().Sub(start))

	return &domain.Answer{Text: strings.TrimSpace(text), Sources: sources}, nil
}

// BuildPrompt renders the answer prompt from ranked passages.
func BuildPrompt(contexts []string, query string) string {
	return fmt.Sprintf(promptTemplate, strings.Join(contexts, passageSeparator), query)
}

// generate calls the LLM with a per-attempt timeout, retrying transient
// failures with exponential backoff.
func (s *AnswerService) generate(ctx context.Context, prompt string) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.RetryBackoff
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.cfg.MaxRetries)), ctx)

	var (
		answer  string
		attempt int
	)
	op := func() error {
		attempt++
		if attempt > 1 {
			s.telemetry.LLMRetried()
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()

		text, err := s.llm.Generate(attemptCtx, prompt, s.cfg.Generate)
		if err == nil {
			answer = text
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
			err = fmt.Errorf("%w: %w", domain.ErrTimeout, err)
		}
		if errors.Is(err, domain.ErrTransient) || errors.Is(err, domain.ErrTimeout) {
			s.log.Warn("generation attempt failed", "attempt", attempt, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(op, retry); err != nil {
		if errors.Is(err, domain.ErrTimeout) {
			return "", fmt.Errorf("%w: generation after %d attempts", domain.ErrTimeout, attempt)
		}
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}
	return answer, nil
}

func noDocuments() *domain.Answer {
	return &domain.Answer{Text: domain.NoDocumentsAnswer, Sources: []domain.ChunkMetadata{}}
}
