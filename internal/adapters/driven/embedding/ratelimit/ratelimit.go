// Package ratelimit provides an EmbeddingService decorator that paces
// requests to the underlying provider and splits large batches.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Config holds rate limiting configuration.
type Config struct {
	// RequestsPerSecond is the sustained request rate. Zero disables pacing.
	RequestsPerSecond float64

	// BurstSize is the maximum burst size.
	BurstSize int

	// MaxBatchSize caps the texts sent in one provider request.
	MaxBatchSize int

	// Cooldown is how long to pause all requests after a transient
	// provider failure such as HTTP 429.
	Cooldown time.Duration
}

// Default configuration values.
const (
	DefaultRequestsPerSecond = 5.0
	DefaultBurstSize         = 10
	DefaultMaxBatchSize      = 64
	DefaultCooldown          = 5 * time.Second
)

// EmbeddingService wraps another EmbeddingService with a token bucket.
type EmbeddingService struct {
	next      driven.EmbeddingService
	limiter   *rate.Limiter
	batchSize int
	cooldown  time.Duration

	mu      sync.Mutex
	retryAt time.Time
}

// New wraps next with the given limits.
func New(next driven.EmbeddingService, cfg Config) *EmbeddingService {
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &EmbeddingService{
		next:      next,
		limiter:   rate.NewLimiter(limit, cfg.BurstSize),
		batchSize: cfg.MaxBatchSize,
		cooldown:  cfg.Cooldown,
	}
}

// wait blocks until a request can be made without exceeding the rate limit.
// It also respects any cooldown set by a transient failure.
func (s *EmbeddingService) wait(ctx context.Context) error {
	s.mu.Lock()
	retryAt := s.retryAt
	s.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return s.limiter.Wait(ctx)
}

func (s *EmbeddingService) observe(err error) {
	if !errors.Is(err, domain.ErrTransient) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryAt = time.Now().Add(s.cooldown)
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	vec, err := s.next.Embed(ctx, text)
	s.observe(err)
	return vec, err
}

// EmbedBatch embeds texts in provider-sized batches, pacing each request.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := min(start+s.batchSize, len(texts))

		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		vecs, err := s.next.EmbedBatch(ctx, texts[start:end])
		s.observe(err)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embed batch %d-%d: got %d embeddings", start, end, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.next.Dimensions()
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.next.ModelName()
}

// Ping checks the wrapped service without consuming rate budget.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return s.next.Close()
}
