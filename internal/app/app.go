// Package app wires configuration into the adapters and core services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/docqa/internal/adapters/driven/ai"
	"github.com/custodia-labs/docqa/internal/adapters/driven/blob/supabase"
	"github.com/custodia-labs/docqa/internal/adapters/driven/config/file"
	"github.com/custodia-labs/docqa/internal/adapters/driven/embedding/ratelimit"
	"github.com/custodia-labs/docqa/internal/adapters/driven/fetch"
	"github.com/custodia-labs/docqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docqa/internal/adapters/driven/storage/redis"
	"github.com/custodia-labs/docqa/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/docqa/internal/adapters/driven/telemetry/prometheus"
	"github.com/custodia-labs/docqa/internal/adapters/driven/vector/flat"
	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/core/services"
	"github.com/custodia-labs/docqa/internal/logger"
	"github.com/custodia-labs/docqa/internal/normalisers/pdf"
	"github.com/custodia-labs/docqa/internal/postprocessors"
)

// App holds the wired services for one process.
type App struct {
	Config  *file.Config
	Ingest  *services.IngestService
	Answer  *services.AnswerService
	Session *services.SessionService

	// Sweeper is nil when expiry is disabled.
	Sweeper *services.Sweeper
	Metrics *prometheus.Metrics

	// Warnings are non-fatal setup problems, such as a missing LLM.
	Warnings []string

	closers []func() error
	log     *slog.Logger
}

// Option overrides a dependency, mainly for tests.
type Option func(*overrides)

type overrides struct {
	store    driven.IndexStore
	embedder driven.EmbeddingService
	llm      driven.LLMService
}

// WithIndexStore replaces the configured storage backend.
func WithIndexStore(store driven.IndexStore) Option {
	return func(o *overrides) { o.store = store }
}

// WithEmbedder replaces the configured embedding provider.
func WithEmbedder(e driven.EmbeddingService) Option {
	return func(o *overrides) { o.embedder = e }
}

// WithLLM replaces the configured LLM provider.
func WithLLM(l driven.LLMService) Option {
	return func(o *overrides) { o.llm = l }
}

// New builds every service described by cfg. Close releases what it opened.
func New(ctx context.Context, cfg *file.Config, opts ...Option) (*App, error) {
	a := &App{
		Config:  cfg,
		Metrics: prometheus.New(),
		log:     logger.Module("app", "wiring"),
	}
	if err := a.wire(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	for _, w := range a.Warnings {
		a.log.Warn(w)
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, opts []Option) error {
	var o overrides
	for _, opt := range opts {
		opt(&o)
	}
	cfg := a.Config

	var err error

	store := o.store
	if store == nil {
		if store, err = openStore(ctx, cfg.Storage); err != nil {
			return err
		}
		a.closers = append(a.closers, store.Close)
	}

	embedder, llm := o.embedder, o.llm
	if embedder == nil || llm == nil {
		result, err := ai.Init(cfg.EmbeddingSettings(), cfg.LLMSettings(), ai.Options{
			Timeout: cfg.Embedding.Timeout.Std(),
			RateLimit: ratelimit.Config{
				RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
				BurstSize:         cfg.Embedding.Burst,
				MaxBatchSize:      cfg.Embedding.BatchSize,
			},
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { result.Close(); return nil })
		a.Warnings = append(a.Warnings, result.Warnings...)
		if embedder == nil {
			embedder = result.EmbeddingService
		}
		if llm == nil {
			llm = result.LLMService
		}
	}

	splitter, err := postprocessors.Default().Build(cfg.Chunker.Unit, map[string]any{
		"chunk_size": cfg.Chunker.Size,
		"overlap":    cfg.Chunker.Overlap,
		"encoding":   cfg.Chunker.Encoding,
	})
	if err != nil {
		return fmt.Errorf("building chunker: %w", err)
	}

	sessions := services.NewSessionStore(store, embedder, flat.New, a.Metrics)

	var fetcher driven.SourceFetcher
	if cfg.Fetch.Enabled {
		fetcher = fetch.New(fetch.Config{MaxBytes: cfg.Fetch.MaxBytes, RetryCount: cfg.Fetch.Retries})
	}
	extractor := pdf.New()
	a.log.Info("pdf text extraction", "backend", extractor.Name())
	a.Ingest = services.NewIngestService(sessions, extractor, splitter, fetcher, services.IngestConfig{
		TempDir:      cfg.Storage.TempDir,
		FetchTimeout: cfg.Fetch.Timeout.Std(),
	})

	a.Answer = services.NewAnswerService(sessions, embedder, llm, a.Metrics, services.AnswerConfig{
		TopK:         cfg.LLM.TopK,
		Timeout:      cfg.LLM.Timeout.Std(),
		MaxRetries:   cfg.LLM.MaxRetries,
		RetryBackoff: cfg.LLM.RetryBackoff.Std(),
		Generate: driven.GenerateOptions{
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		},
	})

	blobs, err := openBlobStore(cfg.Blob)
	if err != nil {
		return err
	}
	a.Session = services.NewSessionService(sessions, blobs, a.Metrics)

	if cfg.Expiry.Enabled {
		a.Sweeper, err = services.NewSweeper(cfg.Expiry.Schedule, cfg.Expiry.TTL.Std(), a.Session)
		if err != nil {
			return err
		}
	}
	return nil
}

// Close releases storage and provider connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg file.StorageConfig) (driven.IndexStore, error) {
	switch domain.StoreBackend(cfg.Backend) {
	case domain.StoreBackendSQLite:
		return sqlite.NewStore(cfg.DataDir)
	case domain.StoreBackendRedis:
		return redis.New(ctx, redis.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Timeout:   cfg.Redis.Timeout.Std(),
		})
	case domain.StoreBackendMemory:
		return memory.NewIndexStore(), nil
	default:
		return nil, fmt.Errorf("%w: storage backend %q", domain.ErrUnsupportedType, cfg.Backend)
	}
}

// openBlobStore returns nil when no provider is configured.
func openBlobStore(cfg file.BlobConfig) (driven.BlobStore, error) {
	if cfg.Provider != file.BlobProviderSupabase {
		return nil, nil
	}
	store, err := supabase.New(supabase.Config{
		URL:        cfg.URL,
		ServiceKey: cfg.ServiceKey,
		Bucket:     cfg.Bucket,
		Timeout:    cfg.Timeout.Std(),
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}
