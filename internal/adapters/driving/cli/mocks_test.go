package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/docqa/internal/adapters/driven/config/file"
	"github.com/custodia-labs/docqa/internal/core/domain"
)

type mockIngestService struct {
	source    domain.IngestSource
	sessionID string
	result    *domain.IngestResult
	err       error
}

func (m *mockIngestService) Ingest(_ context.Context, source domain.IngestSource, sessionID string) (*domain.IngestResult, error) {
	m.source, m.sessionID = source, sessionID
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &domain.IngestResult{ChunkCount: 3}, nil
}

type mockQueryService struct {
	query, sessionID string
	answer           *domain.Answer
	err              error
}

func (m *mockQueryService) Answer(_ context.Context, query, sessionID string) (*domain.Answer, error) {
	m.query, m.sessionID = query, sessionID
	if m.err != nil {
		return nil, m.err
	}
	if m.answer != nil {
		return m.answer, nil
	}
	return &domain.Answer{Text: domain.NoDocumentsAnswer}, nil
}

type mockSessionService struct {
	resetID string
	clearID string
	before  *time.Time
	cutoff  time.Time
	deleted []string
	status  *domain.SessionStatus
	err     error
}

func (m *mockSessionService) Reset(_ context.Context, sessionID string) error {
	m.resetID = sessionID
	return m.err
}

func (m *mockSessionService) Clear(_ context.Context, sessionID string, before *time.Time) ([]string, error) {
	m.clearID, m.before = sessionID, before
	return m.deleted, m.err
}

func (m *mockSessionService) Status(_ context.Context, sessionID string) (*domain.SessionStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.status != nil {
		return m.status, nil
	}
	return &domain.SessionStatus{SessionID: sessionID, Sources: []string{}}, nil
}

func (m *mockSessionService) Expire(_ context.Context, cutoff time.Time) ([]string, error) {
	m.cutoff = cutoff
	return m.deleted, m.err
}

// mockSweeper implements driving.Scheduler.
type mockSweeper struct {
	mu      sync.Mutex
	started bool
}

func (m *mockSweeper) Start(ctx context.Context) error {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockSweeper) Stop() error { return nil }

func (m *mockSweeper) wasStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

type testServices struct {
	ingest  *mockIngestService
	query   *mockQueryService
	session *mockSessionService
	sweeper *mockSweeper
	out     *bytes.Buffer
	closed  bool
}

// setupTestServices points the builder at mocks and captures output.
// Flags and package state are restored when the test ends.
func setupTestServices(t *testing.T) *testServices {
	t.Helper()
	ts := &testServices{
		ingest:  &mockIngestService{},
		query:   &mockQueryService{},
		session: &mockSessionService{},
		sweeper: &mockSweeper{},
		out:     new(bytes.Buffer),
	}

	oldBuilder := builder
	builder = func(context.Context, *file.Config) (*Services, error) {
		return &Services{
			Ingest:  ts.ingest,
			Query:   ts.query,
			Session: ts.session,
			Sweeper: ts.sweeper,
			Close: func() error {
				ts.closed = true
				return nil
			},
		}, nil
	}

	rootCmd.SetOut(ts.out)
	rootCmd.SetErr(ts.out)

	t.Cleanup(func() {
		builder = oldBuilder
		appConfig = nil
		ingestService, queryService, sessionService = nil, nil, nil
		sweeper, metricsHandler, closeServices = nil, nil, nil
		rootCmd.SetArgs(nil)
		rootCmd.SetContext(context.Background())
		resetFlags(rootCmd)
	})
	return ts
}

// execute runs the root command against an empty config file location.
func execute(t *testing.T, args ...string) error {
	t.Helper()
	config := filepath.Join(t.TempDir(), "config.toml")
	rootCmd.SetArgs(append([]string{"--config", config}, args...))
	return rootCmd.Execute()
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
