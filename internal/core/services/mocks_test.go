package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/docqa/internal/adapters/driven/embedding/hashing"
	"github.com/custodia-labs/docqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docqa/internal/adapters/driven/vector/flat"
	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/postprocessors/chunker"
)

const testDimensions = 64

// --- Mock implementations ---

// mockLLM implements driven.LLMService, replaying scripted errors before
// answering.
type mockLLM struct {
	mu      sync.Mutex
	answer  string
	errs    []error
	prompts []string
	block   bool
}

func (m *mockLLM) Generate(ctx context.Context, prompt string, _ driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	var err error
	if len(m.errs) > 0 {
		err, m.errs = m.errs[0], m.errs[1:]
	}
	block := m.block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return m.answer, nil
}

func (m *mockLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func (m *mockLLM) ModelName() string              { return "mock-llm" }
func (m *mockLLM) Ping(_ context.Context) error   { return nil }
func (m *mockLLM) Close() error                   { return nil }
func (m *mockLLM) lastPrompt() string             { return m.prompts[len(m.prompts)-1] }
func (m *mockLLM) setErrs(errs ...error) *mockLLM { m.errs = errs; return m }

// failingEmbedder implements driven.EmbeddingService and always fails.
type failingEmbedder struct {
	*hashing.EmbeddingService
	err error
}

func (f *failingEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, f.err
}

func (f *failingEmbedder) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, f.err
}

// recordingTelemetry implements driven.Telemetry and counts events.
type recordingTelemetry struct {
	mu             sync.Mutex
	chunks         int
	recovered      int
	answered       int
	emptyAnswers   int
	deleted        int
	blobFailures   int
	llmRetries     int
	lastElapsedSet bool
}

func (r *recordingTelemetry) ChunksIngested(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks += n
}

func (r *recordingTelemetry) IndexRecovered() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recovered++
}

func (r *recordingTelemetry) QueryAnswered(hadDocuments bool, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hadDocuments {
		r.answered++
	} else {
		r.emptyAnswers++
	}
	r.lastElapsedSet = elapsed >= 0
}

func (r *recordingTelemetry) SessionsDeleted(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted += n
}

func (r *recordingTelemetry) BlobCleanupFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobFailures++
}

func (r *recordingTelemetry) LLMRetried() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llmRetries++
}

// corruptibleStore wraps an IndexStore and reports chosen sessions as corrupt.
type corruptibleStore struct {
	driven.IndexStore
	mu      sync.Mutex
	corrupt map[string]bool
}

func newCorruptibleStore(store driven.IndexStore) *corruptibleStore {
	return &corruptibleStore{IndexStore: store, corrupt: make(map[string]bool)}
}

func (c *corruptibleStore) markCorrupt(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.corrupt[sessionID] = true
}

func (c *corruptibleStore) Read(ctx context.Context, sessionID string) (*domain.IndexSnapshot, error) {
	c.mu.Lock()
	bad := c.corrupt[sessionID]
	c.mu.Unlock()
	if bad {
		return nil, fmt.Errorf("%w: bad header", domain.ErrIndexCorrupt)
	}
	return c.IndexStore.Read(ctx, sessionID)
}

func (c *corruptibleStore) Write(ctx context.Context, snapshot *domain.IndexSnapshot) error {
	c.mu.Lock()
	delete(c.corrupt, snapshot.SessionID)
	c.mu.Unlock()
	return c.IndexStore.Write(ctx, snapshot)
}

// lockingStore stands in for a store shared by several processes: every
// SessionStore wrapping it takes the same per-session lock.
type lockingStore struct {
	driven.IndexStore
	locks   *keyedLocker
	mu      sync.Mutex
	locked  int
	lockErr error
}

func (l *lockingStore) LockSession(ctx context.Context, sessionID string) (func(), error) {
	if l.lockErr != nil {
		return nil, l.lockErr
	}
	unlock, err := l.locks.Lock(ctx, "store:"+sessionID)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.locked++
	l.mu.Unlock()
	return unlock, nil
}

// mockExtractor implements driven.TextExtractor. Pages are keyed by the
// content written to the temp file so each upload can carry its own text.
type mockExtractor struct {
	mu    sync.Mutex
	pages map[string][]string
	err   error
	paths []string
}

func (m *mockExtractor) Extract(_ context.Context, path string) (*domain.ExtractedText, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, path)
	if m.err != nil {
		return nil, m.err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if pages, ok := m.pages[string(data)]; ok {
		return &domain.ExtractedText{Pages: pages}, nil
	}
	return &domain.ExtractedText{Pages: []string{string(data)}}, nil
}

// mockFetcher implements driven.SourceFetcher.
type mockFetcher struct {
	body  string
	err   error
	block bool
	urls  []string
}

func (m *mockFetcher) Fetch(ctx context.Context, url string, w io.Writer) (int64, error) {
	m.urls = append(m.urls, url)
	if m.block {
		<-ctx.Done()
		return 0, fmt.Errorf("%w: %w", domain.ErrSourceUnreachable, ctx.Err())
	}
	if m.err != nil {
		return 0, m.err
	}
	n, err := io.Copy(w, strings.NewReader(m.body))
	return n, err
}

// mockBlobStore implements driven.BlobStore.
type mockBlobStore struct {
	mu        sync.Mutex
	objects   map[string][]string
	listErr   error
	removeErr error
	removed   []string
}

func (m *mockBlobStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.objects[prefix], nil
}

func (m *mockBlobStore) Remove(_ context.Context, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeErr != nil {
		return m.removeErr
	}
	m.removed = append(m.removed, paths...)
	return nil
}

// --- Fixtures ---

type testEnv struct {
	store     *corruptibleStore
	sessions  *SessionStore
	embedder  *hashing.EmbeddingService
	llm       *mockLLM
	telemetry *recordingTelemetry
	extractor *mockExtractor
	fetcher   *mockFetcher
	blobs     *mockBlobStore
	tempDir   string

	ingest  *IngestService
	answer  *AnswerService
	session *SessionService
}

func newTestEnv(tempDir string) *testEnv {
	env := &testEnv{
		store:     newCorruptibleStore(memory.NewIndexStore()),
		embedder:  hashing.NewEmbeddingService(testDimensions),
		llm:       &mockLLM{answer: "  Generated answer.  "},
		telemetry: &recordingTelemetry{},
		extractor: &mockExtractor{pages: make(map[string][]string)},
		fetcher:   &mockFetcher{},
		blobs:     &mockBlobStore{objects: make(map[string][]string)},
		tempDir:   tempDir,
	}
	env.sessions = NewSessionStore(env.store, env.embedder, flat.New, env.telemetry)
	env.ingest = NewIngestService(env.sessions, env.extractor,
		chunker.New(chunker.WithChunkSize(200), chunker.WithOverlap(20)),
		env.fetcher, IngestConfig{TempDir: tempDir, FetchTimeout: time.Second})
	env.answer = NewAnswerService(env.sessions, env.embedder, env.llm, env.telemetry, AnswerConfig{
		Timeout:      time.Second,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	})
	env.session = NewSessionService(env.sessions, env.blobs, env.telemetry)
	return env
}

// upload ingests text as a single-page document named filename.
func (e *testEnv) upload(ctx context.Context, sessionID, filename string, pages ...string) (*domain.IngestResult, error) {
	content := filename + ":" + strings.Join(pages, "|")
	e.extractor.mu.Lock()
	e.extractor.pages[content] = pages
	e.extractor.mu.Unlock()
	return e.ingest.Ingest(ctx, domain.IngestSource{Filename: filename, Content: []byte(content)}, sessionID)
}

func testChunks(sessionID string, contents ...string) []domain.Chunk {
	chunks := make([]domain.Chunk, len(contents))
	for i, c := range contents {
		chunks[i] = domain.Chunk{
			ID:       fmt.Sprintf("%s-%d-%s", sessionID, i, c),
			Content:  c,
			Position: i,
			Metadata: domain.ChunkMetadata{Source: "doc.pdf", ChunkIndex: i, SessionID: sessionID},
		}
	}
	return chunks
}

var errBoom = errors.New("boom")
