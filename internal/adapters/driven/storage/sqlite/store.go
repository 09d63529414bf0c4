package sqlite

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/docqa/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

const (
	sessionsDir   = "sessions"
	indexFileName = "index.db"
	tmpPrefix     = ".index-"
)

// Snapshot metadata keys.
const (
	metaSessionID  = "session_id"
	metaModel      = "model"
	metaDimensions = "dimensions"
	metaCreatedAt  = "created_at"
	metaUpdatedAt  = "updated_at"
)

// Ensure Store implements the interface.
var _ driven.IndexStore = (*Store)(nil)

// Store keeps one SQLite snapshot file per session under a root directory.
type Store struct {
	root string
}

// NewStore creates a new snapshot store in the specified data directory.
// If dataDir is empty, defaults to ~/.docqa/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".docqa", "data")
	}

	root := filepath.Join(dataDir, sessionsDir)
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return &Store{root: root}, nil
}

// Close is a no-op; database handles are only held during a call.
func (s *Store) Close() error {
	return nil
}

// Exists returns true if index.db exists for the session.
// A session directory without an index file does not count.
func (s *Store) Exists(_ context.Context, sessionID string) (bool, error) {
	_, err := os.Stat(s.indexPath(sessionID))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking session index: %w", err)
}

// Read loads the session snapshot from its database file.
// A snapshot deleted while it is being read is reported as not found.
func (s *Store) Read(ctx context.Context, sessionID string) (*domain.IndexSnapshot, error) {
	path := s.indexPath(sessionID)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("checking session index: %w", err)
	}

	snapshot, err := readSnapshotFile(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexCorrupt, err)
	}
	if snapshot.SessionID != sessionID {
		return nil, fmt.Errorf("%w: snapshot belongs to %q", domain.ErrIndexCorrupt, snapshot.SessionID)
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Write builds the snapshot in a temporary database file and renames it
// over the session's index.db.
func (s *Store) Write(ctx context.Context, snapshot *domain.IndexSnapshot) error {
	if snapshot == nil || snapshot.SessionID == "" {
		return domain.ErrMissingSessionID
	}

	dir := s.sessionDir(snapshot.SessionID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	tmpPath := filepath.Join(dir, tmpPrefix+uuid.NewString()+".db")
	if err := writeSnapshotFile(ctx, tmpPath, snapshot); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, s.indexPath(snapshot.SessionID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing session index: %w", err)
	}
	return nil
}

// Delete removes the session directory. Deleting a missing session is not an error.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	if err := os.RemoveAll(s.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("deleting session index: %w", err)
	}
	return nil
}

// ModifiedAt returns the modification time of the session's index file.
func (s *Store) ModifiedAt(_ context.Context, sessionID string) (time.Time, error) {
	info, err := os.Stat(s.indexPath(sessionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, domain.ErrSessionNotFound
		}
		return time.Time{}, fmt.Errorf("checking session index: %w", err)
	}
	return info.ModTime(), nil
}

// ListModifiedBefore scans session directories for index files last
// written before the cutoff. Results are sorted by session ID.
func (s *Store) ListModifiedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	var sessions []string //nolint:prealloc // size unknown until filtered
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		sessionID, err := decodeSessionDir(entry.Name())
		if err != nil {
			continue // Not a session directory
		}
		info, err := os.Stat(filepath.Join(s.root, entry.Name(), indexFileName))
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			sessions = append(sessions, sessionID)
		}
	}

	sort.Strings(sessions)
	return sessions, nil
}

func (s *Store) sessionDir(sessionID string) string {
	return filepath.Join(s.root, encodeSessionDir(sessionID))
}

func (s *Store) indexPath(sessionID string) string {
	return filepath.Join(s.sessionDir(sessionID), indexFileName)
}

// encodeSessionDir maps a session ID to a safe directory name.
func encodeSessionDir(sessionID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(sessionID))
}

func decodeSessionDir(name string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// openDB opens a snapshot database. Snapshot files are renamed into place,
// so they use the default rollback journal rather than WAL. Read-only
// handles are opened through a URI with mode=ro so that SQLite never
// creates a missing file.
func openDB(path string, readOnly bool) (*sql.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)"
	if readOnly {
		uri := url.URL{Scheme: "file", Path: path}
		dsn = uri.String() + "?mode=ro&_pragma=busy_timeout(5000)&_pragma=query_only(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func readSnapshotFile(ctx context.Context, path string) (*domain.IndexSnapshot, error) {
	db, err := openDB(path, true)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return readSnapshot(ctx, db)
}

func writeSnapshotFile(ctx context.Context, path string, snapshot *domain.IndexSnapshot) error {
	db, err := openDB(path, false)
	if err != nil {
		return err
	}

	if err := migrate(db, migrations.FS); err != nil {
		db.Close()
		return fmt.Errorf("running migrations: %w", err)
	}

	if err := insertSnapshot(ctx, db, snapshot); err != nil {
		db.Close()
		return err
	}

	if err := db.Close(); err != nil {
		return fmt.Errorf("closing snapshot database: %w", err)
	}
	return nil
}

func insertSnapshot(ctx context.Context, db *sql.DB, snapshot *domain.IndexSnapshot) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	meta := map[string]string{
		metaSessionID:  snapshot.SessionID,
		metaModel:      snapshot.Model,
		metaDimensions: strconv.Itoa(snapshot.Dimensions),
		metaCreatedAt:  snapshot.CreatedAt.UTC().Format(time.RFC3339Nano),
		metaUpdatedAt:  snapshot.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	for key, value := range meta {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO snapshot_meta (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("saving snapshot metadata: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, position, content, metadata, embedding)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, entry := range snapshot.Entries {
		metadataJSON, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling chunk metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			entry.ID, i, entry.Content, string(metadataJSON), float32SliceToBytes(entry.Embedding),
		); err != nil {
			return fmt.Errorf("saving chunk %s: %w", entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

func readSnapshot(ctx context.Context, db *sql.DB) (*domain.IndexSnapshot, error) {
	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, err
	}

	snapshot := &domain.IndexSnapshot{
		SessionID: meta[metaSessionID],
		Model:     meta[metaModel],
	}
	if snapshot.Dimensions, err = strconv.Atoi(meta[metaDimensions]); err != nil {
		return nil, fmt.Errorf("parsing dimensions: %w", err)
	}
	if snapshot.CreatedAt, err = time.Parse(time.RFC3339Nano, meta[metaCreatedAt]); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if snapshot.UpdatedAt, err = time.Parse(time.RFC3339Nano, meta[metaUpdatedAt]); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	if snapshot.Entries, err = readEntries(ctx, db); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func readMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT key, value FROM snapshot_meta")
	if err != nil {
		return nil, fmt.Errorf("querying snapshot metadata: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning snapshot metadata: %w", err)
		}
		meta[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshot metadata: %w", err)
	}
	return meta, nil
}

func readEntries(ctx context.Context, db *sql.DB) ([]domain.IndexEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, content, metadata, embedding
		FROM chunks ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var entries []domain.IndexEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var (
			entry        domain.IndexEntry
			metadataJSON string
			embedding    []byte
		)
		if err := rows.Scan(&entry.ID, &entry.Content, &metadataJSON, &embedding); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(metadataJSON), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling chunk metadata: %w", err)
		}
		if len(embedding)%4 != 0 {
			return nil, fmt.Errorf("chunk %s: truncated embedding", entry.ID)
		}
		entry.Embedding = bytesToFloat32Slice(embedding)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return entries, nil
}

// migrate runs all pending migrations.
func migrate(db *sql.DB, fsys fs.FS) error {
	// Ensure schema_migrations table exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_snapshot.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// float32SliceToBytes encodes an embedding as little-endian float32s.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
