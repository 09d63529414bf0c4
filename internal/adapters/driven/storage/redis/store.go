// Package redis provides a Redis-backed implementation of driven.IndexStore
// for deployments that run several service replicas.
//
// Each snapshot is stored as one JSON value, and a sorted set scored by
// write time tracks sessions for expiry. Both keys are updated in a
// single MULTI/EXEC transaction. Replicas serialise merges on a session
// through a lock key taken with SET NX PX (see LockSession).
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// DefaultKeyPrefix namespaces all keys written by the store.
const DefaultKeyPrefix = "docqa"

// DefaultDialTimeout bounds connection establishment.
const DefaultDialTimeout = 5 * time.Second

// DefaultLockTTL bounds how long a crashed replica can hold a session lock.
const DefaultLockTTL = 30 * time.Second

// Ensure Store implements the interfaces.
var (
	_ driven.IndexStore    = (*Store)(nil)
	_ driven.SessionLocker = (*Store)(nil)
)

// Config holds connection settings.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Timeout   time.Duration
	LockTTL   time.Duration
}

// Store keeps session snapshots in Redis.
type Store struct {
	client    goredis.UniversalClient
	prefix    string
	owned     bool
	lockTTL   time.Duration
	lockRetry time.Duration
	now       func() time.Time
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDialTimeout
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.Timeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	s := NewWithClient(client, cfg.KeyPrefix)
	s.owned = true
	if cfg.LockTTL > 0 {
		s.lockTTL = cfg.LockTTL
	}
	return s, nil
}

// NewWithClient wraps an existing client. The caller keeps ownership of it.
func NewWithClient(client goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{
		client:    client,
		prefix:    prefix,
		lockTTL:   DefaultLockTTL,
		lockRetry: 25 * time.Millisecond,
		now:       time.Now,
	}
}

// record is the stored JSON form of a snapshot.
type record struct {
	SessionID  string        `json:"session_id"`
	Model      string        `json:"model"`
	Dimensions int           `json:"dimensions"`
	Entries    []recordEntry `json:"entries"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

type recordEntry struct {
	ID        string               `json:"id"`
	Content   string               `json:"content"`
	Metadata  domain.ChunkMetadata `json:"metadata"`
	Embedding []float32            `json:"embedding"`
}

// Exists returns true if a snapshot is stored for the session.
func (s *Store) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.snapshotKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("checking session index: %w", err)
	}
	return n == 1, nil
}

// Read loads and validates the session snapshot.
func (s *Store) Read(ctx context.Context, sessionID string) (*domain.IndexSnapshot, error) {
	data, err := s.client.Get(ctx, s.snapshotKey(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session index: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexCorrupt, err)
	}
	if rec.SessionID != sessionID {
		return nil, fmt.Errorf("%w: snapshot belongs to %q", domain.ErrIndexCorrupt, rec.SessionID)
	}

	snapshot := &domain.IndexSnapshot{
		SessionID:  rec.SessionID,
		Model:      rec.Model,
		Dimensions: rec.Dimensions,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
	for _, e := range rec.Entries {
		snapshot.Entries = append(snapshot.Entries, domain.IndexEntry(e))
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Write stores the snapshot and its modification time in one transaction.
func (s *Store) Write(ctx context.Context, snapshot *domain.IndexSnapshot) error {
	if snapshot == nil || snapshot.SessionID == "" {
		return domain.ErrMissingSessionID
	}

	rec := record{
		SessionID:  snapshot.SessionID,
		Model:      snapshot.Model,
		Dimensions: snapshot.Dimensions,
		CreatedAt:  snapshot.CreatedAt,
		UpdatedAt:  snapshot.UpdatedAt,
	}
	for _, e := range snapshot.Entries {
		rec.Entries = append(rec.Entries, recordEntry(e))
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}

	modified := s.now()
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.snapshotKey(snapshot.SessionID), data, 0)
		pipe.ZAdd(ctx, s.modifiedKey(), goredis.Z{
			Score:  float64(modified.UnixMilli()),
			Member: snapshot.SessionID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving session index: %w", err)
	}
	return nil
}

// Delete removes the snapshot and its modification time.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.snapshotKey(sessionID))
		pipe.ZRem(ctx, s.modifiedKey(), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting session index: %w", err)
	}
	return nil
}

// ModifiedAt returns the recorded write time, with millisecond precision.
func (s *Store) ModifiedAt(ctx context.Context, sessionID string) (time.Time, error) {
	score, err := s.client.ZScore(ctx, s.modifiedKey(), sessionID).Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("loading session modification time: %w", err)
	}
	return time.UnixMilli(int64(score)), nil
}

// ListModifiedBefore returns sessions written strictly before the cutoff.
func (s *Store) ListModifiedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	sessions, err := s.client.ZRangeByScore(ctx, s.modifiedKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	sort.Strings(sessions)
	return sessions, nil
}

// Close closes the client if the store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

func (s *Store) snapshotKey(sessionID string) string {
	return s.prefix + ":index:" + sessionID
}

func (s *Store) lockKey(sessionID string) string {
	return s.prefix + ":lock:" + sessionID
}

func (s *Store) modifiedKey() string {
	return s.prefix + ":index-modified"
}
