package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.CheckpointStore and ports.CheckpointLister using Redis.
//
// Per thread it keeps the latest checkpoint as a JSON string, a version counter
// advanced with INCR, and the lineage as a list. A sorted set indexes threads by
// expiry so List can prune lazily.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for threads. Every Put refreshes it.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "threadgraph:",
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Client exposes the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

// Prefix returns the key prefix.
func (s *Store) Prefix() string {
	return s.prefix
}

func (s *Store) latestKey(threadID string) string {
	return s.prefix + "thread:" + threadID + ":latest"
}

func (s *Store) versionKey(threadID string) string {
	return s.prefix + "thread:" + threadID + ":version"
}

func (s *Store) lineageKey(threadID string) string {
	return s.prefix + "thread:" + threadID + ":lineage"
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Put writes a new checkpoint. The version comes from INCR, so it stays
// monotonic even if the latest key expired while the counter did not.
func (s *Store) Put(ctx context.Context, threadID string, state domain.State) (domain.Checkpoint, error) {
	version, err := s.client.Incr(ctx, s.versionKey(threadID)).Result()
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to allocate version: %w", err)
	}

	cp := domain.Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Version:   version,
		State:     state,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	// Score = Now + TTL. If TTL = 0, Score = far future.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}

	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Set(ctx, s.latestKey(threadID), data, s.ttl)
		pipe.RPush(ctx, s.lineageKey(threadID), data)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.lineageKey(threadID), s.ttl)
			pipe.Expire(ctx, s.versionKey(threadID), s.ttl)
		}
		pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: threadID})
		return nil
	})
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to save to redis: %w", err)
	}
	return cp, nil
}

// Get returns the latest state of a thread.
func (s *Store) Get(ctx context.Context, threadID string) (domain.State, error) {
	cp, err := s.GetCheckpoint(ctx, threadID)
	if err != nil {
		return domain.State{}, err
	}
	return cp.State, nil
}

// GetCheckpoint returns the latest checkpoint of a thread.
func (s *Store) GetCheckpoint(ctx context.Context, threadID string) (domain.Checkpoint, error) {
	val, err := s.client.Get(ctx, s.latestKey(threadID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.Checkpoint{}, domain.ErrCheckpointNotFound
		}
		return domain.Checkpoint{}, fmt.Errorf("failed to get from redis: %w", err)
	}
	return decodeCheckpoint(val)
}

// ListCheckpoints returns the thread's lineage, oldest first.
func (s *Store) ListCheckpoints(ctx context.Context, threadID string) ([]domain.Checkpoint, error) {
	vals, err := s.client.LRange(ctx, s.lineageKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read lineage: %w", err)
	}
	if len(vals) == 0 {
		return nil, domain.ErrCheckpointNotFound
	}
	out := make([]domain.Checkpoint, 0, len(vals))
	for _, v := range vals {
		cp, err := decodeCheckpoint(v)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Delete removes every key of the thread.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	pipe := s.client.Pipeline()

	pipe.Del(ctx, s.latestKey(threadID), s.versionKey(threadID), s.lineageKey(threadID))
	pipe.ZRem(ctx, s.indexKey(), threadID)

	_, err := pipe.Exec(ctx)
	return err
}

// List returns live threads, pruning expired entries from the index first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())

	// ZREMRANGEBYSCORE key -inf (now)
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("(%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired threads: %w", err)
	}

	threads, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	return threads, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func decodeCheckpoint(val string) (domain.Checkpoint, error) {
	var cp domain.Checkpoint
	if err := json.Unmarshal([]byte(val), &cp); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	if cp.State.Messages == nil {
		cp.State.Messages = []domain.Message{}
	}
	if cp.State.Values == nil {
		cp.State.Values = make(map[string]any)
	}
	return cp, nil
}
