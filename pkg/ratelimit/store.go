package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists the quota state. Load returns (nil, nil) when nothing
// has been recorded yet.
type Store interface {
	Load(ctx context.Context) (*QuotaState, error)
	Save(ctx context.Context, state *QuotaState) error
}

// MemoryStore keeps the state in process.
type MemoryStore struct {
	mu    sync.RWMutex
	state *QuotaState
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored state.
func (s *MemoryStore) Load(_ context.Context) (*QuotaState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, nil
	}
	state := *s.state
	return &state, nil
}

// Save replaces the stored state.
func (s *MemoryStore) Save(_ context.Context, state *QuotaState) error {
	if state == nil {
		return fmt.Errorf("quota state cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *state
	s.state = &copied
	return nil
}

// RedisKeyPrefix starts the key under which RedisStore saves a backend's quota.
const RedisKeyPrefix = "catalog:quota:"

// redisRetention is how long a state outlives its reset time.
const redisRetention = time.Minute

// RedisStore shares one backend quota across every client process that
// talks to the same Redis.
type RedisStore struct {
	redis *redis.Client
	key   string
}

// NewRedisStore creates a store for backend (usually the catalog host).
func NewRedisStore(redisClient *redis.Client, backend string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
		key:   RedisKeyPrefix + strings.ToLower(backend),
	}
}

// Key returns the Redis key used by the store.
func (s *RedisStore) Key() string {
	return s.key
}

// Load reads the state from Redis.
func (s *RedisStore) Load(ctx context.Context) (*QuotaState, error) {
	data, err := s.redis.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get quota: %w", err)
	}

	var state QuotaState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode quota state: %w", err)
	}
	return &state, nil
}

// Save writes the state to Redis. It expires shortly after the window resets.
func (s *RedisStore) Save(ctx context.Context, state *QuotaState) error {
	if state == nil {
		return fmt.Errorf("quota state cannot be nil")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode quota state: %w", err)
	}

	if err := s.redis.Set(ctx, s.key, data, state.TimeUntilReset()+redisRetention).Err(); err != nil {
		return fmt.Errorf("store quota state in redis: %w", err)
	}
	return nil
}
