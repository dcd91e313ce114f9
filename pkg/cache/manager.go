package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxTTL caps how long any catalog response is kept fresh.
	// Backend search sessions time out, so result pages go stale quickly.
	DefaultMaxTTL = 15 * time.Minute

	// DefaultStaleWindow is how long an expired entry stays in Redis so it
	// can be revalidated with a conditional request.
	DefaultStaleWindow = 5 * time.Minute
)

var (
	// ErrCacheMiss indicates the requested key was not found or is expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored entry could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager stores catalog responses in Redis.
type Manager struct {
	redis       *redis.Client
	maxTTL      time.Duration
	staleWindow time.Duration
	logger      zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxTTL caps the freshness of stored entries. Zero disables the cap.
func WithMaxTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.maxTTL = ttl }
}

// WithStaleWindow sets how long expired entries are retained for revalidation.
func WithStaleWindow(window time.Duration) Option {
	return func(m *Manager) { m.staleWindow = window }
}

// WithLogger sets the logger used for cache diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a cache manager. It panics if redisClient is nil.
func NewManager(redisClient *redis.Client, opts ...Option) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	m := &Manager{
		redis:       redisClient,
		maxTTL:      DefaultMaxTTL,
		staleWindow: DefaultStaleWindow,
		logger:      log.With().Str("component", "response-cache").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a fresh entry for key, or ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	entry, err := m.load(ctx, key)
	if err != nil {
		return nil, err
	}

	if entry.IsExpired() {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.Inc()
	return entry, nil
}

// GetStale returns the entry for key even if it has expired, so the caller
// can revalidate it. ErrCacheMiss means nothing is stored.
func (m *Manager) GetStale(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	return m.load(ctx, key)
}

func (m *Manager) load(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	cacheKey := key.String()

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		m.logger.Warn().Err(err).Str("key", cacheKey).Msg("Discarding corrupt cache entry")
		_ = m.Delete(ctx, key)
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	return &entry, nil
}

// Set stores entry under key. Entries that are already expired are not
// stored. Freshness is capped at the manager's max TTL.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	if m.maxTTL > 0 {
		if limit := time.Now().Add(m.maxTTL); entry.Expires.After(limit) {
			entry.Expires = limit
		}
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	cacheKey := key.String()
	if err := m.redis.Set(ctx, cacheKey, data, ttl+m.staleWindow).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheStores.Inc()
	m.logger.Debug().
		Str("key", cacheKey).
		Dur("ttl", ttl).
		Int("bytes", len(data)).
		Msg("Stored catalog response")

	return nil
}

// Delete removes the entry for key.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Refresh extends a stored entry after a 304 Not Modified answer.
func (m *Manager) Refresh(ctx context.Context, key CacheKey, newExpires time.Time) (*CacheEntry, error) {
	entry, err := m.GetStale(ctx, key)
	if err != nil {
		return nil, err
	}

	entry.Expires = newExpires
	if err := m.Set(ctx, key, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
