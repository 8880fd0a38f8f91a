package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Community tier uses a local LRU; Pro tier layers Redis on top.
type Cache interface {
	// Get retrieves a value from cache. Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetScore retrieves a cached fraud score snapshot for a transaction.
	GetScore(ctx context.Context, txID string) (*ScoreSnapshot, error)

	// SetScore caches a fraud score snapshot after evaluation.
	SetScore(ctx context.Context, txID string, snap *ScoreSnapshot, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the new
	// value. Used for daily detection counters.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// GetCounter reads a counter without touching it. Returns 0 for a
	// missing or expired counter.
	GetCounter(ctx context.Context, key string) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// ScoreSnapshot is the cached outcome of a fraud evaluation, keyed by
// transaction id.
type ScoreSnapshot struct {
	Confidence float64 `json:"confidence"`
	IsFraud    bool    `json:"isFraud"`
	Pattern    string  `json:"pattern,omitempty"`
	ScoredAt   string  `json:"scoredAt"`
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
