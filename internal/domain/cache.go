package domain

import (
	"context"
	"time"
)

// Cache defines the score cache contract.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
//
// A cached score is authoritative within its TTL: scores are pinned to an
// immutable transaction, so the pipeline never re-verifies a hit against a
// newer feature vector.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found - absence is not an error.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with a per-entry TTL.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetScore retrieves a cached score by transaction ID.
	// Returns nil, nil on a miss.
	GetScore(ctx context.Context, tenantID string, txID string) (*Score, error)

	// SetScore caches a computed score keyed by transaction ID.
	SetScore(ctx context.Context, tenantID string, txID string, score *Score, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
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
