// Package cache provides the owned analysis-result cache: an explicit cache
// object keyed by session id, with a Redis-backed implementation and an
// in-memory fallback.
package cache

import (
	"context"
	"errors"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache stores JSON-serializable values with a per-store TTL.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}) error

	// Get unmarshals the cached value into dest. Returns ErrMiss when absent.
	Get(ctx context.Context, key string, dest interface{}) error

	Delete(ctx context.Context, key string) error

	Close() error
}

// SessionResultKey is the cache key for a session's most recent analysis result.
func SessionResultKey(sessionID string) string {
	return "analysis:latest:" + sessionID
}
