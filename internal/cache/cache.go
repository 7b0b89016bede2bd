package cache

import (
	"context"
	"time"
)

// Cache is the key-value contract the translation layer caches through.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns ErrMiss when key is absent.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key. A ttl <= 0 means no expiration.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Close() error
}

var ErrMiss = errMiss{}

type errMiss struct{}

func (e errMiss) Error() string { return "cache: miss" }
