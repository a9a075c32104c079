// Package cache defines the caching port shared by the in-process and
// NATS-backed tiers.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key-value store with per-entry expiry.
//
// Get reports a miss as (nil, false, nil); a non-nil error means the tier
// itself failed, not that the key was absent. Implementations backed by a
// store with bucket-wide expiry may treat ttl as advisory.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
