// Package tiered layers a local in-process cache over a remote shared one.
package tiered

import (
	"context"
	"errors"
	"time"

	"github.com/switchyard-ai/switchyard/internal/port/cache"
)

// Cache reads through a local tier into a remote one and writes to both.
// A single broken tier degrades the cache, it does not take it down: reads
// treat a failing tier as a miss and writes always attempt both tiers.
type Cache struct {
	local       cache.Cache
	remote      cache.Cache
	backfillTTL time.Duration
}

// New creates a tiered cache. backfillTTL bounds how long remote hits
// copied into the local tier may live there.
func New(local, remote cache.Cache, backfillTTL time.Duration) *Cache {
	return &Cache{local: local, remote: remote, backfillTTL: backfillTTL}
}

// Get prefers the local tier and falls back to the remote one, copying
// remote hits into the local tier. It reports an error only when both
// tiers failed; one healthy tier answering a miss is still a miss.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, localErr := c.local.Get(ctx, key)
	if found {
		return val, true, nil
	}

	val, found, remoteErr := c.remote.Get(ctx, key)
	if found {
		_ = c.local.Set(ctx, key, val, c.backfillTTL)
		return val, true, nil
	}

	if localErr != nil && remoteErr != nil {
		return nil, false, errors.Join(localErr, remoteErr)
	}
	return nil, false, nil
}

// Set writes to both tiers, attempting the remote tier even when the local
// write failed.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.Join(
		c.local.Set(ctx, key, value, ttl),
		c.remote.Set(ctx, key, value, ttl),
	)
}

// Delete removes the key from both tiers.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return errors.Join(
		c.local.Delete(ctx, key),
		c.remote.Delete(ctx, key),
	)
}
