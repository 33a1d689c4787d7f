package caching

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// SnapshotCache is the fast, optional cache tier behind the Snapshot
// Store: a capability with a ready bit. Readiness is tracked as an
// atomic flag and re-read on every call, so a write that discovers the
// connection is gone flips it immediately for the next caller.
type SnapshotCache struct {
	client *redis.Client
	ready  atomic.Bool
}

// NewSnapshotCache connects to redisURL. A connection failure at
// construction time still returns a usable SnapshotCache with ready=false
// — the Snapshot Store degrades to durable-only rather than failing to
// start.
func NewSnapshotCache(redisURL string) (*SnapshotCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := &SnapshotCache{client: redis.NewClient(opts)}
	if err := c.client.Ping(context.Background()).Err(); err == nil {
		c.ready.Store(true)
	}
	return c, nil
}

func snapshotKey(documentID string) string {
	return "doc:" + documentID + ":state"
}

// Ready reports whether the cache is currently believed reachable.
func (c *SnapshotCache) Ready() bool {
	return c.ready.Load()
}

// Get returns the cached state bytes for documentID, or ok=false on a
// miss or outage. A connection-lost error flips Ready() to false so the
// next caller falls through to the durable store without re-probing.
func (c *SnapshotCache) Get(ctx context.Context, documentID string) ([]byte, bool) {
	if !c.ready.Load() {
		return nil, false
	}
	data, err := c.client.Get(ctx, snapshotKey(documentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false
		}
		c.ready.Store(false)
		return nil, false
	}
	return data, true
}

// Set writes documentID's state bytes to the cache. It returns false
// (and flips Ready() off) if the write failed due to the connection
// being lost, signalling the caller to fall through to the rate-limited
// durable write path.
func (c *SnapshotCache) Set(ctx context.Context, documentID string, state []byte) bool {
	if !c.ready.Load() {
		return false
	}
	if err := c.client.Set(ctx, snapshotKey(documentID), state, 0).Err(); err != nil {
		c.ready.Store(false)
		return false
	}
	return true
}

// Probe re-checks the connection and flips Ready() back on if it
// succeeds. The sweeper calls this periodically so a recovered Redis
// instance is noticed without waiting for the next write attempt.
func (c *SnapshotCache) Probe(ctx context.Context) {
	if c.client.Ping(ctx).Err() == nil {
		c.ready.Store(true)
	}
}

func (c *SnapshotCache) Close() error {
	return c.client.Close()
}
