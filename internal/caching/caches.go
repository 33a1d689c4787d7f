// Package caching holds the relay's cache clients: the in-process
// memoization caches, whose Caches struct exposes narrow, domain-typed
// Get/Put methods rather than handing callers a raw cache handle, and
// the Redis-backed SnapshotCache tier.
package caching

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/Tanvirul-I/Collab-Notes/internal/storage"
)

type accessGrantEntry struct {
	permission storage.Permission
	// denial holds the access package's Denial reason as plain text, so
	// this package (a dependency of internal/access) never needs to
	// import it back.
	denial string
}

// Caches holds the relay's in-process ristretto caches. Unlike the
// Snapshot Store's Redis tier (internal/caching/snapshot_cache.go), this
// is purely local memoization: it never needs a "ready" bit because a
// ristretto miss is always safe to treat as "go compute it".
type Caches struct {
	accessGrants *ristretto.Cache
}

// New constructs the process-wide Caches. maxCost bounds the access-grant
// cache's memory footprint in bytes.
func New(maxCost int64) (*Caches, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("caching: new ristretto cache: %w", err)
	}
	return &Caches{accessGrants: c}, nil
}

func accessGrantKey(documentID, userID, shareToken string) string {
	return documentID + "\x00" + userID + "\x00" + shareToken
}

// GetAccessGrant returns a memoized resolution, if present and unexpired.
// denial is empty when the memoized result was a successful permission.
func (c *Caches) GetAccessGrant(documentID, userID, shareToken string) (storage.Permission, string, bool) {
	v, ok := c.accessGrants.Get(accessGrantKey(documentID, userID, shareToken))
	if !ok {
		return "", "", false
	}
	entry := v.(accessGrantEntry)
	return entry.permission, entry.denial, true
}

// PutAccessGrant memoizes a resolution for ttl. Exactly one of
// permission/denial should be set by the caller.
func (c *Caches) PutAccessGrant(documentID, userID, shareToken string, permission storage.Permission, denial string, ttl time.Duration) {
	c.accessGrants.SetWithTTL(
		accessGrantKey(documentID, userID, shareToken),
		accessGrantEntry{permission: permission, denial: denial},
		1,
		ttl,
	)
	c.accessGrants.Wait()
}
