// Package access resolves a (documentId, userId, shareToken) triple into
// a permission. It is a pure read against the durable
// store; it never mutates anything and never leaks internal store
// failures to the caller.
package access

import (
	"context"
	"strings"
	"time"

	"github.com/Tanvirul-I/Collab-Notes/internal/caching"
	"github.com/Tanvirul-I/Collab-Notes/internal/storage"
)

// Denial is returned instead of a permission when access is not granted.
type Denial string

const (
	DenialInvalidID Denial = "invalid-id"
	DenialNotFound  Denial = "not-found"
	DenialNoAccess  Denial = "no-access"
)

// Error wraps a Denial so resolver callers can type-switch without
// string comparisons.
type Error struct {
	Denial Denial
}

func (e *Error) Error() string { return string(e.Denial) }

func denied(d Denial) error { return &Error{Denial: d} }

// Resolver resolves access grants. It is safe for concurrent use.
type Resolver struct {
	store storage.Store
	cache *caching.Caches
	ttl   time.Duration
}

// New constructs a Resolver. cache may be nil to disable memoization.
func New(store storage.Store, cache *caching.Caches, ttl time.Duration) *Resolver {
	return &Resolver{store: store, cache: cache, ttl: ttl}
}

// Resolve runs the ordered access checks: owner check,
// then explicit user share, then valid share-link token. An unknown
// shareToken falls through to no-access, never to not-found.
func (r *Resolver) Resolve(ctx context.Context, documentID, userID, shareToken string) (storage.Permission, error) {
	if strings.TrimSpace(documentID) == "" || strings.ContainsAny(documentID, "\x00") {
		return "", denied(DenialInvalidID)
	}

	if r.cache != nil {
		if perm, denial, ok := r.cache.GetAccessGrant(documentID, userID, shareToken); ok {
			if denial != "" {
				return "", denied(Denial(denial))
			}
			return perm, nil
		}
	}

	perm, err := r.resolveUncached(ctx, documentID, userID, shareToken)

	if r.cache != nil {
		if err == nil {
			r.cache.PutAccessGrant(documentID, userID, shareToken, perm, "", r.ttl)
		} else if ae, ok := err.(*Error); ok {
			r.cache.PutAccessGrant(documentID, userID, shareToken, "", string(ae.Denial), r.ttl)
		}
	}

	return perm, err
}

func (r *Resolver) resolveUncached(ctx context.Context, documentID, userID, shareToken string) (storage.Permission, error) {
	doc, err := r.store.FindDocumentByID(ctx, documentID)
	if err != nil {
		// Both "no such document" and any store-level failure surface
		// identically as not-found, so internal state never leaks to
		// clients.
		return "", denied(DenialNotFound)
	}

	if doc.OwnerID == userID {
		return storage.PermissionOwner, nil
	}

	if share, err := r.store.FindShareByDocumentAndUser(ctx, documentID, userID); err == nil {
		return share.Permission, nil
	}

	if shareToken != "" {
		if link, err := r.store.FindValidShareLink(ctx, documentID, shareToken, time.Now()); err == nil {
			return link.Permission, nil
		}
	}

	return "", denied(DenialNoAccess)
}
