package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tanvirul-I/Collab-Notes/internal/caching"
	"github.com/Tanvirul-I/Collab-Notes/internal/storage"
	"github.com/Tanvirul-I/Collab-Notes/internal/storage/storagetest"
)

func newTestCaches(t *testing.T) (*caching.Caches, error) {
	t.Helper()
	return caching.New(1 << 20)
}

func TestResolve_Owner(t *testing.T) {
	store := storagetest.New()
	store.PutDocument(storage.Document{ID: "d1", OwnerID: "u1"})
	r := New(store, nil, 0)

	perm, err := r.Resolve(context.Background(), "d1", "u1", "")
	require.NoError(t, err)
	assert.Equal(t, storage.PermissionOwner, perm)
}

func TestResolve_ExplicitSharePrecedesShareLink(t *testing.T) {
	store := storagetest.New()
	store.PutDocument(storage.Document{ID: "d1", OwnerID: "owner"})
	store.PutShare(storage.Share{DocumentID: "d1", UserID: "u2", Permission: storage.PermissionEditor})
	store.PutShareLink(storage.ShareLink{DocumentID: "d1", Token: "tok", Permission: storage.PermissionViewer})
	r := New(store, nil, 0)

	perm, err := r.Resolve(context.Background(), "d1", "u2", "tok")
	require.NoError(t, err)
	assert.Equal(t, storage.PermissionEditor, perm, "explicit share must win over share-link even if both match")
}

func TestResolve_ShareLinkGrants(t *testing.T) {
	store := storagetest.New()
	store.PutDocument(storage.Document{ID: "d1", OwnerID: "owner"})
	store.PutShareLink(storage.ShareLink{DocumentID: "d1", Token: "tok", Permission: storage.PermissionViewer})
	r := New(store, nil, 0)

	perm, err := r.Resolve(context.Background(), "d1", "stranger", "tok")
	require.NoError(t, err)
	assert.Equal(t, storage.PermissionViewer, perm)
}

func TestResolve_ExpiredShareLinkDenies(t *testing.T) {
	store := storagetest.New()
	store.PutDocument(storage.Document{ID: "d1", OwnerID: "owner"})
	past := time.Now().Add(-time.Minute)
	store.PutShareLink(storage.ShareLink{DocumentID: "d1", Token: "tok", Permission: storage.PermissionViewer, ExpiresAt: &past})
	r := New(store, nil, 0)

	_, err := r.Resolve(context.Background(), "d1", "stranger", "tok")
	require.Error(t, err)
	assert.Equal(t, DenialNoAccess, err.(*Error).Denial)
}

func TestResolve_UnknownShareTokenFallsThroughToNoAccess(t *testing.T) {
	store := storagetest.New()
	store.PutDocument(storage.Document{ID: "d1", OwnerID: "owner"})
	r := New(store, nil, 0)

	_, err := r.Resolve(context.Background(), "d1", "stranger", "bogus-token")
	require.Error(t, err)
	assert.Equal(t, DenialNoAccess, err.(*Error).Denial)
}

func TestResolve_MissingDocumentIsNotFound(t *testing.T) {
	store := storagetest.New()
	r := New(store, nil, 0)

	_, err := r.Resolve(context.Background(), "missing", "u1", "")
	require.Error(t, err)
	assert.Equal(t, DenialNotFound, err.(*Error).Denial)
}

func TestResolve_StoreFailureSurfacesAsNotFound(t *testing.T) {
	store := storagetest.New()
	store.LoadErr = assert.AnError
	r := New(store, nil, 0)

	_, err := r.Resolve(context.Background(), "d1", "u1", "")
	require.Error(t, err)
	assert.Equal(t, DenialNotFound, err.(*Error).Denial, "store failures must not leak internal detail")
}

func TestResolve_EmptyIDIsInvalid(t *testing.T) {
	store := storagetest.New()
	r := New(store, nil, 0)

	_, err := r.Resolve(context.Background(), "", "u1", "")
	require.Error(t, err)
	assert.Equal(t, DenialInvalidID, err.(*Error).Denial)
}

func TestResolve_CacheMemoizesGrant(t *testing.T) {
	store := storagetest.New()
	store.PutDocument(storage.Document{ID: "d1", OwnerID: "u1"})
	cache, err := newTestCaches(t)
	require.NoError(t, err)
	r := New(store, cache, time.Minute)

	perm, err := r.Resolve(context.Background(), "d1", "u1", "")
	require.NoError(t, err)
	assert.Equal(t, storage.PermissionOwner, perm)

	// Hand the document to another owner; a memoized grant should still resolve owner.
	store.PutDocument(storage.Document{ID: "d1", OwnerID: "someone-else"})
	perm, err = r.Resolve(context.Background(), "d1", "u1", "")
	require.NoError(t, err)
	assert.Equal(t, storage.PermissionOwner, perm, "cached grant should serve without re-querying the store")
}
